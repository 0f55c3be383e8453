package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/evolution"
	"github.com/mhpenta/detailsmatter/gallery"
	"github.com/mhpenta/detailsmatter/internal/app"
	"github.com/mhpenta/detailsmatter/session"
)

type loadRequest struct {
	Path string `json:"path"`
}

type savedView struct {
	session.Saved
	ArchiveURL string `json:"archive_url,omitempty"`
}

func viewSaved(saved session.Saved) savedView {
	v := savedView{Saved: saved}
	if saved.Archive != "" {
		v.ArchiveURL = "/api/saved/" + filepath.Base(saved.Dir) + "/archive"
	}
	return v
}

// snapshotLoader fills images and returns the snapshot to restore.
type snapshotLoader func(ctx context.Context, images detailsmatter.ImageStore) (evolution.Snapshot, error)

// restore creates a live session from a loaded snapshot.
func (s *Server) restore(ctx context.Context, load snapshotLoader) (*liveSession, error) {
	id := ulid.Make().String()
	images, err := s.app.ImageStore(id)
	if err != nil {
		return nil, err
	}
	snap, err := load(ctx, images)
	if err != nil {
		return nil, err
	}

	conv, _, err := s.app.NewConversation(app.ConversationOptions{
		ID:      id,
		Variant: snap.Variant,
		Images:  images,
	})
	if err != nil {
		return nil, err
	}
	if err := conv.Restore(snap); err != nil {
		return nil, err
	}

	ls := &liveSession{conv: conv, images: images}
	s.sessions.add(ls)
	return ls, nil
}

func (s *Server) exportSession(c *gin.Context) {
	ls, ok := s.session(c)
	if !ok {
		return
	}
	snap := ls.conv.Snapshot()
	if len(snap.Turns) == 0 {
		s.handleError(c, evolution.ErrNotStarted)
		return
	}

	saved, err := s.app.Sessions.Export(c.Request.Context(), snap, ls.images)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewSaved(*saved))
}

func (s *Server) listSaved(c *gin.Context) {
	list, err := s.app.Sessions.List()
	if err != nil {
		s.handleError(c, err)
		return
	}
	out := make([]savedView, len(list))
	for i, saved := range list {
		out[i] = viewSaved(saved)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) loadSaved(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	ls, err := s.restore(c.Request.Context(), func(ctx context.Context, images detailsmatter.ImageStore) (evolution.Snapshot, error) {
		return s.app.Sessions.Import(ctx, req.Path, images)
	})
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.view(ls))
}

func (s *Server) uploadArchive(c *gin.Context) {
	fh, err := c.FormFile("archive")
	if err != nil {
		s.handleError(c, fmt.Errorf("%w: archive file is required", errBadRequest))
		return
	}
	if fh.Size > maxUploadSize {
		s.handleError(c, fmt.Errorf("%w: archive exceeds %d bytes", errBadRequest, maxUploadSize))
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.handleError(c, err)
		return
	}
	defer f.Close()

	ls, err := s.restore(c.Request.Context(), func(ctx context.Context, images detailsmatter.ImageStore) (evolution.Snapshot, error) {
		return s.app.Sessions.ImportArchive(ctx, f, fh.Size, images)
	})
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.view(ls))
}

func (s *Server) downloadArchive(c *gin.Context) {
	dir, err := s.app.Sessions.Resolve(c.Param("name"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	archive := filepath.Join(dir, session.ArchiveFile)
	if _, err := os.Stat(archive); err != nil {
		s.handleError(c, fmt.Errorf("%w: %s", errArchiveNotFound, filepath.Base(dir)))
		return
	}
	c.FileAttachment(archive, filepath.Base(dir)+".zip")
}

func (s *Server) publishSession(c *gin.Context) {
	ls, ok := s.session(c)
	if !ok {
		return
	}
	meta, err := s.app.Gallery.Publish(c.Request.Context(), ls.conv.Snapshot(), ls.images, gallery.PublishOptions{
		Model:    s.app.Config.Gemini.ImageModel,
		ForkInfo: ls.forkedFrom,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, meta)
}
