package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/evolution"
	"github.com/mhpenta/detailsmatter/gallery"
)

type forkRequest struct {
	Turn int `json:"turn"`
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, key)
	}
	return n, nil
}

func (s *Server) listGallery(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.handleError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		s.handleError(c, err)
		return
	}

	page, err := s.app.Gallery.List(c.Request.Context(), offset, limit)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) searchGallery(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		s.handleError(c, err)
		return
	}
	found, err := s.app.Gallery.Search(c.Request.Context(), c.Query("q"), c.Query("style"), limit)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": found})
}

func (s *Server) getThread(c *gin.Context) {
	thread, err := s.app.Gallery.Thread(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

func (s *Server) threadLineage(c *gin.Context) {
	ancestors, err := s.app.Gallery.Lineage(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lineage": ancestors})
}

// galleryImage serves a content-addressed image; the key never changes meaning.
func (s *Server) galleryImage(c *gin.Context) {
	img, err := s.app.Gallery.Image(c.Param("key"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, img.MIMEType, img.Data)
}

func (s *Server) forkThread(c *gin.Context) {
	var req forkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	id := c.Param("id")
	var parent *gallery.ForkInfo
	ls, err := s.restore(c.Request.Context(), func(ctx context.Context, images detailsmatter.ImageStore) (evolution.Snapshot, error) {
		snap, info, err := s.app.Gallery.Fork(ctx, id, req.Turn, images)
		if err != nil {
			return evolution.Snapshot{}, err
		}
		parent = &info
		return snap, nil
	})
	if err != nil {
		s.handleError(c, err)
		return
	}
	ls.forkedFrom = parent
	c.JSON(http.StatusCreated, s.view(ls))
}
