package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/evolution"
	"github.com/mhpenta/detailsmatter/extract"
	"github.com/mhpenta/detailsmatter/gallery"
	"github.com/mhpenta/detailsmatter/internal/app"
)

// maxTurnsPerRequest bounds how many turns one request may generate.
const maxTurnsPerRequest = 10

type createSessionRequest struct {
	Variant    evolution.Variant `json:"variant"`
	Prompt     string            `json:"prompt"`
	Style      string            `json:"style"`
	Mode       string            `json:"mode"`
	WorldBible map[string]any    `json:"world_bible"`
	// SeedImage is base64 or a data URI.
	SeedImage string `json:"seed_image"`
	// Turns is how many model turns to generate, counting the first.
	Turns int `json:"turns"`
}

type turnsRequest struct {
	Turns int `json:"turns"`
}

type settingsRequest struct {
	Style      *string        `json:"style"`
	Mode       *string        `json:"mode"`
	WorldBible map[string]any `json:"world_bible"`
}

type turnView struct {
	Index int `json:"index"`
	evolution.Turn
	ImageURL string `json:"image_url,omitempty"`
}

type sessionView struct {
	evolution.Snapshot
	Turns         []turnView           `json:"turns"`
	LastDirective *evolution.Directive `json:"last_directive,omitempty"`
	ForkedFrom    *gallery.ForkInfo    `json:"fork_info,omitempty"`
}

func imageURL(sessionID string, idx int) string {
	return fmt.Sprintf("/api/sessions/%s/turns/%d/image", sessionID, idx)
}

func (s *Server) view(ls *liveSession) sessionView {
	snap := ls.conv.Snapshot()
	v := sessionView{
		Snapshot:      snap,
		Turns:         make([]turnView, len(snap.Turns)),
		LastDirective: ls.conv.State().LastDirective(),
		ForkedFrom:    ls.forkedFrom,
	}
	for i, t := range snap.Turns {
		v.Turns[i] = turnView{Index: i, Turn: t}
		if t.HasImage() {
			v.Turns[i].ImageURL = imageURL(snap.ID, i)
		}
	}
	return v
}

func clampTurns(n int) int {
	switch {
	case n < 1:
		return 1
	case n > maxTurnsPerRequest:
		return maxTurnsPerRequest
	default:
		return n
	}
}

func (s *Server) decodeSeed(raw string) (*detailsmatter.Image, error) {
	if raw == "" {
		return nil, nil
	}
	img, ok := s.probe.TryExtractImage(extract.Part{Fields: map[string]any{"image": raw}})
	if !ok {
		return nil, fmt.Errorf("%w: seed_image is not base64 image data", errBadRequest)
	}
	if err := detailsmatter.ValidateImage(img); err != nil {
		return nil, err
	}
	return img, nil
}

func (s *Server) session(c *gin.Context) (*liveSession, bool) {
	ls, err := s.sessions.get(c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return nil, false
	}
	return ls, true
}

func turnIndex(c *gin.Context) (int, error) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, fmt.Errorf("%w: turn index %q", errBadRequest, c.Param("index"))
	}
	return i, nil
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if req.Variant == "" {
		req.Variant = evolution.VariantSingle
	}
	if req.Variant != evolution.VariantSingle && req.Variant != evolution.VariantDirected {
		s.handleError(c, fmt.Errorf("%w: unknown variant %q", errBadRequest, req.Variant))
		return
	}
	if err := detailsmatter.ValidatePrompt(req.Prompt); err != nil {
		s.handleError(c, err)
		return
	}
	seed, err := s.decodeSeed(req.SeedImage)
	if err != nil {
		s.handleError(c, err)
		return
	}

	opts := app.ConversationOptions{
		Variant:    req.Variant,
		Style:      req.Style,
		WorldBible: req.WorldBible,
	}
	if req.Mode != "" {
		opts.Mode = evolution.ParseMode(req.Mode)
	}
	conv, images, err := s.app.NewConversation(opts)
	if err != nil {
		s.handleError(c, err)
		return
	}
	ls := &liveSession{conv: conv, images: images}
	s.sessions.add(ls)

	ctx := c.Request.Context()
	if _, err := conv.Begin(ctx, req.Prompt, seed); err != nil {
		s.sessions.remove(conv.ID())
		s.discard(ls)
		s.handleError(c, err)
		return
	}
	if n := clampTurns(req.Turns) - 1; n > 0 {
		if _, err := conv.Run(ctx, n); err != nil {
			s.logger.Warn("initial run stopped early", zap.String("session", conv.ID()), zap.Error(err))
		}
	}

	c.JSON(http.StatusCreated, s.view(ls))
}

func (s *Server) getSession(c *gin.Context) {
	ls, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.view(ls))
}

// closeSession drops a live session and its working images. Exported and
// published copies are unaffected.
func (s *Server) closeSession(c *gin.Context) {
	ls, ok := s.session(c)
	if !ok {
		return
	}
	if _, ok := s.sessions.remove(ls.conv.ID()); ok {
		s.discard(ls)
	}
	c.Status(http.StatusNoContent)
}

// purger is implemented by image stores that own files on disk.
type purger interface {
	Purge() error
}

func (s *Server) discard(ls *liveSession) {
	p, ok := ls.images.(purger)
	if !ok {
		return
	}
	if err := p.Purge(); err != nil {
		s.logger.Warn("failed to remove session images", zap.String("session", ls.conv.ID()), zap.Error(err))
	}
}

// expireSessions discards sessions idle for longer than idle.
func (s *Server) expireSessions(idle time.Duration) int {
	expired := s.sessions.expire(idle)
	for _, ls := range expired {
		s.discard(ls)
	}
	if len(expired) > 0 {
		s.logger.Info("expired idle sessions", zap.Int("count", len(expired)), zap.Duration("idle", idle))
	}
	return len(expired)
}

func (s *Server) continueSession(c *gin.Context) {
	ls, ok := s.session(c)
	if !ok {
		return
	}
	var req turnsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.handleError(c, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	turns, err := ls.conv.Run(c.Request.Context(), clampTurns(req.Turns))
	if err != nil && len(turns) == 0 {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view(ls))
}

func (s *Server) regenerateTurn(c *gin.Context) {
	ls, ok := s.session(c)
	if !ok {
		return
	}
	idx, err := turnIndex(c)
	if err != nil {
		s.handleError(c, err)
		return
	}

	turn, replaced, err := ls.conv.Regenerate(c.Request.Context(), idx)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"replaced": replaced,
		"attempt":  turn,
		"session":  s.view(ls),
	})
}

func (s *Server) undoTurn(c *gin.Context) {
	ls, ok := s.session(c)
	if !ok {
		return
	}
	if _, err := ls.conv.Undo(c.Request.Context()); err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view(ls))
}

func (s *Server) resetSession(c *gin.Context) {
	ls, ok := s.session(c)
	if !ok {
		return
	}
	if err := ls.conv.Reset(c.Request.Context()); err != nil {
		s.handleError(c, err)
		return
	}
	ls.forkedFrom = nil
	c.JSON(http.StatusOK, s.view(ls))
}

func (s *Server) directSession(c *gin.Context) {
	ls, ok := s.session(c)
	if !ok {
		return
	}
	directive, err := ls.conv.Direct(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"directive": directive, "session": s.view(ls)})
}

func (s *Server) updateSettings(c *gin.Context) {
	ls, ok := s.session(c)
	if !ok {
		return
	}
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	st := ls.conv.State()
	if req.Style != nil {
		style := *req.Style
		if canonical, ok := s.app.Styles.Canonical(style); ok {
			style = canonical
		}
		st.SetStyle(style)
	}
	if req.Mode != nil {
		st.SetMode(evolution.ParseMode(*req.Mode))
	}
	if req.WorldBible != nil {
		st.SetWorldBible(req.WorldBible)
	}
	c.JSON(http.StatusOK, s.view(ls))
}

func (s *Server) turnImage(c *gin.Context) {
	ls, ok := s.session(c)
	if !ok {
		return
	}
	idx, err := turnIndex(c)
	if err != nil {
		s.handleError(c, err)
		return
	}
	img, err := ls.conv.State().Store().LoadImage(c.Request.Context(), idx)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=60")
	c.Data(http.StatusOK, img.MIMEType, img.Data)
}
