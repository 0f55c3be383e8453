package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/evolution"
	"github.com/mhpenta/detailsmatter/gallery"
	"github.com/mhpenta/detailsmatter/imagestore"
	"github.com/mhpenta/detailsmatter/session"
)

var (
	errSessionNotFound = errors.New("session not found")
	errArchiveNotFound = errors.New("saved session has no archive")
	errBadRequest      = errors.New("bad request")
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, evolution.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, evolution.ErrAlreadyStarted),
		errors.Is(err, evolution.ErrNotStarted),
		errors.Is(err, evolution.ErrNothingToUndo),
		errors.Is(err, evolution.ErrSeedTurnImmutable),
		errors.Is(err, evolution.ErrNoDirector):
		return http.StatusConflict, "conflict"
	case errors.Is(err, detailsmatter.ErrEmptyPrompt),
		errors.Is(err, detailsmatter.ErrEmptyImageData),
		errors.Is(err, detailsmatter.ErrInvalidMIMEType),
		errors.Is(err, detailsmatter.ErrUnrecognizedImage),
		errors.Is(err, detailsmatter.ErrImageTooLarge),
		errors.Is(err, session.ErrPathOutsideRoot),
		errors.Is(err, session.ErrNotASession),
		errors.Is(err, gallery.ErrInvalidKey),
		errors.Is(err, gallery.ErrEmptyThread),
		errors.Is(err, imagestore.ErrInvalidRef),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, evolution.ErrIndexOutOfRange),
		errors.Is(err, evolution.ErrEmptyStore),
		errors.Is(err, evolution.ErrNoImage),
		errors.Is(err, detailsmatter.ErrImageNotFound),
		errors.Is(err, gallery.ErrThreadNotFound),
		errors.Is(err, errSessionNotFound),
		errors.Is(err, errArchiveNotFound):
		return http.StatusNotFound, "not_found"
	case detailsmatter.IsRateLimitError(err):
		return http.StatusTooManyRequests, "rate_limited"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// handleError aborts the request with the status err maps to. Internal
// errors are logged and their message is not exposed.
func (s *Server) handleError(c *gin.Context, err error) {
	status, code := statusOf(err)
	_ = c.Error(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "an unexpected internal error occurred"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: msg})
}
