package detailsmatter

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is returned when a rate limit is hit.
type RateLimitError struct {
	RetryAfter time.Duration
	LimitType  string
	Model      string
	Err        error // Underlying error from the provider
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %s limit, retry after %v",
		e.Model, e.LimitType, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimitError checks if an error is a RateLimitError.
func IsRateLimitError(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// ResponseError is an explicit failure reported by a model: no response
// envelope, an envelope without content, or a blocked candidate.
type ResponseError struct {
	Message     string
	RawResponse string
	Err         error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model response error: %s: %v", e.Message, e.Err)
	}
	return "model response error: " + e.Message
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// AsResponseError returns the ResponseError in err's chain, if any.
func AsResponseError(err error) (*ResponseError, bool) {
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr, true
	}
	return nil, false
}

// ErrImageNotFound is returned by an ImageStore when a reference does not resolve.
var ErrImageNotFound = errors.New("image not found")
