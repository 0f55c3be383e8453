// Package evolution implements the turn-based image evolution engine: the
// turn store, conditioning image resolution, and turn generation for the
// single-model and directed variants.
package evolution

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Actor identifies who produced a turn.
type Actor string

const (
	ActorHuman       Actor = "human"
	ActorEvolver     Actor = "evolver"
	ActorStoryteller Actor = "storyteller"
	ActorArtist      Actor = "artist"
)

// FailureReason explains why a turn has no image.
type FailureReason string

const (
	FailureNone                 FailureReason = ""
	FailureNoPreviousImage      FailureReason = "no_previous_image"
	FailureCouldNotLoadFallback FailureReason = "could_not_load_fallback"
	FailureModelResponseError   FailureReason = "model_response_error"
)

// ErrorInfo keeps a model failure for display.
type ErrorInfo struct {
	Message     string `json:"message"`
	RawResponse string `json:"raw_response,omitempty"`
}

// Turn is one step of a conversation.
type Turn struct {
	ID        string `json:"id"`
	Actor     Actor  `json:"actor"`
	ActorName string `json:"actor_name"`

	Text             string `json:"text,omitempty"`
	ImageRef         string `json:"image_ref,omitempty"`
	ImageDescription string `json:"image_description,omitempty"`

	// Prompt is the exact prompt sent for this turn. Empty for the human seed.
	Prompt    string    `json:"prompt,omitempty"`
	Style     string    `json:"style,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// ImageMissing is set when an image was attempted but none resulted.
	ImageMissing  bool          `json:"image_missing"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`

	// FallbackSource is the earlier turn whose image conditioned this one
	// when the immediate predecessor had none.
	FallbackSource *int `json:"fallback_source,omitempty"`

	DirectorGuidance string     `json:"director_guidance,omitempty"`
	DirectorAction   string     `json:"director_action,omitempty"`
	Error            *ErrorInfo `json:"error,omitempty"`
}

// HasImage reports whether the turn records an image reference.
func (t Turn) HasImage() bool {
	return t.ImageRef != ""
}

// Failed reports whether image generation was attempted and produced nothing.
func (t Turn) Failed() bool {
	return t.ImageMissing
}

// DropImage clears a reference that could not be carried over. A generated
// turn left without its image counts as failed so it can be regenerated.
func (t *Turn) DropImage() {
	t.ImageRef = ""
	if t.Actor != ActorHuman {
		t.ImageMissing = true
	}
}

func newTurnID() string {
	return ulid.Make().String()
}

func intPtr(i int) *int {
	return &i
}
