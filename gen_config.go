package detailsmatter

import (
	"fmt"
	"time"
)

// Model represents a specific model identifier.
type Model string

// ImageSize represents the output resolution for generated images.
type ImageSize string

const (
	ImageSize1K ImageSize = "1K"
	ImageSize2K ImageSize = "2K"
	ImageSize4K ImageSize = "4K"
)

// AspectRatio represents the aspect ratio for generated images.
type AspectRatio string

const (
	AspectRatio1x1  AspectRatio = "1:1"
	AspectRatio16x9 AspectRatio = "16:9"
	AspectRatio9x16 AspectRatio = "9:16"
	AspectRatio4x3  AspectRatio = "4:3"
	AspectRatio3x4  AspectRatio = "3:4"
	AspectRatio3x2  AspectRatio = "3:2"
	AspectRatio2x3  AspectRatio = "2:3"
	AspectRatioAuto AspectRatio = ""
)

// Modality is an output kind requested from a model.
type Modality string

const (
	ModalityText  Modality = "TEXT"
	ModalityImage Modality = "IMAGE"
)

// GenerateConfig holds per-request model options.
type GenerateConfig struct {
	// Model to use for generation (if empty, uses manager's default)
	Model Model

	// Size of the output image (1K, 2K, 4K)
	Size ImageSize

	// AspectRatio of the output image
	AspectRatio AspectRatio

	// EnableThinking enables the model's thinking mode for complex prompts
	EnableThinking bool

	// Temperature controls randomness
	Temperature *float32

	// SafetySettings for content filtering
	SafetySettings []SafetySetting

	// WaitOnRateLimit, if true, causes the Manager to wait when rate limited.
	// If false, a RateLimitError is returned immediately.
	WaitOnRateLimit bool

	// MaxWaitDuration is the maximum time to wait when WaitOnRateLimit is true.
	// Zero means no limit.
	MaxWaitDuration time.Duration
}

// WithModel returns a copy of the config with the specified model.
func (c *GenerateConfig) WithModel(model Model) *GenerateConfig {
	if c == nil {
		return &GenerateConfig{Model: model}
	}
	cX := *c
	cX.Model = model
	return &cX
}

// DefaultConfig returns a GenerateConfig with sensible defaults.
func DefaultConfig() *GenerateConfig {
	return &GenerateConfig{
		Model:       ModelDefault,
		AspectRatio: AspectRatioAuto,
	}
}

// PromptTemplate controls how a request's prompt, context and style are
// combined into the text sent to the model.
type PromptTemplate struct {
	// EnhancePrefix is put in front of the prompt when a conditioning image is sent.
	EnhancePrefix string

	// StyleFormat is a fmt format with a single %s for the style label.
	StyleFormat string
}

var (
	// EvolvePromptTemplate is used by the single-model evolution.
	EvolvePromptTemplate = PromptTemplate{
		EnhancePrefix: "Build upon the visual composition intelligently.",
		StyleFormat:   "\nStyle: %s.",
	}

	// ArtistPromptTemplate is used for the image-producing actor of a directed session.
	ArtistPromptTemplate = PromptTemplate{
		EnhancePrefix: "Enhance and continue the existing image according to the new prompt while maintaining character consistency, style, and scene elements. Build upon the visual composition intelligently.",
		StyleFormat:   "\nStyle: %s.",
	}

	// NarrativePromptTemplate is used for text-only actors.
	NarrativePromptTemplate = PromptTemplate{
		StyleFormat: "\nStyle context: %s.",
	}
)

// GenerateRequest is one call to an ImageProvider.
type GenerateRequest struct {
	Prompt string

	// Context is prepended to the prompt, separated by a blank line.
	Context string

	// Conditioning is the image the model should continue from. May be nil.
	Conditioning *Image

	// Style label appended to the prompt when non-empty.
	Style string

	// Modalities requested from the model. Empty means text and image.
	Modalities []Modality

	// Template used by FullPrompt. Nil means EvolvePromptTemplate.
	Template *PromptTemplate

	Config *GenerateConfig
}

// FullPrompt composes the text sent to the model.
func (r *GenerateRequest) FullPrompt() string {
	tmpl := EvolvePromptTemplate
	if r.Template != nil {
		tmpl = *r.Template
	}

	full := r.Prompt
	if r.Context != "" {
		full = r.Context + "\n\n" + r.Prompt
	}
	if r.Style != "" && tmpl.StyleFormat != "" {
		full += fmt.Sprintf(tmpl.StyleFormat, r.Style)
	}
	if r.Conditioning != nil && tmpl.EnhancePrefix != "" {
		full = tmpl.EnhancePrefix + " " + full
	}
	return full
}

// OutputModalities returns the requested modalities, defaulting to text and image.
func (r *GenerateRequest) OutputModalities() []Modality {
	if len(r.Modalities) == 0 {
		return []Modality{ModalityText, ModalityImage}
	}
	return r.Modalities
}

// ImageOnly reports whether only image output was requested.
func (r *GenerateRequest) ImageOnly() bool {
	mods := r.OutputModalities()
	return len(mods) == 1 && mods[0] == ModalityImage
}

// CompleteOptions tunes a TextProvider call. Zero values mean provider defaults.
type CompleteOptions struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// String returns the model identifier.
func (m Model) String() string {
	return string(m)
}

// String returns the string representation for API calls.
func (s ImageSize) String() string {
	return string(s)
}

// String returns the string representation for API calls.
func (a AspectRatio) String() string {
	return string(a)
}
