package detailsmatter

import (
	"context"
)

// TextOnlyProvider adapts a TextProvider to the ImageProvider interface.
// It never returns an image and ignores any conditioning image.
type TextOnlyProvider struct {
	text TextProvider
	opts *CompleteOptions
	info ModelInfo
}

var _ ImageProvider = (*TextOnlyProvider)(nil)

// TextOnly wraps tp so it can act as a text-only actor. info describes the
// backing model; opts are passed on every call.
func TextOnly(tp TextProvider, info ModelInfo, opts *CompleteOptions) *TextOnlyProvider {
	return &TextOnlyProvider{text: tp, opts: opts, info: info}
}

// Generate completes the composed prompt. Text requests default to the
// narrative template.
func (p *TextOnlyProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	if err := ValidatePrompt(req.Prompt); err != nil {
		return nil, err
	}

	composed := *req
	composed.Conditioning = nil
	if composed.Template == nil {
		composed.Template = &NarrativePromptTemplate
	}

	text, err := p.text.Complete(ctx, composed.FullPrompt(), p.opts)
	if err != nil {
		if IsRateLimitError(err) {
			return nil, err
		}
		if _, ok := AsResponseError(err); ok {
			return nil, err
		}
		return nil, &ResponseError{Message: "text completion failed", Err: err}
	}
	if text == "" {
		return nil, &ResponseError{Message: "empty completion"}
	}

	return &GenerateResult{Text: text}, nil
}

// Models returns the backing model.
func (p *TextOnlyProvider) Models() []ModelInfo {
	return []ModelInfo{p.info}
}

// Close is a no-op.
func (p *TextOnlyProvider) Close() error {
	return nil
}
