// Package extract pulls an image out of a loosely typed model response part.
//
// Models do not reliably put images where their SDK says they will. A Chain
// runs independent strategies in priority order and returns the first image
// found; a strategy that fails for any reason, including a panic, falls
// through to the next one.
package extract

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter"
)

// Part is one response part as seen by the extractors.
type Part struct {
	// Text of the part, if any.
	Text string

	// Blob is the SDK's typed inline image, if it populated one.
	Blob *detailsmatter.Image

	// Fields is the raw JSON view of the part.
	Fields map[string]any
}

// PartFromJSON builds a Part whose Fields hold the JSON encoding of v.
// Encoding failures leave Fields empty.
func PartFromJSON(v any) Part {
	var p Part
	raw, err := json.Marshal(v)
	if err != nil {
		return p
	}
	_ = json.Unmarshal(raw, &p.Fields)
	if text, ok := p.Fields["text"].(string); ok {
		p.Text = text
	}
	return p
}

// Extractor is one extraction strategy.
type Extractor interface {
	Name() string
	TryExtract(part Part) (*detailsmatter.Image, bool)
}

// Chain runs extractors in order.
type Chain struct {
	extractors []Extractor
	logger     *zap.Logger
}

// NewChain creates a chain over the given extractors.
func NewChain(logger *zap.Logger, extractors ...Extractor) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{extractors: extractors, logger: logger}
}

// Default returns the standard chain: typed blob, raw field probe, then
// base64 embedded in text.
func Default(logger *zap.Logger) *Chain {
	return NewChain(logger,
		TypedBlob{},
		NewFieldProbe(),
		EmbeddedBase64{},
	)
}

// TryExtractImage returns the first image any extractor finds.
func (c *Chain) TryExtractImage(part Part) (*detailsmatter.Image, bool) {
	for _, ex := range c.extractors {
		img, ok, err := safeExtract(ex, part)
		if err != nil {
			c.logger.Warn("extractor failed", zap.String("extractor", ex.Name()), zap.Error(err))
			continue
		}
		if !ok || img == nil || len(img.Data) == 0 {
			continue
		}
		if detailsmatter.SniffMIMEType(img.Data) == "" {
			c.logger.Warn("extractor returned unrecognized bytes",
				zap.String("extractor", ex.Name()),
				zap.Int("bytes", len(img.Data)),
			)
			continue
		}
		c.logger.Debug("image extracted",
			zap.String("extractor", ex.Name()),
			zap.Int("bytes", len(img.Data)),
			zap.String("mime_type", img.MIMEType),
		)
		return img, true
	}
	return nil, false
}

func safeExtract(ex Extractor, part Part) (img *detailsmatter.Image, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, ok, err = nil, false, fmt.Errorf("panic: %v", r)
		}
	}()
	img, ok = ex.TryExtract(part)
	return img, ok, nil
}
