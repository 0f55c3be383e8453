package extract

import (
	"encoding/base64"
	"strings"

	"github.com/mhpenta/detailsmatter"
)

// TypedBlob uses the image the SDK already decoded.
type TypedBlob struct{}

func (TypedBlob) Name() string { return "typed_blob" }

func (TypedBlob) TryExtract(part Part) (*detailsmatter.Image, bool) {
	if part.Blob == nil || len(part.Blob.Data) == 0 {
		return nil, false
	}
	return detailsmatter.NewImage(part.Blob.Data, part.Blob.MIMEType), true
}

// FieldProbe looks for image bytes under well-known field names. Values may
// be base64 strings (optionally data URIs) or nested objects holding a data
// field. Raw []byte values only occur in hand-built Parts; PartFromJSON
// always yields strings. Bytes that do not sniff as a supported image are
// skipped and the probe moves on to the next field.
type FieldProbe struct {
	Names    []string
	MaxDepth int
}

// NewFieldProbe returns a probe over the field names image payloads have been seen under.
func NewFieldProbe() FieldProbe {
	return FieldProbe{
		Names:    []string{"image", "image_bytes", "imageBytes", "binary", "data", "inlineData", "inline_data"},
		MaxDepth: 2,
	}
}

func (FieldProbe) Name() string { return "field_probe" }

func (p FieldProbe) TryExtract(part Part) (*detailsmatter.Image, bool) {
	return p.probe(part.Fields, 0)
}

func (p FieldProbe) probe(fields map[string]any, depth int) (*detailsmatter.Image, bool) {
	if fields == nil || depth > p.MaxDepth {
		return nil, false
	}
	mimeType := mimeTypeOf(fields)

	for _, name := range p.Names {
		v, ok := fields[name]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case []byte:
			if img, ok := recognized(val, mimeType); ok {
				return img, true
			}
		case string:
			if data, ok := decodeBase64(val); ok {
				if img, ok := recognized(data, mimeType); ok {
					return img, true
				}
			}
		case map[string]any:
			if img, ok := p.probe(val, depth+1); ok {
				return img, true
			}
		}
	}
	return nil, false
}

func mimeTypeOf(fields map[string]any) string {
	for _, key := range []string{"mimeType", "mime_type", "MIMEType"} {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// EmbeddedBase64 finds a "base64," fragment inside free text, such as a
// markdown data URI, and decodes what follows the last occurrence.
type EmbeddedBase64 struct{}

func (EmbeddedBase64) Name() string { return "embedded_base64" }

func (EmbeddedBase64) TryExtract(part Part) (*detailsmatter.Image, bool) {
	const marker = "base64,"

	idx := strings.LastIndex(part.Text, marker)
	if idx < 0 {
		return nil, false
	}

	payload := strings.TrimSpace(part.Text[idx+len(marker):])
	payload = strings.Trim(payload, "`")
	if nl := strings.IndexAny(payload, "\r\n"); nl >= 0 {
		payload = payload[:nl]
	}
	payload = strings.TrimRight(strings.TrimSpace(payload), ")`\"'")

	data, ok := decodeBase64(payload)
	if !ok {
		return nil, false
	}
	return recognized(data, "")
}

// recognized wraps data as an Image when its leading bytes are a supported
// image format. A declared type the sniffer disagrees with is replaced.
func recognized(data []byte, mimeType string) (*detailsmatter.Image, bool) {
	sniffed := detailsmatter.SniffMIMEType(data)
	if sniffed == "" {
		return nil, false
	}
	if !detailsmatter.ValidMIMETypes[mimeType] {
		mimeType = sniffed
	}
	return &detailsmatter.Image{Data: data, MIMEType: mimeType}, true
}

// decodeBase64 accepts standard, unpadded and URL-safe encodings, and data URIs.
func decodeBase64(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len("base64,"):]
	}
	if s == "" {
		return nil, false
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil && len(data) > 0 {
			return data, true
		}
	}
	return nil, false
}
