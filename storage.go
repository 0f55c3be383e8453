package detailsmatter

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
)

// SaveResultImage stores the image of a GenerateResult and returns its reference.
// Returns "" and no error when the result carries no image.
func SaveResultImage(ctx context.Context, store ImageStore, result *GenerateResult) (string, error) {
	if store == nil {
		return "", ErrStorageNotConfigured
	}
	if !result.HasImage() {
		return "", nil
	}
	return store.Put(ctx, result.Image)
}

// SniffMIMEType detects an image MIME type from its leading bytes. It returns
// "" when the bytes do not start like a supported image format.
func SniffMIMEType(data []byte) string {
	ct := http.DetectContentType(data)
	if ValidMIMETypes[ct] {
		return ct
	}
	return ""
}

// GetMIMEType guesses an image MIME type from a file extension.
func GetMIMEType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/png"
	}
}

// ExtensionFromMIME returns a file extension (without dot) for common image MIME types.
func ExtensionFromMIME(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
