package detailsmatter

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrEmptyPrompt          = errors.New("prompt cannot be empty")
	ErrEmptyImageData       = errors.New("image data cannot be empty")
	ErrInvalidMIMEType      = errors.New("invalid or unsupported MIME type")
	ErrImageTooLarge        = errors.New("image data exceeds maximum size")
	ErrStorageNotConfigured = errors.New("image store not configured")
	ErrUnrecognizedImage    = errors.New("data is not a recognized image format")
)

// MaxImageSize is the maximum allowed image size in bytes (20MB)
const MaxImageSize = 20 * 1024 * 1024

// ValidMIMETypes contains the supported image MIME types
var ValidMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ValidatePrompt validates a text prompt.
func ValidatePrompt(prompt string) error {
	if prompt == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// ValidateImage validates an image before it is sent to a model or stored.
func ValidateImage(img *Image) error {
	if img == nil || len(img.Data) == 0 {
		return ErrEmptyImageData
	}
	if len(img.Data) > MaxImageSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrImageTooLarge, len(img.Data), MaxImageSize)
	}
	if img.MIMEType == "" {
		return fmt.Errorf("%w: MIME type is required", ErrInvalidMIMEType)
	}
	if !ValidMIMETypes[img.MIMEType] {
		return fmt.Errorf("%w: %s", ErrInvalidMIMEType, img.MIMEType)
	}
	if SniffMIMEType(img.Data) == "" {
		return ErrUnrecognizedImage
	}
	return nil
}

// ValidateRequest validates a GenerateRequest.
func ValidateRequest(req *GenerateRequest) error {
	if req == nil {
		return ErrEmptyPrompt
	}
	if err := ValidatePrompt(req.Prompt); err != nil {
		return err
	}
	if req.Conditioning != nil {
		if err := ValidateImage(req.Conditioning); err != nil {
			return fmt.Errorf("conditioning image: %w", err)
		}
	}
	return nil
}
