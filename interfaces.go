package detailsmatter

import "context"

// ImageProvider is the core interface for image-producing models.
// Implement this interface to add support for new models or providers.
//
// The first model returned by Models() is considered the default model.
type ImageProvider interface {
	// Generate runs one request and returns the extracted text and/or image.
	// A model that answered but did not produce the expected content is
	// reported as a *ResponseError.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)

	// Models returns the model definitions supported by this provider.
	// The first model in the list is the default.
	Models() []ModelInfo

	// Close releases any resources held by the provider.
	Close() error
}

// TextProvider completes a free-form text prompt.
type TextProvider interface {
	Complete(ctx context.Context, prompt string, opts *CompleteOptions) (string, error)
}

// ImageStore owns the bytes behind image references.
// References are opaque to callers.
type ImageStore interface {
	// Put stores an image and returns its reference.
	Put(ctx context.Context, img *Image) (string, error)

	// Get loads an image. Returns ErrImageNotFound when the reference does not resolve.
	Get(ctx context.Context, ref string) (*Image, error)

	// Delete removes an image. Deleting a missing reference is not an error.
	Delete(ctx context.Context, ref string) error
}
