package detailsmatter

import (
	"context"
)

// MockImageProvider is a test double for ImageProvider.
type MockImageProvider struct {
	GenerateFunc func(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
	ModelsFunc   func() []ModelInfo
	CloseFunc    func() error
}

func (m *MockImageProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &GenerateResult{}, nil
}

func (m *MockImageProvider) Models() []ModelInfo {
	if m.ModelsFunc != nil {
		return m.ModelsFunc()
	}
	return []ModelInfo{
		{
			Name:         "mock-model",
			Provider:     "mock",
			APIModelName: "mock-model-v1",
		},
	}
}

func (m *MockImageProvider) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// MockTextProvider is a test double for TextProvider.
type MockTextProvider struct {
	CompleteFunc func(ctx context.Context, prompt string, opts *CompleteOptions) (string, error)
}

func (m *MockTextProvider) Complete(ctx context.Context, prompt string, opts *CompleteOptions) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, opts)
	}
	return "", nil
}
