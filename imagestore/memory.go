package imagestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mhpenta/detailsmatter"
)

// Memory keeps images in process memory.
type Memory struct {
	images map[string]detailsmatter.Image
	mu     sync.RWMutex
}

var _ detailsmatter.ImageStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{images: make(map[string]detailsmatter.Image)}
}

func (m *Memory) Put(ctx context.Context, img *detailsmatter.Image) (string, error) {
	if err := detailsmatter.ValidateImage(img); err != nil {
		return "", err
	}

	ref := uuid.NewString()
	data := make([]byte, len(img.Data))
	copy(data, img.Data)

	m.mu.Lock()
	m.images[ref] = detailsmatter.Image{Data: data, MIMEType: img.MIMEType}
	m.mu.Unlock()

	return ref, nil
}

func (m *Memory) Get(ctx context.Context, ref string) (*detailsmatter.Image, error) {
	m.mu.RLock()
	img, ok := m.images[ref]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", detailsmatter.ErrImageNotFound, ref)
	}
	if detailsmatter.SniffMIMEType(img.Data) == "" {
		return nil, fmt.Errorf("%w: %s", ErrCorruptImage, ref)
	}
	return &img, nil
}

func (m *Memory) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	delete(m.images, ref)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored images.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.images)
}
