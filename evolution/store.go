package evolution

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter"
)

var (
	ErrIndexOutOfRange = errors.New("turn index out of range")
	ErrEmptyStore      = errors.New("turn store is empty")
	ErrNoImage         = errors.New("turn has no image")
)

// Store is the ordered conversation history. Turns are only appended,
// replaced in place, or popped from the tail. The store owns the images its
// turns reference and deletes them when a turn is replaced or removed.
type Store struct {
	turns  []Turn
	images detailsmatter.ImageStore
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewStore creates an empty store backed by images.
func NewStore(images detailsmatter.ImageStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{images: images, logger: logger.Named("store")}
}

// Images returns the backing image store.
func (s *Store) Images() detailsmatter.ImageStore {
	return s.images
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// At returns the turn at index i.
func (s *Store) At(i int) (Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.turns) {
		return Turn{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.turns))
	}
	return s.turns[i], nil
}

// Last returns the final turn.
func (s *Store) Last() (Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return Turn{}, ErrEmptyStore
	}
	return s.turns[len(s.turns)-1], nil
}

// Turns returns a copy of the history.
func (s *Store) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Append adds a turn and returns its index.
func (s *Store) Append(t Turn) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return len(s.turns) - 1
}

// Replace swaps the turn at index i, deleting the old turn's image when the
// new turn does not reuse it.
func (s *Store) Replace(ctx context.Context, i int, t Turn) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.turns) {
		n := len(s.turns)
		s.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, n)
	}
	old := s.turns[i]
	s.turns[i] = t
	s.mu.Unlock()

	if old.ImageRef != "" && old.ImageRef != t.ImageRef {
		s.deleteImage(ctx, old.ImageRef)
	}
	return nil
}

// PopLast removes and returns the final turn, deleting its image.
func (s *Store) PopLast(ctx context.Context) (Turn, error) {
	s.mu.Lock()
	if len(s.turns) == 0 {
		s.mu.Unlock()
		return Turn{}, ErrEmptyStore
	}
	last := s.turns[len(s.turns)-1]
	s.turns = s.turns[:len(s.turns)-1]
	s.mu.Unlock()

	if last.ImageRef != "" {
		s.deleteImage(ctx, last.ImageRef)
	}
	return last, nil
}

// Reset removes every turn and deletes every owned image.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	turns := s.turns
	s.turns = nil
	s.mu.Unlock()

	for _, t := range turns {
		if t.ImageRef != "" {
			s.deleteImage(ctx, t.ImageRef)
		}
	}
}

// Restore replaces the whole history without touching images. Used when
// rehydrating an imported session whose images are already in the store.
func (s *Store) Restore(turns []Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = make([]Turn, len(turns))
	copy(s.turns, turns)
}

// SaveImage stores an image and returns its reference.
func (s *Store) SaveImage(ctx context.Context, img *detailsmatter.Image) (string, error) {
	if s.images == nil {
		return "", detailsmatter.ErrStorageNotConfigured
	}
	return s.images.Put(ctx, img)
}

// LoadImage loads the image of turn i. Returns ErrNoImage when the turn has
// no reference and detailsmatter.ErrImageNotFound when it no longer resolves.
func (s *Store) LoadImage(ctx context.Context, i int) (*detailsmatter.Image, error) {
	t, err := s.At(i)
	if err != nil {
		return nil, err
	}
	if t.ImageRef == "" {
		return nil, ErrNoImage
	}
	if s.images == nil {
		return nil, detailsmatter.ErrStorageNotConfigured
	}
	return s.images.Get(ctx, t.ImageRef)
}

func (s *Store) deleteImage(ctx context.Context, ref string) {
	if s.images == nil {
		return
	}
	if err := s.images.Delete(ctx, ref); err != nil {
		s.logger.Warn("failed to delete image", zap.String("ref", ref), zap.Error(err))
	}
}
