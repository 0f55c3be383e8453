package evolution

import (
	"context"
	"errors"
	"sync"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/imagestore"
)

var fakePNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func pngImage() *detailsmatter.Image {
	return &detailsmatter.Image{Data: fakePNG, MIMEType: "image/png"}
}

// scriptedProvider answers Generate calls from a function and records every request.
type scriptedProvider struct {
	mu       sync.Mutex
	requests []detailsmatter.GenerateRequest
	respond  func(call int, req *detailsmatter.GenerateRequest) (*detailsmatter.GenerateResult, error)
}

func (p *scriptedProvider) Generate(ctx context.Context, req *detailsmatter.GenerateRequest) (*detailsmatter.GenerateResult, error) {
	p.mu.Lock()
	call := len(p.requests)
	p.requests = append(p.requests, *req)
	p.mu.Unlock()
	if p.respond == nil {
		return &detailsmatter.GenerateResult{Text: "ok", Image: pngImage()}, nil
	}
	return p.respond(call, req)
}

func (p *scriptedProvider) Models() []detailsmatter.ModelInfo { return nil }

func (p *scriptedProvider) Close() error { return nil }

func (p *scriptedProvider) calls() []detailsmatter.GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]detailsmatter.GenerateRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

func imageResult(text string) (*detailsmatter.GenerateResult, error) {
	return &detailsmatter.GenerateResult{Text: text, Image: pngImage()}, nil
}

func textResult(text string) (*detailsmatter.GenerateResult, error) {
	return &detailsmatter.GenerateResult{Text: text}, nil
}

// textFunc is a TextProvider backed by a function.
type textFunc func(ctx context.Context, prompt string, opts *detailsmatter.CompleteOptions) (string, error)

func (f textFunc) Complete(ctx context.Context, prompt string, opts *detailsmatter.CompleteOptions) (string, error) {
	return f(ctx, prompt, opts)
}

var errCorrupt = errors.New("corrupt image data")

// corruptStore fails Get for refs in bad with errCorrupt.
type corruptStore struct {
	*imagestore.Memory
	bad map[string]bool
}

func newCorruptStore() *corruptStore {
	return &corruptStore{Memory: imagestore.NewMemory(), bad: map[string]bool{}}
}

func (s *corruptStore) Get(ctx context.Context, ref string) (*detailsmatter.Image, error) {
	if s.bad[ref] {
		return nil, errCorrupt
	}
	return s.Memory.Get(ctx, ref)
}

// seedStore builds a store from turns; hasImage[i] stores an image for turn i.
func seedStore(t interface{ Helper() }, images detailsmatter.ImageStore, hasImage ...bool) *Store {
	t.Helper()
	store := NewStore(images, nil)
	for i, has := range hasImage {
		turn := Turn{ID: newTurnID(), Actor: ActorEvolver, Text: "turn text"}
		if i == 0 {
			turn.Actor = ActorHuman
			turn.Text = "forest"
		}
		if has {
			ref, err := images.Put(context.Background(), pngImage())
			if err != nil {
				panic(err)
			}
			turn.ImageRef = ref
		}
		store.Append(turn)
	}
	return store
}
