// Package gallery publishes finished conversations as shareable threads
// with content-addressed images, and forks them back into new sessions.
package gallery

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/evolution"
)

const (
	titleLimit   = 100
	untitled     = "Untitled Thread"
	DefaultLimit = 20
	MaxLimit     = 50
	lineageLimit = 200
)

var (
	ErrInvalidKey  = errors.New("invalid gallery image key")
	ErrEmptyThread = errors.New("thread has no turns")
)

var imageKeyPattern = regexp.MustCompile(`^img-[0-9a-f]{64}\.(png|jpg|webp|gif)$`)

// ForkInfo links a thread to the thread it was forked from.
type ForkInfo struct {
	ParentID    string `json:"parentId"`
	ParentTurn  int    `json:"parentTurn"`
	ParentImage string `json:"parentImage,omitempty"`
}

// Meta is the listing entry of a published thread.
type Meta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	TurnCount int       `json:"turnCount"`
	Style     string    `json:"style,omitempty"`
	Model     string    `json:"model,omitempty"`
	ForkInfo  *ForkInfo `json:"forkInfo,omitempty"`
	Thumbnail string    `json:"thumbnail,omitempty"`
}

// Thread is a published conversation. Turn image references are gallery
// image keys.
type Thread struct {
	Meta
	Snapshot evolution.Snapshot `json:"snapshot"`
}

// Page is one page of the listing.
type Page struct {
	Threads []Meta `json:"threads"`
	Offset  int    `json:"offset"`
	Total   int    `json:"total"`
	HasMore bool   `json:"hasMore"`
}

// PublishOptions annotate a published thread.
type PublishOptions struct {
	Model    string
	ForkInfo *ForkInfo
}

// Gallery stores thread documents and images under one directory and their
// metadata in an Index.
type Gallery struct {
	dir    string
	index  Index
	logger *zap.Logger
}

// New creates the gallery directory if needed.
func New(dir string, index Index, logger *zap.Logger) (*Gallery, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create gallery dir: %w", err)
	}
	return &Gallery{dir: dir, index: index, logger: logger.Named("gallery")}, nil
}

// ImageKey is the content address of an image.
func ImageKey(img *detailsmatter.Image) string {
	sum := blake3.Sum256(img.Data)
	return "img-" + hex.EncodeToString(sum[:]) + "." + detailsmatter.ExtensionFromMIME(img.MIMEType)
}

// Publish copies snap's images into the gallery, writes the thread and
// indexes it. Identical images are stored once.
func (g *Gallery) Publish(ctx context.Context, snap evolution.Snapshot, images detailsmatter.ImageStore, opts PublishOptions) (Meta, error) {
	if len(snap.Turns) == 0 {
		return Meta{}, ErrEmptyThread
	}

	thread := Thread{Snapshot: snap}
	thread.Snapshot.Turns = make([]evolution.Turn, len(snap.Turns))

	var thumbnail string
	for i, t := range snap.Turns {
		if t.ImageRef != "" {
			key, err := g.storeImage(ctx, images, t.ImageRef)
			if err != nil {
				g.logger.Warn("publishing turn without image", zap.Int("turn", i), zap.Error(err))
				t.DropImage()
			} else {
				t.ImageRef = key
				if thumbnail == "" {
					thumbnail = key
				}
			}
		}
		thread.Snapshot.Turns[i] = t
	}

	thread.Meta = Meta{
		ID:        uuid.NewString(),
		Title:     title(snap.Turns[0].Text),
		Timestamp: time.Now().UTC(),
		TurnCount: len(snap.Turns),
		Style:     snap.Style,
		Model:     opts.Model,
		ForkInfo:  opts.ForkInfo,
		Thumbnail: thumbnail,
	}

	raw, err := json.Marshal(thread)
	if err != nil {
		return Meta{}, fmt.Errorf("failed to encode thread: %w", err)
	}
	if err := os.WriteFile(g.threadPath(thread.ID), raw, 0o644); err != nil {
		return Meta{}, fmt.Errorf("failed to write thread: %w", err)
	}
	if err := g.index.Put(ctx, thread.Meta); err != nil {
		return Meta{}, err
	}

	g.logger.Info("thread published",
		zap.String("id", thread.ID),
		zap.Int("turns", thread.TurnCount),
		zap.Bool("fork", opts.ForkInfo != nil),
	)
	return thread.Meta, nil
}

func (g *Gallery) storeImage(ctx context.Context, images detailsmatter.ImageStore, ref string) (string, error) {
	if images == nil {
		return "", detailsmatter.ErrStorageNotConfigured
	}
	img, err := images.Get(ctx, ref)
	if err != nil {
		return "", err
	}

	key := ImageKey(img)
	p := filepath.Join(g.dir, key)
	if _, err := os.Stat(p); err == nil {
		return key, nil
	}
	if err := os.WriteFile(p, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image %s: %w", key, err)
	}
	return key, nil
}

func title(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return untitled
	}
	r := []rune(text)
	if len(r) > titleLimit {
		r = r[:titleLimit]
	}
	return string(r)
}

func (g *Gallery) threadPath(id string) string {
	return filepath.Join(g.dir, "thread-"+id+".json")
}

// Image returns a gallery image by key.
func (g *Gallery) Image(key string) (*detailsmatter.Image, error) {
	if !imageKeyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	data, err := os.ReadFile(filepath.Join(g.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", detailsmatter.ErrImageNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return detailsmatter.NewImage(data, detailsmatter.GetMIMEType(key)), nil
}

// Thread returns a published thread.
func (g *Gallery) Thread(ctx context.Context, id string) (*Thread, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	raw, err := os.ReadFile(g.threadPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var t Thread
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to decode thread %s: %w", id, err)
	}
	return &t, nil
}

// List returns a page of threads, newest first.
func (g *Gallery) List(ctx context.Context, offset, limit int) (Page, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	metas, total, err := g.index.List(ctx, offset, limit)
	if err != nil {
		return Page{}, err
	}
	if metas == nil {
		metas = []Meta{}
	}
	return Page{
		Threads: metas,
		Offset:  offset,
		Total:   total,
		HasMore: offset+len(metas) < total,
	}, nil
}

// Search returns threads whose title contains query, optionally limited to
// one style, newest first.
func (g *Gallery) Search(ctx context.Context, query, style string, limit int) ([]Meta, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	query = strings.ToLower(strings.TrimSpace(query))

	var out []Meta
	for offset := 0; len(out) < limit; offset += MaxLimit {
		metas, total, err := g.index.List(ctx, offset, MaxLimit)
		if err != nil {
			return nil, err
		}
		for _, m := range metas {
			if style != "" && !strings.EqualFold(m.Style, style) {
				continue
			}
			if query != "" && !strings.Contains(strings.ToLower(m.Title), query) {
				continue
			}
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
		if offset+MaxLimit >= total {
			break
		}
	}
	return out, nil
}

// Lineage returns the ancestors of a thread, nearest first.
func (g *Gallery) Lineage(ctx context.Context, id string) ([]Meta, error) {
	cur, err := g.index.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var out []Meta
	seen := map[string]bool{id: true}
	for len(out) < lineageLimit && cur.ForkInfo != nil && !seen[cur.ForkInfo.ParentID] {
		parent, err := g.index.Get(ctx, cur.ForkInfo.ParentID)
		if err != nil {
			break
		}
		seen[parent.ID] = true
		out = append(out, parent)
		cur = parent
	}
	return out, nil
}

// Fork copies turns 0..atTurn of a thread into images and returns them as
// a snapshot to restore into a new conversation.
func (g *Gallery) Fork(ctx context.Context, id string, atTurn int, images detailsmatter.ImageStore) (evolution.Snapshot, ForkInfo, error) {
	thread, err := g.Thread(ctx, id)
	if err != nil {
		return evolution.Snapshot{}, ForkInfo{}, err
	}
	turns := thread.Snapshot.Turns
	if atTurn < 0 || atTurn >= len(turns) {
		return evolution.Snapshot{}, ForkInfo{}, fmt.Errorf("%w: %d of %d", evolution.ErrIndexOutOfRange, atTurn, len(turns))
	}

	info := ForkInfo{ParentID: thread.ID, ParentTurn: atTurn, ParentImage: turns[atTurn].ImageRef}
	snap := thread.Snapshot
	snap.Turns = make([]evolution.Turn, atTurn+1)

	for i, t := range turns[:atTurn+1] {
		if t.ImageRef != "" {
			img, err := g.Image(t.ImageRef)
			if err == nil {
				var ref string
				ref, err = images.Put(ctx, img)
				if err == nil {
					t.ImageRef = ref
				} else if !errors.Is(err, detailsmatter.ErrUnrecognizedImage) {
					return evolution.Snapshot{}, ForkInfo{}, fmt.Errorf("failed to restore image: %w", err)
				}
			}
			if err != nil {
				g.logger.Warn("forking turn without image", zap.Int("turn", i), zap.Error(err))
				t.DropImage()
			}
		}
		snap.Turns[i] = t
	}
	return snap, info, nil
}
