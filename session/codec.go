// Package session saves conversations to self-contained directories and
// archives under a sessions root and loads them back.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/evolution"
)

const (
	ManifestFile = "session.json"
	ArchiveFile  = "session.zip"
	ImagesDir    = "images"
	DirPrefix    = "session_"

	manifestVersion = 1
	exportWorkers   = 4
)

var (
	ErrPathOutsideRoot = errors.New("session path is outside the sessions root")
	ErrNotASession     = errors.New("not a saved session")
)

// Manifest is the content of session.json.
type Manifest struct {
	Version  int    `json:"version"`
	ExportID string `json:"export_id"`
	evolution.Snapshot

	// Images maps a turn's image reference at export time to the image
	// path relative to the session directory.
	Images     map[string]string `json:"images"`
	ExportedAt time.Time         `json:"exported_at"`
}

// Saved describes one exported session.
type Saved struct {
	ID         string    `json:"id"`
	Dir        string    `json:"dir"`
	Archive    string    `json:"archive,omitempty"`
	Variant    string    `json:"variant"`
	Style      string    `json:"style,omitempty"`
	Turns      int       `json:"turns"`
	Images     int       `json:"images"`
	ExportedAt time.Time `json:"exported_at"`
}

// Codec reads and writes sessions under a single root directory.
type Codec struct {
	root   string
	logger *zap.Logger
}

// NewCodec creates the sessions root if needed.
func NewCodec(root string, logger *zap.Logger) (*Codec, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sessions root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sessions root: %w", err)
	}
	return &Codec{root: abs, logger: logger.Named("session")}, nil
}

// Root returns the absolute sessions root.
func (c *Codec) Root() string {
	return c.root
}

type exportedImage struct {
	ref  string
	rel  string
	data []byte
}

// Export writes snap and the images it references to a new session
// directory and archive. Turns whose image cannot be loaded are exported
// without an image entry.
func (c *Codec) Export(ctx context.Context, snap evolution.Snapshot, images detailsmatter.ImageStore) (*Saved, error) {
	id := ulid.Make().String()
	dir := filepath.Join(c.root, DirPrefix+id)
	if err := os.MkdirAll(filepath.Join(dir, ImagesDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	exported, err := c.collectImages(ctx, snap.Turns, images)
	if err != nil {
		return nil, err
	}

	manifest := Manifest{
		Version:    manifestVersion,
		ExportID:   id,
		Snapshot:   snap,
		Images:     make(map[string]string, len(exported)),
		ExportedAt: time.Now().UTC(),
	}
	for _, img := range exported {
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(img.rel)), img.data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write image %s: %w", img.rel, err)
		}
		manifest.Images[img.ref] = img.rel
	}

	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), raw, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	saved := &Saved{
		ID:         id,
		Dir:        dir,
		Variant:    string(snap.Variant),
		Style:      snap.Style,
		Turns:      len(snap.Turns),
		Images:     len(exported),
		ExportedAt: manifest.ExportedAt,
	}

	archive := filepath.Join(dir, ArchiveFile)
	if err := writeArchive(archive, raw, exported); err != nil {
		// the directory form is complete without the archive
		c.logger.Error("failed to write session archive", zap.String("dir", dir), zap.Error(err))
	} else {
		saved.Archive = archive
	}

	c.logger.Info("session exported",
		zap.String("id", id),
		zap.Int("turns", saved.Turns),
		zap.Int("images", saved.Images),
	)
	return saved, nil
}

func (c *Codec) collectImages(ctx context.Context, turns []evolution.Turn, images detailsmatter.ImageStore) ([]exportedImage, error) {
	if images == nil {
		return nil, nil
	}

	var (
		mu   sync.Mutex
		out  []exportedImage
		seen = map[string]bool{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportWorkers)

	for i, t := range turns {
		if t.ImageRef == "" || seen[t.ImageRef] {
			continue
		}
		seen[t.ImageRef] = true

		ref := t.ImageRef
		g.Go(func() error {
			img, err := images.Get(gctx, ref)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.Warn("skipping unresolvable image", zap.Int("turn", i), zap.String("ref", ref), zap.Error(err))
				return nil
			}
			rel := path.Join(ImagesDir, fmt.Sprintf("turn_%03d.%s", i, detailsmatter.ExtensionFromMIME(img.MIMEType)))

			mu.Lock()
			out = append(out, exportedImage{ref: ref, rel: rel, data: img.Data})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(a, b int) bool { return out[a].rel < out[b].rel })
	return out, nil
}

// Resolve maps a session name, a root-relative path, or an absolute path to
// a session directory inside the root.
func (c *Codec) Resolve(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", ErrNotASession
	}

	p := target
	if !filepath.IsAbs(p) {
		// "<root name>/session_x" names the same directory as "session_x"
		slashed := filepath.ToSlash(p)
		if prefix := filepath.Base(c.root) + "/"; strings.HasPrefix(slashed, prefix) {
			p = strings.TrimPrefix(slashed, prefix)
		}
		p = filepath.Join(c.root, filepath.FromSlash(p))
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(c.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, target)
	}

	info, err := os.Stat(filepath.Join(p, ManifestFile))
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotASession, target)
	}
	return p, nil
}

// Import loads the session at target and copies its images into images,
// rewriting every turn's image reference to the new copy.
func (c *Codec) Import(ctx context.Context, target string, images detailsmatter.ImageStore) (evolution.Snapshot, error) {
	dir, err := c.Resolve(target)
	if err != nil {
		return evolution.Snapshot{}, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return evolution.Snapshot{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	return c.rehydrate(ctx, raw, func(rel string) ([]byte, error) {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if r, err := filepath.Rel(dir, p); err != nil || strings.HasPrefix(r, "..") {
			return nil, fmt.Errorf("%w: %s", ErrPathOutsideRoot, rel)
		}
		return os.ReadFile(p)
	}, images)
}

// rehydrate decodes a manifest and restores its images through read.
func (c *Codec) rehydrate(ctx context.Context, raw []byte, read func(rel string) ([]byte, error), images detailsmatter.ImageStore) (evolution.Snapshot, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return evolution.Snapshot{}, fmt.Errorf("%w: %v", ErrNotASession, err)
	}
	if m.Turns == nil {
		return evolution.Snapshot{}, fmt.Errorf("%w: no turns", ErrNotASession)
	}

	restored := make(map[string]string, len(m.Images))
	for oldRef, rel := range m.Images {
		data, err := read(rel)
		if err != nil {
			c.logger.Warn("session image unavailable", zap.String("path", rel), zap.Error(err))
			continue
		}
		if images == nil {
			return evolution.Snapshot{}, detailsmatter.ErrStorageNotConfigured
		}
		newRef, err := images.Put(ctx, detailsmatter.NewImage(data, detailsmatter.GetMIMEType(rel)))
		if errors.Is(err, detailsmatter.ErrUnrecognizedImage) {
			c.logger.Warn("session image does not decode", zap.String("path", rel))
			continue
		}
		if err != nil {
			return evolution.Snapshot{}, fmt.Errorf("failed to restore image %s: %w", rel, err)
		}
		restored[oldRef] = newRef
	}

	snap := m.Snapshot
	snap.Turns = make([]evolution.Turn, len(m.Turns))
	for i, t := range m.Turns {
		if t.ImageRef != "" {
			if ref, ok := restored[t.ImageRef]; ok {
				t.ImageRef = ref
			} else {
				t.DropImage()
			}
		}
		snap.Turns[i] = t
	}

	c.logger.Info("session imported",
		zap.String("export_id", m.ExportID),
		zap.Int("turns", len(snap.Turns)),
		zap.Int("images", len(restored)),
	)
	return snap, nil
}

// List returns the saved sessions under the root, newest first.
func (c *Codec) List() ([]Saved, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions root: %w", err)
	}

	var out []Saved
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(c.root, e.Name())
		raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
		if err != nil {
			continue
		}
		var m Manifest
		if err := json.Unmarshal(raw, &m); err != nil {
			c.logger.Warn("skipping unreadable session", zap.String("dir", dir), zap.Error(err))
			continue
		}

		s := Saved{
			ID:         strings.TrimPrefix(e.Name(), DirPrefix),
			Dir:        dir,
			Variant:    string(m.Variant),
			Style:      m.Style,
			Turns:      len(m.Turns),
			Images:     len(m.Images),
			ExportedAt: m.ExportedAt,
		}
		if _, err := os.Stat(filepath.Join(dir, ArchiveFile)); err == nil {
			s.Archive = filepath.Join(dir, ArchiveFile)
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ExportedAt.After(out[j].ExportedAt)
	})
	return out, nil
}
