// Package imagestore provides ImageStore implementations.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter"
)

var (
	// ErrInvalidRef is returned for references that are not plain file names.
	ErrInvalidRef = errors.New("invalid image reference")

	// ErrCorruptImage is returned by Get when the stored bytes are no longer
	// a supported image.
	ErrCorruptImage = errors.New("stored image is corrupt")
)

// Dir stores each image as a file in a single directory. The reference is
// the file name.
type Dir struct {
	root   string
	logger *zap.Logger
}

var _ detailsmatter.ImageStore = (*Dir)(nil)

// NewDir creates the directory if needed.
func NewDir(root string, logger *zap.Logger) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dir{root: root, logger: logger.Named("imagestore")}, nil
}

// Root returns the directory images are stored in.
func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) Put(ctx context.Context, img *detailsmatter.Image) (string, error) {
	if err := detailsmatter.ValidateImage(img); err != nil {
		return "", err
	}

	ref := uuid.NewString() + "." + detailsmatter.ExtensionFromMIME(img.MIMEType)
	if err := os.WriteFile(filepath.Join(d.root, ref), img.Data, 0o644); err != nil {
		return "", fmt.Errorf("write image %s: %w", ref, err)
	}

	d.logger.Debug("image stored", zap.String("ref", ref), zap.Int("bytes", len(img.Data)))
	return ref, nil
}

func (d *Dir) Get(ctx context.Context, ref string) (*detailsmatter.Image, error) {
	path, err := d.path(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", detailsmatter.ErrImageNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", ref, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("read image %s: %w", ref, detailsmatter.ErrEmptyImageData)
	}

	mimeType := detailsmatter.SniffMIMEType(data)
	if mimeType == "" {
		d.logger.Warn("stored image does not decode", zap.String("ref", ref), zap.Int("bytes", len(data)))
		return nil, fmt.Errorf("%w: %s", ErrCorruptImage, ref)
	}
	return &detailsmatter.Image{Data: data, MIMEType: mimeType}, nil
}

func (d *Dir) Delete(ctx context.Context, ref string) error {
	path, err := d.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete image %s: %w", ref, err)
	}
	d.logger.Debug("image deleted", zap.String("ref", ref))
	return nil
}

// Purge removes the directory and every image in it.
func (d *Dir) Purge() error {
	if err := os.RemoveAll(d.root); err != nil {
		return fmt.Errorf("purge image dir: %w", err)
	}
	d.logger.Debug("image dir purged", zap.String("root", d.root))
	return nil
}

func (d *Dir) path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(d.root, ref), nil
}
