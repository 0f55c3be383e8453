package session

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/evolution"
)

// maxArchiveEntry bounds a single decompressed archive entry.
const maxArchiveEntry = detailsmatter.MaxImageSize + 1

func writeArchive(dest string, manifest []byte, images []exportedImage) (err error) {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	if err := addEntry(zw, ManifestFile, manifest); err != nil {
		return err
	}
	for _, img := range images {
		if err := addEntry(zw, img.rel, img.data); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

// ImportArchive loads a session from an archive produced by Export.
func (c *Codec) ImportArchive(ctx context.Context, r io.ReaderAt, size int64, images detailsmatter.ImageStore) (evolution.Snapshot, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return evolution.Snapshot{}, fmt.Errorf("%w: %v", ErrNotASession, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		name := path.Clean(f.Name)
		if strings.HasPrefix(name, "../") || name == ".." || path.IsAbs(name) {
			return evolution.Snapshot{}, fmt.Errorf("%w: %s", ErrPathOutsideRoot, f.Name)
		}
		files[name] = f
	}

	mf, ok := files[ManifestFile]
	if !ok {
		return evolution.Snapshot{}, fmt.Errorf("%w: missing %s", ErrNotASession, ManifestFile)
	}
	raw, err := readEntry(mf)
	if err != nil {
		return evolution.Snapshot{}, err
	}

	return c.rehydrate(ctx, raw, func(rel string) ([]byte, error) {
		f, ok := files[path.Clean(rel)]
		if !ok {
			return nil, os.ErrNotExist
		}
		return readEntry(f)
	}, images)
}

// ReadArchive loads a session archive held in memory.
func (c *Codec) ReadArchive(ctx context.Context, data []byte, images detailsmatter.ImageStore) (evolution.Snapshot, error) {
	return c.ImportArchive(ctx, bytes.NewReader(data), int64(len(data)), images)
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxArchiveEntry))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if len(data) >= maxArchiveEntry {
		return nil, fmt.Errorf("%w: %s", detailsmatter.ErrImageTooLarge, f.Name)
	}
	return data, nil
}
