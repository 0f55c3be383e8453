package imagestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhpenta/detailsmatter"
)

var fakePNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func exerciseStore(t *testing.T, store detailsmatter.ImageStore) {
	t.Helper()
	ctx := context.Background()

	ref, err := store.Put(ctx, &detailsmatter.Image{Data: fakePNG, MIMEType: "image/png"})
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	img, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, fakePNG, img.Data)
	assert.Equal(t, "image/png", img.MIMEType)

	require.NoError(t, store.Delete(ctx, ref))
	_, err = store.Get(ctx, ref)
	assert.ErrorIs(t, err, detailsmatter.ErrImageNotFound)

	assert.NoError(t, store.Delete(ctx, ref), "deleting twice is fine")

	_, err = store.Put(ctx, &detailsmatter.Image{MIMEType: "image/png"})
	assert.ErrorIs(t, err, detailsmatter.ErrEmptyImageData)
}

func TestDir(t *testing.T) {
	store, err := NewDir(filepath.Join(t.TempDir(), "images"), nil)
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestDir_RejectsTraversal(t *testing.T) {
	store, err := NewDir(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "../secret.png")
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestDir_FileRemovedExternally(t *testing.T) {
	store, err := NewDir(t.TempDir(), nil)
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), &detailsmatter.Image{Data: fakePNG, MIMEType: "image/png"})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(store.Root(), ref)))

	_, err = store.Get(context.Background(), ref)
	assert.ErrorIs(t, err, detailsmatter.ErrImageNotFound)
}

func TestDir_CorruptFile(t *testing.T) {
	store, err := NewDir(t.TempDir(), nil)
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), &detailsmatter.Image{Data: fakePNG, MIMEType: "image/png"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), ref), []byte("this is not an image at all"), 0o644))

	_, err = store.Get(context.Background(), ref)
	assert.ErrorIs(t, err, ErrCorruptImage)
	assert.NotErrorIs(t, err, detailsmatter.ErrImageNotFound)
}

func TestDir_SniffsStoredType(t *testing.T) {
	store, err := NewDir(t.TempDir(), nil)
	require.NoError(t, err)
	jpeg := []byte("\xff\xd8\xff\xe0\x00\x10JFIF")

	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "renamed.png"), jpeg, 0o644))
	img, err := store.Get(context.Background(), "renamed.png")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)
}

func TestPut_RejectsUnrecognizedBytes(t *testing.T) {
	junk := &detailsmatter.Image{Data: []byte("abcd"), MIMEType: "image/png"}

	dir, err := NewDir(t.TempDir(), nil)
	require.NoError(t, err)
	_, err = dir.Put(context.Background(), junk)
	assert.ErrorIs(t, err, detailsmatter.ErrUnrecognizedImage)

	_, err = NewMemory().Put(context.Background(), junk)
	assert.ErrorIs(t, err, detailsmatter.ErrUnrecognizedImage)
}

func TestDir_Purge(t *testing.T) {
	root := filepath.Join(t.TempDir(), "session")
	store, err := NewDir(root, nil)
	require.NoError(t, err)
	_, err = store.Put(context.Background(), &detailsmatter.Image{Data: fakePNG, MIMEType: "image/png"})
	require.NoError(t, err)

	require.NoError(t, store.Purge())
	assert.NoDirExists(t, root)
	assert.NoError(t, store.Purge(), "purging twice is fine")
}

func TestMemory(t *testing.T) {
	store := NewMemory()
	exerciseStore(t, store)
	assert.Zero(t, store.Len())
}
