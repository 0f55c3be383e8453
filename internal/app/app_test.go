package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/evolution"
	"github.com/mhpenta/detailsmatter/imagestore"
	"github.com/mhpenta/detailsmatter/internal/config"
	"github.com/mhpenta/detailsmatter/styles"
)

type nopText struct{}

func (nopText) Complete(ctx context.Context, prompt string, opts *detailsmatter.CompleteOptions) (string, error) {
	return "", nil
}

func testApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.ImageDir = t.TempDir()
	cfg.Gemini.ImageModel = "nano-banana-2"
	cfg.Defaults.Style = "Photorealistic"
	cfg.Defaults.Mode = "Surreal Injection"
	cfg.RateLimit.Wait = true

	return &App{
		Config: cfg,
		Logger: zap.NewNop(),
		Text:   nopText{},
		Styles: styles.Builtin(),
	}
}

func TestGenerator_PerVariant(t *testing.T) {
	a := testApp(t)

	assert.IsType(t, &evolution.Evolver{}, a.Generator(evolution.VariantSingle))
	assert.IsType(t, &evolution.Evolver{}, a.Generator(""))

	directed, ok := a.Generator(evolution.VariantDirected).(*evolution.Directed)
	require.True(t, ok)
	assert.NotNil(t, directed.Director())
	assert.Equal(t, evolution.DefaultDirectorName, directed.DirectorName())
}

func TestGenerateConfig(t *testing.T) {
	a := testApp(t)
	cfg := a.GenerateConfig()

	assert.Equal(t, detailsmatter.Model("nano-banana-2"), cfg.Model)
	assert.True(t, cfg.WaitOnRateLimit)
}

func TestNewConversation_Defaults(t *testing.T) {
	a := testApp(t)

	conv, images, err := a.NewConversation(ConversationOptions{ID: "abc", Style: "oil painting"})
	require.NoError(t, err)

	assert.Equal(t, "abc", conv.ID())
	assert.Equal(t, "Oil Painting", conv.State().Style())
	assert.Equal(t, evolution.ModeSurrealInjection, conv.State().Mode())
	dir, ok := images.(*imagestore.Dir)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(a.Config.Storage.ImageDir, "abc"), dir.Root())
}

func TestNewConversation_CustomStyleAndStore(t *testing.T) {
	a := testApp(t)
	mem := imagestore.NewMemory()

	conv, images, err := a.NewConversation(ConversationOptions{
		Variant:    evolution.VariantDirected,
		Style:      "my own style",
		WorldBible: map[string]any{"city": "Lisbon"},
		Images:     mem,
	})
	require.NoError(t, err)

	assert.Same(t, mem, images)
	assert.NotEmpty(t, conv.ID())
	assert.Equal(t, evolution.VariantDirected, conv.Variant())
	assert.Equal(t, "my own style", conv.State().Style())
	assert.Equal(t, "Lisbon", conv.State().WorldBible()["city"])
}

func TestClose_JoinsErrors(t *testing.T) {
	a := testApp(t)
	closed := 0
	a.closers = []func() error{
		func() error { closed++; return nil },
		func() error { closed++; return assert.AnError },
	}
	assert.ErrorIs(t, a.Close(), assert.AnError)
	assert.Equal(t, 2, closed)
}
