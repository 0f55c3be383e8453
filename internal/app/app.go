// Package app assembles providers, stores and conversations from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/evolution"
	"github.com/mhpenta/detailsmatter/gallery"
	"github.com/mhpenta/detailsmatter/imagestore"
	"github.com/mhpenta/detailsmatter/internal/config"
	"github.com/mhpenta/detailsmatter/provider/gemini"
	"github.com/mhpenta/detailsmatter/provider/openrouter"
	"github.com/mhpenta/detailsmatter/session"
	"github.com/mhpenta/detailsmatter/styles"
)

// App holds the process-wide collaborators. Conversations never share
// mutable state beyond these read-only providers.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	// Images generates image turns and the artist's turns.
	Images detailsmatter.ImageProvider
	// Text backs the director and the storyteller.
	Text detailsmatter.TextProvider
	// TextModel describes Text for display.
	TextModel detailsmatter.ModelInfo

	Styles   *styles.Catalog
	Sessions *session.Codec
	Gallery  *gallery.Gallery

	closers []func() error
}

// New builds the App from cfg. Gemini is required; OpenRouter replaces
// Gemini as the text model when configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Styles: styles.Builtin()}

	gen, err := gemini.New(ctx, &detailsmatter.ProviderConfig{
		Provider: detailsmatter.ProviderGeminiAPI,
		APIKey:   cfg.Gemini.APIKey,
		Model:    cfg.Gemini.TextModel,
	}, gemini.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	manager := detailsmatter.NewManager(gen,
		detailsmatter.WithLogger(logger),
		detailsmatter.WithDefaultModel(detailsmatter.Model(cfg.Gemini.ImageModel)),
	)
	a.Images = manager
	a.closers = append(a.closers, manager.Close)

	a.Text = gen
	a.TextModel = detailsmatter.ModelInfo{Name: cfg.Gemini.TextModel, Provider: detailsmatter.ProviderGeminiAPI, APIModelName: cfg.Gemini.TextModel}
	if cfg.OpenRouter.APIKey != "" {
		client, err := openrouter.New(&detailsmatter.ProviderConfig{
			Provider: detailsmatter.ProviderOpenRouter,
			APIKey:   cfg.OpenRouter.APIKey,
			BaseURL:  cfg.OpenRouter.BaseURL,
			Model:    cfg.OpenRouter.Model,
		}, openrouter.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		a.Text = client
		a.TextModel = detailsmatter.ModelInfo{Name: cfg.OpenRouter.Model, Provider: detailsmatter.ProviderOpenRouter, APIModelName: cfg.OpenRouter.Model}
	}

	if a.Sessions, err = session.NewCodec(cfg.Storage.SessionsDir, logger); err != nil {
		return nil, err
	}

	var index gallery.Index = gallery.NewMemoryIndex()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		index = gallery.NewRedisIndex(client, logger)
		a.closers = append(a.closers, client.Close)
	}
	if a.Gallery, err = gallery.New(cfg.Storage.GalleryDir, index, logger); err != nil {
		return nil, err
	}

	logger.Info("application assembled",
		zap.String("image_model", cfg.Gemini.ImageModel),
		zap.String("text_model", a.TextModel.Name),
		zap.Bool("redis_gallery", cfg.Redis.Addr != ""),
	)
	return a, nil
}

// Close releases providers and connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ConversationOptions tune a new conversation.
type ConversationOptions struct {
	ID         string
	Variant    evolution.Variant
	Style      string
	Mode       evolution.Mode
	WorldBible map[string]any

	// Images overrides the per-session image directory.
	Images detailsmatter.ImageStore
}

// GenerateConfig is the provider config shared by every turn.
func (a *App) GenerateConfig() *detailsmatter.GenerateConfig {
	cfg := detailsmatter.DefaultConfig()
	cfg.Model = detailsmatter.Model(a.Config.Gemini.ImageModel)
	cfg.WaitOnRateLimit = a.Config.RateLimit.Wait
	cfg.MaxWaitDuration = a.Config.RateLimit.MaxWait
	return cfg
}

// NewConversation creates a conversation whose images live in their own
// directory under the image root.
func (a *App) NewConversation(opts ConversationOptions) (*evolution.Conversation, detailsmatter.ImageStore, error) {
	id := opts.ID
	if id == "" {
		id = ulid.Make().String()
	}

	images := opts.Images
	if images == nil {
		var err error
		if images, err = a.ImageStore(id); err != nil {
			return nil, nil, err
		}
	}

	conv := evolution.NewConversation(a.Generator(opts.Variant), images,
		evolution.WithID(id),
		evolution.WithConversationLogger(a.Logger),
	)

	style := opts.Style
	if style == "" {
		style = a.Config.Defaults.Style
	}
	if canonical, ok := a.Styles.Canonical(style); ok {
		style = canonical
	}
	conv.State().SetStyle(style)

	mode := opts.Mode
	if mode == "" {
		mode = evolution.ParseMode(a.Config.Defaults.Mode)
	}
	conv.State().SetMode(mode)
	conv.State().SetWorldBible(opts.WorldBible)

	return conv, images, nil
}

// ImageStore returns the image directory of session id.
func (a *App) ImageStore(id string) (detailsmatter.ImageStore, error) {
	return imagestore.NewDir(filepath.Join(a.Config.Storage.ImageDir, id), a.Logger)
}

// Generator builds the turn generator for variant.
func (a *App) Generator(variant evolution.Variant) evolution.TurnGenerator {
	if variant != evolution.VariantDirected {
		return evolution.NewEvolver(a.Images,
			evolution.WithRoleName(a.Config.Defaults.RoleName),
			evolution.WithGenerateConfig(a.GenerateConfig()),
			evolution.WithEvolverLogger(a.Logger),
		)
	}

	director := evolution.NewDirector(a.Text, a.Config.Director.Name, &detailsmatter.CompleteOptions{
		Model:       a.TextModel.APIModelName,
		MaxTokens:   a.Config.Director.MaxTokens,
		Temperature: a.Config.Director.Temperature,
	}, a.Logger)
	storyteller := detailsmatter.TextOnly(a.Text, a.TextModel, &detailsmatter.CompleteOptions{
		Model:       a.TextModel.APIModelName,
		MaxTokens:   a.Config.Storyteller.MaxTokens,
		Temperature: a.Config.Storyteller.Temperature,
	})
	return evolution.NewDirected(a.Images, storyteller, director,
		evolution.WithDirectedConfig(a.GenerateConfig()),
		evolution.WithDirectedLogger(a.Logger),
	)
}
