package detailsmatter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter/ratelimiter"
)

const (
	ModelNanoBanana1 Model = "nano-banana-1" // Gemini 2.5 Flash Image

	ModelDefault Model = ModelNanoBanana1
)

var (
	// ErrModelNotRegistered is returned when a model has no registered provider.
	ErrModelNotRegistered = errors.New("model not registered")

	// ErrProviderNotConfigured is returned when a provider lacks required config.
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// Provider represents a model provider/backend.
type Provider string

const (
	ProviderGeminiAPI  Provider = "gemini"
	ProviderOpenRouter Provider = "openrouter"
)

// ProviderConfig configures a specific provider.
type ProviderConfig struct {
	Provider Provider
	APIKey   string
	BaseURL  string // optional
	Model    string // optional default model for the provider
}

// ModelMapping maps a model identifier to its provider and actual model name.
type ModelMapping struct {
	Provider        Provider
	ActualModelName string
}

// Manager implements ImageProvider, routing requests to the provider
// registered for the request's model and applying per-model rate limits.
type Manager struct {
	modelMappings map[Model]ModelMapping
	providers     map[Provider]ImageProvider
	defaultModel  Model
	rateLimiters  *ratelimiter.Registry
	modelInfo     map[Model]*ModelInfo

	logger         *zap.Logger
	tokenEstimator TokenEstimator

	mu sync.RWMutex
}

var _ ImageProvider = (*Manager)(nil)

// New creates an empty Manager.
func New() *Manager {
	return &Manager{
		logger:         zap.NewNop(),
		modelMappings:  make(map[Model]ModelMapping),
		providers:      make(map[Provider]ImageProvider),
		rateLimiters:   ratelimiter.NewRegistry(),
		modelInfo:      make(map[Model]*ModelInfo),
		tokenEstimator: NewSimpleTokenEstimator(),
		defaultModel:   ModelDefault,
	}
}

// RegisterProvider registers every model a provider reports.
func (m *Manager) RegisterProvider(p ImageProvider) *Manager {
	models := p.Models()
	for i := range models {
		info := &models[i]

		m.mu.Lock()
		m.providers[info.Provider] = p
		m.mu.Unlock()

		m.RegisterModel(Model(info.Name),
			ModelMapping{
				Provider:        info.Provider,
				ActualModelName: info.APIModelName,
			},
			info)
	}
	return m
}

// RegisterModel registers a model with full info (including rate limits).
// Uses the default in-memory rate limiter. Use SetRateLimiter to override.
func (m *Manager) RegisterModel(model Model, mapping ModelMapping, info *ModelInfo) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.modelMappings[model] = mapping
	m.modelInfo[model] = info

	if info.RateLimits.TokensPerMinute > 0 || info.RateLimits.RequestsPerMinute > 0 {
		m.rateLimiters.Set(string(model), ratelimiter.New(
			info.RateLimits.TokensPerMinute,
			info.RateLimits.RequestsPerMinute,
		))
	}

	return m
}

// SetRateLimiter sets a custom rate limiter for a model.
func (m *Manager) SetRateLimiter(model Model, limiter ratelimiter.Limiter) *Manager {
	m.rateLimiters.Set(string(model), limiter)
	return m
}

// SetDefaultModel sets the default model used when the request config has no model.
func (m *Manager) SetDefaultModel(model Model) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.defaultModel = model
	return m
}

// Generate routes the request to the provider of its model.
func (m *Manager) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	config := req.Config
	if config == nil {
		config = DefaultConfig()
	}

	model := m.resolveModel(config)
	start := time.Now()

	log := m.logger.With(
		zap.String("model", string(model)),
		zap.Bool("conditioned", req.Conditioning != nil),
		zap.Bool("image_only", req.ImageOnly()),
	)
	log.Debug("starting generation", zap.Int("prompt_length", len(req.Prompt)))

	if err := m.checkRateLimit(ctx, model, config, req); err != nil {
		log.Warn("rate limit hit", zap.Error(err))
		providerRequestsTotal.WithLabelValues(string(model), "rate_limited").Inc()
		return nil, err
	}

	gen, actualConfig, err := m.getProviderForConfig(config)
	if err != nil {
		log.Error("failed to get provider", zap.Error(err))
		return nil, err
	}

	routed := *req
	routed.Config = actualConfig

	result, err := gen.Generate(ctx, &routed)
	duration := time.Since(start)
	providerRequestDuration.WithLabelValues(string(model)).Observe(duration.Seconds())

	if err != nil {
		status := "error"
		if _, ok := AsResponseError(err); ok {
			status = "response_error"
		}
		providerRequestsTotal.WithLabelValues(string(model), status).Inc()
		log.Error("generation failed",
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.Error(err),
		)
		return nil, err
	}

	providerRequestsTotal.WithLabelValues(string(model), "ok").Inc()

	fields := []zap.Field{
		zap.Int64("duration_ms", duration.Milliseconds()),
		zap.Bool("has_image", result.HasImage()),
		zap.Int("text_length", len(result.Text)),
	}
	if result.UsageMetadata != nil {
		fields = append(fields,
			zap.Int("prompt_tokens", result.UsageMetadata.PromptTokens),
			zap.Int("response_tokens", result.UsageMetadata.CandidatesTokens),
			zap.Int("total_tokens", result.UsageMetadata.TotalTokens),
		)
	}
	log.Info("generation completed", fields...)

	return result, nil
}

// Models returns all registered model definitions, sorted by name.
func (m *Manager) Models() []ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	models := make([]ModelInfo, 0, len(m.modelInfo))
	for _, info := range m.modelInfo {
		if info != nil {
			models = append(models, *info)
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models
}

// GetModelInfo returns model information for a specific model.
func (m *Manager) GetModelInfo(model Model) (*ModelInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.modelInfo[model]
	return info, ok
}

// Close releases all provider resources.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for provider, gen := range m.providers {
		if err := gen.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", provider, err))
		}
	}
	m.providers = make(map[Provider]ImageProvider)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// checkRateLimit checks rate limits for a model and optionally waits.
func (m *Manager) checkRateLimit(ctx context.Context, model Model, config *GenerateConfig, req *GenerateRequest) error {
	const tokenBuffer = 100

	limiter, ok := m.rateLimiters.Get(string(model))
	if !ok {
		return nil
	}

	estimatedTokens := EstimateRequestTokens(m.tokenEstimator, req) + tokenBuffer

	if config.WaitOnRateLimit {
		return limiter.WaitAndConsume(ctx, estimatedTokens, config.MaxWaitDuration)
	}

	if !limiter.TryConsume(estimatedTokens) {
		return &RateLimitError{
			RetryAfter: limiter.TimeUntilAvailable(estimatedTokens),
			LimitType:  "tokens",
			Model:      string(model),
		}
	}

	return nil
}

// resolveModel determines the model to use.
func (m *Manager) resolveModel(config *GenerateConfig) Model {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if config != nil && config.Model != "" && config.Model != ModelDefault {
		return config.Model
	}
	return m.defaultModel
}

// getProviderForConfig returns the provider and a config carrying the API model name.
func (m *Manager) getProviderForConfig(config *GenerateConfig) (ImageProvider, *GenerateConfig, error) {
	model := m.resolveModel(config)

	m.mu.RLock()
	mapping, ok := m.modelMappings[model]
	m.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrModelNotRegistered, model)
	}

	gen, err := m.getProvider(mapping.Provider)
	if err != nil {
		return nil, nil, err
	}

	configCopy := *config
	configCopy.Model = Model(mapping.ActualModelName)

	return gen, &configCopy, nil
}

func (m *Manager) getProvider(provider Provider) (ImageProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gen, ok := m.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}
	return gen, nil
}
