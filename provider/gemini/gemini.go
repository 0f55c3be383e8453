// Package gemini provides ImageProvider and TextProvider implementations
// using Google's Gemini API.
//
// This provider uses the Gemini API backend via the official Go SDK:
// https://github.com/googleapis/go-genai
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/extract"
)

// Model name constants - the actual API model names.
const (
	// APIModelNanoBanana1 is the actual API name for Gemini 2.5 Flash Image
	APIModelNanoBanana1 = "gemini-2.5-flash-image"

	// APIModelNanoBanana2 is the actual API name for Gemini 3 Pro Image
	APIModelNanoBanana2 = "gemini-3-pro-image-preview"

	// DefaultTextModel is used by Complete when no model is given.
	DefaultTextModel = "gemini-2.5-flash"
)

// maxRawResponse bounds the raw payload kept on a ResponseError.
const maxRawResponse = 8 << 10

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator implements ImageProvider and TextProvider using Google's Gemini API.
type Generator struct {
	models         contentGenerator
	chain          *extract.Chain
	logger         *zap.Logger
	safetySettings []*genai.SafetySetting
	mu             sync.RWMutex
}

var (
	_ detailsmatter.ImageProvider = (*Generator)(nil)
	_ detailsmatter.TextProvider  = (*Generator)(nil)
)

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the generator's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger.Named("gemini")
		}
	}
}

// WithExtractChain replaces the image extraction chain.
func WithExtractChain(chain *extract.Chain) Option {
	return func(g *Generator) {
		g.chain = chain
	}
}

// New creates a Generator from a ProviderConfig.
func New(ctx context.Context, config *detailsmatter.ProviderConfig, opts ...Option) (*Generator, error) {
	if config == nil {
		config = &detailsmatter.ProviderConfig{}
	}

	clientCfg := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	}
	// If APIKey is empty, the SDK will try GOOGLE_API_KEY or GEMINI_API_KEY env vars
	if config.APIKey != "" {
		clientCfg.APIKey = config.APIKey
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGenerator(client.Models, opts...), nil
}

// NewWithAPIKey creates a generator with an API key for Gemini API.
func NewWithAPIKey(ctx context.Context, apiKey string, opts ...Option) (*Generator, error) {
	return New(ctx, &detailsmatter.ProviderConfig{
		Provider: detailsmatter.ProviderGeminiAPI,
		APIKey:   apiKey,
	}, opts...)
}

func newGenerator(models contentGenerator, opts ...Option) *Generator {
	g := &Generator{
		models: models,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.chain == nil {
		g.chain = extract.Default(g.logger)
	}
	return g
}

// SetSafetySettings configures default safety settings for all requests.
func (g *Generator) SetSafetySettings(settings []detailsmatter.SafetySetting) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.safetySettings = convertSafetySettings(settings)
	return g
}

// Generate sends the composed prompt, and the conditioning image when set.
func (g *Generator) Generate(ctx context.Context, req *detailsmatter.GenerateRequest) (*detailsmatter.GenerateResult, error) {
	if err := detailsmatter.ValidateRequest(req); err != nil {
		return nil, err
	}

	config := req.Config
	if config == nil {
		config = detailsmatter.DefaultConfig()
	}
	modelName := g.resolveModel(config)

	parts := []*genai.Part{{Text: req.FullPrompt()}}
	if req.Conditioning != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				Data:     req.Conditioning.Data,
				MIMEType: req.Conditioning.MIMEType,
			},
		})
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	genConfig := g.buildGenerateContentConfig(config, req.OutputModalities())

	resp, err := g.models.GenerateContent(ctx, modelName, contents, genConfig)
	if err != nil {
		return nil, convertError(err, modelName)
	}

	return g.parseResult(resp)
}

// Complete runs a text-only prompt and returns the concatenated text parts.
func (g *Generator) Complete(ctx context.Context, prompt string, opts *detailsmatter.CompleteOptions) (string, error) {
	if err := detailsmatter.ValidatePrompt(prompt); err != nil {
		return "", err
	}

	modelName := DefaultTextModel
	genConfig := &genai.GenerateContentConfig{}
	if opts != nil {
		if opts.Model != "" {
			modelName = opts.Model
		}
		if opts.MaxTokens > 0 {
			genConfig.MaxOutputTokens = int32(opts.MaxTokens)
		}
		if opts.Temperature > 0 {
			genConfig.Temperature = genai.Ptr(opts.Temperature)
		}
	}

	resp, err := g.models.GenerateContent(ctx, modelName, genai.Text(prompt), genConfig)
	if err != nil {
		return "", convertError(err, modelName)
	}

	result, err := g.parseResult(resp)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Models returns the model definitions supported by this provider.
// The first model (NanoBanana1) is the default.
func (g *Generator) Models() []detailsmatter.ModelInfo {
	return []detailsmatter.ModelInfo{
		NanoBanana1Info,
		NanoBanana2Info,
	}
}

// Close releases any resources held by the generator.
func (g *Generator) Close() error {
	// The genai.Client doesn't require explicit closing in the current SDK
	return nil
}

// resolveModel determines which API model name to use.
func (g *Generator) resolveModel(config *detailsmatter.GenerateConfig) string {
	if config != nil && config.Model != "" && config.Model != detailsmatter.ModelDefault {
		return string(config.Model)
	}
	return g.Models()[0].APIModelName
}

// buildGenerateContentConfig converts our config to Gemini's GenerateContentConfig format.
func (g *Generator) buildGenerateContentConfig(config *detailsmatter.GenerateConfig, modalities []detailsmatter.Modality) *genai.GenerateContentConfig {
	genConfig := &genai.GenerateContentConfig{}
	for _, m := range modalities {
		genConfig.ResponseModalities = append(genConfig.ResponseModalities, string(m))
	}

	if config.Size != "" || config.AspectRatio != "" {
		genConfig.ImageConfig = &genai.ImageConfig{
			ImageSize:   config.Size.String(),
			AspectRatio: config.AspectRatio.String(),
		}
	}

	if config.Temperature != nil {
		genConfig.Temperature = genai.Ptr(*config.Temperature)
	}

	if config.EnableThinking {
		genConfig.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
		}
	}

	// Safety settings: per-request overrides provider defaults
	g.mu.RLock()
	defaults := g.safetySettings
	g.mu.RUnlock()
	if len(config.SafetySettings) > 0 {
		genConfig.SafetySettings = convertSafetySettings(config.SafetySettings)
	} else if len(defaults) > 0 {
		genConfig.SafetySettings = defaults
	}

	return genConfig
}

// convertSafetySettings converts our SafetySettings to Gemini's format.
func convertSafetySettings(settings []detailsmatter.SafetySetting) []*genai.SafetySetting {
	result := make([]*genai.SafetySetting, 0, len(settings))
	for _, s := range settings {
		result = append(result, &genai.SafetySetting{
			Category:  genai.HarmCategory(s.Category),
			Threshold: genai.HarmBlockThreshold(s.Threshold),
		})
	}
	return result
}

// parseResult converts a Gemini response to our result type. Responses
// without usable content become ResponseErrors carrying the raw payload.
func (g *Generator) parseResult(resp *genai.GenerateContentResponse) (*detailsmatter.GenerateResult, error) {
	if resp == nil {
		return nil, &detailsmatter.ResponseError{Message: "no response from model"}
	}

	if len(resp.Candidates) == 0 {
		msg := "response has no candidates"
		if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
			msg = fmt.Sprintf("prompt blocked: %s", fb.BlockReason)
			if fb.BlockReasonMessage != "" {
				msg += ": " + fb.BlockReasonMessage
			}
		}
		return nil, &detailsmatter.ResponseError{Message: msg, RawResponse: rawJSON(resp)}
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		msg := "response is missing content"
		if candidate.FinishReason == genai.FinishReasonSafety {
			msg = "response blocked by safety filters"
		} else if candidate.FinishReason != "" {
			msg = fmt.Sprintf("response is missing content (finish reason %s)", candidate.FinishReason)
		}
		return nil, &detailsmatter.ResponseError{Message: msg, RawResponse: rawJSON(resp)}
	}

	result := &detailsmatter.GenerateResult{
		FinishReason: string(candidate.FinishReason),
	}

	var texts, thoughts []string
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.Thought {
			if part.Text != "" {
				thoughts = append(thoughts, part.Text)
			}
			continue
		}
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
		if result.Image == nil {
			if img, ok := g.chain.TryExtractImage(toExtractPart(part)); ok {
				result.Image = img
			}
		}
	}

	result.Text = strings.Join(texts, "")
	if len(thoughts) > 0 {
		result.ThinkingContent = strings.Join(thoughts, "\n")
	}

	if resp.UsageMetadata != nil {
		imageCount := 0
		if result.Image != nil {
			imageCount = 1
		}
		result.UsageMetadata = &detailsmatter.UsageMetadata{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CandidatesTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			ImageCount:       imageCount,
		}
	}

	g.logger.Debug("parsed response",
		zap.Bool("has_image", result.Image != nil),
		zap.Int("text_length", len(result.Text)),
		zap.String("finish_reason", result.FinishReason),
	)

	return result, nil
}

func toExtractPart(part *genai.Part) extract.Part {
	p := extract.PartFromJSON(part)
	p.Text = part.Text
	if part.InlineData != nil {
		p.Blob = &detailsmatter.Image{
			Data:     part.InlineData.Data,
			MIMEType: part.InlineData.MIMEType,
		}
	}
	return p
}

func rawJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	if len(raw) > maxRawResponse {
		raw = raw[:maxRawResponse]
	}
	return string(raw)
}

// convertError maps Gemini API errors to RateLimitError or ResponseError.
// Transport errors are wrapped as is.
func convertError(err error, model string) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("gemini request failed: %w", err)
	}

	if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
		return &detailsmatter.RateLimitError{
			RetryAfter: 60 * time.Second, // API doesn't reliably provide Retry-After
			LimitType:  "requests",
			Model:      model,
			Err:        err,
		}
	}

	return &detailsmatter.ResponseError{
		Message:     fmt.Sprintf("%s (%d)", apiErr.Message, apiErr.Code),
		RawResponse: rawJSON(apiErr),
		Err:         err,
	}
}
