package gemini

import "github.com/mhpenta/detailsmatter"

// NanoBanana1Info is the model info for Gemini 2.5 Flash Image (nano-banana-1).
var NanoBanana1Info = detailsmatter.ModelInfo{
	Name:         string(detailsmatter.ModelNanoBanana1),
	Provider:     detailsmatter.ProviderGeminiAPI,
	APIModelName: APIModelNanoBanana1,

	Capabilities: detailsmatter.ModelCapabilities{
		SupportsTextToImage:  true,
		SupportsImageEditing: true,
		SupportsTextOutput:   true,
	},

	RateLimits: detailsmatter.RateLimits{
		TokensPerMinute:   4000000,
		RequestsPerMinute: 500,
	},

	Pricing: detailsmatter.Pricing{
		InputTokensPerMillion:  0.30,
		OutputTokensPerMillion: 30.00,
	},
}

// NanoBanana2Info is the model info for Gemini 3 Pro Image (nano-banana-2).
var NanoBanana2Info = detailsmatter.ModelInfo{
	Name:         "nano-banana-2",
	Provider:     detailsmatter.ProviderGeminiAPI,
	APIModelName: APIModelNanoBanana2,

	Capabilities: detailsmatter.ModelCapabilities{
		SupportsTextToImage:  true,
		SupportsImageEditing: true,
		SupportsTextOutput:   true,
		SupportsThinking:     true,
	},

	RateLimits: detailsmatter.RateLimits{
		TokensPerMinute:   4000000,
		RequestsPerMinute: 360,
	},

	// For prompts >200K tokens, prices double.
	Pricing: detailsmatter.Pricing{
		InputTokensPerMillion:  2.00,
		OutputTokensPerMillion: 12.00,
	},
}
