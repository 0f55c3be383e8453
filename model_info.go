package detailsmatter

// ModelCapabilities describes what features a model supports.
type ModelCapabilities struct {
	SupportsTextToImage  bool
	SupportsImageEditing bool // Accepts a conditioning image
	SupportsTextOutput   bool
	SupportsThinking     bool
}

// RateLimits defines rate limiting parameters for a model.
type RateLimits struct {
	TokensPerMinute   int
	RequestsPerMinute int
}

// Pricing defines cost information for a model.
type Pricing struct {
	InputTokensPerMillion  float64
	OutputTokensPerMillion float64
}

// ModelInfo contains complete metadata for a model.
type ModelInfo struct {
	Name         string   // Public model name (e.g., "nano-banana-1")
	Provider     Provider // Which provider serves this model
	APIModelName string   // Actual API name (e.g., "gemini-2.5-flash-image")

	Capabilities ModelCapabilities
	RateLimits   RateLimits
	Pricing      Pricing
}
