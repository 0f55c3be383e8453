package detailsmatter

import (
	"math"
)

// imageInputTokens is what one input image costs on Gemini image models.
const imageInputTokens = 258

// TokenEstimator estimates the token cost of a request for rate limiting.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// SimpleTokenEstimator - fast approximation of token usage
type SimpleTokenEstimator struct {
	SafetyMargin float64
}

func NewSimpleTokenEstimator() *SimpleTokenEstimator {
	return &SimpleTokenEstimator{
		SafetyMargin: 1.2,
	}
}

func (e *SimpleTokenEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	charCount := len([]rune(text))
	tokenEstimate := float64(charCount) / 4.0
	tokenEstimate *= e.SafetyMargin

	return int(math.Ceil(tokenEstimate)) + 3
}

// EstimateRequestTokens estimates the prompt tokens of a full request.
func EstimateRequestTokens(est TokenEstimator, req *GenerateRequest) int {
	tokens := est.EstimateTokens(req.FullPrompt())
	if req.Conditioning != nil {
		tokens += imageInputTokens
	}
	return tokens
}
