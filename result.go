package detailsmatter

// SafetyCategory represents a content safety category.
type SafetyCategory string

const (
	SafetyCategoryHarassment       SafetyCategory = "HARM_CATEGORY_HARASSMENT"
	SafetyCategoryHateSpeech       SafetyCategory = "HARM_CATEGORY_HATE_SPEECH"
	SafetyCategorySexuallyExplicit SafetyCategory = "HARM_CATEGORY_SEXUALLY_EXPLICIT"
	SafetyCategoryDangerousContent SafetyCategory = "HARM_CATEGORY_DANGEROUS_CONTENT"
)

// SafetyThreshold represents the blocking threshold for safety filters.
type SafetyThreshold string

const (
	SafetyThresholdBlockNone      SafetyThreshold = "BLOCK_NONE"
	SafetyThresholdBlockLowAndUp  SafetyThreshold = "BLOCK_LOW_AND_ABOVE"
	SafetyThresholdBlockMedAndUp  SafetyThreshold = "BLOCK_MEDIUM_AND_ABOVE"
	SafetyThresholdBlockHighAndUp SafetyThreshold = "BLOCK_ONLY_HIGH"
)

// SafetySetting configures content filtering for a specific category.
type SafetySetting struct {
	Category  SafetyCategory
	Threshold SafetyThreshold
}

// Image is raw image bytes with their MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// NewImage builds an Image, sniffing the MIME type when mimeType is empty.
func NewImage(data []byte, mimeType string) *Image {
	if mimeType == "" {
		mimeType = SniffMIMEType(data)
	}
	return &Image{Data: data, MIMEType: mimeType}
}

// GenerateResult holds the extracted output of one provider call.
type GenerateResult struct {
	// Text contains any text response from the model
	Text string

	// Image is the first image the model returned, nil when none
	Image *Image

	// ThinkingContent contains the model's reasoning
	ThinkingContent string

	// FinishReason as reported by the model, if any
	FinishReason string

	// UsageMetadata contains token/billing information
	UsageMetadata *UsageMetadata
}

// HasImage reports whether the result carries image bytes.
func (r *GenerateResult) HasImage() bool {
	return r != nil && r.Image != nil && len(r.Image.Data) > 0
}

// UsageMetadata contains usage information for billing and monitoring.
type UsageMetadata struct {
	PromptTokens     int
	CandidatesTokens int
	TotalTokens      int
	ImageCount       int
}
