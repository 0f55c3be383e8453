package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/mhpenta/detailsmatter"
)

var fakePNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error

	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func response(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: parts}, FinishReason: genai.FinishReasonStop},
		},
	}
}

func TestGenerate_SendsPromptAndConditioning(t *testing.T) {
	fake := &fakeModels{resp: response(
		&genai.Part{Text: "a lighthouse"},
		&genai.Part{InlineData: &genai.Blob{Data: fakePNG, MIMEType: "image/png"}},
	)}
	g := newGenerator(fake)

	result, err := g.Generate(context.Background(), &detailsmatter.GenerateRequest{
		Prompt:       "evolve",
		Style:        "Ukiyo-e",
		Conditioning: &detailsmatter.Image{Data: fakePNG, MIMEType: "image/png"},
	})
	require.NoError(t, err)

	assert.Equal(t, APIModelNanoBanana1, fake.model)
	require.Len(t, fake.contents, 1)
	require.Len(t, fake.contents[0].Parts, 2)
	assert.Equal(t, "Build upon the visual composition intelligently. evolve\nStyle: Ukiyo-e.", fake.contents[0].Parts[0].Text)
	assert.Equal(t, fakePNG, fake.contents[0].Parts[1].InlineData.Data)
	assert.Equal(t, []string{"TEXT", "IMAGE"}, fake.config.ResponseModalities)

	assert.Equal(t, "a lighthouse", result.Text)
	require.True(t, result.HasImage())
	assert.Equal(t, "image/png", result.Image.MIMEType)
}

func TestGenerate_ImageOnlyModalities(t *testing.T) {
	fake := &fakeModels{resp: response(&genai.Part{Text: "no picture, sorry"})}
	g := newGenerator(fake)

	result, err := g.Generate(context.Background(), &detailsmatter.GenerateRequest{
		Prompt:     "a castle",
		Modalities: []detailsmatter.Modality{detailsmatter.ModalityImage},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"IMAGE"}, fake.config.ResponseModalities)
	assert.False(t, result.HasImage())
}

func TestGenerate_ImageEmbeddedInText(t *testing.T) {
	fake := &fakeModels{resp: response(&genai.Part{
		Text: "Here: data:image/png;base64,iVBORw0KGgoAAAANSUhEUg==",
	})}
	g := newGenerator(fake)

	result, err := g.Generate(context.Background(), &detailsmatter.GenerateRequest{Prompt: "x"})
	require.NoError(t, err)
	require.True(t, result.HasImage())
	assert.Equal(t, fakePNG, result.Image.Data)
}

func TestGenerate_ThoughtsAreSeparated(t *testing.T) {
	fake := &fakeModels{resp: response(
		&genai.Part{Text: "thinking...", Thought: true},
		&genai.Part{Text: "answer"},
	)}
	g := newGenerator(fake)

	result, err := g.Generate(context.Background(), &detailsmatter.GenerateRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "answer", result.Text)
	assert.Equal(t, "thinking...", result.ThinkingContent)
}

func TestParseResult_StructuredFailures(t *testing.T) {
	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		message string
	}{
		{name: "nil response", resp: nil, message: "no response from model"},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, message: "response has no candidates"},
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			},
			message: "prompt blocked: SAFETY",
		},
		{
			name: "missing content",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			},
			message: "response blocked by safety filters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGenerator(&fakeModels{resp: tt.resp})
			_, err := g.Generate(context.Background(), &detailsmatter.GenerateRequest{Prompt: "x"})

			respErr, ok := detailsmatter.AsResponseError(err)
			require.True(t, ok, "expected ResponseError, got %v", err)
			assert.Equal(t, tt.message, respErr.Message)
		})
	}
}

func TestConvertError(t *testing.T) {
	rl := convertError(genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, "m")
	assert.True(t, detailsmatter.IsRateLimitError(rl))

	bad := convertError(genai.APIError{Code: 400, Message: "bad image"}, "m")
	respErr, ok := detailsmatter.AsResponseError(bad)
	require.True(t, ok)
	assert.Equal(t, "bad image (400)", respErr.Message)

	transport := convertError(errors.New("dial tcp: timeout"), "m")
	_, ok = detailsmatter.AsResponseError(transport)
	assert.False(t, ok)
}

func TestComplete(t *testing.T) {
	fake := &fakeModels{resp: response(&genai.Part{Text: `{"action":"DIRECTION"}`})}
	g := newGenerator(fake)

	text, err := g.Complete(context.Background(), "direct", &detailsmatter.CompleteOptions{MaxTokens: 500, Temperature: 0.8})
	require.NoError(t, err)
	assert.Equal(t, `{"action":"DIRECTION"}`, text)
	assert.Equal(t, DefaultTextModel, fake.model)
	assert.Equal(t, int32(500), fake.config.MaxOutputTokens)
}
