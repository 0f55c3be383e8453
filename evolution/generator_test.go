package evolution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/imagestore"
)

func newSingleState(t *testing.T, images detailsmatter.ImageStore, hasImage ...bool) *State {
	t.Helper()
	return NewState(seedStore(t, images, hasImage...))
}

func TestEvolver_FirstTurnWithoutSeedImage(t *testing.T) {
	provider := &scriptedProvider{}
	st := newSingleState(t, imagestore.NewMemory(), false)

	turn, err := NewEvolver(provider).GenerateTurn(context.Background(), st, TurnRequest{Index: 1, InitialPrompt: "forest"})
	require.NoError(t, err)

	calls := provider.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, FirstTurnPrompt("forest"), calls[0].Prompt)
	assert.Nil(t, calls[0].Conditioning)

	assert.Equal(t, ActorEvolver, turn.Actor)
	assert.Equal(t, DefaultRoleName, turn.ActorName)
	assert.Equal(t, FirstTurnPrompt("forest"), turn.Prompt)
	assert.False(t, turn.ImageMissing)
	assert.True(t, turn.HasImage())
	assert.Equal(t, FailureNone, turn.FailureReason)
}

func TestEvolver_FallbackToSeedImage(t *testing.T) {
	provider := &scriptedProvider{}
	st := newSingleState(t, imagestore.NewMemory(), true, false)

	turn, err := NewEvolver(provider).GenerateTurn(context.Background(), st, TurnRequest{Index: 2})
	require.NoError(t, err)

	calls := provider.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, EvolvePrompt(), calls[0].Prompt)
	assert.NotNil(t, calls[0].Conditioning)
	require.NotNil(t, turn.FallbackSource)
	assert.Equal(t, 0, *turn.FallbackSource)
}

func TestEvolver_StyleAndTemplate(t *testing.T) {
	provider := &scriptedProvider{}
	st := newSingleState(t, imagestore.NewMemory(), true, true)
	st.SetStyle("Watercolor")

	turn, err := NewEvolver(provider).GenerateTurn(context.Background(), st, TurnRequest{Index: 2})
	require.NoError(t, err)
	assert.Equal(t, "Watercolor", turn.Style)

	calls := provider.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Watercolor", calls[0].Style)
	require.NotNil(t, calls[0].Template)
	assert.Equal(t, detailsmatter.EvolvePromptTemplate, *calls[0].Template)
}

func TestEvolver_NoPreviousImageSkipsProvider(t *testing.T) {
	provider := &scriptedProvider{}
	st := newSingleState(t, imagestore.NewMemory(), false, false, false)

	turn, err := NewEvolver(provider).GenerateTurn(context.Background(), st, TurnRequest{Index: 3})
	require.NoError(t, err)

	assert.Empty(t, provider.calls())
	assert.True(t, turn.ImageMissing)
	assert.Equal(t, FailureNoPreviousImage, turn.FailureReason)
	assert.False(t, turn.HasImage())
}

func TestEvolver_CouldNotLoadFallback(t *testing.T) {
	provider := &scriptedProvider{}
	images := newCorruptStore()
	st := newSingleState(t, images, true, false)
	seed, _ := st.Store().At(0)
	images.bad[seed.ImageRef] = true

	turn, err := NewEvolver(provider).GenerateTurn(context.Background(), st, TurnRequest{Index: 2})
	require.NoError(t, err)

	assert.Empty(t, provider.calls())
	assert.Equal(t, FailureCouldNotLoadFallback, turn.FailureReason)
	require.NotNil(t, turn.Error)
	assert.Contains(t, turn.Error.Message, "corrupt")
}

func TestEvolver_ImageOnlyRetry(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(call int, req *detailsmatter.GenerateRequest) (*detailsmatter.GenerateResult, error) {
			if call == 0 {
				return textResult("a castle")
			}
			return imageResult("")
		},
	}
	st := newSingleState(t, imagestore.NewMemory(), true, true)

	turn, err := NewEvolver(provider).GenerateTurn(context.Background(), st, TurnRequest{Index: 2})
	require.NoError(t, err)

	calls := provider.calls()
	require.Len(t, calls, 2)
	retry := calls[1]
	assert.Equal(t, "a castle", retry.Prompt)
	assert.Nil(t, retry.Conditioning)
	assert.Empty(t, retry.Style)
	assert.True(t, retry.ImageOnly())

	assert.Equal(t, "a castle", turn.Text)
	assert.True(t, turn.HasImage())
	assert.False(t, turn.ImageMissing)
}

func TestEvolver_RetryAtMostOnce(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(call int, req *detailsmatter.GenerateRequest) (*detailsmatter.GenerateResult, error) {
			return textResult("still only words")
		},
	}
	st := newSingleState(t, imagestore.NewMemory(), true, true)

	turn, err := NewEvolver(provider).GenerateTurn(context.Background(), st, TurnRequest{Index: 2})
	require.NoError(t, err)

	assert.Len(t, provider.calls(), 2)
	assert.True(t, turn.ImageMissing)
	assert.Equal(t, FailureNone, turn.FailureReason)
	assert.Equal(t, "still only words", turn.Text)
}

func TestEvolver_NoRetryWithoutText(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(call int, req *detailsmatter.GenerateRequest) (*detailsmatter.GenerateResult, error) {
			return textResult("")
		},
	}
	st := newSingleState(t, imagestore.NewMemory(), true, true)

	turn, err := NewEvolver(provider).GenerateTurn(context.Background(), st, TurnRequest{Index: 2})
	require.NoError(t, err)
	assert.Len(t, provider.calls(), 1)
	assert.True(t, turn.ImageMissing)
}

func TestEvolver_RetryErrorIsNotAFailure(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(call int, req *detailsmatter.GenerateRequest) (*detailsmatter.GenerateResult, error) {
			if call == 0 {
				return textResult("a castle")
			}
			return nil, errors.New("boom")
		},
	}
	st := newSingleState(t, imagestore.NewMemory(), true, true)

	turn, err := NewEvolver(provider).GenerateTurn(context.Background(), st, TurnRequest{Index: 2})
	require.NoError(t, err)
	assert.True(t, turn.ImageMissing)
	assert.Equal(t, FailureNone, turn.FailureReason)
	assert.Nil(t, turn.Error)
}

func TestEvolver_ModelResponseError(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(call int, req *detailsmatter.GenerateRequest) (*detailsmatter.GenerateResult, error) {
			return nil, &detailsmatter.ResponseError{Message: "No candidates in response", RawResponse: `{"candidates":[]}`}
		},
	}
	images := imagestore.NewMemory()
	st := newSingleState(t, images, true, true)

	turn, err := NewEvolver(provider).GenerateTurn(context.Background(), st, TurnRequest{Index: 2})
	require.NoError(t, err)

	assert.Len(t, provider.calls(), 1)
	assert.Equal(t, FailureModelResponseError, turn.FailureReason)
	assert.True(t, turn.ImageMissing)
	assert.Equal(t, "[Error] No candidates in response", turn.Text)
	require.NotNil(t, turn.Error)
	assert.Equal(t, `{"candidates":[]}`, turn.Error.RawResponse)
	assert.Equal(t, 2, images.Len(), "no new image stored")
}

func TestEvolver_TransportErrorIsModelResponseError(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(call int, req *detailsmatter.GenerateRequest) (*detailsmatter.GenerateResult, error) {
			return nil, errors.New("connection reset")
		},
	}
	st := newSingleState(t, imagestore.NewMemory(), true, true)

	turn, err := NewEvolver(provider).GenerateTurn(context.Background(), st, TurnRequest{Index: 2})
	require.NoError(t, err)
	assert.Equal(t, FailureModelResponseError, turn.FailureReason)
	assert.Equal(t, "connection reset", turn.Error.Message)
}

func TestEvolver_InvalidIndex(t *testing.T) {
	st := newSingleState(t, imagestore.NewMemory(), true)
	_, err := NewEvolver(&scriptedProvider{}).GenerateTurn(context.Background(), st, TurnRequest{Index: 3})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	empty := NewState(NewStore(imagestore.NewMemory(), nil))
	_, err = NewEvolver(&scriptedProvider{}).GenerateTurn(context.Background(), empty, TurnRequest{Index: 1})
	assert.ErrorIs(t, err, ErrEmptyStore)
}

func TestEvolver_Options(t *testing.T) {
	cfg := detailsmatter.DefaultConfig()
	provider := &scriptedProvider{}
	st := newSingleState(t, imagestore.NewMemory(), true)

	turn, err := NewEvolver(provider, WithRoleName("Curator"), WithGenerateConfig(cfg)).
		GenerateTurn(context.Background(), st, TurnRequest{Index: 1, InitialPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Curator", turn.ActorName)
	assert.Same(t, cfg, provider.calls()[0].Config)
}
