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

func TestParseDirective(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Directive
		wantErr bool
	}{
		{
			name: "plain",
			raw:  `{"action": "CRITIQUE", "content": "More contrast", "new_personas": null, "world_update": null}`,
			want: Directive{Action: ActionCritique, Content: "More contrast"},
		},
		{
			name: "fenced with prose",
			raw:  "Here you go:\n```json\n{\"action\": \"inspiration\", \"content\": \"a red door\"}\n```\nEnjoy!",
			want: Directive{Action: ActionInspiration, Content: "a red door"},
		},
		{
			name: "persona shift",
			raw:  `{"action": "PERSONA_SHIFT", "content": "tension", "new_personas": {"artist": "Cynic", "storyteller": "Oracle"}}`,
			want: Directive{Action: ActionPersonaShift, Content: "tension", NewPersonas: &Personas{Artist: "Cynic", Storyteller: "Oracle"}},
		},
		{
			name: "world update",
			raw:  `{"action": "WORLD_UPDATE", "content": "new law", "world_update": {"gravity": "reversed"}}`,
			want: Directive{Action: ActionWorldUpdate, Content: "new law", WorldUpdate: map[string]any{"gravity": "reversed"}},
		},
		{
			name: "stray escapes",
			raw:  `{\"action\": \"DIRECTION\", \"content\": \"go north\"}`,
			want: Directive{Action: ActionDirection, Content: "go north"},
		},
		{name: "missing content", raw: `{"action": "DIRECTION"}`, wantErr: true},
		{name: "empty action", raw: `{"action": "", "content": "x"}`, wantErr: true},
		{name: "not json", raw: "I think the artist should paint a boat.", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDirective(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDirective)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDirectiveOrDefault(t *testing.T) {
	d, ok := ParseDirectiveOrDefault("nonsense")
	assert.False(t, ok)
	assert.Equal(t, DefaultDirective(), d)

	d, ok = ParseDirectiveOrDefault(`{"action": "DIRECTION", "content": "go"}`)
	assert.True(t, ok)
	assert.Equal(t, "go", d.Content)
}

func directorState(t *testing.T) *State {
	t.Helper()
	return NewState(seedStore(t, imagestore.NewMemory(), false))
}

func TestDirector_Direct(t *testing.T) {
	var prompt string
	var gotOpts *detailsmatter.CompleteOptions
	opts := &detailsmatter.CompleteOptions{MaxTokens: 500, Temperature: 0.9}
	text := textFunc(func(ctx context.Context, p string, o *detailsmatter.CompleteOptions) (string, error) {
		prompt, gotOpts = p, o
		return `{"action": "INSPIRATION", "content": "a silver key"}`, nil
	})

	st := directorState(t)
	d := NewDirector(text, "", opts, nil)
	directive := d.Direct(context.Background(), st)

	assert.Equal(t, ActionInspiration, directive.Action)
	assert.Equal(t, "a silver key", directive.Content)
	assert.Same(t, opts, gotOpts)
	assert.Contains(t, prompt, "You are Director AI")
	assert.Contains(t, prompt, "Artist is 'Artist', Storyteller is 'Storyteller'")
	assert.Contains(t, prompt, ": forest")
	assert.Contains(t, prompt, "Mode: Autonomous Story")
}

func TestDirector_FallsBackOnFailure(t *testing.T) {
	tests := map[string]textFunc{
		"transport": func(ctx context.Context, p string, o *detailsmatter.CompleteOptions) (string, error) {
			return "", errors.New("timeout")
		},
		"garbage": func(ctx context.Context, p string, o *detailsmatter.CompleteOptions) (string, error) {
			return "Sure! Paint something blue.", nil
		},
		"empty": func(ctx context.Context, p string, o *detailsmatter.CompleteOptions) (string, error) {
			return "", nil
		},
	}

	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			d := NewDirector(text, "Boss", nil, nil)
			assert.Equal(t, DefaultDirective(), d.Direct(context.Background(), directorState(t)))
		})
	}
}

func TestDirector_PromptIncludesWorld(t *testing.T) {
	d := NewDirector(nil, "Boss", nil, nil)
	prompt := d.Prompt("Human Setup: forest", Personas{Artist: "Dreamer", Storyteller: "Bard"}, map[string]any{"city": "Atlantis"}, ModeSurrealInjection)

	assert.Contains(t, prompt, "You are Boss, a creative director")
	assert.Contains(t, prompt, "Artist is 'Dreamer', Storyteller is 'Bard'")
	assert.Contains(t, prompt, `"city": "Atlantis"`)
	assert.Contains(t, prompt, "Conversation so far: Human Setup: forest")
	assert.Contains(t, prompt, "Mode: Surreal Injection")
}

func TestState_ApplyDirective(t *testing.T) {
	st := directorState(t)
	st.SetWorldBible(map[string]any{"hero": "Elara"})

	st.ApplyDirective(Directive{
		Action:      ActionPersonaShift,
		Content:     "shift",
		NewPersonas: &Personas{Artist: "Cynic"},
		WorldUpdate: map[string]any{"city": "Atlantis"},
	})

	assert.Equal(t, Personas{Artist: "Cynic", Storyteller: "Storyteller"}, st.Personas())
	assert.Equal(t, map[string]any{"hero": "Elara", "city": "Atlantis"}, st.WorldBible())
	require.NotNil(t, st.LastDirective())
	assert.Equal(t, "shift", st.LastDirective().Content)

	st.ApplyDirective(DefaultDirective())
	assert.Equal(t, "Cynic", st.Personas().Artist, "personas persist until overwritten")
	assert.Len(t, st.WorldBible(), 2)
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeVisualEvolution, ParseMode("visual evolution"))
	assert.Equal(t, ModeAutonomousStory, ParseMode(" Autonomous Story "))
	assert.Equal(t, ModeFreeImagination, ParseMode("whatever"))
}
