package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter"
)

// Action is what a directive asks for.
type Action string

const (
	ActionCritique     Action = "CRITIQUE"
	ActionInspiration  Action = "INSPIRATION"
	ActionPersonaShift Action = "PERSONA_SHIFT"
	ActionWorldUpdate  Action = "WORLD_UPDATE"
	ActionDirection    Action = "DIRECTION"
)

// Directive is the director's guidance for the next turn.
type Directive struct {
	Action      Action         `json:"action"`
	Content     string         `json:"content"`
	NewPersonas *Personas      `json:"new_personas,omitempty"`
	WorldUpdate map[string]any `json:"world_update,omitempty"`
}

// DefaultDirective is used whenever the director's answer cannot be used.
func DefaultDirective() Directive {
	return Directive{Action: ActionDirection, Content: "Continue with current approach"}
}

// ErrInvalidDirective is returned by ParseDirective for unusable answers.
var ErrInvalidDirective = errors.New("invalid directive")

const directiveSchemaJSON = `{
	"type": "object",
	"required": ["action", "content"],
	"properties": {
		"action": {"type": "string", "minLength": 1},
		"content": {"type": "string"},
		"new_personas": {
			"type": ["object", "null"],
			"properties": {
				"artist": {"type": "string"},
				"storyteller": {"type": "string"}
			}
		},
		"world_update": {"type": ["object", "null"]}
	}
}`

var directiveSchema = mustCompileSchema("directive.json", directiveSchemaJSON)

func mustCompileSchema(name, src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(src)); err != nil {
		panic(err)
	}
	return c.MustCompile(name)
}

var codeFence = regexp.MustCompile("```(?:json)?\\s*|\\s*```")

// cleanDirective strips code fences and anything outside the outermost object.
func cleanDirective(raw string) string {
	s := codeFence.ReplaceAllString(strings.TrimSpace(raw), "")
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// ParseDirective decodes and validates a director answer. Answers that only
// decode once backslashes are removed are accepted.
func ParseDirective(raw string) (Directive, error) {
	cleaned := cleanDirective(raw)

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		unescaped := strings.ReplaceAll(cleaned, `\`, "")
		if err2 := json.Unmarshal([]byte(unescaped), &doc); err2 != nil {
			return Directive{}, fmt.Errorf("%w: %v", ErrInvalidDirective, err)
		}
		cleaned = unescaped
	}

	if err := directiveSchema.Validate(doc); err != nil {
		return Directive{}, fmt.Errorf("%w: %v", ErrInvalidDirective, err)
	}

	var d Directive
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return Directive{}, fmt.Errorf("%w: %v", ErrInvalidDirective, err)
	}
	d.Action = Action(strings.ToUpper(strings.TrimSpace(string(d.Action))))
	return d, nil
}

// ParseDirectiveOrDefault never fails: unusable answers become DefaultDirective.
func ParseDirectiveOrDefault(raw string) (Directive, bool) {
	d, err := ParseDirective(raw)
	if err != nil {
		return DefaultDirective(), false
	}
	return d, true
}

// Director asks a text model for guidance before each directed turn.
type Director struct {
	text   detailsmatter.TextProvider
	name   string
	opts   *detailsmatter.CompleteOptions
	logger *zap.Logger
}

// DefaultDirectorName is the director's display name.
const DefaultDirectorName = "Director AI"

// NewDirector creates a director. opts tune every completion call.
func NewDirector(text detailsmatter.TextProvider, name string, opts *detailsmatter.CompleteOptions, logger *zap.Logger) *Director {
	if name == "" {
		name = DefaultDirectorName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Director{text: text, name: name, opts: opts, logger: logger.Named("director")}
}

// Name returns the director's display name.
func (d *Director) Name() string {
	return d.name
}

// Direct asks for a directive for the conversation in st. It never fails:
// transport and parse failures yield DefaultDirective.
func (d *Director) Direct(ctx context.Context, st *State) Directive {
	prompt := d.Prompt(ConversationContext(st.Store().Turns()), st.Personas(), st.WorldBible(), st.Mode())

	raw, err := d.text.Complete(ctx, prompt, d.opts)
	if err != nil {
		d.logger.Warn("director call failed, using default directive", zap.Error(err))
		directivesTotal.WithLabelValues(string(ActionDirection), "fallback").Inc()
		return DefaultDirective()
	}

	directive, err := ParseDirective(raw)
	if err != nil {
		d.logger.Warn("director answer unusable, using default directive",
			zap.Error(err),
			zap.String("raw", truncate(raw, 200)),
		)
		directivesTotal.WithLabelValues(string(ActionDirection), "fallback").Inc()
		return DefaultDirective()
	}

	d.logger.Info("directive received",
		zap.String("action", string(directive.Action)),
		zap.Bool("persona_shift", directive.NewPersonas != nil),
		zap.Int("world_update", len(directive.WorldUpdate)),
	)
	directivesTotal.WithLabelValues(string(directive.Action), "model").Inc()
	return directive
}

// Prompt builds the director prompt.
func (d *Director) Prompt(conversation string, personas Personas, world map[string]any, mode Mode) string {
	if world == nil {
		world = map[string]any{}
	}
	worldJSON, err := json.MarshalIndent(world, "", "  ")
	if err != nil {
		worldJSON = []byte("{}")
	}

	return fmt.Sprintf(`You are %s, a creative director orchestrating two AI collaborators.
Current personas: Artist is '%s', Storyteller is '%s'.
World Bible: %s
Conversation so far: %s
Mode: %s

Your role: Provide direction for the next creative turn. Choose ONE of these actions:
1. CRITIQUE: Give specific feedback on the last turn that must be addressed.
2. INSPIRATION: Provide a cryptic, creative concept to incorporate.
3. PERSONA_SHIFT: Change one or both AI personas to create tension/drama.
4. WORLD_UPDATE: Add/modify an element to the world bible.
5. DIRECTION: Give specific guidance for the next collaborative step.

Respond in this exact JSON format:
{
    "action": "CRITIQUE|INSPIRATION|PERSONA_SHIFT|WORLD_UPDATE|DIRECTION",
    "content": "Your specific direction/critique/inspiration here",
    "new_personas": {"artist": "current or new persona", "storyteller": "current or new persona"} if action is PERSONA_SHIFT else null,
    "world_update": {"key": "value"} if action is WORLD_UPDATE else null
}
Be unpredictable, dramatic, and creatively provocative.`,
		d.name, personas.Artist, personas.Storyteller, worldJSON, conversation, mode)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
