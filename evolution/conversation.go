package evolution

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter"
)

var (
	ErrBusy              = errors.New("a turn is already being generated")
	ErrSeedTurnImmutable = errors.New("the seed turn cannot be regenerated")
	ErrNothingToUndo     = errors.New("nothing to undo")
	ErrAlreadyStarted    = errors.New("conversation already started")
	ErrNotStarted        = errors.New("conversation not started")
	ErrNoDirector        = errors.New("conversation has no director")
)

// Human seed turn names per variant.
const (
	HumanInputName = "Human Input"
	HumanSetupName = "Human Setup"
)

// Snapshot is the serializable state of a conversation.
type Snapshot struct {
	ID         string         `json:"session_id"`
	Variant    Variant        `json:"variant"`
	Style      string         `json:"style,omitempty"`
	Mode       Mode           `json:"mode,omitempty"`
	Director   string         `json:"director,omitempty"`
	Personas   *Personas      `json:"current_personas,omitempty"`
	WorldBible map[string]any `json:"world_bible,omitempty"`
	Turns      []Turn         `json:"turns"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Conversation drives one session: it owns the turn store and state and
// serializes turn generation so at most one provider call chain runs at a time.
type Conversation struct {
	id        string
	createdAt time.Time
	state     *State
	gen       TurnGenerator
	humanName string
	logger    *zap.Logger

	run sync.Mutex
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithID sets the session identifier.
func WithID(id string) ConversationOption {
	return func(c *Conversation) {
		if id != "" {
			c.id = id
		}
	}
}

// WithHumanName sets the display name of the human seed turn.
func WithHumanName(name string) ConversationOption {
	return func(c *Conversation) {
		if name != "" {
			c.humanName = name
		}
	}
}

// WithConversationLogger sets the logger.
func WithConversationLogger(logger *zap.Logger) ConversationOption {
	return func(c *Conversation) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConversation creates an empty conversation whose images live in images.
func NewConversation(gen TurnGenerator, images detailsmatter.ImageStore, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		id:        ulid.Make().String(),
		createdAt: time.Now().UTC(),
		gen:       gen,
		humanName: HumanInputName,
		logger:    zap.NewNop(),
	}
	if gen.Variant() == VariantDirected {
		c.humanName = HumanSetupName
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("conversation").With(zap.String("session", c.id))
	c.state = NewState(NewStore(images, c.logger))
	return c
}

func (c *Conversation) ID() string {
	return c.id
}

// State returns the conversation state.
func (c *Conversation) State() *State {
	return c.state
}

func (c *Conversation) Variant() Variant {
	return c.gen.Variant()
}

// Turns returns a copy of the history.
func (c *Conversation) Turns() []Turn {
	return c.state.Store().Turns()
}

func (c *Conversation) lock() error {
	if !c.run.TryLock() {
		return ErrBusy
	}
	return nil
}

// Begin records the human seed turn and generates the first model turn.
// seed may be nil.
func (c *Conversation) Begin(ctx context.Context, prompt string, seed *detailsmatter.Image) (Turn, error) {
	if err := c.lock(); err != nil {
		return Turn{}, err
	}
	defer c.run.Unlock()

	store := c.state.Store()
	if store.Len() > 0 {
		return Turn{}, ErrAlreadyStarted
	}
	if err := detailsmatter.ValidatePrompt(prompt); err != nil {
		return Turn{}, err
	}

	human := Turn{
		ID:        newTurnID(),
		Actor:     ActorHuman,
		ActorName: c.humanName,
		Text:      prompt,
		Style:     c.state.Style(),
		CreatedAt: time.Now().UTC(),
	}
	if seed != nil {
		if err := detailsmatter.ValidateImage(seed); err != nil {
			return Turn{}, err
		}
		ref, err := store.SaveImage(ctx, seed)
		if err != nil {
			return Turn{}, err
		}
		human.ImageRef = ref
		human.ImageDescription = "Initial uploaded image"
		c.state.SetSeed(seed)
	}
	store.Append(human)

	c.logger.Info("conversation started",
		zap.String("variant", string(c.Variant())),
		zap.Bool("seed_image", seed != nil),
	)

	turn, err := c.gen.GenerateTurn(ctx, c.state, TurnRequest{Index: 1, InitialPrompt: prompt})
	if err != nil {
		return Turn{}, err
	}
	store.Append(turn)
	return turn, nil
}

// Continue generates and appends the next turn.
func (c *Conversation) Continue(ctx context.Context) (Turn, error) {
	if err := c.lock(); err != nil {
		return Turn{}, err
	}
	defer c.run.Unlock()
	return c.next(ctx)
}

func (c *Conversation) next(ctx context.Context) (Turn, error) {
	store := c.state.Store()
	if store.Len() == 0 {
		return Turn{}, ErrNotStarted
	}
	turn, err := c.gen.GenerateTurn(ctx, c.state, TurnRequest{Index: store.Len()})
	if err != nil {
		return Turn{}, err
	}
	store.Append(turn)
	return turn, nil
}

// Run generates n turns in sequence, stopping early when ctx is done.
func (c *Conversation) Run(ctx context.Context, n int) ([]Turn, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.run.Unlock()

	var out []Turn
	for range n {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		turn, err := c.next(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, turn)
	}
	return out, nil
}

// Regenerate produces a new version of turn i. The new turn replaces the old
// one unless that would lose an image; replaced reports which happened.
func (c *Conversation) Regenerate(ctx context.Context, i int) (turn Turn, replaced bool, err error) {
	if err := c.lock(); err != nil {
		return Turn{}, false, err
	}
	defer c.run.Unlock()

	store := c.state.Store()
	if i == 0 {
		return Turn{}, false, ErrSeedTurnImmutable
	}
	old, err := store.At(i)
	if err != nil {
		return Turn{}, false, err
	}

	// a discarded attempt leaves no directive behind
	mark := c.state.mark()
	turn, err = c.gen.GenerateTurn(ctx, c.state, TurnRequest{Index: i, PreferSource: old.FallbackSource})
	if err != nil {
		c.state.rollback(mark)
		return Turn{}, false, err
	}

	if !turn.HasImage() && old.HasImage() {
		c.state.rollback(mark)
		c.logger.Info("regeneration kept previous turn", zap.Int("index", i))
		return turn, false, nil
	}
	if err := store.Replace(ctx, i, turn); err != nil {
		return Turn{}, false, err
	}
	return turn, true, nil
}

// Undo removes the last generated turn. The seed turn is never removed.
func (c *Conversation) Undo(ctx context.Context) (Turn, error) {
	if err := c.lock(); err != nil {
		return Turn{}, err
	}
	defer c.run.Unlock()

	if c.state.Store().Len() <= 1 {
		return Turn{}, ErrNothingToUndo
	}
	return c.state.Store().PopLast(ctx)
}

// Reset clears the history and every per-session state but style and mode.
func (c *Conversation) Reset(ctx context.Context) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.run.Unlock()

	c.state.Store().Reset(ctx)
	c.state.clear()
	c.logger.Info("conversation reset")
	return nil
}

// Direct asks the director for guidance without generating a turn and
// applies it to the state.
func (c *Conversation) Direct(ctx context.Context) (Directive, error) {
	d, ok := c.gen.(*Directed)
	if !ok || d.Director() == nil {
		return Directive{}, ErrNoDirector
	}
	if err := c.lock(); err != nil {
		return Directive{}, err
	}
	defer c.run.Unlock()

	directive := d.Director().Direct(ctx, c.state)
	c.state.ApplyDirective(directive)
	return directive, nil
}

// Snapshot captures the conversation for export.
func (c *Conversation) Snapshot() Snapshot {
	snap := Snapshot{
		ID:        c.id,
		Variant:   c.Variant(),
		Style:     c.state.Style(),
		Turns:     c.state.Store().Turns(),
		CreatedAt: c.createdAt,
	}
	if d, ok := c.gen.(*Directed); ok {
		personas := c.state.Personas()
		snap.Mode = c.state.Mode()
		snap.Director = d.DirectorName()
		snap.Personas = &personas
		snap.WorldBible = c.state.WorldBible()
	}
	return snap
}

// Restore replaces the conversation's history and state with snap. The
// images snap references must already be in the conversation's image store.
func (c *Conversation) Restore(snap Snapshot) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.run.Unlock()

	c.state.clear()
	c.state.SetStyle(snap.Style)
	if snap.Mode != "" {
		c.state.SetMode(snap.Mode)
	}
	if snap.Personas != nil {
		c.state.SetPersonas(*snap.Personas)
	}
	c.state.SetWorldBible(snap.WorldBible)
	c.state.Store().Restore(snap.Turns)
	if !snap.CreatedAt.IsZero() {
		c.createdAt = snap.CreatedAt
	}
	c.logger.Info("conversation restored", zap.Int("turns", len(snap.Turns)))
	return nil
}
