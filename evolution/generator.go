package evolution

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter"
)

// TurnRequest asks a TurnGenerator for the turn at Index.
type TurnRequest struct {
	// Index is the store position of the turn; equal to the store length
	// when appending, lower when regenerating.
	Index int

	// InitialPrompt is set only for the first turn of a new conversation.
	InitialPrompt string

	// PreferSource is a fallback source to try before scanning history.
	PreferSource *int

	// Directive overrides asking the director (directed variant only).
	Directive *Directive
}

// TurnGenerator produces one turn. Model failures come back as failure
// turns; the error is reserved for invalid requests.
type TurnGenerator interface {
	GenerateTurn(ctx context.Context, st *State, req TurnRequest) (Turn, error)
	Variant() Variant
}

// DefaultRoleName is the display name of single-model turns.
const DefaultRoleName = "Chief of Details"

// invocation is the outcome of one provider call plus the optional retry.
type invocation struct {
	text    string
	image   *detailsmatter.Image
	err     error
	retried bool
}

// caller runs provider calls and classifies their results.
type caller struct {
	config *detailsmatter.GenerateConfig
	logger *zap.Logger
}

// invoke calls provider once and, when allowRetry is set and the model
// answered with text but no image, once more with that text as an
// image-only prompt without conditioning.
func (c caller) invoke(ctx context.Context, provider detailsmatter.ImageProvider, req *detailsmatter.GenerateRequest, allowRetry bool) invocation {
	req.Config = c.config

	result, err := provider.Generate(ctx, req)
	if err != nil {
		return invocation{err: err}
	}

	inv := invocation{text: result.Text}
	if result.HasImage() {
		inv.image = result.Image
		return inv
	}
	if !allowRetry || result.Text == "" {
		return inv
	}

	inv.retried = true
	retry, err := provider.Generate(ctx, &detailsmatter.GenerateRequest{
		Prompt:     result.Text,
		Modalities: []detailsmatter.Modality{detailsmatter.ModalityImage},
		Config:     c.config,
	})
	switch {
	case err != nil:
		c.logger.Warn("image-only retry failed", zap.Error(err))
		imageRetriesTotal.WithLabelValues("error").Inc()
	case retry.HasImage():
		inv.image = retry.Image
		imageRetriesTotal.WithLabelValues("image").Inc()
	default:
		imageRetriesTotal.WithLabelValues("no_image").Inc()
	}
	return inv
}

// markModelError turns t into a model_response_error failure.
func markModelError(t *Turn, err error) {
	info := &ErrorInfo{Message: err.Error()}
	if respErr, ok := detailsmatter.AsResponseError(err); ok {
		info.Message = respErr.Message
		info.RawResponse = respErr.RawResponse
	}
	t.Text = "[Error] " + info.Message
	t.ImageMissing = true
	t.FailureReason = FailureModelResponseError
	t.Error = info
}

// attachImage stores img on t. A store failure leaves the turn without an image.
func attachImage(ctx context.Context, store *Store, t *Turn, img *detailsmatter.Image, logger *zap.Logger) {
	if img == nil {
		t.ImageMissing = true
		return
	}
	ref, err := store.SaveImage(ctx, img)
	if err != nil {
		logger.Error("failed to store generated image", zap.Error(err))
		t.ImageMissing = true
		return
	}
	t.ImageRef = ref
	t.ImageMissing = false
}

func outcomeOf(t Turn) string {
	switch {
	case t.FailureReason != FailureNone:
		return string(t.FailureReason)
	case t.ImageMissing:
		return "no_image"
	case t.HasImage():
		return "image"
	default:
		return "text"
	}
}

func validateIndex(st *State, idx int) error {
	if st == nil || st.Store() == nil {
		return errors.New("conversation state is required")
	}
	if st.Store().Len() == 0 {
		return ErrEmptyStore
	}
	if idx < 1 || idx > st.Store().Len() {
		return ErrIndexOutOfRange
	}
	return nil
}

// Evolver generates single-model turns: each turn keeps one detail of the
// previous image and invents a new story around it.
type Evolver struct {
	provider detailsmatter.ImageProvider
	roleName string
	caller   caller
	logger   *zap.Logger
}

var _ TurnGenerator = (*Evolver)(nil)

// EvolverOption configures an Evolver.
type EvolverOption func(*Evolver)

// WithRoleName sets the display name of generated turns.
func WithRoleName(name string) EvolverOption {
	return func(e *Evolver) {
		if name != "" {
			e.roleName = name
		}
	}
}

// WithGenerateConfig sets the config sent with every provider call.
func WithGenerateConfig(cfg *detailsmatter.GenerateConfig) EvolverOption {
	return func(e *Evolver) {
		e.caller.config = cfg
	}
}

// WithEvolverLogger sets the logger.
func WithEvolverLogger(logger *zap.Logger) EvolverOption {
	return func(e *Evolver) {
		if logger != nil {
			e.logger = logger.Named("evolver")
		}
	}
}

// NewEvolver creates a single-model generator.
func NewEvolver(provider detailsmatter.ImageProvider, opts ...EvolverOption) *Evolver {
	e := &Evolver{
		provider: provider,
		roleName: DefaultRoleName,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.caller.logger = e.logger
	return e
}

func (e *Evolver) Variant() Variant {
	return VariantSingle
}

// GenerateTurn resolves conditioning, calls the provider and classifies the result.
func (e *Evolver) GenerateTurn(ctx context.Context, st *State, req TurnRequest) (Turn, error) {
	if err := validateIndex(st, req.Index); err != nil {
		return Turn{}, err
	}
	store := st.Store()
	style := st.Style()

	res, err := ResolveConditioning(ctx, store, ResolveRequest{
		Index:         req.Index,
		InitialPrompt: req.InitialPrompt,
		Seed:          st.Seed(),
		PreferSource:  req.PreferSource,
	})
	if err != nil {
		return Turn{}, err
	}

	turn := Turn{
		ID:             newTurnID(),
		Actor:          ActorEvolver,
		ActorName:      e.roleName,
		Style:          style,
		CreatedAt:      time.Now().UTC(),
		FallbackSource: res.FallbackSource,
	}
	if res.Phase == PhaseEvolve {
		turn.Prompt = EvolvePrompt()
	} else {
		turn.Prompt = FirstTurnPrompt(res.SeedPrompt)
	}

	log := e.logger.With(
		zap.Int("index", req.Index),
		zap.String("phase", res.Phase.String()),
		zap.Bool("conditioned", res.Conditioning != nil),
	)

	if res.Failed() {
		turn.ImageMissing = true
		turn.FailureReason = res.Failure
		if res.Err != nil {
			turn.Error = &ErrorInfo{Message: res.Err.Error()}
		}
		log.Warn("conditioning image resolution failed",
			zap.String("reason", string(res.Failure)),
			zap.Int("candidate", res.Candidate),
		)
		turnsTotal.WithLabelValues(string(VariantSingle), outcomeOf(turn)).Inc()
		return turn, nil
	}

	inv := e.caller.invoke(ctx, e.provider, &detailsmatter.GenerateRequest{
		Prompt:       turn.Prompt,
		Conditioning: res.Conditioning,
		Style:        style,
		Template:     &detailsmatter.EvolvePromptTemplate,
	}, true)

	if inv.err != nil {
		markModelError(&turn, inv.err)
		log.Error("model response error", zap.Error(inv.err))
	} else {
		turn.Text = inv.text
		turn.ImageDescription = inv.text
		attachImage(ctx, store, &turn, inv.image, log)
		log.Info("turn generated",
			zap.Bool("has_image", turn.HasImage()),
			zap.Bool("retried", inv.retried),
		)
	}

	turnsTotal.WithLabelValues(string(VariantSingle), outcomeOf(turn)).Inc()
	return turn, nil
}
