package evolution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter"
)

// Names are the base display names of the two directed actors.
type Names struct {
	Artist      string `json:"artist"`
	Storyteller string `json:"storyteller"`
}

// DefaultNames are used when a Directed generator is created without names.
var DefaultNames = Names{Artist: "Artist Model A", Storyteller: "Storyteller Model B"}

// Directed alternates a text-only storyteller and an image-producing artist,
// both steered by a director consulted before every turn.
type Directed struct {
	artist      detailsmatter.ImageProvider
	storyteller detailsmatter.ImageProvider
	director    *Director
	names       Names
	caller      caller
	logger      *zap.Logger
}

var _ TurnGenerator = (*Directed)(nil)

// DirectedOption configures a Directed generator.
type DirectedOption func(*Directed)

// WithNames sets the base display names of the actors.
func WithNames(n Names) DirectedOption {
	return func(d *Directed) {
		if n.Artist != "" {
			d.names.Artist = n.Artist
		}
		if n.Storyteller != "" {
			d.names.Storyteller = n.Storyteller
		}
	}
}

// WithDirectedConfig sets the config sent with every provider call.
func WithDirectedConfig(cfg *detailsmatter.GenerateConfig) DirectedOption {
	return func(d *Directed) {
		d.caller.config = cfg
	}
}

// WithDirectedLogger sets the logger.
func WithDirectedLogger(logger *zap.Logger) DirectedOption {
	return func(d *Directed) {
		if logger != nil {
			d.logger = logger.Named("directed")
		}
	}
}

// NewDirected creates a directed generator. director may be nil, in which
// case every turn runs on DefaultDirective unless the request carries one.
func NewDirected(artist, storyteller detailsmatter.ImageProvider, director *Director, opts ...DirectedOption) *Directed {
	d := &Directed{
		artist:      artist,
		storyteller: storyteller,
		director:    director,
		names:       DefaultNames,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.caller.logger = d.logger
	return d
}

func (d *Directed) Variant() Variant {
	return VariantDirected
}

// Director returns the director, may be nil.
func (d *Directed) Director() *Director {
	return d.director
}

// DirectorName returns the director's display name.
func (d *Directed) DirectorName() string {
	if d.director == nil {
		return DefaultDirectorName
	}
	return d.director.Name()
}

// IsArtistTurn reports whether the turn at store index idx belongs to the
// artist. The first generated turn (index 1) is the storyteller's.
func IsArtistTurn(idx int) bool {
	return (idx-1)%2 == 1
}

// GenerateTurn consults the director, applies the directive and produces
// the actor turn at req.Index.
func (d *Directed) GenerateTurn(ctx context.Context, st *State, req TurnRequest) (Turn, error) {
	if err := validateIndex(st, req.Index); err != nil {
		return Turn{}, err
	}
	store := st.Store()

	var directive Directive
	switch {
	case req.Directive != nil:
		directive = *req.Directive
	case d.director != nil:
		directive = d.director.Direct(ctx, st)
	default:
		directive = DefaultDirective()
	}
	st.ApplyDirective(directive)

	history := store.Turns()[:req.Index]
	prev := history[len(history)-1]

	res, err := ResolveConditioning(ctx, store, ResolveRequest{
		Index:              req.Index,
		InitialPrompt:      req.InitialPrompt,
		Seed:               st.Seed(),
		PreferSource:       req.PreferSource,
		AllowUnconditioned: true,
	})
	if err != nil {
		return Turn{}, err
	}

	personas := st.Personas()
	style := st.Style()
	p := directedPrompt{
		DirectorName: d.DirectorName(),
		Guidance:     directive.Content,
		PrevText:     prev.Text,
		PrevImage:    prev.ImageDescription,
		WorldBible:   st.WorldBible(),
		Mode:         st.Mode(),
		Style:        style,
	}

	turn := Turn{
		ID:               newTurnID(),
		Style:            style,
		CreatedAt:        time.Now().UTC(),
		FallbackSource:   res.FallbackSource,
		DirectorGuidance: directive.Content,
		DirectorAction:   string(directive.Action),
	}

	artistTurn := IsArtistTurn(req.Index)
	log := d.logger.With(
		zap.Int("index", req.Index),
		zap.Bool("artist", artistTurn),
		zap.String("mode", string(p.Mode)),
		zap.String("action", string(directive.Action)),
	)

	genReq := &detailsmatter.GenerateRequest{
		Context:      ConversationContext(history),
		Conditioning: res.Conditioning,
		Style:        style,
	}

	if artistTurn {
		turn.Actor = ActorArtist
		turn.ActorName = fmt.Sprintf("%s (%s)", personas.Artist, d.names.Artist)
		p.ActorName = turn.ActorName
		turn.Prompt, turn.ImageDescription = p.artist()
		genReq.Prompt = turn.Prompt
		genReq.Template = &detailsmatter.ArtistPromptTemplate

		inv := d.caller.invoke(ctx, d.artist, genReq, true)
		if inv.err != nil {
			markModelError(&turn, inv.err)
			log.Error("artist response error", zap.Error(inv.err))
		} else {
			// the artist's own text is never kept
			turn.Text = fmt.Sprintf(artistCaptionTemplate, turn.ImageDescription)
			attachImage(ctx, store, &turn, inv.image, log)
			log.Info("artist turn generated", zap.Bool("has_image", turn.HasImage()), zap.Bool("retried", inv.retried))
		}
	} else {
		turn.Actor = ActorStoryteller
		turn.ActorName = fmt.Sprintf("%s (%s)", personas.Storyteller, d.names.Storyteller)
		p.ActorName = turn.ActorName
		turn.Prompt = p.storyteller()
		genReq.Prompt = turn.Prompt
		genReq.Template = &detailsmatter.NarrativePromptTemplate
		genReq.Modalities = []detailsmatter.Modality{detailsmatter.ModalityText}

		inv := d.caller.invoke(ctx, d.storyteller, genReq, false)
		if inv.err != nil {
			markModelError(&turn, inv.err)
			// nothing visual was asked for
			turn.ImageMissing = false
			log.Error("storyteller response error", zap.Error(inv.err))
		} else {
			// any image the storyteller returns is discarded
			turn.Text = inv.text
			log.Info("storyteller turn generated", zap.Int("text_len", len(inv.text)))
		}
	}

	turnsTotal.WithLabelValues(string(VariantDirected), outcomeOf(turn)).Inc()
	return turn, nil
}
