package evolution

import (
	"maps"
	"sync"

	"github.com/mhpenta/detailsmatter"
)

// Variant selects the turn generation strategy of a conversation.
type Variant string

const (
	VariantSingle   Variant = "single"
	VariantDirected Variant = "directed"
)

// Personas are the current labels of the two alternating directed actors.
type Personas struct {
	Artist      string `json:"artist"`
	Storyteller string `json:"storyteller"`
}

// DefaultPersonas is what a directed conversation starts with.
var DefaultPersonas = Personas{Artist: "Artist", Storyteller: "Storyteller"}

// State is the per-session conversation state handed to a TurnGenerator.
// It is safe for concurrent use.
type State struct {
	store *Store

	style         string
	mode          Mode
	seed          *detailsmatter.Image
	personas      Personas
	worldBible    map[string]any
	lastDirective *Directive

	mu sync.RWMutex
}

// NewState creates state over store.
func NewState(store *Store) *State {
	return &State{
		store:      store,
		mode:       ModeAutonomousStory,
		personas:   DefaultPersonas,
		worldBible: map[string]any{},
	}
}

// Store returns the turn store.
func (s *State) Store() *Store {
	return s.store
}

func (s *State) Style() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.style
}

func (s *State) SetStyle(style string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style = style
}

func (s *State) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *State) SetMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Seed returns the externally supplied seed image, if any.
func (s *State) Seed() *detailsmatter.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seed
}

func (s *State) SetSeed(img *detailsmatter.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed = img
}

func (s *State) Personas() Personas {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.personas
}

func (s *State) SetPersonas(p Personas) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personas = p
}

// WorldBible returns a copy of the world bible.
func (s *State) WorldBible() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.worldBible)
}

// SetWorldBible replaces the world bible.
func (s *State) SetWorldBible(world map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if world == nil {
		world = map[string]any{}
	}
	s.worldBible = maps.Clone(world)
}

// LastDirective returns the most recently applied directive.
func (s *State) LastDirective() *Directive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastDirective == nil {
		return nil
	}
	d := *s.lastDirective
	return &d
}

// ApplyDirective updates personas and the world bible from a directive.
// Empty persona fields keep their current value.
func (s *State) ApplyDirective(d Directive) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.NewPersonas != nil {
		if d.NewPersonas.Artist != "" {
			s.personas.Artist = d.NewPersonas.Artist
		}
		if d.NewPersonas.Storyteller != "" {
			s.personas.Storyteller = d.NewPersonas.Storyteller
		}
	}
	if s.worldBible == nil {
		s.worldBible = map[string]any{}
	}
	maps.Copy(s.worldBible, d.WorldUpdate)
	s.lastDirective = &d
}

// directiveMark holds what ApplyDirective changes.
type directiveMark struct {
	personas      Personas
	worldBible    map[string]any
	lastDirective *Directive
}

func (s *State) mark() directiveMark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return directiveMark{
		personas:      s.personas,
		worldBible:    maps.Clone(s.worldBible),
		lastDirective: s.lastDirective,
	}
}

// rollback undoes every directive applied since m was taken.
func (s *State) rollback(m directiveMark) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personas = m.personas
	s.worldBible = m.worldBible
	s.lastDirective = m.lastDirective
}

// clear resets everything but the store reference and the mode.
func (s *State) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed = nil
	s.personas = DefaultPersonas
	s.worldBible = map[string]any{}
	s.lastDirective = nil
}
