package evolution

import (
	"context"
	"errors"

	"github.com/mhpenta/detailsmatter"
)

// Phase is the kind of turn being generated.
type Phase int

const (
	// PhaseSeed generates the first turn from an explicit initial prompt.
	PhaseSeed Phase = iota
	// PhaseRegenerateSeed regenerates the first turn from the human seed turn.
	PhaseRegenerateSeed
	// PhaseEvolve continues from an earlier image.
	PhaseEvolve
)

func (p Phase) String() string {
	switch p {
	case PhaseSeed:
		return "seed"
	case PhaseRegenerateSeed:
		return "regenerate_seed"
	default:
		return "evolve"
	}
}

// ResolveRequest describes the turn about to be generated.
type ResolveRequest struct {
	// Index is the store position of the new turn.
	Index int

	// InitialPrompt is set only when the caller starts a conversation.
	InitialPrompt string

	// Seed is the externally supplied seed image, may be nil.
	Seed *detailsmatter.Image

	// PreferSource is tried before the backward scan, typically the
	// fallback source recorded on a turn being regenerated.
	PreferSource *int

	// AllowUnconditioned turns resolution failures into a nil conditioning
	// image instead of a failure.
	AllowUnconditioned bool
}

// Resolution is the outcome of conditioning image resolution.
type Resolution struct {
	Phase Phase

	// SeedPrompt is the prompt text for the seed phases.
	SeedPrompt string

	Conditioning   *detailsmatter.Image
	FallbackSource *int

	// Failure is set when no provider call must be made.
	Failure FailureReason
	// Candidate is the turn whose image could not be read, when Failure is
	// FailureCouldNotLoadFallback.
	Candidate int
	Err       error
}

// Failed reports whether resolution produced a failure.
func (r Resolution) Failed() bool {
	return r.Failure != FailureNone
}

// ResolveConditioning decides the phase and conditioning image for the turn
// at req.Index. It never calls a provider.
func ResolveConditioning(ctx context.Context, store *Store, req ResolveRequest) (Resolution, error) {
	if req.Index < 1 || req.Index > store.Len() {
		return Resolution{}, ErrIndexOutOfRange
	}

	if req.Index == 1 && req.InitialPrompt != "" {
		return Resolution{
			Phase:        PhaseSeed,
			SeedPrompt:   req.InitialPrompt,
			Conditioning: req.Seed,
		}, nil
	}

	if req.Index == 1 {
		seed, err := store.At(0)
		if err != nil {
			return Resolution{}, err
		}
		res := Resolution{Phase: PhaseRegenerateSeed, SeedPrompt: seed.Text}
		if img, err := store.LoadImage(ctx, 0); err == nil {
			res.Conditioning = img
		} else {
			res.Conditioning = req.Seed
		}
		return res, nil
	}

	res := Resolution{Phase: PhaseEvolve}

	if req.PreferSource != nil && *req.PreferSource >= 0 && *req.PreferSource < req.Index {
		if img, err := store.LoadImage(ctx, *req.PreferSource); err == nil {
			res.Conditioning = img
			if *req.PreferSource < req.Index-1 {
				res.FallbackSource = intPtr(*req.PreferSource)
			}
			return res, nil
		}
	}

	for j := req.Index - 1; j >= 0; j-- {
		img, err := store.LoadImage(ctx, j)
		switch {
		case err == nil:
			res.Conditioning = img
			if j < req.Index-1 {
				res.FallbackSource = intPtr(j)
			}
			return res, nil
		case errors.Is(err, ErrNoImage), errors.Is(err, detailsmatter.ErrImageNotFound):
			// removed or never produced: keep walking back
			continue
		default:
			if req.AllowUnconditioned {
				return res, nil
			}
			res.Failure = FailureCouldNotLoadFallback
			res.Candidate = j
			res.Err = err
			return res, nil
		}
	}

	if req.Seed != nil {
		res.Conditioning = req.Seed
		return res, nil
	}

	if !req.AllowUnconditioned {
		res.Failure = FailureNoPreviousImage
	}
	return res, nil
}
