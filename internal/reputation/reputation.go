// Package reputation maps a participant's arbitration history into a bounded
// fixed-point score and derives the minimum bond required for new actions.
// Scores are parts-per-million with 500,000 as the neutral midpoint.
package reputation

import (
	"math"

	"github.com/gavelproto/gavel/internal/safemath"
)

// Scale is the fixed-point denominator: scores are parts-per-million.
const Scale uint32 = 1_000_000

// Params bounds the score and shapes the minimum-bond curve. All engine
// instances settle with an explicit Params value; there is no ambient
// configuration.
type Params struct {
	// Initial is the score assigned to a participant's first pool.
	Initial uint32
	Min     uint32
	Max     uint32
	// WinDelta and LossDelta nudge the score after each resolved round,
	// clamped to [Min, Max].
	WinDelta  uint32
	LossDelta uint32
	// BaseBond anchors the minimum-bond curve; the bond required at the
	// maximum score.
	BaseBond uint64
	// BondFloor is the protocol-wide lower bound on any minimum bond.
	BondFloor uint64
}

// DefaultParams mirrors the deployed protocol constants. Amounts are in the
// smallest currency unit.
func DefaultParams() Params {
	return Params{
		Initial:   Scale / 2,
		Min:       0,
		Max:       Scale,
		WinDelta:  25_000,
		LossDelta: 50_000,
		BaseBond:  100_000_000,
		BondFloor: 10_000_000,
	}
}

// Clamp forces a score into the configured bounds.
func (p Params) Clamp(score uint32) uint32 {
	if score < p.Min {
		return p.Min
	}
	if score > p.Max {
		return p.Max
	}
	return score
}

// MinimumBond is the stake floor for opening a dispute, inversely related
// to the score: bond = BaseBond * (2*Scale - score) / Scale, never below
// BondFloor. A participant at the maximum score posts exactly BaseBond; at
// the minimum score, double that. Monotone non-increasing in score.
func (p Params) MinimumBond(score uint32) uint64 {
	score = p.Clamp(score)
	factor := uint64(2*Scale) - uint64(score)
	bond, err := safemath.MulDiv64(p.BaseBond, factor, uint64(Scale))
	if err != nil {
		// Only reachable with an absurd BaseBond; an unpayable floor is the
		// safe answer.
		return math.MaxUint64
	}
	if bond < p.BondFloor {
		return p.BondFloor
	}
	return bond
}

// OnWin returns the score after a winning round.
func (p Params) OnWin(score uint32) uint32 {
	score = p.Clamp(score)
	if p.Max-score < p.WinDelta {
		return p.Max
	}
	return score + p.WinDelta
}

// OnLoss returns the score after a losing round.
func (p Params) OnLoss(score uint32) uint32 {
	score = p.Clamp(score)
	if score-p.Min < p.LossDelta {
		return p.Min
	}
	return score - p.LossDelta
}
