// Package escrow computes the settlement of a resolved round: the fee split
// written once into a RoundResult, and the per-participant payouts derived
// from it. The RoundResult is the single source of truth for reward math;
// nothing here reads live dispute state after resolution.
package escrow

import (
	"fmt"
	"time"

	"github.com/gavelproto/gavel/internal/arbitration"
	"github.com/gavelproto/gavel/internal/safemath"
)

// BpsDenominator is the basis-point scale all fee parameters use.
const BpsDenominator = 10_000

// Params carries the fee schedule. It is explicit configuration passed into
// every settlement call; the package holds no tunable state.
type Params struct {
	// ProtocolFeeBps is taken off the risk pool on participated outcomes.
	ProtocolFeeBps uint64
	// JurorShareBps is the portion of the protocol fee paid to jurors; the
	// rest goes to the treasury.
	JurorShareBps uint64
	// NoParticipationFeeBps is the reduced fee applied when nobody voted.
	NoParticipationFeeBps uint64
}

// DefaultParams is the deployed fee schedule: a 20% protocol fee of which
// 95% funds the juror pool, and a 1% fee on unvoted rounds.
func DefaultParams() Params {
	return Params{
		ProtocolFeeBps:        2_000,
		JurorShareBps:         9_500,
		NoParticipationFeeBps: 100,
	}
}

// Validate rejects fee parameters outside the basis-point scale.
func (p Params) Validate() error {
	if p.ProtocolFeeBps > BpsDenominator {
		return fmt.Errorf("%w: protocol fee %d bps", arbitration.ErrInvalidArgument, p.ProtocolFeeBps)
	}
	if p.JurorShareBps > BpsDenominator {
		return fmt.Errorf("%w: juror share %d bps", arbitration.ErrInvalidArgument, p.JurorShareBps)
	}
	if p.NoParticipationFeeBps > BpsDenominator {
		return fmt.Errorf("%w: no-participation fee %d bps", arbitration.ErrInvalidArgument, p.NoParticipationFeeBps)
	}
	return nil
}

// Compute settles a round. It takes the dispute's final figures and the
// computed outcome, and returns the immutable RoundResult to append to the
// subject's escrow. All division truncates; truncation remainders accrue to
// the treasury pool so the split conserves the risk pool exactly:
//
//	winnerPool + jurorPool + treasuryPool == riskPool
//
// The safe bond sits outside the risk pool and is returned to defenders in
// full regardless of outcome. A rejected restoration has no winner-side
// party, so its winner pool folds into the treasury here.
func Compute(p Params, d *arbitration.Dispute, outcome arbitration.Outcome, winningWeight uint64, resolvedAt time.Time) (arbitration.RoundResult, error) {
	if err := p.Validate(); err != nil {
		return arbitration.RoundResult{}, err
	}

	var riskPool uint64
	if d.IsRestore {
		riskPool = d.RestoreStake
	} else {
		var ok bool
		riskPool, ok = safemath.Add64(d.TotalStake, d.BondAtRisk)
		if !ok {
			return arbitration.RoundResult{}, fmt.Errorf("risk pool: %w", safemath.ErrOverflow)
		}
	}

	feeBps := p.ProtocolFeeBps
	jurorShareBps := p.JurorShareBps
	switch outcome {
	case arbitration.OutcomeChallengerWins, arbitration.OutcomeDefenderWins:
	case arbitration.OutcomeNoParticipation:
		feeBps = p.NoParticipationFeeBps
		jurorShareBps = 0
	default:
		return arbitration.RoundResult{}, fmt.Errorf("%w: outcome %s cannot settle a round", arbitration.ErrInvalidState, outcome)
	}

	fees, err := safemath.MulDiv64(riskPool, feeBps, BpsDenominator)
	if err != nil {
		return arbitration.RoundResult{}, fmt.Errorf("protocol fee: %w", err)
	}
	jurorPool, err := safemath.MulDiv64(fees, jurorShareBps, BpsDenominator)
	if err != nil {
		return arbitration.RoundResult{}, fmt.Errorf("juror share: %w", err)
	}
	treasuryPool := fees - jurorPool
	winnerPool := riskPool - fees

	// A rejected restoration leaves nobody on the winning side to pay.
	if d.IsRestore && outcome == arbitration.OutcomeDefenderWins {
		treasuryPool += winnerPool
		winnerPool = 0
	}

	return arbitration.RoundResult{
		Round:           d.Round,
		IsRestore:       d.IsRestore,
		Outcome:         outcome,
		TotalStake:      d.TotalStake,
		BondAtRisk:      d.BondAtRisk,
		SafeBond:        d.SafeBond,
		RestoreStake:    d.RestoreStake,
		TotalVoteWeight: d.TotalVoteWeight(),
		WinningWeight:   winningWeight,
		WinnerPool:      winnerPool,
		JurorPool:       jurorPool,
		TreasuryPool:    treasuryPool,
		ChallengerCount: d.ChallengerCount,
		DefenderCount:   d.DefenderCount,
		VoterCount:      d.VoteCount,
		ResolvedAt:      resolvedAt,
	}, nil
}

// JurorReward is the payout for one juror record against a settled round:
// the juror pool weighted by the record's voting power over the round's
// total vote weight. Losing-side votes earn nothing; their principal stake
// is unaffected and unlocks separately.
func JurorReward(r *arbitration.RoundResult, choice arbitration.VoteChoice, votingPower uint64) (uint64, error) {
	if !choice.Matches(r.Outcome) {
		return 0, nil
	}
	if r.TotalVoteWeight == 0 {
		return 0, nil
	}
	reward, err := safemath.MulDiv64(r.JurorPool, votingPower, r.TotalVoteWeight)
	if err != nil {
		return 0, fmt.Errorf("juror reward: %w", err)
	}
	return reward, nil
}

// challengerStakeTotal is the denominator for challenger-side splits. On
// restoration rounds the restorer's stake is the whole challenger side.
func challengerStakeTotal(r *arbitration.RoundResult) uint64 {
	if r.IsRestore {
		return r.RestoreStake
	}
	return r.TotalStake
}

// ChallengerPayout is the payout for one challenger record: a pro-rata
// share of the winner pool on a challenger win, a fee-reduced refund of the
// record's own stake when nobody voted, and nothing on a defender win.
func ChallengerPayout(p Params, r *arbitration.RoundResult, stake uint64) (uint64, error) {
	switch r.Outcome {
	case arbitration.OutcomeChallengerWins:
		total := challengerStakeTotal(r)
		if total == 0 {
			return 0, nil
		}
		payout, err := safemath.MulDiv64(r.WinnerPool, stake, total)
		if err != nil {
			return 0, fmt.Errorf("challenger payout: %w", err)
		}
		return payout, nil
	case arbitration.OutcomeNoParticipation:
		refund, err := safemath.MulDiv64(stake, BpsDenominator-p.NoParticipationFeeBps, BpsDenominator)
		if err != nil {
			return 0, fmt.Errorf("challenger refund: %w", err)
		}
		return refund, nil
	case arbitration.OutcomeDefenderWins:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: outcome %s", arbitration.ErrInvalidState, r.Outcome)
	}
}

// DefenderPayout is the payout for one defender record. The record's share
// of the round's safe bond always comes back; the at-risk share comes back
// fee-reduced when nobody voted, grows by a winner-pool share on a defender
// win, and is forfeit on a challenger win.
func DefenderPayout(p Params, r *arbitration.RoundResult, bond uint64) (uint64, error) {
	totalBond, ok := safemath.Add64(r.BondAtRisk, r.SafeBond)
	if !ok {
		return 0, fmt.Errorf("defender bond total: %w", safemath.ErrOverflow)
	}
	if totalBond == 0 {
		return 0, nil
	}
	safeShare, err := safemath.MulDiv64(bond, r.SafeBond, totalBond)
	if err != nil {
		return 0, fmt.Errorf("safe bond share: %w", err)
	}
	atRisk := bond - safeShare

	switch r.Outcome {
	case arbitration.OutcomeDefenderWins:
		reward, err := safemath.MulDiv64(r.WinnerPool, bond, totalBond)
		if err != nil {
			return 0, fmt.Errorf("defender payout: %w", err)
		}
		payout, ok := safemath.Add64(safeShare, reward)
		if !ok {
			return 0, fmt.Errorf("defender payout: %w", safemath.ErrOverflow)
		}
		return payout, nil
	case arbitration.OutcomeNoParticipation:
		refund, err := safemath.MulDiv64(atRisk, BpsDenominator-p.NoParticipationFeeBps, BpsDenominator)
		if err != nil {
			return 0, fmt.Errorf("defender refund: %w", err)
		}
		return safeShare + refund, nil
	case arbitration.OutcomeChallengerWins:
		return safeShare, nil
	default:
		return 0, fmt.Errorf("%w: outcome %s", arbitration.ErrInvalidState, r.Outcome)
	}
}
