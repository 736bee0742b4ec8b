// Package voting holds the pure vote-validation and tally rules. The ledger
// engine owns all state; everything here computes over values it is handed.
package voting

import (
	"fmt"
	"time"

	"github.com/gavelproto/gavel/internal/arbitration"
)

// ComputeOutcome turns the final weighted tallies into a round outcome.
// Zero participation is its own outcome so settlement never divides by a
// zero vote weight. An exact tie resolves in favor of the defender side:
// the incumbent status survives unless strictly outvoted.
func ComputeOutcome(votesForChallenger, votesForDefender uint64) arbitration.Outcome {
	if votesForChallenger == 0 && votesForDefender == 0 {
		return arbitration.OutcomeNoParticipation
	}
	if votesForChallenger > votesForDefender {
		return arbitration.OutcomeChallengerWins
	}
	return arbitration.OutcomeDefenderWins
}

// WinningWeight returns the weighted tally of the side the outcome favors.
func WinningWeight(o arbitration.Outcome, votesForChallenger, votesForDefender uint64) uint64 {
	switch o {
	case arbitration.OutcomeChallengerWins:
		return votesForChallenger
	case arbitration.OutcomeDefenderWins:
		return votesForDefender
	default:
		return 0
	}
}

// ValidateInitialVote checks every precondition for a juror's first vote in
// a round: the voting window is open, the juror has not voted yet, the
// choice names a side, and the stake is non-zero. Weight equals stake; the
// mapping is deliberately 1:1 to keep tallies auditable.
func ValidateInitialVote(d *arbitration.Dispute, alreadyVoted bool, choice arbitration.VoteChoice, stake uint64, now time.Time) error {
	if err := d.AcceptingVotes(now); err != nil {
		return err
	}
	if alreadyVoted {
		return fmt.Errorf("%w: subject %s round %d", arbitration.ErrDuplicateVote, d.Subject, d.Round)
	}
	if !choice.Valid() {
		return fmt.Errorf("%w: vote choice %s", arbitration.ErrInvalidArgument, choice)
	}
	if stake == 0 {
		return fmt.Errorf("%w: zero vote stake", arbitration.ErrInvalidArgument)
	}
	return nil
}

// ValidateAddedStake checks the add-to-vote path: the window is still open,
// the juror has an existing vote in this round, and the declared choice
// matches the recorded one. Added stake raises voting power without
// creating a second vote event.
func ValidateAddedStake(d *arbitration.Dispute, rec *arbitration.JurorRecord, choice arbitration.VoteChoice, stake uint64, now time.Time) error {
	if err := d.AcceptingVotes(now); err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: no vote to add to for subject %s round %d", arbitration.ErrNotFound, d.Subject, d.Round)
	}
	if rec.Round != d.Round {
		return fmt.Errorf("%w: vote belongs to round %d, dispute is round %d", arbitration.ErrInvalidState, rec.Round, d.Round)
	}
	if choice != rec.Choice {
		return fmt.Errorf("%w: recorded %s, got %s", arbitration.ErrVoteMismatch, rec.Choice, choice)
	}
	if stake == 0 {
		return fmt.Errorf("%w: zero added stake", arbitration.ErrInvalidArgument)
	}
	return nil
}
