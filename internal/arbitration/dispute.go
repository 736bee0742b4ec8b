package arbitration

import (
	"fmt"
	"time"
)

// AcceptingVotes reports whether a vote may be cast against this dispute at
// the given instant. Votes are accepted strictly before the voting window
// closes; the round may stay pending past the boundary until an explicit
// resolve runs, but late votes are rejected.
func (d *Dispute) AcceptingVotes(now time.Time) error {
	if d.Phase != PhasePending {
		return fmt.Errorf("%w: dispute is %s, not pending", ErrInvalidState, d.Phase)
	}
	if !now.Before(d.VotingEndsAt) {
		return fmt.Errorf("%w: voting closed at %s", ErrInvalidState, d.VotingEndsAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// Resolvable reports whether the round may be resolved at the given
// instant. Resolution of an already-resolved round is rejected so a second
// call can never double-settle.
func (d *Dispute) Resolvable(now time.Time) error {
	switch d.Phase {
	case PhasePending:
		if now.Before(d.VotingEndsAt) {
			return fmt.Errorf("%w: voting open until %s", ErrNotYetEligible, d.VotingEndsAt.UTC().Format(time.RFC3339))
		}
		return nil
	case PhaseResolved:
		return fmt.Errorf("%w: round %d already resolved", ErrInvalidState, d.Round)
	default:
		return fmt.Errorf("%w: dispute is %s", ErrInvalidState, d.Phase)
	}
}

// AcceptingStake reports whether additional challenger stake or defender
// bond may still join the round.
func (d *Dispute) AcceptingStake(now time.Time) error {
	return d.AcceptingVotes(now)
}

// RecordVote adds weight to the chosen side's running tally. Each vote
// event increments exactly one of the two sums; initial votes additionally
// bump the vote count.
func (d *Dispute) RecordVote(choice VoteChoice, weight uint64, initial bool) error {
	switch choice {
	case VoteForChallenger:
		d.VotesForChallenger += weight
	case VoteForDefender:
		d.VotesForDefender += weight
	default:
		return fmt.Errorf("%w: vote choice %s", ErrInvalidArgument, choice)
	}
	if initial {
		d.VoteCount++
	}
	return nil
}

// TotalVoteWeight is the combined weighted tally of both sides.
func (d *Dispute) TotalVoteWeight() uint64 {
	return d.VotesForChallenger + d.VotesForDefender
}
