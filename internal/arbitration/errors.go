package arbitration

import (
	"errors"

	"github.com/gavelproto/gavel/internal/safemath"
)

var (
	// ErrInvalidState is returned when an action is attempted in a subject or
	// dispute state that does not permit it, including resolving an
	// already-resolved round.
	ErrInvalidState = errors.New("invalid state for action")

	// ErrInsufficientStake is returned when a stake or bond is below the
	// required minimum for the action.
	ErrInsufficientStake = errors.New("stake below required minimum")

	// ErrInsufficientBalance is returned when a pool balance cannot cover a
	// withdrawal or allocation.
	ErrInsufficientBalance = errors.New("insufficient pool balance")

	// ErrDuplicateVote is returned on a second initial vote from the same
	// juror for the same subject and round.
	ErrDuplicateVote = errors.New("juror already voted this round")

	// ErrVoteMismatch is returned when add-to-vote targets a different choice
	// than the recorded one.
	ErrVoteMismatch = errors.New("vote choice differs from recorded vote")

	// ErrNotYetEligible covers every time gate: resolving before voting ends,
	// unlocking before the cooling-off period, closing before claim/unlock.
	ErrNotYetEligible = errors.New("not yet eligible")

	ErrAlreadyClaimed = errors.New("reward already claimed")
	ErrAlreadyClosed  = errors.New("record already closed")

	// ErrNotFound is returned when no subject, dispute, record or pool exists
	// for the given key.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for malformed inputs: zero amounts,
	// unknown enum values, bad content identifiers.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrArithmeticOverflow guards all multiplicative and balance math. It
	// aliases the safemath sentinel so errors.Is matches either spelling.
	ErrArithmeticOverflow = safemath.ErrOverflow
)
