package arbitration

import (
	"fmt"
	"time"
)

// ClaimableReward reports whether the juror record's reward may still be
// claimed. The reward itself can be zero for losing-side votes; claiming a
// zero reward is how the record advances to the claimed state.
func (r *JurorRecord) ClaimableReward() error {
	if r.Closed {
		return ErrAlreadyClosed
	}
	if r.RewardClaimed {
		return ErrAlreadyClaimed
	}
	return nil
}

// Unlockable reports whether the juror's principal stake may be released.
// The cooling-off period runs from the round's resolution time.
func (r *JurorRecord) Unlockable(now, resolvedAt time.Time, unlockPeriod time.Duration) error {
	if r.Closed {
		return ErrAlreadyClosed
	}
	if r.StakeUnlocked {
		return fmt.Errorf("%w: stake already unlocked", ErrInvalidState)
	}
	if releaseAt := resolvedAt.Add(unlockPeriod); now.Before(releaseAt) {
		return fmt.Errorf("%w: stake locked until %s", ErrNotYetEligible, releaseAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// Closeable reports whether the juror record's storage may be reclaimed.
// Both the reward claim and the stake unlock must have happened.
func (r *JurorRecord) Closeable() error {
	if r.Closed {
		return ErrAlreadyClosed
	}
	if !r.RewardClaimed || !r.StakeUnlocked {
		return fmt.Errorf("%w: close requires claimed reward and unlocked stake", ErrNotYetEligible)
	}
	return nil
}

// ClaimableReward reports whether the challenger record's payout may still
// be claimed.
func (r *ChallengerRecord) ClaimableReward() error {
	if r.Closed {
		return ErrAlreadyClosed
	}
	if r.RewardClaimed {
		return ErrAlreadyClaimed
	}
	return nil
}

// Closeable reports whether the challenger record may be closed.
func (r *ChallengerRecord) Closeable() error {
	if r.Closed {
		return ErrAlreadyClosed
	}
	if !r.RewardClaimed {
		return fmt.Errorf("%w: close requires claimed reward", ErrNotYetEligible)
	}
	return nil
}

// ClaimableReward reports whether the defender record's payout may still be
// claimed.
func (r *DefenderRecord) ClaimableReward() error {
	if r.Closed {
		return ErrAlreadyClosed
	}
	if r.RewardClaimed {
		return ErrAlreadyClaimed
	}
	return nil
}

// Closeable reports whether the defender record may be closed.
func (r *DefenderRecord) Closeable() error {
	if r.Closed {
		return ErrAlreadyClosed
	}
	if !r.RewardClaimed {
		return fmt.Errorf("%w: close requires claimed reward", ErrNotYetEligible)
	}
	return nil
}
