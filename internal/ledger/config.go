package ledger

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gavelproto/gavel/internal/arbitration"
	"github.com/gavelproto/gavel/internal/escrow"
	"github.com/gavelproto/gavel/internal/reputation"
)

// Config is the engine's complete configuration. Every tunable the
// settlement and lifecycle rules depend on lives here explicitly; the
// engine holds no ambient state, so two engines with equal configs behave
// identically.
type Config struct {
	Escrow     escrow.Params
	Reputation reputation.Params

	// UnlockPeriod is the cooling-off period between a round's resolution
	// and the release of juror principal stake.
	UnlockPeriod time.Duration

	// DefaultVotingPeriod applies when a subject registers with none.
	// Voting periods outside [MinVotingPeriod, MaxVotingPeriod] are
	// rejected at registration.
	DefaultVotingPeriod time.Duration
	MinVotingPeriod     time.Duration
	MaxVotingPeriod     time.Duration

	// RestoreVotingMultiplier stretches a subject's voting period for
	// restoration rounds.
	RestoreVotingMultiplier uint32

	// StorageDeposit is the per-record deposit returned when a record
	// closes and its storage is reclaimed.
	StorageDeposit uint64

	// Clock is the single trusted time source for every gate. Time-based
	// checks read it once per action.
	Clock func() time.Time

	// Logger receives the engine's action log. Defaults to a no-op.
	Logger zerolog.Logger
}

// DefaultConfig is the deployed protocol configuration.
func DefaultConfig() Config {
	return Config{
		Escrow:                  escrow.DefaultParams(),
		Reputation:              reputation.DefaultParams(),
		UnlockPeriod:            7 * 24 * time.Hour,
		DefaultVotingPeriod:     72 * time.Hour,
		MinVotingPeriod:         time.Hour,
		MaxVotingPeriod:         14 * 24 * time.Hour,
		RestoreVotingMultiplier: 2,
		StorageDeposit:          2_039_280,
		Clock:                   time.Now,
		Logger:                  zerolog.Nop(),
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if err := c.Escrow.Validate(); err != nil {
		return err
	}
	if c.UnlockPeriod <= 0 {
		return fmt.Errorf("%w: unlock period %s", arbitration.ErrInvalidArgument, c.UnlockPeriod)
	}
	if c.MinVotingPeriod <= 0 || c.MaxVotingPeriod < c.MinVotingPeriod {
		return fmt.Errorf("%w: voting period bounds [%s, %s]", arbitration.ErrInvalidArgument, c.MinVotingPeriod, c.MaxVotingPeriod)
	}
	if c.DefaultVotingPeriod < c.MinVotingPeriod || c.DefaultVotingPeriod > c.MaxVotingPeriod {
		return fmt.Errorf("%w: default voting period %s outside bounds", arbitration.ErrInvalidArgument, c.DefaultVotingPeriod)
	}
	if c.RestoreVotingMultiplier == 0 {
		return fmt.Errorf("%w: zero restore voting multiplier", arbitration.ErrInvalidArgument)
	}
	if c.Clock == nil {
		return fmt.Errorf("%w: nil clock", arbitration.ErrInvalidArgument)
	}
	return nil
}
