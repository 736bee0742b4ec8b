package escrow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gavelproto/gavel/internal/arbitration"
)

var resolvedAt = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func regularDispute(totalStake, bondAtRisk, safeBond uint64) *arbitration.Dispute {
	return &arbitration.Dispute{
		Round:              3,
		Phase:              arbitration.PhasePending,
		TotalStake:         totalStake,
		BondAtRisk:         bondAtRisk,
		SafeBond:           safeBond,
		ChallengerCount:    1,
		DefenderCount:      1,
		VotesForChallenger: 600,
		VotesForDefender:   400,
		VoteCount:          2,
	}
}

func TestComputeFeeSplit(t *testing.T) {
	// The documented worked example: a 1,000,000-unit risk pool splits into
	// 800,000 winner pool, 190,000 juror pool and 10,000 treasury.
	d := regularDispute(600_000, 400_000, 50_000)

	r, err := Compute(DefaultParams(), d, arbitration.OutcomeChallengerWins, 600, resolvedAt)
	require.NoError(t, err)

	require.Equal(t, uint64(800_000), r.WinnerPool)
	require.Equal(t, uint64(190_000), r.JurorPool)
	require.Equal(t, uint64(10_000), r.TreasuryPool)
	require.Equal(t, uint64(50_000), r.SafeBond)
	require.Equal(t, uint64(1_000), r.TotalVoteWeight)
	require.Equal(t, uint64(600), r.WinningWeight)
	require.Equal(t, resolvedAt, r.ResolvedAt)
}

func TestComputeConservation(t *testing.T) {
	// winnerPool + jurorPool + treasuryPool must equal the risk pool exactly
	// for every outcome, including amounts that do not divide evenly.
	pools := []struct {
		name                 string
		stake, atRisk, safe  uint64
		outcome              arbitration.Outcome
	}{
		{"even split challenger wins", 600_000, 400_000, 0, arbitration.OutcomeChallengerWins},
		{"odd amounts defender wins", 333_337, 111_119, 77, arbitration.OutcomeDefenderWins},
		{"prime pool no participation", 1_000_003, 999_983, 13, arbitration.OutcomeNoParticipation},
		{"single unit", 1, 0, 0, arbitration.OutcomeChallengerWins},
		{"zero pool no participation", 0, 0, 0, arbitration.OutcomeNoParticipation},
	}

	for _, tt := range pools {
		t.Run(tt.name, func(t *testing.T) {
			d := regularDispute(tt.stake, tt.atRisk, tt.safe)
			r, err := Compute(DefaultParams(), d, tt.outcome, 0, resolvedAt)
			require.NoError(t, err)
			require.Equal(t, r.RiskPool(), r.WinnerPool+r.JurorPool+r.TreasuryPool,
				"risk pool leaked during settlement")
			require.Equal(t, tt.safe, r.SafeBond)
		})
	}
}

func TestComputeNoParticipation(t *testing.T) {
	d := regularDispute(1_000_000, 0, 0)
	d.VotesForChallenger = 0
	d.VotesForDefender = 0
	d.VoteCount = 0

	r, err := Compute(DefaultParams(), d, arbitration.OutcomeNoParticipation, 0, resolvedAt)
	require.NoError(t, err)

	// 1% fee, no juror pay, the remaining 99% is refundable.
	require.Equal(t, uint64(990_000), r.WinnerPool)
	require.Equal(t, uint64(0), r.JurorPool)
	require.Equal(t, uint64(10_000), r.TreasuryPool)

	refund, err := ChallengerPayout(DefaultParams(), &r, 1_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(990_000), refund)

	reward, err := JurorReward(&r, arbitration.VoteForChallenger, 500)
	require.NoError(t, err)
	require.Zero(t, reward)
}

func TestComputeRejectedRestoration(t *testing.T) {
	d := &arbitration.Dispute{
		Round:              5,
		IsRestore:          true,
		RestoreStake:       2_000_000,
		VotesForChallenger: 100,
		VotesForDefender:   300,
		VoteCount:          2,
	}

	r, err := Compute(DefaultParams(), d, arbitration.OutcomeDefenderWins, 300, resolvedAt)
	require.NoError(t, err)

	// No incumbent party staked against a restoration; the winner pool has
	// nowhere to go but the treasury.
	require.Zero(t, r.WinnerPool)
	require.Equal(t, uint64(380_000), r.JurorPool)
	require.Equal(t, uint64(1_620_000), r.TreasuryPool)
	require.Equal(t, r.RiskPool(), r.WinnerPool+r.JurorPool+r.TreasuryPool)

	// The restorer walks away with nothing beyond juror-side claims.
	payout, err := ChallengerPayout(DefaultParams(), &r, 2_000_000)
	require.NoError(t, err)
	require.Zero(t, payout)
}

func TestComputeApprovedRestoration(t *testing.T) {
	d := &arbitration.Dispute{
		Round:              5,
		IsRestore:          true,
		RestoreStake:       2_000_000,
		VotesForChallenger: 300,
		VotesForDefender:   100,
		VoteCount:          2,
	}

	r, err := Compute(DefaultParams(), d, arbitration.OutcomeChallengerWins, 300, resolvedAt)
	require.NoError(t, err)
	require.Equal(t, uint64(1_600_000), r.WinnerPool)

	payout, err := ChallengerPayout(DefaultParams(), &r, 2_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(1_600_000), payout)
}

func TestComputeRejectsUnfinishedOutcome(t *testing.T) {
	d := regularDispute(1000, 1000, 0)
	_, err := Compute(DefaultParams(), d, arbitration.OutcomeNone, 0, resolvedAt)
	require.ErrorIs(t, err, arbitration.ErrInvalidState)
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())

	p.ProtocolFeeBps = BpsDenominator + 1
	require.ErrorIs(t, p.Validate(), arbitration.ErrInvalidArgument)

	p = DefaultParams()
	p.JurorShareBps = 20_000
	require.ErrorIs(t, p.Validate(), arbitration.ErrInvalidArgument)
}

func TestJurorReward(t *testing.T) {
	d := regularDispute(600_000, 400_000, 0)
	r, err := Compute(DefaultParams(), d, arbitration.OutcomeChallengerWins, 600, resolvedAt)
	require.NoError(t, err)

	// A juror holding half the total vote weight on the winning side claims
	// exactly half the juror pool.
	reward, err := JurorReward(&r, arbitration.VoteForChallenger, 500)
	require.NoError(t, err)
	require.Equal(t, uint64(95_000), reward)

	// Losing-side votes earn nothing.
	reward, err = JurorReward(&r, arbitration.VoteForDefender, 500)
	require.NoError(t, err)
	require.Zero(t, reward)
}

func TestChallengerPayoutProRata(t *testing.T) {
	d := regularDispute(600_000, 400_000, 0)
	d.ChallengerCount = 2
	r, err := Compute(DefaultParams(), d, arbitration.OutcomeChallengerWins, 600, resolvedAt)
	require.NoError(t, err)

	a, err := ChallengerPayout(DefaultParams(), &r, 400_000)
	require.NoError(t, err)
	b, err := ChallengerPayout(DefaultParams(), &r, 200_000)
	require.NoError(t, err)

	require.Equal(t, uint64(533_333), a)
	require.Equal(t, uint64(266_666), b)
	require.LessOrEqual(t, a+b, r.WinnerPool)

	// Nothing for the losing side.
	loss, err := ChallengerPayout(DefaultParams(), &arbitration.RoundResult{
		Outcome:    arbitration.OutcomeDefenderWins,
		TotalStake: 600_000,
	}, 400_000)
	require.NoError(t, err)
	require.Zero(t, loss)
}

func TestDefenderPayout(t *testing.T) {
	// 400,000 at risk, 100,000 safe: each defender bond is 80% at risk.
	d := regularDispute(600_000, 400_000, 100_000)

	t.Run("defender wins", func(t *testing.T) {
		r, err := Compute(DefaultParams(), d, arbitration.OutcomeDefenderWins, 400, resolvedAt)
		require.NoError(t, err)
		payout, err := DefenderPayout(DefaultParams(), &r, 250_000)
		require.NoError(t, err)
		// Half the safe bond plus half the winner pool.
		require.Equal(t, uint64(50_000)+r.WinnerPool/2, payout)
	})

	t.Run("challenger wins returns only safe share", func(t *testing.T) {
		r, err := Compute(DefaultParams(), d, arbitration.OutcomeChallengerWins, 600, resolvedAt)
		require.NoError(t, err)
		payout, err := DefenderPayout(DefaultParams(), &r, 250_000)
		require.NoError(t, err)
		require.Equal(t, uint64(50_000), payout)
	})

	t.Run("no participation refunds at-risk share less fee", func(t *testing.T) {
		r, err := Compute(DefaultParams(), d, arbitration.OutcomeNoParticipation, 0, resolvedAt)
		require.NoError(t, err)
		payout, err := DefenderPayout(DefaultParams(), &r, 250_000)
		require.NoError(t, err)
		// Safe share back whole, the 200,000 at risk comes back at 99%.
		require.Equal(t, uint64(50_000+198_000), payout)
	})
}
