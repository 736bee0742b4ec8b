package arbitration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func addr(b byte) Address {
	var a Address
	a[0] = b
	return a
}

func TestStatusAfterResolution(t *testing.T) {
	tests := []struct {
		name      string
		outcome   Outcome
		isRestore bool
		want      SubjectStatus
		wantErr   bool
	}{
		{"challenger wins regular", OutcomeChallengerWins, false, SubjectInvalid, false},
		{"defender wins regular", OutcomeDefenderWins, false, SubjectValid, false},
		{"no participation regular", OutcomeNoParticipation, false, SubjectValid, false},
		{"restoration approved", OutcomeChallengerWins, true, SubjectValid, false},
		{"restoration rejected", OutcomeDefenderWins, true, SubjectInvalid, false},
		{"restoration unvoted", OutcomeNoParticipation, true, SubjectInvalid, false},
		{"unresolved outcome", OutcomeNone, false, SubjectDormant, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StatusAfterResolution(tt.outcome, tt.isRestore)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidState)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSubjectBacking(t *testing.T) {
	s := &Subject{}

	s.AddBacking(addr(1), 500, BondDirect)
	s.AddBacking(addr(2), 300, BondPool)
	s.AddBacking(addr(1), 200, BondDirect)

	require.Equal(t, uint64(1000), s.BackingTotal())
	require.Len(t, s.Backers, 2)
	require.Equal(t, uint32(2), s.DefenderCount)

	err := s.ReduceBacking(addr(1), 700, BondDirect)
	require.NoError(t, err)
	require.Equal(t, uint64(300), s.BackingTotal())
	require.Len(t, s.Backers, 1)

	err = s.ReduceBacking(addr(2), 400, BondPool)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	err = s.ReduceBacking(addr(3), 1, BondDirect)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVoteChoiceMatches(t *testing.T) {
	require.True(t, VoteForChallenger.Matches(OutcomeChallengerWins))
	require.True(t, VoteForDefender.Matches(OutcomeDefenderWins))
	require.False(t, VoteForChallenger.Matches(OutcomeDefenderWins))
	require.False(t, VoteForDefender.Matches(OutcomeChallengerWins))
	require.False(t, VoteForChallenger.Matches(OutcomeNoParticipation))
	require.False(t, VoteForDefender.Matches(OutcomeNoParticipation))
}

func TestDisputeVoteGates(t *testing.T) {
	start := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	d := &Dispute{Phase: PhasePending, Round: 1, VotingStartsAt: start, VotingEndsAt: end}

	require.NoError(t, d.AcceptingVotes(start))
	require.NoError(t, d.AcceptingVotes(end.Add(-time.Second)))

	// The boundary itself is closed.
	err := d.AcceptingVotes(end)
	require.ErrorIs(t, err, ErrInvalidState)

	// Pending past the boundary until resolved, but resolvable.
	require.NoError(t, d.Resolvable(end))
	err = d.Resolvable(end.Add(-time.Second))
	require.ErrorIs(t, err, ErrNotYetEligible)

	d.Phase = PhaseResolved
	err = d.Resolvable(end.Add(time.Hour))
	require.ErrorIs(t, err, ErrInvalidState)
	err = d.AcceptingVotes(start)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDisputeRecordVote(t *testing.T) {
	d := &Dispute{Phase: PhasePending}

	require.NoError(t, d.RecordVote(VoteForChallenger, 100, true))
	require.NoError(t, d.RecordVote(VoteForDefender, 40, true))
	require.NoError(t, d.RecordVote(VoteForChallenger, 60, false))

	require.Equal(t, uint64(160), d.VotesForChallenger)
	require.Equal(t, uint64(40), d.VotesForDefender)
	require.Equal(t, uint32(2), d.VoteCount)
	require.Equal(t, uint64(200), d.TotalVoteWeight())

	err := d.RecordVote(VoteNone, 10, true)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestJurorRecordLifecycle(t *testing.T) {
	resolved := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	unlockPeriod := 7 * 24 * time.Hour
	r := &JurorRecord{Choice: VoteForDefender, StakeAllocation: 1000}

	require.NoError(t, r.ClaimableReward())

	// Close before anything is an eligibility error, not a state error.
	err := r.Closeable()
	require.ErrorIs(t, err, ErrNotYetEligible)

	// Unlock gating around the exact boundary.
	err = r.Unlockable(resolved.Add(unlockPeriod-time.Second), resolved, unlockPeriod)
	require.ErrorIs(t, err, ErrNotYetEligible)
	require.NoError(t, r.Unlockable(resolved.Add(unlockPeriod), resolved, unlockPeriod))

	r.RewardClaimed = true
	require.ErrorIs(t, r.ClaimableReward(), ErrAlreadyClaimed)
	require.ErrorIs(t, r.Closeable(), ErrNotYetEligible)

	r.StakeUnlocked = true
	require.ErrorIs(t, r.Unlockable(resolved.Add(unlockPeriod), resolved, unlockPeriod), ErrInvalidState)
	require.NoError(t, r.Closeable())

	r.Closed = true
	require.ErrorIs(t, r.Closeable(), ErrAlreadyClosed)
	require.ErrorIs(t, r.ClaimableReward(), ErrAlreadyClosed)
}

func TestChallengerDefenderRecordGates(t *testing.T) {
	c := &ChallengerRecord{Stake: 100}
	require.NoError(t, c.ClaimableReward())
	require.ErrorIs(t, c.Closeable(), ErrNotYetEligible)
	c.RewardClaimed = true
	require.NoError(t, c.Closeable())
	require.ErrorIs(t, c.ClaimableReward(), ErrAlreadyClaimed)

	d := &DefenderRecord{Bond: 100}
	require.ErrorIs(t, d.Closeable(), ErrNotYetEligible)
	d.RewardClaimed = true
	d.Closed = true
	require.ErrorIs(t, d.Closeable(), ErrAlreadyClosed)
}

func TestDeriveSubjectID(t *testing.T) {
	creator := addr(9)
	nonce := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	id1 := DeriveSubjectID(creator, nonce)
	id2 := DeriveSubjectID(creator, nonce)
	require.Equal(t, id1, id2, "derivation must be deterministic")

	other := DeriveSubjectID(creator, uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8"))
	require.NotEqual(t, id1, other)

	otherCreator := DeriveSubjectID(addr(10), nonce)
	require.NotEqual(t, id1, otherCreator)
}

func TestDeriveRecordAddressDomains(t *testing.T) {
	key := RecordKey{Subject: SubjectID(addr(1)), Owner: addr(2), Round: 3}

	juror := DeriveRecordAddress(RoleJuror, key)
	challenger := DeriveRecordAddress(RoleChallenger, key)
	defender := DeriveRecordAddress(RoleDefender, key)

	require.NotEqual(t, juror, challenger)
	require.NotEqual(t, juror, defender)
	require.NotEqual(t, challenger, defender)

	// Same inputs, same address.
	require.Equal(t, juror, DeriveRecordAddress(RoleJuror, key))

	nextRound := key
	nextRound.Round = 4
	require.NotEqual(t, juror, DeriveRecordAddress(RoleJuror, nextRound))
}

func TestAddressHexRoundTrip(t *testing.T) {
	a := addr(0xAB)
	parsed, err := AddressFromHex(a.String())
	require.NoError(t, err)
	require.Equal(t, a, parsed)

	_, err = AddressFromHex("abcd")
	require.Error(t, err)
	_, err = AddressFromHex("zz")
	require.Error(t, err)
}

func TestEscrowResult(t *testing.T) {
	e := &Escrow{
		Rounds: []RoundResult{
			{Round: 1, Outcome: OutcomeDefenderWins},
			{Round: 2, Outcome: OutcomeChallengerWins},
		},
	}

	r, ok := e.Result(2)
	require.True(t, ok)
	require.Equal(t, OutcomeChallengerWins, r.Outcome)

	_, ok = e.Result(3)
	require.False(t, ok)
}

func TestRiskPool(t *testing.T) {
	regular := &RoundResult{TotalStake: 600, BondAtRisk: 400, SafeBond: 250}
	require.Equal(t, uint64(1000), regular.RiskPool())

	restore := &RoundResult{IsRestore: true, RestoreStake: 750, TotalStake: 999}
	require.Equal(t, uint64(750), restore.RiskPool())
}
