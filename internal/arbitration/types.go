package arbitration

import (
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// AddressSize is the byte length of participant and subject identifiers.
	AddressSize = 32
)

// Address identifies a participant account (juror, challenger, defender,
// subject creator). The engine treats addresses as opaque; the wallet layer
// owns the keys behind them.
type Address [AddressSize]byte

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// AddressFromHex parses a 64-character hex string into an Address.
func AddressFromHex(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address: %w", err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("decode address: got %d bytes, want %d", len(b), AddressSize)
	}
	copy(a[:], b)
	return a, nil
}

// SubjectID identifies the claim under arbitration. IDs are derived from the
// creator address and a registration nonce, see DeriveSubjectID.
type SubjectID [AddressSize]byte

func (id SubjectID) String() string {
	return hex.EncodeToString(id[:])
}

// SubjectIDFromHex parses a 64-character hex string into a SubjectID.
func SubjectIDFromHex(s string) (SubjectID, error) {
	a, err := AddressFromHex(s)
	if err != nil {
		return SubjectID{}, err
	}
	return SubjectID(a), nil
}

// Round distinguishes successive disputes on the same subject. It increases
// by one every time a dispute or restoration round resolves.
type Round = uint32

// SubjectStatus is the lifecycle state of a subject.
type SubjectStatus uint8

const (
	SubjectDormant SubjectStatus = iota
	SubjectValid
	SubjectDisputed
	SubjectInvalid
	SubjectRestoring
)

func (s SubjectStatus) String() string {
	switch s {
	case SubjectDormant:
		return "dormant"
	case SubjectValid:
		return "valid"
	case SubjectDisputed:
		return "disputed"
	case SubjectInvalid:
		return "invalid"
	case SubjectRestoring:
		return "restoring"
	default:
		return fmt.Sprintf("subject-status(%d)", uint8(s))
	}
}

// MarshalText renders the status as its lowercase name for snapshots.
func (s SubjectStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SubjectStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "dormant":
		*s = SubjectDormant
	case "valid":
		*s = SubjectValid
	case "disputed":
		*s = SubjectDisputed
	case "invalid":
		*s = SubjectInvalid
	case "restoring":
		*s = SubjectRestoring
	default:
		return fmt.Errorf("unknown subject status %q", b)
	}
	return nil
}

// DisputePhase is the lifecycle state of a dispute round.
type DisputePhase uint8

const (
	PhaseNone DisputePhase = iota
	PhasePending
	PhaseResolved
)

func (p DisputePhase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhasePending:
		return "pending"
	case PhaseResolved:
		return "resolved"
	default:
		return fmt.Sprintf("dispute-phase(%d)", uint8(p))
	}
}

func (p DisputePhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *DisputePhase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none":
		*p = PhaseNone
	case "pending":
		*p = PhasePending
	case "resolved":
		*p = PhaseResolved
	default:
		return fmt.Errorf("unknown dispute phase %q", b)
	}
	return nil
}

// Outcome is the result of a resolved round. For restoration rounds
// ChallengerWins means the restoration was approved.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeChallengerWins
	OutcomeDefenderWins
	OutcomeNoParticipation
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeChallengerWins:
		return "challenger-wins"
	case OutcomeDefenderWins:
		return "defender-wins"
	case OutcomeNoParticipation:
		return "no-participation"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none":
		*o = OutcomeNone
	case "challenger-wins":
		*o = OutcomeChallengerWins
	case "defender-wins":
		*o = OutcomeDefenderWins
	case "no-participation":
		*o = OutcomeNoParticipation
	default:
		return fmt.Errorf("unknown outcome %q", b)
	}
	return nil
}

// VoteChoice is the side a juror backs. Restoration rounds reuse the pair:
// ForChallenger backs the restoration, ForDefender backs the incumbent
// invalid status.
type VoteChoice uint8

const (
	VoteNone VoteChoice = iota
	VoteForChallenger
	VoteForDefender
)

func (c VoteChoice) String() string {
	switch c {
	case VoteNone:
		return "none"
	case VoteForChallenger:
		return "for-challenger"
	case VoteForDefender:
		return "for-defender"
	default:
		return fmt.Sprintf("vote-choice(%d)", uint8(c))
	}
}

func (c VoteChoice) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *VoteChoice) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none":
		*c = VoteNone
	case "for-challenger":
		*c = VoteForChallenger
	case "for-defender":
		*c = VoteForDefender
	default:
		return fmt.Errorf("unknown vote choice %q", b)
	}
	return nil
}

// Valid reports whether the choice names an actual side.
func (c VoteChoice) Valid() bool {
	return c == VoteForChallenger || c == VoteForDefender
}

// Matches reports whether a vote for this choice sits on the winning side of
// the given outcome. NoParticipation matches nobody.
func (c VoteChoice) Matches(o Outcome) bool {
	switch o {
	case OutcomeChallengerWins:
		return c == VoteForChallenger
	case OutcomeDefenderWins:
		return c == VoteForDefender
	default:
		return false
	}
}

// BondSource records where a defender's bond came from.
type BondSource uint8

const (
	BondDirect BondSource = iota
	BondPool
)

func (b BondSource) String() string {
	switch b {
	case BondDirect:
		return "direct"
	case BondPool:
		return "pool"
	default:
		return fmt.Sprintf("bond-source(%d)", uint8(b))
	}
}

func (b BondSource) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *BondSource) UnmarshalText(raw []byte) error {
	switch string(raw) {
	case "direct":
		*b = BondDirect
	case "pool":
		*b = BondPool
	default:
		return fmt.Errorf("unknown bond source %q", raw)
	}
	return nil
}

// StakeRole selects one of the three per-participant pool ledgers.
type StakeRole uint8

const (
	RoleJuror StakeRole = iota
	RoleChallenger
	RoleDefender
)

func (r StakeRole) String() string {
	switch r {
	case RoleJuror:
		return "juror"
	case RoleChallenger:
		return "challenger"
	case RoleDefender:
		return "defender"
	default:
		return fmt.Sprintf("stake-role(%d)", uint8(r))
	}
}

func (r StakeRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *StakeRole) UnmarshalText(b []byte) error {
	switch string(b) {
	case "juror":
		*r = RoleJuror
	case "challenger":
		*r = RoleChallenger
	case "defender":
		*r = RoleDefender
	default:
		return fmt.Errorf("unknown stake role %q", b)
	}
	return nil
}

// Backing is one defender's contribution to a subject's available bond.
type Backing struct {
	Defender Address    `json:"defender"`
	Amount   uint64     `json:"amount"`
	Source   BondSource `json:"source"`
}

// Subject is the claim under arbitration together with its defender-side
// collateral. All amounts are in the smallest currency unit.
type Subject struct {
	ID            SubjectID     `json:"id"`
	Creator       Address       `json:"creator"`
	Round         Round         `json:"round"`
	Status        SubjectStatus `json:"status"`
	AvailableBond uint64        `json:"availableBond"`
	Backers       []Backing     `json:"backers,omitempty"`
	DefenderCount uint32        `json:"defenderCount"`
	VotingPeriod  time.Duration `json:"votingPeriod"`
	MatchMode     bool          `json:"matchMode"`
	// LinkedPool names a defender pool whose balance may be drawn, up to the
	// pool's MaxBond, when a dispute opens. Nil when no pool is linked.
	LinkedPool *Address `json:"linkedPool,omitempty"`
	// LastDisputeTotal is the risk pool of the most recently resolved round.
	// A restoration must stake at least this much.
	LastDisputeTotal uint64 `json:"lastDisputeTotal"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Dispute is one contested round against a subject, either a regular
// challenge or a restoration request against an invalid status.
type Dispute struct {
	Subject   SubjectID    `json:"subject"`
	Round     Round        `json:"round"`
	Phase     DisputePhase `json:"phase"`
	IsRestore bool         `json:"isRestore"`
	// Restorer is set only on restoration rounds.
	Restorer Address `json:"restorer,omitempty"`

	TotalStake   uint64 `json:"totalStake"`
	BondAtRisk   uint64 `json:"bondAtRisk"`
	SafeBond     uint64 `json:"safeBond"`
	RestoreStake uint64 `json:"restoreStake"`

	ChallengerCount uint32 `json:"challengerCount"`
	DefenderCount   uint32 `json:"defenderCount"`

	VotesForChallenger uint64 `json:"votesForChallenger"`
	VotesForDefender   uint64 `json:"votesForDefender"`
	VoteCount          uint32 `json:"voteCount"`

	VotingStartsAt time.Time `json:"votingStartsAt"`
	VotingEndsAt   time.Time `json:"votingEndsAt"`

	Outcome    Outcome   `json:"outcome"`
	ResolvedAt time.Time `json:"resolvedAt,omitempty"`
}

// JurorRecord tracks one juror's vote and stake commitment to one round.
// Created at most once per (juror, subject, round).
type JurorRecord struct {
	Subject         SubjectID  `json:"subject"`
	Juror           Address    `json:"juror"`
	Round           Round      `json:"round"`
	Choice          VoteChoice `json:"choice"`
	IsRestore       bool       `json:"isRestore"`
	VotingPower     uint64     `json:"votingPower"`
	StakeAllocation uint64     `json:"stakeAllocation"`
	RewardClaimed   bool       `json:"rewardClaimed"`
	StakeUnlocked   bool       `json:"stakeUnlocked"`
	Closed          bool       `json:"closed"`
	VotedAt         time.Time  `json:"votedAt"`
}

// ChallengerRecord tracks one challenger's stake in one round.
type ChallengerRecord struct {
	Subject       SubjectID `json:"subject"`
	Challenger    Address   `json:"challenger"`
	Round         Round     `json:"round"`
	Stake         uint64    `json:"stake"`
	DetailsCID    string    `json:"detailsCid,omitempty"`
	RewardClaimed bool      `json:"rewardClaimed"`
	Closed        bool      `json:"closed"`
}

// DefenderRecord tracks one defender's bond exposure in one round.
type DefenderRecord struct {
	Subject       SubjectID  `json:"subject"`
	Defender      Address    `json:"defender"`
	Round         Round      `json:"round"`
	Bond          uint64     `json:"bond"`
	Source        BondSource `json:"source"`
	RewardClaimed bool       `json:"rewardClaimed"`
	Closed        bool       `json:"closed"`
}

// StakePool is a per-owner aggregate balance for one role. Balance excludes
// stake currently allocated to open votes or rounds; that stake lives in the
// corresponding records until unlocked or claimed.
type StakePool struct {
	Owner      Address   `json:"owner"`
	Role       StakeRole `json:"role"`
	Balance    uint64    `json:"balance"`
	Reputation uint32    `json:"reputation"`
	// MaxBond bounds how much a defender pool lends to any single subject.
	// Zero for juror and challenger pools.
	MaxBond uint64 `json:"maxBond,omitempty"`
	// SubjectCount is the number of subjects currently linked to this pool.
	// Only defender pools are ever linked.
	SubjectCount uint32 `json:"subjectCount"`
}

// Escrow holds a subject's contested funds and the immutable per-round
// settlement results.
type Escrow struct {
	Subject SubjectID     `json:"subject"`
	Balance uint64        `json:"balance"`
	Rounds  []RoundResult `json:"rounds"`
}

// Result returns the settlement result for the given round, if recorded.
func (e *Escrow) Result(round Round) (*RoundResult, bool) {
	for i := range e.Rounds {
		if e.Rounds[i].Round == round {
			return &e.Rounds[i], true
		}
	}
	return nil, false
}

// RoundResult is the settlement snapshot written exactly once when a round
// resolves. The pool figures are immutable afterwards and are the only
// legitimate input for per-participant reward math; live Dispute fields may
// be reused by a later round. The claim counters advance as participants
// collect.
type RoundResult struct {
	Round     Round   `json:"round"`
	IsRestore bool    `json:"isRestore"`
	Outcome   Outcome `json:"outcome"`

	TotalStake   uint64 `json:"totalStake"`
	BondAtRisk   uint64 `json:"bondAtRisk"`
	SafeBond     uint64 `json:"safeBond"`
	RestoreStake uint64 `json:"restoreStake"`

	TotalVoteWeight uint64 `json:"totalVoteWeight"`
	WinningWeight   uint64 `json:"winningWeight"`

	WinnerPool   uint64 `json:"winnerPool"`
	JurorPool    uint64 `json:"jurorPool"`
	TreasuryPool uint64 `json:"treasuryPool"`

	ChallengerCount uint32 `json:"challengerCount"`
	DefenderCount   uint32 `json:"defenderCount"`
	VoterCount      uint32 `json:"voterCount"`

	ClaimedChallengers uint32 `json:"claimedChallengers"`
	ClaimedDefenders   uint32 `json:"claimedDefenders"`
	ClaimedJurors      uint32 `json:"claimedJurors"`
	UnlockedJurors     uint32 `json:"unlockedJurors"`

	ResolvedAt time.Time `json:"resolvedAt"`
}

// RiskPool is the fee-bearing portion of the round's escrow: challenger
// stake plus the defender bond actually at risk, or the restoration stake.
// The safe bond sits outside it.
func (r *RoundResult) RiskPool() uint64 {
	if r.IsRestore {
		return r.RestoreStake
	}
	return r.TotalStake + r.BondAtRisk
}
