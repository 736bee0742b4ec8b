// Package ledger is the authoritative arbitration engine. It owns the
// in-memory state of every subject, dispute, escrow, record and stake pool,
// applies the named actions one at a time per subject, and exports
// sequence-numbered snapshots of everything it touches to the read-model
// feed. All preconditions are checked before the first mutation, so a
// rejected action never leaves partial state behind.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/gavelproto/gavel/internal/arbitration"
	"github.com/gavelproto/gavel/internal/safemath"
)

type recordKey struct {
	Owner arbitration.Address
	Round arbitration.Round
}

// subjectEntry bundles everything that shares the subject's lock: the
// subject itself, the current dispute, the escrow and all per-round
// records. One action at a time runs against an entry.
type subjectEntry struct {
	mu sync.Mutex

	subject arbitration.Subject
	dispute *arbitration.Dispute
	escrow  arbitration.Escrow

	jurors      map[recordKey]*arbitration.JurorRecord
	challengers map[recordKey]*arbitration.ChallengerRecord
	defenders   map[recordKey]*arbitration.DefenderRecord
}

type poolKey struct {
	Role  arbitration.StakeRole
	Owner arbitration.Address
}

// poolEntry carries its own lock so deposits and withdrawals across
// different owners never contend, and so subject actions can debit a pool
// while holding the subject lock. Lock order is always subject before pool.
type poolEntry struct {
	mu   sync.Mutex
	pool arbitration.StakePool
}

// Engine is the authoritative ledger. Safe for concurrent use; actions
// against the same subject serialize on its lock.
type Engine struct {
	cfg      Config
	exporter Exporter
	log      zerolog.Logger

	mu       sync.RWMutex
	subjects map[arbitration.SubjectID]*subjectEntry
	pools    map[poolKey]*poolEntry

	seq      atomic.Uint64
	treasury atomic.Uint64
}

// New builds an engine from an explicit configuration. The exporter may be
// nil when no read model is attached.
func New(cfg Config, exporter Exporter) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ledger config: %w", err)
	}
	return &Engine{
		cfg:      cfg,
		exporter: exporter,
		log:      cfg.Logger,
		subjects: make(map[arbitration.SubjectID]*subjectEntry),
		pools:    make(map[poolKey]*poolEntry),
	}, nil
}

func (e *Engine) now() time.Time {
	return e.cfg.Clock()
}

// Sequence is the last applied ledger sequence number.
func (e *Engine) Sequence() uint64 {
	return e.seq.Load()
}

// Treasury is the accumulated protocol fee balance.
func (e *Engine) Treasury() uint64 {
	return e.treasury.Load()
}

func (e *Engine) entryOf(id arbitration.SubjectID) (*subjectEntry, error) {
	e.mu.RLock()
	entry, ok := e.subjects[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: subject %s", arbitration.ErrNotFound, id)
	}
	return entry, nil
}

// poolOf returns the pool entry for (role, owner), creating it with the
// initial reputation when create is set.
func (e *Engine) poolOf(role arbitration.StakeRole, owner arbitration.Address, create bool) (*poolEntry, error) {
	key := poolKey{Role: role, Owner: owner}
	e.mu.RLock()
	entry, ok := e.pools[key]
	e.mu.RUnlock()
	if ok {
		return entry, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: no %s pool for %s", arbitration.ErrNotFound, role, owner)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok = e.pools[key]; ok {
		return entry, nil
	}
	entry = &poolEntry{pool: arbitration.StakePool{
		Owner:      owner,
		Role:       role,
		Reputation: e.cfg.Reputation.Initial,
	}}
	e.pools[key] = entry
	return entry, nil
}

// nextSeq issues the sequence number for one applied action. Every
// snapshot the action exports carries it.
func (e *Engine) nextSeq() uint64 {
	return e.seq.Add(1)
}

func (e *Engine) export(snaps []Snapshot) {
	if e.exporter == nil || len(snaps) == 0 {
		return
	}
	e.exporter.Export(snaps)
}

func snapshotJSON(kind string, key []byte, seq uint64, v any) Snapshot {
	data, err := json.Marshal(v)
	if err != nil {
		// Entity types marshal by construction; an error here is a bug.
		panic(fmt.Sprintf("marshal %s snapshot: %v", kind, err))
	}
	return Snapshot{Kind: kind, Key: key, Seq: seq, Data: data}
}

func (entry *subjectEntry) subjectSnapshot(seq uint64) Snapshot {
	id := entry.subject.ID
	return snapshotJSON(KindSubject, id[:], seq, entry.subject)
}

func (entry *subjectEntry) disputeSnapshot(seq uint64) Snapshot {
	id := entry.subject.ID
	return snapshotJSON(KindDispute, id[:], seq, entry.dispute)
}

func (entry *subjectEntry) escrowSnapshot(seq uint64) Snapshot {
	addr := arbitration.DeriveEscrowAddress(entry.subject.ID)
	return snapshotJSON(KindEscrow, addr[:], seq, entry.escrow)
}

func recordSnapshot(role arbitration.StakeRole, subject arbitration.SubjectID, owner arbitration.Address, round arbitration.Round, seq uint64, v any) Snapshot {
	addr := arbitration.DeriveRecordAddress(role, arbitration.RecordKey{Subject: subject, Owner: owner, Round: round})
	var kind string
	switch role {
	case arbitration.RoleJuror:
		kind = KindJurorRecord
	case arbitration.RoleChallenger:
		kind = KindChallengerRecord
	default:
		kind = KindDefenderRecord
	}
	return snapshotJSON(kind, addr[:], seq, v)
}

func poolSnapshot(p *poolEntry, seq uint64) Snapshot {
	addr := arbitration.DerivePoolAddress(p.pool.Role, p.pool.Owner)
	return snapshotJSON(KindPool, addr[:], seq, p.pool)
}

// credit adds amount to a pool balance with an overflow guard. Caller
// holds the pool lock.
func credit(p *poolEntry, amount uint64) error {
	next, ok := safemath.Add64(p.pool.Balance, amount)
	if !ok {
		return fmt.Errorf("credit %s pool: %w", p.pool.Role, arbitration.ErrArithmeticOverflow)
	}
	p.pool.Balance = next
	return nil
}

// debit removes amount from a pool balance. Caller holds the pool lock.
func debit(p *poolEntry, amount uint64) error {
	if p.pool.Balance < amount {
		return fmt.Errorf("%w: %s pool holds %d, need %d", arbitration.ErrInsufficientBalance, p.pool.Role, p.pool.Balance, amount)
	}
	p.pool.Balance -= amount
	return nil
}

// Deposit adds funds to the owner's pool for one role, creating the pool
// at the initial reputation on first use.
func (e *Engine) Deposit(role arbitration.StakeRole, owner arbitration.Address, amount uint64) (arbitration.StakePool, error) {
	if amount == 0 {
		return arbitration.StakePool{}, fmt.Errorf("%w: zero deposit", arbitration.ErrInvalidArgument)
	}
	p, err := e.poolOf(role, owner, true)
	if err != nil {
		return arbitration.StakePool{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := credit(p, amount); err != nil {
		return arbitration.StakePool{}, err
	}
	seq := e.nextSeq()
	snap := poolSnapshot(p, seq)
	pool := p.pool

	e.log.Debug().Stringer("owner", owner).Stringer("role", role).
		Uint64("amount", amount).Uint64("balance", pool.Balance).Msg("deposit")
	e.export([]Snapshot{snap})
	return pool, nil
}

// Withdraw removes free balance from the owner's pool. Stake committed to
// open votes or rounds lives in records, not the pool, so it can never be
// withdrawn from here.
func (e *Engine) Withdraw(role arbitration.StakeRole, owner arbitration.Address, amount uint64) (arbitration.StakePool, error) {
	if amount == 0 {
		return arbitration.StakePool{}, fmt.Errorf("%w: zero withdrawal", arbitration.ErrInvalidArgument)
	}
	p, err := e.poolOf(role, owner, false)
	if err != nil {
		return arbitration.StakePool{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := debit(p, amount); err != nil {
		return arbitration.StakePool{}, err
	}
	seq := e.nextSeq()
	snap := poolSnapshot(p, seq)
	pool := p.pool

	e.log.Debug().Stringer("owner", owner).Stringer("role", role).
		Uint64("amount", amount).Uint64("balance", pool.Balance).Msg("withdraw")
	e.export([]Snapshot{snap})
	return pool, nil
}

// SetDefenderMaxBond bounds how much the owner's defender pool lends to
// any single subject when a dispute opens.
func (e *Engine) SetDefenderMaxBond(owner arbitration.Address, maxBond uint64) (arbitration.StakePool, error) {
	p, err := e.poolOf(arbitration.RoleDefender, owner, true)
	if err != nil {
		return arbitration.StakePool{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pool.MaxBond = maxBond
	seq := e.nextSeq()
	snap := poolSnapshot(p, seq)
	pool := p.pool

	e.export([]Snapshot{snap})
	return pool, nil
}

// Pool returns a copy of the owner's pool for one role.
func (e *Engine) Pool(role arbitration.StakeRole, owner arbitration.Address) (arbitration.StakePool, error) {
	p, err := e.poolOf(role, owner, false)
	if err != nil {
		return arbitration.StakePool{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool, nil
}

// SubjectSnapshot returns a copy of the subject's current state.
func (e *Engine) SubjectSnapshot(id arbitration.SubjectID) (arbitration.Subject, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.Subject{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return copySubject(&entry.subject), nil
}

// DisputeSnapshot returns a copy of the subject's current (or most
// recently resolved) dispute.
func (e *Engine) DisputeSnapshot(id arbitration.SubjectID) (arbitration.Dispute, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.Dispute{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.dispute == nil {
		return arbitration.Dispute{}, fmt.Errorf("%w: no dispute for subject %s", arbitration.ErrNotFound, id)
	}
	return *entry.dispute, nil
}

// EscrowSnapshot returns a copy of the subject's escrow including every
// settled round result.
func (e *Engine) EscrowSnapshot(id arbitration.SubjectID) (arbitration.Escrow, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.Escrow{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := entry.escrow
	out.Rounds = append([]arbitration.RoundResult(nil), entry.escrow.Rounds...)
	return out, nil
}

// JurorRecordOf returns a copy of one juror record.
func (e *Engine) JurorRecordOf(id arbitration.SubjectID, juror arbitration.Address, round arbitration.Round) (arbitration.JurorRecord, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.JurorRecord{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	rec, ok := entry.jurors[recordKey{Owner: juror, Round: round}]
	if !ok {
		return arbitration.JurorRecord{}, fmt.Errorf("%w: juror record %s round %d", arbitration.ErrNotFound, juror, round)
	}
	return *rec, nil
}

// ChallengerRecordOf returns a copy of one challenger record.
func (e *Engine) ChallengerRecordOf(id arbitration.SubjectID, challenger arbitration.Address, round arbitration.Round) (arbitration.ChallengerRecord, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.ChallengerRecord{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	rec, ok := entry.challengers[recordKey{Owner: challenger, Round: round}]
	if !ok {
		return arbitration.ChallengerRecord{}, fmt.Errorf("%w: challenger record %s round %d", arbitration.ErrNotFound, challenger, round)
	}
	return *rec, nil
}

// DefenderRecordOf returns a copy of one defender record.
func (e *Engine) DefenderRecordOf(id arbitration.SubjectID, defender arbitration.Address, round arbitration.Round) (arbitration.DefenderRecord, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.DefenderRecord{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	rec, ok := entry.defenders[recordKey{Owner: defender, Round: round}]
	if !ok {
		return arbitration.DefenderRecord{}, fmt.Errorf("%w: defender record %s round %d", arbitration.ErrNotFound, defender, round)
	}
	return *rec, nil
}

func copySubject(s *arbitration.Subject) arbitration.Subject {
	out := *s
	out.Backers = append([]arbitration.Backing(nil), s.Backers...)
	if s.LinkedPool != nil {
		lp := *s.LinkedPool
		out.LinkedPool = &lp
	}
	return out
}
