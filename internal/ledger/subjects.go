package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gavelproto/gavel/internal/arbitration"
	"github.com/gavelproto/gavel/internal/safemath"
)

// RegisterSubject creates a subject for arbitration. The id derives from
// (creator, nonce), so replaying the same registration returns the
// already-registered subject unchanged instead of failing. The subject
// starts Valid when initial bond is posted and Dormant otherwise.
func (e *Engine) RegisterSubject(creator arbitration.Address, nonce uuid.UUID, votingPeriod time.Duration, matchMode bool, initialBond uint64, source arbitration.BondSource) (arbitration.Subject, error) {
	if votingPeriod == 0 {
		votingPeriod = e.cfg.DefaultVotingPeriod
	}
	if votingPeriod < e.cfg.MinVotingPeriod || votingPeriod > e.cfg.MaxVotingPeriod {
		return arbitration.Subject{}, fmt.Errorf("%w: voting period %s outside [%s, %s]",
			arbitration.ErrInvalidArgument, votingPeriod, e.cfg.MinVotingPeriod, e.cfg.MaxVotingPeriod)
	}

	id := arbitration.DeriveSubjectID(creator, nonce)

	e.mu.Lock()
	if existing, ok := e.subjects[id]; ok {
		e.mu.Unlock()
		existing.mu.Lock()
		defer existing.mu.Unlock()
		return copySubject(&existing.subject), nil
	}
	entry := &subjectEntry{
		subject: arbitration.Subject{
			ID:           id,
			Creator:      creator,
			Status:       arbitration.SubjectDormant,
			VotingPeriod: votingPeriod,
			MatchMode:    matchMode,
			CreatedAt:    e.now(),
		},
		escrow:      arbitration.Escrow{Subject: id},
		jurors:      make(map[recordKey]*arbitration.JurorRecord),
		challengers: make(map[recordKey]*arbitration.ChallengerRecord),
		defenders:   make(map[recordKey]*arbitration.DefenderRecord),
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	e.subjects[id] = entry
	e.mu.Unlock()

	snaps := []Snapshot{}
	if initialBond > 0 {
		poolSnap, err := e.fundBacking(entry, creator, initialBond, source)
		if err != nil {
			// The registration rolls back whole; a retry with the same
			// nonce starts from scratch.
			e.mu.Lock()
			delete(e.subjects, id)
			e.mu.Unlock()
			return arbitration.Subject{}, err
		}
		if poolSnap != nil {
			snaps = append(snaps, *poolSnap)
		}
		entry.subject.Status = arbitration.SubjectValid
	}

	seq := e.nextSeq()
	for i := range snaps {
		snaps[i].Seq = seq
	}
	snaps = append(snaps, entry.subjectSnapshot(seq), entry.escrowSnapshot(seq))

	e.log.Debug().Stringer("subject", id).Stringer("creator", creator).
		Stringer("status", entry.subject.Status).Uint64("bond", initialBond).Msg("subject registered")
	e.export(snaps)
	return copySubject(&entry.subject), nil
}

// fundBacking applies one bond contribution to a subject. Pool-sourced
// bond is debited from the defender pool, bounded by its MaxBond for this
// subject; direct bond arrives from the wallet layer and is only recorded.
// Caller holds the entry lock. Returns the pool snapshot when a pool was
// touched; the caller assigns the action's sequence.
func (e *Engine) fundBacking(entry *subjectEntry, defender arbitration.Address, amount uint64, source arbitration.BondSource) (*Snapshot, error) {
	next, ok := safemath.Add64(entry.subject.AvailableBond, amount)
	if !ok {
		return nil, fmt.Errorf("available bond: %w", arbitration.ErrArithmeticOverflow)
	}

	var snap *Snapshot
	switch source {
	case arbitration.BondDirect:
	case arbitration.BondPool:
		p, err := e.poolOf(arbitration.RoleDefender, defender, false)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.pool.MaxBond > 0 {
			existing := poolBackingOf(&entry.subject, defender)
			if existing+amount > p.pool.MaxBond {
				return nil, fmt.Errorf("%w: pool backing %d exceeds max bond %d",
					arbitration.ErrInsufficientStake, existing+amount, p.pool.MaxBond)
			}
		}
		if err := debit(p, amount); err != nil {
			return nil, err
		}
		s := poolSnapshot(p, 0)
		snap = &s
	default:
		return nil, fmt.Errorf("%w: bond source %s", arbitration.ErrInvalidArgument, source)
	}

	entry.subject.AddBacking(defender, amount, source)
	entry.subject.AvailableBond = next
	return snap, nil
}

func poolBackingOf(s *arbitration.Subject, defender arbitration.Address) uint64 {
	for _, b := range s.Backers {
		if b.Defender == defender && b.Source == arbitration.BondPool {
			return b.Amount
		}
	}
	return 0
}

// PostBond adds defender bond to a subject. Rejected while a round is open
// or while the subject is invalid.
func (e *Engine) PostBond(defender arbitration.Address, id arbitration.SubjectID, amount uint64, source arbitration.BondSource) (arbitration.Subject, error) {
	if amount == 0 {
		return arbitration.Subject{}, fmt.Errorf("%w: zero bond", arbitration.ErrInvalidArgument)
	}
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.Subject{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.subject.Status.AcceptsBond() {
		return arbitration.Subject{}, fmt.Errorf("%w: subject is %s", arbitration.ErrInvalidState, entry.subject.Status)
	}
	poolSnap, err := e.fundBacking(entry, defender, amount, source)
	if err != nil {
		return arbitration.Subject{}, err
	}
	if entry.subject.Status == arbitration.SubjectDormant {
		entry.subject.Status = arbitration.SubjectValid
	}

	seq := e.nextSeq()
	snaps := []Snapshot{entry.subjectSnapshot(seq)}
	if poolSnap != nil {
		poolSnap.Seq = seq
		snaps = append(snaps, *poolSnap)
	}

	e.log.Debug().Stringer("subject", id).Stringer("defender", defender).
		Uint64("amount", amount).Stringer("source", source).Msg("bond posted")
	e.export(snaps)
	return copySubject(&entry.subject), nil
}

// WithdrawBond removes defender bond from a subject with no open round.
// Withdrawing the last unit demotes a valid subject to dormant.
func (e *Engine) WithdrawBond(defender arbitration.Address, id arbitration.SubjectID, amount uint64, source arbitration.BondSource) (arbitration.Subject, error) {
	if amount == 0 {
		return arbitration.Subject{}, fmt.Errorf("%w: zero withdrawal", arbitration.ErrInvalidArgument)
	}
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.Subject{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.subject.Status.Contested() {
		return arbitration.Subject{}, fmt.Errorf("%w: subject is %s", arbitration.ErrInvalidState, entry.subject.Status)
	}
	if backed := poolOrDirectBacking(&entry.subject, defender, source); backed < amount {
		return arbitration.Subject{}, fmt.Errorf("%w: backing %d below withdrawal %d", arbitration.ErrInsufficientBalance, backed, amount)
	}

	var snaps []Snapshot
	if source == arbitration.BondPool {
		p, err := e.poolOf(arbitration.RoleDefender, defender, true)
		if err != nil {
			return arbitration.Subject{}, err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := credit(p, amount); err != nil {
			return arbitration.Subject{}, err
		}
		snaps = append(snaps, poolSnapshot(p, 0))
	}

	if err := entry.subject.ReduceBacking(defender, amount, source); err != nil {
		return arbitration.Subject{}, err
	}
	entry.subject.AvailableBond -= amount
	if entry.subject.AvailableBond == 0 && entry.subject.Status == arbitration.SubjectValid {
		entry.subject.Status = arbitration.SubjectDormant
	}

	seq := e.nextSeq()
	for i := range snaps {
		snaps[i].Seq = seq
	}
	snaps = append(snaps, entry.subjectSnapshot(seq))

	e.log.Debug().Stringer("subject", id).Stringer("defender", defender).
		Uint64("amount", amount).Stringer("status", entry.subject.Status).Msg("bond withdrawn")
	e.export(snaps)
	return copySubject(&entry.subject), nil
}

func poolOrDirectBacking(s *arbitration.Subject, defender arbitration.Address, source arbitration.BondSource) uint64 {
	for _, b := range s.Backers {
		if b.Defender == defender && b.Source == source {
			return b.Amount
		}
	}
	return 0
}

// LinkDefenderPool attaches the owner's defender pool to a subject. When a
// dispute opens, the pool tops up the subject's backing to the pool's
// MaxBond, drawn from whatever balance it holds at that moment.
func (e *Engine) LinkDefenderPool(owner arbitration.Address, id arbitration.SubjectID) (arbitration.Subject, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.Subject{}, err
	}
	p, err := e.poolOf(arbitration.RoleDefender, owner, false)
	if err != nil {
		return arbitration.Subject{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.subject.Status.Contested() {
		return arbitration.Subject{}, fmt.Errorf("%w: subject is %s", arbitration.ErrInvalidState, entry.subject.Status)
	}
	if entry.subject.LinkedPool != nil {
		return arbitration.Subject{}, fmt.Errorf("%w: pool %s already linked", arbitration.ErrInvalidState, *entry.subject.LinkedPool)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	linked := owner
	entry.subject.LinkedPool = &linked
	p.pool.SubjectCount++

	seq := e.nextSeq()
	snaps := []Snapshot{entry.subjectSnapshot(seq), poolSnapshot(p, seq)}

	e.log.Debug().Stringer("subject", id).Stringer("pool", owner).Msg("defender pool linked")
	e.export(snaps)
	return copySubject(&entry.subject), nil
}

// UnlinkDefenderPool detaches the linked defender pool from a subject.
func (e *Engine) UnlinkDefenderPool(owner arbitration.Address, id arbitration.SubjectID) (arbitration.Subject, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.Subject{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.subject.Status.Contested() {
		return arbitration.Subject{}, fmt.Errorf("%w: subject is %s", arbitration.ErrInvalidState, entry.subject.Status)
	}
	if entry.subject.LinkedPool == nil || *entry.subject.LinkedPool != owner {
		return arbitration.Subject{}, fmt.Errorf("%w: pool %s is not linked", arbitration.ErrInvalidState, owner)
	}

	entry.subject.LinkedPool = nil
	snaps := []Snapshot{}
	if p, err := e.poolOf(arbitration.RoleDefender, owner, false); err == nil {
		p.mu.Lock()
		if p.pool.SubjectCount > 0 {
			p.pool.SubjectCount--
		}
		snaps = append(snaps, poolSnapshot(p, 0))
		p.mu.Unlock()
	}

	seq := e.nextSeq()
	for i := range snaps {
		snaps[i].Seq = seq
	}
	snaps = append(snaps, entry.subjectSnapshot(seq))

	e.log.Debug().Stringer("subject", id).Stringer("pool", owner).Msg("defender pool unlinked")
	e.export(snaps)
	return copySubject(&entry.subject), nil
}
