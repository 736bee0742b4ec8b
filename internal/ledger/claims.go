package ledger

import (
	"fmt"

	"github.com/gavelproto/gavel/internal/arbitration"
	"github.com/gavelproto/gavel/internal/escrow"
)

// settledResult finds the immutable settlement for a round, the only
// legitimate input for reward math. An unsettled round is not an absent
// one; claims against it are early, not wrong.
func settledResult(entry *subjectEntry, round arbitration.Round) (*arbitration.RoundResult, error) {
	r, ok := entry.escrow.Result(round)
	if !ok {
		return nil, fmt.Errorf("%w: round %d not yet settled", arbitration.ErrNotYetEligible, round)
	}
	return r, nil
}

// payOut moves amount from the subject's escrow into the owner's role
// pool. Caller holds the entry lock.
func (e *Engine) payOut(entry *subjectEntry, role arbitration.StakeRole, owner arbitration.Address, amount uint64) (*poolEntry, error) {
	if entry.escrow.Balance < amount {
		return nil, fmt.Errorf("escrow balance %d below payout %d: %w",
			entry.escrow.Balance, amount, arbitration.ErrArithmeticOverflow)
	}
	p, err := e.poolOf(role, owner, true)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := credit(p, amount); err != nil {
		return nil, err
	}
	entry.escrow.Balance -= amount
	return p, nil
}

// ClaimJurorReward pays the juror's share of the round's juror pool into
// their juror pool balance. Losing-side votes claim zero; the claim still
// advances the record so it can eventually close.
func (e *Engine) ClaimJurorReward(juror arbitration.Address, id arbitration.SubjectID, round arbitration.Round) (uint64, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return e.claimJurorLocked(entry, juror, round)
}

func (e *Engine) claimJurorLocked(entry *subjectEntry, juror arbitration.Address, round arbitration.Round) (uint64, error) {
	rec, ok := entry.jurors[recordKey{Owner: juror, Round: round}]
	if !ok {
		return 0, fmt.Errorf("%w: juror record %s round %d", arbitration.ErrNotFound, juror, round)
	}
	if err := rec.ClaimableReward(); err != nil {
		return 0, err
	}
	result, err := settledResult(entry, round)
	if err != nil {
		return 0, err
	}
	reward, err := escrow.JurorReward(result, rec.Choice, rec.VotingPower)
	if err != nil {
		return 0, err
	}

	p, err := e.payOut(entry, arbitration.RoleJuror, juror, reward)
	if err != nil {
		return 0, err
	}
	rec.RewardClaimed = true
	result.ClaimedJurors++

	seq := e.nextSeq()
	snaps := []Snapshot{
		entry.escrowSnapshot(seq),
		recordSnapshot(arbitration.RoleJuror, entry.subject.ID, juror, round, seq, rec),
	}
	p.mu.Lock()
	snaps = append(snaps, poolSnapshot(p, seq))
	p.mu.Unlock()

	e.log.Debug().Stringer("subject", entry.subject.ID).Uint32("round", round).
		Stringer("juror", juror).Uint64("reward", reward).Msg("juror reward claimed")
	e.export(snaps)
	return reward, nil
}

// UnlockJurorStake releases the juror's principal stake back to their pool
// once the cooling-off period after resolution has passed.
func (e *Engine) UnlockJurorStake(juror arbitration.Address, id arbitration.SubjectID, round arbitration.Round) (uint64, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return e.unlockJurorLocked(entry, juror, round)
}

func (e *Engine) unlockJurorLocked(entry *subjectEntry, juror arbitration.Address, round arbitration.Round) (uint64, error) {
	rec, ok := entry.jurors[recordKey{Owner: juror, Round: round}]
	if !ok {
		return 0, fmt.Errorf("%w: juror record %s round %d", arbitration.ErrNotFound, juror, round)
	}
	result, err := settledResult(entry, round)
	if err != nil {
		return 0, err
	}
	if err := rec.Unlockable(e.now(), result.ResolvedAt, e.cfg.UnlockPeriod); err != nil {
		return 0, err
	}

	p, err := e.payOut(entry, arbitration.RoleJuror, juror, rec.StakeAllocation)
	if err != nil {
		return 0, err
	}
	rec.StakeUnlocked = true
	result.UnlockedJurors++

	seq := e.nextSeq()
	snaps := []Snapshot{
		entry.escrowSnapshot(seq),
		recordSnapshot(arbitration.RoleJuror, entry.subject.ID, juror, round, seq, rec),
	}
	p.mu.Lock()
	snaps = append(snaps, poolSnapshot(p, seq))
	p.mu.Unlock()

	e.log.Debug().Stringer("subject", entry.subject.ID).Uint32("round", round).
		Stringer("juror", juror).Uint64("stake", rec.StakeAllocation).Msg("juror stake unlocked")
	e.export(snaps)
	return rec.StakeAllocation, nil
}

// ClaimChallengerReward pays a challenger's share of the round: the winner
// pool pro rata on a challenger win, a fee-reduced refund when nobody
// voted, zero on a defender win.
func (e *Engine) ClaimChallengerReward(challenger arbitration.Address, id arbitration.SubjectID, round arbitration.Round) (uint64, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return e.claimChallengerLocked(entry, challenger, round)
}

func (e *Engine) claimChallengerLocked(entry *subjectEntry, challenger arbitration.Address, round arbitration.Round) (uint64, error) {
	rec, ok := entry.challengers[recordKey{Owner: challenger, Round: round}]
	if !ok {
		return 0, fmt.Errorf("%w: challenger record %s round %d", arbitration.ErrNotFound, challenger, round)
	}
	if err := rec.ClaimableReward(); err != nil {
		return 0, err
	}
	result, err := settledResult(entry, round)
	if err != nil {
		return 0, err
	}
	payout, err := escrow.ChallengerPayout(e.cfg.Escrow, result, rec.Stake)
	if err != nil {
		return 0, err
	}

	p, err := e.payOut(entry, arbitration.RoleChallenger, challenger, payout)
	if err != nil {
		return 0, err
	}
	rec.RewardClaimed = true
	result.ClaimedChallengers++

	seq := e.nextSeq()
	snaps := []Snapshot{
		entry.escrowSnapshot(seq),
		recordSnapshot(arbitration.RoleChallenger, entry.subject.ID, challenger, round, seq, rec),
	}
	p.mu.Lock()
	snaps = append(snaps, poolSnapshot(p, seq))
	p.mu.Unlock()

	e.log.Debug().Stringer("subject", entry.subject.ID).Uint32("round", round).
		Stringer("challenger", challenger).Uint64("payout", payout).Msg("challenger reward claimed")
	e.export(snaps)
	return payout, nil
}

// ClaimDefenderReward pays a defender's share of the round: the safe-bond
// portion always, plus winnings on a defender win or a fee-reduced refund
// of the at-risk portion when nobody voted.
func (e *Engine) ClaimDefenderReward(defender arbitration.Address, id arbitration.SubjectID, round arbitration.Round) (uint64, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return e.claimDefenderLocked(entry, defender, round)
}

func (e *Engine) claimDefenderLocked(entry *subjectEntry, defender arbitration.Address, round arbitration.Round) (uint64, error) {
	rec, ok := entry.defenders[recordKey{Owner: defender, Round: round}]
	if !ok {
		return 0, fmt.Errorf("%w: defender record %s round %d", arbitration.ErrNotFound, defender, round)
	}
	if err := rec.ClaimableReward(); err != nil {
		return 0, err
	}
	result, err := settledResult(entry, round)
	if err != nil {
		return 0, err
	}
	payout, err := escrow.DefenderPayout(e.cfg.Escrow, result, rec.Bond)
	if err != nil {
		return 0, err
	}

	p, err := e.payOut(entry, arbitration.RoleDefender, defender, payout)
	if err != nil {
		return 0, err
	}
	rec.RewardClaimed = true
	result.ClaimedDefenders++

	seq := e.nextSeq()
	snaps := []Snapshot{
		entry.escrowSnapshot(seq),
		recordSnapshot(arbitration.RoleDefender, entry.subject.ID, defender, round, seq, rec),
	}
	p.mu.Lock()
	snaps = append(snaps, poolSnapshot(p, seq))
	p.mu.Unlock()

	e.log.Debug().Stringer("subject", entry.subject.ID).Uint32("round", round).
		Stringer("defender", defender).Uint64("payout", payout).Msg("defender reward claimed")
	e.export(snaps)
	return payout, nil
}

// CloseJurorRecord reclaims a juror record's storage once its reward is
// claimed and its stake unlocked. Returns the storage deposit released.
func (e *Engine) CloseJurorRecord(juror arbitration.Address, id arbitration.SubjectID, round arbitration.Round) (uint64, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return e.closeJurorLocked(entry, juror, round)
}

func (e *Engine) closeJurorLocked(entry *subjectEntry, juror arbitration.Address, round arbitration.Round) (uint64, error) {
	key := recordKey{Owner: juror, Round: round}
	rec, ok := entry.jurors[key]
	if !ok {
		return 0, fmt.Errorf("%w: juror record %s round %d", arbitration.ErrNotFound, juror, round)
	}
	if err := rec.Closeable(); err != nil {
		return 0, err
	}
	rec.Closed = true
	delete(entry.jurors, key)

	seq := e.nextSeq()
	e.export([]Snapshot{recordSnapshot(arbitration.RoleJuror, entry.subject.ID, juror, round, seq, rec)})
	return e.cfg.StorageDeposit, nil
}

// CloseChallengerRecord reclaims a claimed challenger record's storage.
func (e *Engine) CloseChallengerRecord(challenger arbitration.Address, id arbitration.SubjectID, round arbitration.Round) (uint64, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return e.closeChallengerLocked(entry, challenger, round)
}

func (e *Engine) closeChallengerLocked(entry *subjectEntry, challenger arbitration.Address, round arbitration.Round) (uint64, error) {
	key := recordKey{Owner: challenger, Round: round}
	rec, ok := entry.challengers[key]
	if !ok {
		return 0, fmt.Errorf("%w: challenger record %s round %d", arbitration.ErrNotFound, challenger, round)
	}
	if err := rec.Closeable(); err != nil {
		return 0, err
	}
	rec.Closed = true
	delete(entry.challengers, key)

	seq := e.nextSeq()
	e.export([]Snapshot{recordSnapshot(arbitration.RoleChallenger, entry.subject.ID, challenger, round, seq, rec)})
	return e.cfg.StorageDeposit, nil
}

// CloseDefenderRecord reclaims a claimed defender record's storage.
func (e *Engine) CloseDefenderRecord(defender arbitration.Address, id arbitration.SubjectID, round arbitration.Round) (uint64, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return e.closeDefenderLocked(entry, defender, round)
}

func (e *Engine) closeDefenderLocked(entry *subjectEntry, defender arbitration.Address, round arbitration.Round) (uint64, error) {
	key := recordKey{Owner: defender, Round: round}
	rec, ok := entry.defenders[key]
	if !ok {
		return 0, fmt.Errorf("%w: defender record %s round %d", arbitration.ErrNotFound, defender, round)
	}
	if err := rec.Closeable(); err != nil {
		return 0, err
	}
	rec.Closed = true
	delete(entry.defenders, key)

	seq := e.nextSeq()
	e.export([]Snapshot{recordSnapshot(arbitration.RoleDefender, entry.subject.ID, defender, round, seq, rec)})
	return e.cfg.StorageDeposit, nil
}
