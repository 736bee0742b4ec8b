package ledger

import (
	"sort"

	"github.com/gavelproto/gavel/internal/arbitration"
)

// ItemResult is the outcome of one record inside a batch action. A batch
// never fails as a whole; each record succeeds or carries its own error.
type ItemResult struct {
	Role    arbitration.StakeRole
	Subject arbitration.SubjectID
	Round   arbitration.Round
	Amount  uint64
	Err     error
}

// ownedRecord locates one record of one role for the batch walkers.
type ownedRecord struct {
	role  arbitration.StakeRole
	round arbitration.Round
}

func (e *Engine) allEntries() []*subjectEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entries := make([]*subjectEntry, 0, len(e.subjects))
	for _, entry := range e.subjects {
		entries = append(entries, entry)
	}
	return entries
}

// recordsOf lists the owner's records in one entry, self-consistently
// ordered so batch output is stable. Caller holds the entry lock.
func recordsOf(entry *subjectEntry, owner arbitration.Address) []ownedRecord {
	var out []ownedRecord
	for key := range entry.jurors {
		if key.Owner == owner {
			out = append(out, ownedRecord{role: arbitration.RoleJuror, round: key.Round})
		}
	}
	for key := range entry.challengers {
		if key.Owner == owner {
			out = append(out, ownedRecord{role: arbitration.RoleChallenger, round: key.Round})
		}
	}
	for key := range entry.defenders {
		if key.Owner == owner {
			out = append(out, ownedRecord{role: arbitration.RoleDefender, round: key.Round})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].role != out[j].role {
			return out[i].role < out[j].role
		}
		return out[i].round < out[j].round
	})
	return out
}

// ClaimAll claims every unclaimed reward the owner holds across all
// subjects and roles. Records that cannot be claimed yet report their
// error and the rest proceed.
func (e *Engine) ClaimAll(owner arbitration.Address) []ItemResult {
	var results []ItemResult
	for _, entry := range e.allEntries() {
		entry.mu.Lock()
		id := entry.subject.ID
		for _, rec := range recordsOf(entry, owner) {
			var amount uint64
			var err error
			switch rec.role {
			case arbitration.RoleJuror:
				if entry.jurors[recordKey{Owner: owner, Round: rec.round}].RewardClaimed {
					continue
				}
				amount, err = e.claimJurorLocked(entry, owner, rec.round)
			case arbitration.RoleChallenger:
				if entry.challengers[recordKey{Owner: owner, Round: rec.round}].RewardClaimed {
					continue
				}
				amount, err = e.claimChallengerLocked(entry, owner, rec.round)
			case arbitration.RoleDefender:
				if entry.defenders[recordKey{Owner: owner, Round: rec.round}].RewardClaimed {
					continue
				}
				amount, err = e.claimDefenderLocked(entry, owner, rec.round)
			}
			results = append(results, ItemResult{Role: rec.role, Subject: id, Round: rec.round, Amount: amount, Err: err})
		}
		entry.mu.Unlock()
	}
	return results
}

// UnlockAll releases every juror stake of the owner whose cooling-off
// period has passed.
func (e *Engine) UnlockAll(owner arbitration.Address) []ItemResult {
	var results []ItemResult
	for _, entry := range e.allEntries() {
		entry.mu.Lock()
		id := entry.subject.ID
		for _, rec := range recordsOf(entry, owner) {
			if rec.role != arbitration.RoleJuror {
				continue
			}
			if entry.jurors[recordKey{Owner: owner, Round: rec.round}].StakeUnlocked {
				continue
			}
			amount, err := e.unlockJurorLocked(entry, owner, rec.round)
			results = append(results, ItemResult{Role: rec.role, Subject: id, Round: rec.round, Amount: amount, Err: err})
		}
		entry.mu.Unlock()
	}
	return results
}

// CloseAll closes every record of the owner that is fully settled,
// reclaiming its storage deposit. Ineligible records report their error
// and stay open.
func (e *Engine) CloseAll(owner arbitration.Address) []ItemResult {
	var results []ItemResult
	for _, entry := range e.allEntries() {
		entry.mu.Lock()
		id := entry.subject.ID
		for _, rec := range recordsOf(entry, owner) {
			var amount uint64
			var err error
			switch rec.role {
			case arbitration.RoleJuror:
				amount, err = e.closeJurorLocked(entry, owner, rec.round)
			case arbitration.RoleChallenger:
				amount, err = e.closeChallengerLocked(entry, owner, rec.round)
			case arbitration.RoleDefender:
				amount, err = e.closeDefenderLocked(entry, owner, rec.round)
			}
			results = append(results, ItemResult{Role: rec.role, Subject: id, Round: rec.round, Amount: amount, Err: err})
		}
		entry.mu.Unlock()
	}
	return results
}
