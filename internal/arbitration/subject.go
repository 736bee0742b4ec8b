package arbitration

import "fmt"

// Disputable reports whether a new dispute may be opened in this status.
func (s SubjectStatus) Disputable() bool {
	return s == SubjectValid
}

// Restorable reports whether a restoration request may be opened in this
// status.
func (s SubjectStatus) Restorable() bool {
	return s == SubjectInvalid
}

// Contested reports whether a round is currently open against the subject.
func (s SubjectStatus) Contested() bool {
	return s == SubjectDisputed || s == SubjectRestoring
}

// AcceptsBond reports whether defender bond may be posted in this status.
// Bond cannot be posted while a round is open or while the subject is
// invalid; an invalid subject must first be restored.
func (s SubjectStatus) AcceptsBond() bool {
	return s == SubjectDormant || s == SubjectValid
}

// StatusAfterResolution returns the subject status that a resolved round
// leaves behind. For regular rounds the incumbent valid status survives
// everything except a challenger win; for restorations the incumbent
// invalid status survives everything except an approved restoration.
func StatusAfterResolution(outcome Outcome, isRestore bool) (SubjectStatus, error) {
	switch outcome {
	case OutcomeChallengerWins:
		if isRestore {
			return SubjectValid, nil
		}
		return SubjectInvalid, nil
	case OutcomeDefenderWins, OutcomeNoParticipation:
		if isRestore {
			return SubjectInvalid, nil
		}
		return SubjectValid, nil
	default:
		return SubjectDormant, fmt.Errorf("%w: outcome %s cannot finish a round", ErrInvalidState, outcome)
	}
}

// BackingTotal sums the recorded defender contributions. It always equals
// AvailableBond; the engine maintains both together.
func (s *Subject) BackingTotal() uint64 {
	var total uint64
	for _, b := range s.Backers {
		total += b.Amount
	}
	return total
}

// AddBacking merges a defender contribution into the backer list. A
// defender appears at most once per source.
func (s *Subject) AddBacking(defender Address, amount uint64, source BondSource) {
	for i := range s.Backers {
		if s.Backers[i].Defender == defender && s.Backers[i].Source == source {
			s.Backers[i].Amount += amount
			return
		}
	}
	s.Backers = append(s.Backers, Backing{Defender: defender, Amount: amount, Source: source})
	s.DefenderCount = uint32(len(s.Backers))
}

// ReduceBacking removes amount from a defender's direct contribution,
// dropping the entry when it reaches zero.
func (s *Subject) ReduceBacking(defender Address, amount uint64, source BondSource) error {
	for i := range s.Backers {
		if s.Backers[i].Defender != defender || s.Backers[i].Source != source {
			continue
		}
		if s.Backers[i].Amount < amount {
			return fmt.Errorf("%w: backing %d below withdrawal %d", ErrInsufficientBalance, s.Backers[i].Amount, amount)
		}
		s.Backers[i].Amount -= amount
		if s.Backers[i].Amount == 0 {
			s.Backers = append(s.Backers[:i], s.Backers[i+1:]...)
		}
		s.DefenderCount = uint32(len(s.Backers))
		return nil
	}
	return fmt.Errorf("%w: no %s backing from %s", ErrNotFound, source, defender)
}

// ClearBacking empties the backer list after a round consumed the bond.
func (s *Subject) ClearBacking() {
	s.Backers = nil
	s.DefenderCount = 0
	s.AvailableBond = 0
}
