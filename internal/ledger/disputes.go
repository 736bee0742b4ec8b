package ledger

import (
	"fmt"
	"time"

	"github.com/gavelproto/gavel/internal/arbitration"
	"github.com/gavelproto/gavel/internal/escrow"
	"github.com/gavelproto/gavel/internal/evidence"
	"github.com/gavelproto/gavel/internal/safemath"
	"github.com/gavelproto/gavel/internal/voting"
)

// OpenDisputeResult reports what opening a dispute actually did. When the
// subject turned out to have no backing at all, no dispute exists, no
// stake was taken and the subject is demoted to dormant; callers re-read
// the state they get back instead of assuming a round opened.
type OpenDisputeResult struct {
	DisputeOpened bool
	Subject       arbitration.Subject
	Dispute       arbitration.Dispute
}

// OpenDispute opens a contested round against a valid subject. The
// challenger's stake must meet the minimum bond for their reputation and
// is debited from their challenger pool. The subject's available bond,
// topped up from a linked defender pool, moves into escrow; in match mode
// only a stake-matched portion of it is at risk.
func (e *Engine) OpenDispute(challenger arbitration.Address, id arbitration.SubjectID, stake uint64, detailsCID string) (OpenDisputeResult, error) {
	if stake == 0 {
		return OpenDisputeResult{}, fmt.Errorf("%w: zero stake", arbitration.ErrInvalidArgument)
	}
	if detailsCID != "" {
		if err := evidence.ValidateCID(detailsCID); err != nil {
			return OpenDisputeResult{}, fmt.Errorf("%w: %v", arbitration.ErrInvalidArgument, err)
		}
	}
	entry, err := e.entryOf(id)
	if err != nil {
		return OpenDisputeResult{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.subject.Status.Disputable() {
		return OpenDisputeResult{}, fmt.Errorf("%w: subject is %s", arbitration.ErrInvalidState, entry.subject.Status)
	}

	now := e.now()

	// Peek the linked defender pool's draw to judge whether the subject is
	// backed at all. The pool stays locked until the draw is applied or the
	// action bails, so the peeked amount cannot go stale.
	var dp *poolEntry
	var dpOwner arbitration.Address
	var draw uint64
	if entry.subject.LinkedPool != nil {
		dpOwner = *entry.subject.LinkedPool
		if p, perr := e.poolOf(arbitration.RoleDefender, dpOwner, false); perr == nil {
			p.mu.Lock()
			defer p.mu.Unlock()
			dp = p
			draw = poolDraw(&entry.subject, &p.pool, dpOwner)
		}
	}

	posted, ok := safemath.Add64(entry.subject.AvailableBond, draw)
	if !ok {
		return OpenDisputeResult{}, fmt.Errorf("posted bond: %w", arbitration.ErrArithmeticOverflow)
	}

	// The demotion edge: an unbacked subject cannot be disputed. It drops
	// to dormant, the challenger keeps their stake, and no round exists.
	if posted == 0 {
		entry.subject.Status = arbitration.SubjectDormant
		seq := e.nextSeq()
		e.log.Debug().Stringer("subject", id).Msg("dispute attempt against unbacked subject, demoted to dormant")
		e.export([]Snapshot{entry.subjectSnapshot(seq)})
		return OpenDisputeResult{DisputeOpened: false, Subject: copySubject(&entry.subject)}, nil
	}

	cp, err := e.poolOf(arbitration.RoleChallenger, challenger, false)
	if err != nil {
		return OpenDisputeResult{}, err
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if min := e.cfg.Reputation.MinimumBond(cp.pool.Reputation); stake < min {
		return OpenDisputeResult{}, fmt.Errorf("%w: stake %d below minimum bond %d", arbitration.ErrInsufficientStake, stake, min)
	}
	if cp.pool.Balance < stake {
		return OpenDisputeResult{}, fmt.Errorf("%w: %s pool holds %d, need %d",
			arbitration.ErrInsufficientBalance, cp.pool.Role, cp.pool.Balance, stake)
	}
	escrowed, ok := safemath.Add64(stake, posted)
	if !ok {
		return OpenDisputeResult{}, fmt.Errorf("escrow round funds: %w", arbitration.ErrArithmeticOverflow)
	}
	balance, ok := safemath.Add64(entry.escrow.Balance, escrowed)
	if !ok {
		return OpenDisputeResult{}, fmt.Errorf("escrow balance: %w", arbitration.ErrArithmeticOverflow)
	}

	// Every precondition has passed; from here the action applies whole.
	var snaps []Snapshot
	if err := debit(cp, stake); err != nil {
		return OpenDisputeResult{}, err
	}
	if dp != nil && draw > 0 {
		if err := debit(dp, draw); err != nil {
			return OpenDisputeResult{}, err
		}
		entry.subject.AddBacking(dpOwner, draw, arbitration.BondPool)
		entry.subject.AvailableBond += draw
		snaps = append(snaps, poolSnapshot(dp, 0))
	}

	atRisk := posted
	if entry.subject.MatchMode && stake < posted {
		atRisk = stake
	}

	round := entry.subject.Round
	d := &arbitration.Dispute{
		Subject:         id,
		Round:           round,
		Phase:           arbitration.PhasePending,
		TotalStake:      stake,
		BondAtRisk:      atRisk,
		SafeBond:        posted - atRisk,
		ChallengerCount: 1,
		DefenderCount:   entry.subject.DefenderCount,
		VotingStartsAt:  now,
		VotingEndsAt:    now.Add(entry.subject.VotingPeriod),
	}

	// Snapshot the backers into defender records for this round; their
	// bond lives in escrow from here until they claim.
	for _, b := range entry.subject.Backers {
		entry.defenders[recordKey{Owner: b.Defender, Round: round}] = &arbitration.DefenderRecord{
			Subject:  id,
			Defender: b.Defender,
			Round:    round,
			Bond:     b.Amount,
			Source:   b.Source,
		}
	}
	entry.challengers[recordKey{Owner: challenger, Round: round}] = &arbitration.ChallengerRecord{
		Subject:    id,
		Challenger: challenger,
		Round:      round,
		Stake:      stake,
		DetailsCID: detailsCID,
	}

	entry.escrow.Balance = balance
	backers := append([]arbitration.Backing(nil), entry.subject.Backers...)
	entry.subject.ClearBacking()
	entry.subject.DefenderCount = d.DefenderCount
	entry.subject.Status = arbitration.SubjectDisputed
	entry.dispute = d

	seq := e.nextSeq()
	for i := range snaps {
		snaps[i].Seq = seq
	}
	snaps = append(snaps,
		entry.subjectSnapshot(seq),
		entry.disputeSnapshot(seq),
		entry.escrowSnapshot(seq),
		poolSnapshot(cp, seq),
		recordSnapshot(arbitration.RoleChallenger, id, challenger, round, seq, entry.challengers[recordKey{Owner: challenger, Round: round}]),
	)
	for _, b := range backers {
		snaps = append(snaps, recordSnapshot(arbitration.RoleDefender, id, b.Defender, round, seq, entry.defenders[recordKey{Owner: b.Defender, Round: round}]))
	}

	e.log.Info().Stringer("subject", id).Uint32("round", round).
		Stringer("challenger", challenger).Uint64("stake", stake).
		Uint64("bondAtRisk", atRisk).Uint64("safeBond", posted-atRisk).
		Time("votingEndsAt", d.VotingEndsAt).Msg("dispute opened")
	e.export(snaps)
	return OpenDisputeResult{DisputeOpened: true, Subject: copySubject(&entry.subject), Dispute: *d}, nil
}

// poolDraw is how much a linked defender pool lends when a round opens:
// up to its max bond per subject, less what it already backs, bounded by
// its balance. Caller holds both locks.
func poolDraw(s *arbitration.Subject, p *arbitration.StakePool, owner arbitration.Address) uint64 {
	if p.MaxBond == 0 || p.Balance == 0 {
		return 0
	}
	existing := poolBackingOf(s, owner)
	if existing >= p.MaxBond {
		return 0
	}
	draw := p.MaxBond - existing
	if draw > p.Balance {
		draw = p.Balance
	}
	return draw
}

// JoinDispute adds co-challenger stake to the pending round. A challenger
// joining twice merges stake into their existing record.
func (e *Engine) JoinDispute(challenger arbitration.Address, id arbitration.SubjectID, stake uint64, detailsCID string) (arbitration.Dispute, error) {
	if stake == 0 {
		return arbitration.Dispute{}, fmt.Errorf("%w: zero stake", arbitration.ErrInvalidArgument)
	}
	if detailsCID != "" {
		if err := evidence.ValidateCID(detailsCID); err != nil {
			return arbitration.Dispute{}, fmt.Errorf("%w: %v", arbitration.ErrInvalidArgument, err)
		}
	}
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.Dispute{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	d := entry.dispute
	if d == nil || d.IsRestore {
		return arbitration.Dispute{}, fmt.Errorf("%w: no joinable dispute for subject %s", arbitration.ErrInvalidState, id)
	}
	now := e.now()
	if err := d.AcceptingStake(now); err != nil {
		return arbitration.Dispute{}, err
	}

	cp, err := e.poolOf(arbitration.RoleChallenger, challenger, false)
	if err != nil {
		return arbitration.Dispute{}, err
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()

	total, ok := safemath.Add64(d.TotalStake, stake)
	if !ok {
		return arbitration.Dispute{}, fmt.Errorf("total stake: %w", arbitration.ErrArithmeticOverflow)
	}
	balance, ok := safemath.Add64(entry.escrow.Balance, stake)
	if !ok {
		return arbitration.Dispute{}, fmt.Errorf("escrow balance: %w", arbitration.ErrArithmeticOverflow)
	}
	if err := debit(cp, stake); err != nil {
		return arbitration.Dispute{}, err
	}

	key := recordKey{Owner: challenger, Round: d.Round}
	rec, exists := entry.challengers[key]
	if exists {
		rec.Stake += stake
		if detailsCID != "" {
			rec.DetailsCID = detailsCID
		}
	} else {
		rec = &arbitration.ChallengerRecord{
			Subject:    id,
			Challenger: challenger,
			Round:      d.Round,
			Stake:      stake,
			DetailsCID: detailsCID,
		}
		entry.challengers[key] = rec
		d.ChallengerCount++
	}

	d.TotalStake = total
	entry.escrow.Balance = balance

	// In match mode the at-risk bond tracks the growing stake.
	if entry.subject.MatchMode {
		posted := d.BondAtRisk + d.SafeBond
		atRisk := posted
		if d.TotalStake < posted {
			atRisk = d.TotalStake
		}
		d.BondAtRisk = atRisk
		d.SafeBond = posted - atRisk
	}

	seq := e.nextSeq()
	snaps := []Snapshot{
		entry.disputeSnapshot(seq),
		entry.escrowSnapshot(seq),
		poolSnapshot(cp, seq),
		recordSnapshot(arbitration.RoleChallenger, id, challenger, d.Round, seq, rec),
	}

	e.log.Debug().Stringer("subject", id).Uint32("round", d.Round).
		Stringer("challenger", challenger).Uint64("stake", stake).Msg("challenger joined dispute")
	e.export(snaps)
	return *d, nil
}

// OpenRestoration opens a restoration round against an invalid subject.
// The restorer must stake at least the risk pool of the round that
// invalidated the subject, and the voting window is stretched by the
// restoration multiplier.
func (e *Engine) OpenRestoration(restorer arbitration.Address, id arbitration.SubjectID, stake uint64) (arbitration.Dispute, error) {
	if stake == 0 {
		return arbitration.Dispute{}, fmt.Errorf("%w: zero stake", arbitration.ErrInvalidArgument)
	}
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.Dispute{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.subject.Status.Restorable() {
		return arbitration.Dispute{}, fmt.Errorf("%w: subject is %s", arbitration.ErrInvalidState, entry.subject.Status)
	}
	if stake < entry.subject.LastDisputeTotal {
		return arbitration.Dispute{}, fmt.Errorf("%w: restoration stake %d below prior round total %d",
			arbitration.ErrInsufficientStake, stake, entry.subject.LastDisputeTotal)
	}

	cp, err := e.poolOf(arbitration.RoleChallenger, restorer, false)
	if err != nil {
		return arbitration.Dispute{}, err
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()

	balance, ok := safemath.Add64(entry.escrow.Balance, stake)
	if !ok {
		return arbitration.Dispute{}, fmt.Errorf("escrow balance: %w", arbitration.ErrArithmeticOverflow)
	}
	if err := debit(cp, stake); err != nil {
		return arbitration.Dispute{}, err
	}

	now := e.now()
	round := entry.subject.Round
	window := entry.subject.VotingPeriod * time.Duration(e.cfg.RestoreVotingMultiplier)
	d := &arbitration.Dispute{
		Subject:         id,
		Round:           round,
		Phase:           arbitration.PhasePending,
		IsRestore:       true,
		Restorer:        restorer,
		RestoreStake:    stake,
		ChallengerCount: 1,
		VotingStartsAt:  now,
		VotingEndsAt:    now.Add(window),
	}
	rec := &arbitration.ChallengerRecord{
		Subject:    id,
		Challenger: restorer,
		Round:      round,
		Stake:      stake,
	}
	entry.challengers[recordKey{Owner: restorer, Round: round}] = rec
	entry.escrow.Balance = balance
	entry.subject.Status = arbitration.SubjectRestoring
	entry.dispute = d

	seq := e.nextSeq()
	snaps := []Snapshot{
		entry.subjectSnapshot(seq),
		entry.disputeSnapshot(seq),
		entry.escrowSnapshot(seq),
		poolSnapshot(cp, seq),
		recordSnapshot(arbitration.RoleChallenger, id, restorer, round, seq, rec),
	}

	e.log.Info().Stringer("subject", id).Uint32("round", round).
		Stringer("restorer", restorer).Uint64("stake", stake).
		Time("votingEndsAt", d.VotingEndsAt).Msg("restoration opened")
	e.export(snaps)
	return *d, nil
}

// CastVote submits a juror's one initial vote for the pending round. The
// stake is debited from the juror pool and becomes the vote's weight.
func (e *Engine) CastVote(juror arbitration.Address, id arbitration.SubjectID, choice arbitration.VoteChoice, stake uint64) (arbitration.JurorRecord, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.JurorRecord{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	d := entry.dispute
	if d == nil || !entry.subject.Status.Contested() {
		return arbitration.JurorRecord{}, fmt.Errorf("%w: no open round for subject %s", arbitration.ErrInvalidState, id)
	}
	now := e.now()
	key := recordKey{Owner: juror, Round: d.Round}
	_, voted := entry.jurors[key]
	if err := voting.ValidateInitialVote(d, voted, choice, stake, now); err != nil {
		return arbitration.JurorRecord{}, err
	}

	jp, err := e.poolOf(arbitration.RoleJuror, juror, false)
	if err != nil {
		return arbitration.JurorRecord{}, err
	}
	jp.mu.Lock()
	defer jp.mu.Unlock()

	balance, ok := safemath.Add64(entry.escrow.Balance, stake)
	if !ok {
		return arbitration.JurorRecord{}, fmt.Errorf("escrow balance: %w", arbitration.ErrArithmeticOverflow)
	}
	if err := debit(jp, stake); err != nil {
		return arbitration.JurorRecord{}, err
	}

	rec := &arbitration.JurorRecord{
		Subject:         id,
		Juror:           juror,
		Round:           d.Round,
		Choice:          choice,
		IsRestore:       d.IsRestore,
		VotingPower:     stake,
		StakeAllocation: stake,
		VotedAt:         now,
	}
	entry.jurors[key] = rec
	entry.escrow.Balance = balance
	if err := d.RecordVote(choice, stake, true); err != nil {
		// Choice was validated above; this cannot fire.
		return arbitration.JurorRecord{}, err
	}

	seq := e.nextSeq()
	snaps := []Snapshot{
		entry.disputeSnapshot(seq),
		entry.escrowSnapshot(seq),
		poolSnapshot(jp, seq),
		recordSnapshot(arbitration.RoleJuror, id, juror, d.Round, seq, rec),
	}

	e.log.Debug().Stringer("subject", id).Uint32("round", d.Round).
		Stringer("juror", juror).Stringer("choice", choice).Uint64("weight", stake).Msg("vote cast")
	e.export(snaps)
	return *rec, nil
}

// AddToVote raises the stake behind the juror's existing vote. The choice
// cannot change; the added stake raises voting power one to one.
func (e *Engine) AddToVote(juror arbitration.Address, id arbitration.SubjectID, stake uint64) (arbitration.JurorRecord, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return arbitration.JurorRecord{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	d := entry.dispute
	if d == nil || !entry.subject.Status.Contested() {
		return arbitration.JurorRecord{}, fmt.Errorf("%w: no open round for subject %s", arbitration.ErrInvalidState, id)
	}
	now := e.now()
	rec := entry.jurors[recordKey{Owner: juror, Round: d.Round}]
	var choice arbitration.VoteChoice
	if rec != nil {
		choice = rec.Choice
	}
	if err := voting.ValidateAddedStake(d, rec, choice, stake, now); err != nil {
		return arbitration.JurorRecord{}, err
	}

	jp, err := e.poolOf(arbitration.RoleJuror, juror, false)
	if err != nil {
		return arbitration.JurorRecord{}, err
	}
	jp.mu.Lock()
	defer jp.mu.Unlock()

	power, ok := safemath.Add64(rec.VotingPower, stake)
	if !ok {
		return arbitration.JurorRecord{}, fmt.Errorf("voting power: %w", arbitration.ErrArithmeticOverflow)
	}
	balance, ok := safemath.Add64(entry.escrow.Balance, stake)
	if !ok {
		return arbitration.JurorRecord{}, fmt.Errorf("escrow balance: %w", arbitration.ErrArithmeticOverflow)
	}
	if err := debit(jp, stake); err != nil {
		return arbitration.JurorRecord{}, err
	}

	rec.VotingPower = power
	rec.StakeAllocation += stake
	entry.escrow.Balance = balance
	if err := d.RecordVote(rec.Choice, stake, false); err != nil {
		return arbitration.JurorRecord{}, err
	}

	seq := e.nextSeq()
	snaps := []Snapshot{
		entry.disputeSnapshot(seq),
		entry.escrowSnapshot(seq),
		poolSnapshot(jp, seq),
		recordSnapshot(arbitration.RoleJuror, id, juror, d.Round, seq, rec),
	}

	e.log.Debug().Stringer("subject", id).Uint32("round", d.Round).
		Stringer("juror", juror).Uint64("added", stake).Uint64("power", rec.VotingPower).Msg("vote stake added")
	e.export(snaps)
	return *rec, nil
}

// ResolveResult is a resolved round's settlement plus the subject state it
// left behind.
type ResolveResult struct {
	Result  arbitration.RoundResult
	Subject arbitration.Subject
}

// Resolve settles the pending round once its voting window has passed. It
// computes the outcome from the final tallies, writes the immutable round
// result into the escrow, advances the subject status, bumps the round
// counter and applies reputation deltas to every participant of the
// round. Resolving an already-resolved round fails without touching
// anything.
func (e *Engine) Resolve(id arbitration.SubjectID) (ResolveResult, error) {
	entry, err := e.entryOf(id)
	if err != nil {
		return ResolveResult{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	d := entry.dispute
	if d == nil {
		return ResolveResult{}, fmt.Errorf("%w: no dispute for subject %s", arbitration.ErrInvalidState, id)
	}
	now := e.now()
	if err := d.Resolvable(now); err != nil {
		return ResolveResult{}, err
	}
	if _, done := entry.escrow.Result(d.Round); done {
		return ResolveResult{}, fmt.Errorf("%w: round %d already settled", arbitration.ErrInvalidState, d.Round)
	}

	outcome := voting.ComputeOutcome(d.VotesForChallenger, d.VotesForDefender)
	winning := voting.WinningWeight(outcome, d.VotesForChallenger, d.VotesForDefender)
	result, err := escrow.Compute(e.cfg.Escrow, d, outcome, winning, now)
	if err != nil {
		return ResolveResult{}, err
	}
	newStatus, err := arbitration.StatusAfterResolution(outcome, d.IsRestore)
	if err != nil {
		return ResolveResult{}, err
	}

	// The treasury share leaves the escrow at settlement; everything else
	// waits for per-participant claims.
	if entry.escrow.Balance < result.TreasuryPool {
		return ResolveResult{}, fmt.Errorf("escrow balance %d below treasury share %d: %w",
			entry.escrow.Balance, result.TreasuryPool, arbitration.ErrArithmeticOverflow)
	}
	entry.escrow.Balance -= result.TreasuryPool
	e.treasury.Add(result.TreasuryPool)
	entry.escrow.Rounds = append(entry.escrow.Rounds, result)

	d.Phase = arbitration.PhaseResolved
	d.Outcome = outcome
	d.ResolvedAt = now
	entry.subject.Status = newStatus
	entry.subject.Round++
	entry.subject.LastDisputeTotal = result.RiskPool()

	seq := e.nextSeq()
	snaps := e.applyReputation(entry, d, outcome, seq)
	snaps = append(snaps,
		entry.subjectSnapshot(seq),
		entry.disputeSnapshot(seq),
		entry.escrowSnapshot(seq),
	)

	e.log.Info().Stringer("subject", id).Uint32("round", result.Round).
		Stringer("outcome", outcome).Uint64("winnerPool", result.WinnerPool).
		Uint64("jurorPool", result.JurorPool).Uint64("treasuryPool", result.TreasuryPool).
		Uint64("safeBond", result.SafeBond).Msg("round resolved")
	e.export(snaps)
	return ResolveResult{Result: result, Subject: copySubject(&entry.subject)}, nil
}

// applyReputation nudges every participant's pool score by the round's
// outcome. Unvoted rounds adjust nobody. Caller holds the entry lock and
// has already advanced the dispute to resolved.
func (e *Engine) applyReputation(entry *subjectEntry, d *arbitration.Dispute, outcome arbitration.Outcome, seq uint64) []Snapshot {
	if outcome == arbitration.OutcomeNoParticipation {
		return nil
	}
	var snaps []Snapshot

	adjust := func(role arbitration.StakeRole, owner arbitration.Address, won bool) {
		p, err := e.poolOf(role, owner, true)
		if err != nil {
			return
		}
		p.mu.Lock()
		if won {
			p.pool.Reputation = e.cfg.Reputation.OnWin(p.pool.Reputation)
		} else {
			p.pool.Reputation = e.cfg.Reputation.OnLoss(p.pool.Reputation)
		}
		snaps = append(snaps, poolSnapshot(p, seq))
		p.mu.Unlock()
	}

	challengerWon := outcome == arbitration.OutcomeChallengerWins
	for key, rec := range entry.jurors {
		if key.Round != d.Round {
			continue
		}
		adjust(arbitration.RoleJuror, rec.Juror, rec.Choice.Matches(outcome))
	}
	for key, rec := range entry.challengers {
		if key.Round != d.Round {
			continue
		}
		adjust(arbitration.RoleChallenger, rec.Challenger, challengerWon)
	}
	for key, rec := range entry.defenders {
		if key.Round != d.Round {
			continue
		}
		adjust(arbitration.RoleDefender, rec.Defender, !challengerWon)
	}
	return snaps
}
