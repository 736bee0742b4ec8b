// gavel replays a journal of arbitration actions through the ledger engine
// and mirrors the resulting state into a pebble-backed read model. Each
// journal line is one JSON action envelope; entries carry their own
// timestamps so a replay is deterministic regardless of wall-clock time.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/gavelproto/gavel/internal/arbitration"
	"github.com/gavelproto/gavel/internal/evidence"
	"github.com/gavelproto/gavel/internal/ledger"
	"github.com/gavelproto/gavel/internal/mirror"
	"github.com/gavelproto/gavel/pkg/db/pebble"
	"github.com/gavelproto/gavel/pkg/log"
)

// entry is one journal line. Fields are a union over all actions; each
// action reads the ones it needs.
type entry struct {
	ID     uuid.UUID `json:"id"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`

	Creator    string `json:"creator,omitempty"`
	Owner      string `json:"owner,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Nonce      string `json:"nonce,omitempty"`
	Role       string `json:"role,omitempty"`
	Source     string `json:"source,omitempty"`
	Choice     string `json:"choice,omitempty"`
	Amount     uint64 `json:"amount,omitempty"`
	Round      uint32 `json:"round,omitempty"`
	VotingSecs uint64 `json:"votingPeriodSeconds,omitempty"`
	MatchMode  bool   `json:"matchMode,omitempty"`
	DetailsCID string `json:"detailsCid,omitempty"`
	Evidence   string `json:"evidence,omitempty"`
}

// journalClock feeds the engine the timestamp of the entry being applied,
// so time gates replay exactly as they happened.
type journalClock struct {
	now time.Time
}

func (c *journalClock) Now() time.Time {
	return c.now
}

// mirrorExporter forwards engine snapshots into the read model. Stale
// rejections only happen on re-replay over an existing data dir; they are
// logged and skipped.
type mirrorExporter struct {
	m *mirror.Mirror
}

func (x mirrorExporter) Export(snaps []ledger.Snapshot) {
	for _, s := range snaps {
		if err := x.m.Apply(s.Kind, s.Key, s.Seq, s.Data); err != nil {
			log.Mirror.Warn().Err(err).Str("kind", s.Kind).Msg("snapshot not applied")
		}
	}
}

func main() {
	journalPath := flag.String("journal", "", "path to the JSON-lines action journal")
	dataDir := flag.String("datadir", "", "pebble data directory for the read model (in-memory when empty)")
	logLevel := flag.String("loglevel", "info", "log level: trace, debug, info, warn, error")
	logFormat := flag.String("logformat", "console", "log format: console or json")
	flag.Parse()

	level, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	logType := log.ConsoleLogger
	if *logFormat == "json" {
		logType = log.JSONLogger
	}
	log.Init(log.Options{LogLevel: level, Type: logType})

	if *journalPath == "" {
		fmt.Fprintln(os.Stderr, "usage: gavel -journal actions.jsonl [-datadir ./gavel-data]")
		os.Exit(2)
	}

	var kv *pebble.KVStore
	if *dataDir == "" {
		kv, err = pebble.NewKVStore()
	} else {
		kv, err = pebble.NewDiskStore(*dataDir)
	}
	if err != nil {
		log.Root.Fatal().Err(err).Msg("open read-model store")
	}
	defer kv.Close()

	m := mirror.New(kv)
	defer m.Close()

	clock := &journalClock{now: time.Now()}
	cfg := ledger.DefaultConfig()
	cfg.Clock = clock.Now
	cfg.Logger = log.Ledger

	engine, err := ledger.New(cfg, mirrorExporter{m: m})
	if err != nil {
		log.Root.Fatal().Err(err).Msg("build engine")
	}

	blobs := evidence.NewMemStore()

	file, err := os.Open(*journalPath)
	if err != nil {
		log.Root.Fatal().Err(err).Msg("open journal")
	}
	defer file.Close()

	applied, rejected := 0, 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var en entry
		if err := json.Unmarshal(raw, &en); err != nil {
			log.Root.Error().Err(err).Int("line", line).Msg("malformed journal entry")
			rejected++
			continue
		}
		if !en.At.IsZero() {
			clock.now = en.At
		}
		if err := apply(engine, blobs, &en); err != nil {
			log.Ledger.Debug().Err(err).Int("line", line).Str("action", en.Action).
				Stringer("entry", en.ID).Msg("action rejected")
			rejected++
			continue
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		log.Root.Fatal().Err(err).Msg("read journal")
	}

	log.Root.Info().
		Int("applied", applied).
		Int("rejected", rejected).
		Uint64("sequence", engine.Sequence()).
		Uint64("treasury", engine.Treasury()).
		Msg("journal replay complete")

	for _, kind := range []string{mirror.KindSubject, mirror.KindDispute, mirror.KindEscrow, mirror.KindPool} {
		items, err := m.List(kind)
		if err != nil {
			log.Mirror.Error().Err(err).Str("kind", kind).Msg("list read model")
			continue
		}
		log.Mirror.Info().Str("kind", kind).Int("count", len(items)).Msg("read-model entities")
	}
}

func apply(engine *ledger.Engine, blobs *evidence.MemStore, en *entry) error {
	switch en.Action {
	case "register-subject":
		creator, err := arbitration.AddressFromHex(en.Creator)
		if err != nil {
			return err
		}
		nonce, err := uuid.Parse(en.Nonce)
		if err != nil {
			return fmt.Errorf("parse nonce: %w", err)
		}
		source, err := parseSource(en.Source)
		if err != nil {
			return err
		}
		_, err = engine.RegisterSubject(creator, nonce, time.Duration(en.VotingSecs)*time.Second, en.MatchMode, en.Amount, source)
		return err

	case "post-bond", "withdraw-bond":
		owner, err := arbitration.AddressFromHex(en.Owner)
		if err != nil {
			return err
		}
		id, err := arbitration.SubjectIDFromHex(en.Subject)
		if err != nil {
			return err
		}
		source, err := parseSource(en.Source)
		if err != nil {
			return err
		}
		if en.Action == "post-bond" {
			_, err = engine.PostBond(owner, id, en.Amount, source)
		} else {
			_, err = engine.WithdrawBond(owner, id, en.Amount, source)
		}
		return err

	case "link-pool", "unlink-pool":
		owner, err := arbitration.AddressFromHex(en.Owner)
		if err != nil {
			return err
		}
		id, err := arbitration.SubjectIDFromHex(en.Subject)
		if err != nil {
			return err
		}
		if en.Action == "link-pool" {
			_, err = engine.LinkDefenderPool(owner, id)
		} else {
			_, err = engine.UnlinkDefenderPool(owner, id)
		}
		return err

	case "set-max-bond":
		owner, err := arbitration.AddressFromHex(en.Owner)
		if err != nil {
			return err
		}
		_, err = engine.SetDefenderMaxBond(owner, en.Amount)
		return err

	case "deposit", "withdraw":
		owner, err := arbitration.AddressFromHex(en.Owner)
		if err != nil {
			return err
		}
		role, err := parseRole(en.Role)
		if err != nil {
			return err
		}
		if en.Action == "deposit" {
			_, err = engine.Deposit(role, owner, en.Amount)
		} else {
			_, err = engine.Withdraw(role, owner, en.Amount)
		}
		return err

	case "open-dispute", "join-dispute":
		owner, err := arbitration.AddressFromHex(en.Owner)
		if err != nil {
			return err
		}
		id, err := arbitration.SubjectIDFromHex(en.Subject)
		if err != nil {
			return err
		}
		cid := en.DetailsCID
		if en.Evidence != "" {
			if cid, err = blobs.Put([]byte(en.Evidence)); err != nil {
				return err
			}
		}
		if en.Action == "open-dispute" {
			_, err = engine.OpenDispute(owner, id, en.Amount, cid)
		} else {
			_, err = engine.JoinDispute(owner, id, en.Amount, cid)
		}
		return err

	case "open-restoration":
		owner, err := arbitration.AddressFromHex(en.Owner)
		if err != nil {
			return err
		}
		id, err := arbitration.SubjectIDFromHex(en.Subject)
		if err != nil {
			return err
		}
		_, err = engine.OpenRestoration(owner, id, en.Amount)
		return err

	case "cast-vote":
		owner, err := arbitration.AddressFromHex(en.Owner)
		if err != nil {
			return err
		}
		id, err := arbitration.SubjectIDFromHex(en.Subject)
		if err != nil {
			return err
		}
		var choice arbitration.VoteChoice
		if err := choice.UnmarshalText([]byte(en.Choice)); err != nil {
			return err
		}
		_, err = engine.CastVote(owner, id, choice, en.Amount)
		return err

	case "add-to-vote":
		owner, err := arbitration.AddressFromHex(en.Owner)
		if err != nil {
			return err
		}
		id, err := arbitration.SubjectIDFromHex(en.Subject)
		if err != nil {
			return err
		}
		_, err = engine.AddToVote(owner, id, en.Amount)
		return err

	case "resolve":
		id, err := arbitration.SubjectIDFromHex(en.Subject)
		if err != nil {
			return err
		}
		_, err = engine.Resolve(id)
		return err

	case "claim-juror-reward", "unlock-juror-stake", "claim-challenger-reward",
		"claim-defender-reward", "close-juror-record", "close-challenger-record",
		"close-defender-record":
		owner, err := arbitration.AddressFromHex(en.Owner)
		if err != nil {
			return err
		}
		id, err := arbitration.SubjectIDFromHex(en.Subject)
		if err != nil {
			return err
		}
		switch en.Action {
		case "claim-juror-reward":
			_, err = engine.ClaimJurorReward(owner, id, en.Round)
		case "unlock-juror-stake":
			_, err = engine.UnlockJurorStake(owner, id, en.Round)
		case "claim-challenger-reward":
			_, err = engine.ClaimChallengerReward(owner, id, en.Round)
		case "claim-defender-reward":
			_, err = engine.ClaimDefenderReward(owner, id, en.Round)
		case "close-juror-record":
			_, err = engine.CloseJurorRecord(owner, id, en.Round)
		case "close-challenger-record":
			_, err = engine.CloseChallengerRecord(owner, id, en.Round)
		case "close-defender-record":
			_, err = engine.CloseDefenderRecord(owner, id, en.Round)
		}
		return err

	case "claim-all", "unlock-all", "close-all":
		owner, err := arbitration.AddressFromHex(en.Owner)
		if err != nil {
			return err
		}
		var results []ledger.ItemResult
		switch en.Action {
		case "claim-all":
			results = engine.ClaimAll(owner)
		case "unlock-all":
			results = engine.UnlockAll(owner)
		case "close-all":
			results = engine.CloseAll(owner)
		}
		for _, r := range results {
			if r.Err != nil {
				log.Ledger.Debug().Err(r.Err).Stringer("subject", r.Subject).
					Uint32("round", r.Round).Stringer("role", r.Role).Msg("batch item skipped")
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: action %q", arbitration.ErrInvalidArgument, en.Action)
	}
}

func parseRole(s string) (arbitration.StakeRole, error) {
	var role arbitration.StakeRole
	if err := role.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return role, nil
}

func parseSource(s string) (arbitration.BondSource, error) {
	if s == "" {
		return arbitration.BondDirect, nil
	}
	var source arbitration.BondSource
	if err := source.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return source, nil
}
