// Package mirror maintains the read-model copy of engine state in a
// key-value store. Every snapshot carries the ledger sequence number it was
// produced at; the mirror applies a snapshot only if that sequence is
// strictly newer than the stored one, so replayed or out-of-order feeds can
// never roll the read model backwards.
package mirror

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gavelproto/gavel/pkg/db"
	"github.com/gavelproto/gavel/pkg/db/pebble"
)

var (
	ErrClosed      = errors.New("mirror is closed")
	ErrNotFound    = errors.New("snapshot not found")
	ErrStale       = errors.New("stale snapshot sequence")
	ErrUnknownKind = errors.New("unknown snapshot kind")
)

// Snapshot kinds the engine exports. Each maps to its own key prefix.
const (
	KindSubject          = "subject"
	KindDispute          = "dispute"
	KindEscrow           = "escrow"
	KindJurorRecord      = "juror-record"
	KindChallengerRecord = "challenger-record"
	KindDefenderRecord   = "defender-record"
	KindPool             = "pool"
)

const (
	prefixSubject byte = iota + 1
	prefixDispute
	prefixEscrow
	prefixJurorRecord
	prefixChallengerRecord
	prefixDefenderRecord
	prefixPool
	// prefixSeq namespaces the per-entity sequence cells away from payloads.
	prefixSeq byte = 0x80
)

func kindPrefix(kind string) (byte, error) {
	switch kind {
	case KindSubject:
		return prefixSubject, nil
	case KindDispute:
		return prefixDispute, nil
	case KindEscrow:
		return prefixEscrow, nil
	case KindJurorRecord:
		return prefixJurorRecord, nil
	case KindChallengerRecord:
		return prefixChallengerRecord, nil
	case KindDefenderRecord:
		return prefixDefenderRecord, nil
	case KindPool:
		return prefixPool, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func payloadKey(prefix byte, key []byte) []byte {
	out := make([]byte, 0, 1+len(key))
	out = append(out, prefix)
	return append(out, key...)
}

func seqKey(prefix byte, key []byte) []byte {
	out := make([]byte, 0, 2+len(key))
	out = append(out, prefixSeq, prefix)
	return append(out, key...)
}

// Mirror is the seq-gated read model. A single writer (the engine's export
// feed) is assumed per key; concurrent readers are fine.
type Mirror struct {
	db     db.KVStore
	closed atomic.Bool
}

func New(kv db.KVStore) *Mirror {
	return &Mirror{db: kv}
}

// Apply upserts one entity snapshot. The write is atomic: the sequence cell
// and the payload cell go through a single batch, so readers never observe
// a payload without its sequence. Snapshots at or below the stored sequence
// are rejected with ErrStale.
func (m *Mirror) Apply(kind string, key []byte, seq uint64, payload []byte) error {
	if m.closed.Load() {
		return ErrClosed
	}
	prefix, err := kindPrefix(kind)
	if err != nil {
		return err
	}

	stored, err := m.storedSeq(prefix, key)
	if err != nil {
		return err
	}
	if seq <= stored {
		return fmt.Errorf("%w: incoming %d, stored %d", ErrStale, seq, stored)
	}

	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)

	batch := m.db.NewBatch()
	defer batch.Close()

	if err := batch.Put(seqKey(prefix, key), seqBytes[:]); err != nil {
		return fmt.Errorf("store sequence: %w", err)
	}
	if err := batch.Put(payloadKey(prefix, key), payload); err != nil {
		return fmt.Errorf("store payload: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Get returns the stored payload and its sequence for one entity.
func (m *Mirror) Get(kind string, key []byte) ([]byte, uint64, error) {
	if m.closed.Load() {
		return nil, 0, ErrClosed
	}
	prefix, err := kindPrefix(kind)
	if err != nil {
		return nil, 0, err
	}

	payload, err := m.db.Get(payloadKey(prefix, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, 0, fmt.Errorf("%w: %s %x", ErrNotFound, kind, key)
		}
		return nil, 0, fmt.Errorf("get payload: %w", err)
	}
	seq, err := m.storedSeq(prefix, key)
	if err != nil {
		return nil, 0, err
	}
	return payload, seq, nil
}

// Seq returns the stored sequence for one entity, zero if never written.
func (m *Mirror) Seq(kind string, key []byte) (uint64, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	prefix, err := kindPrefix(kind)
	if err != nil {
		return 0, err
	}
	return m.storedSeq(prefix, key)
}

// List iterates every stored payload of one kind.
func (m *Mirror) List(kind string) ([][]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	prefix, err := kindPrefix(kind)
	if err != nil {
		return nil, err
	}

	iter, err := m.db.NewIterator([]byte{prefix}, []byte{prefix + 1})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer iter.Close()

	var out [][]byte
	for iter.Next() {
		v, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *Mirror) storedSeq(prefix byte, key []byte) (uint64, error) {
	raw, err := m.db.Get(seqKey(prefix, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get sequence: %w", err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt sequence cell: %d bytes", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Close marks the mirror closed. The underlying store is owned by the
// caller and closed separately.
func (m *Mirror) Close() {
	m.closed.Store(true)
}
