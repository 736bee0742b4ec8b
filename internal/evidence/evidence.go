// Package evidence handles the content identifiers that challengers attach
// to disputes. The engine never interprets evidence; it validates the
// reference and stores it on the challenger record. Blobs live in an
// external content store addressed by CIDv1.
package evidence

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	ErrNotFound   = errors.New("no content for cid")
	ErrInvalidCID = errors.New("invalid content identifier")
)

// DeriveCID returns the CIDv1 string for a blob, using the raw multicodec
// and a sha2-256 multihash.
func DeriveCID(data []byte) (string, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// ValidateCID strict-decodes a content identifier reference. Only CIDv1 is
// accepted; v0 identifiers are ambiguous about their encoding and the
// mirror needs a canonical string form.
func ValidateCID(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCID)
	}
	c, err := cid.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	if c.Version() != 1 {
		return fmt.Errorf("%w: version %d, want CIDv1", ErrInvalidCID, c.Version())
	}
	return nil
}

// ContentStore is the external blob store the wallet layer uploads evidence
// to before submitting a dispute. The engine only ever checks references
// against it.
type ContentStore interface {
	// Put stores a blob and returns its CIDv1 string.
	Put(data []byte) (string, error)
	// Get returns the blob for a CID, or ErrNotFound.
	Get(cidStr string) ([]byte, error)
}

// MemStore is an in-memory ContentStore for tests and the replay binary.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

func (m *MemStore) Put(data []byte) (string, error) {
	c, err := DeriveCID(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.blobs[c] = buf
	return c, nil
}

func (m *MemStore) Get(cidStr string) ([]byte, error) {
	if err := ValidateCID(cidStr); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[cidStr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cidStr)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}
