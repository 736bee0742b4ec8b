package evidence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveCID(t *testing.T) {
	c1, err := DeriveCID([]byte("the listing misstates the delivery terms"))
	require.NoError(t, err)
	require.NoError(t, ValidateCID(c1))

	// Derivation is deterministic, distinct content gives distinct ids.
	c2, err := DeriveCID([]byte("the listing misstates the delivery terms"))
	require.NoError(t, err)
	require.Equal(t, c1, c2)

	c3, err := DeriveCID([]byte("different rationale"))
	require.NoError(t, err)
	require.NotEqual(t, c1, c3)
}

func TestValidateCID(t *testing.T) {
	require.ErrorIs(t, ValidateCID(""), ErrInvalidCID)
	require.ErrorIs(t, ValidateCID("not-a-cid"), ErrInvalidCID)
	// CIDv0 (bare base58 multihash) is rejected.
	require.ErrorIs(t, ValidateCID("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"), ErrInvalidCID)
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()

	c, err := s.Put([]byte("evidence blob"))
	require.NoError(t, err)

	got, err := s.Get(c)
	require.NoError(t, err)
	require.Equal(t, []byte("evidence blob"), got)

	missing, err := DeriveCID([]byte("never stored"))
	require.NoError(t, err)
	_, err = s.Get(missing)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get("junk")
	require.ErrorIs(t, err, ErrInvalidCID)
}
