package arbitration

import (
	"encoding/binary"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Seed tags keep the derivation domains disjoint.
const (
	seedSubject          = "gavel:subject"
	seedJurorRecord      = "gavel:juror-record"
	seedChallengerRecord = "gavel:challenger-record"
	seedDefenderRecord   = "gavel:defender-record"
	seedEscrow           = "gavel:escrow"
	seedPool             = "gavel:pool"
)

// DeriveSubjectID derives a subject id from its creator and a registration
// nonce. Registration with the same (creator, nonce) pair always names the
// same subject, which makes the action idempotent for the wallet layer.
func DeriveSubjectID(creator Address, nonce uuid.UUID) SubjectID {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(seedSubject))
	h.Write(creator[:])
	h.Write(nonce[:])
	var id SubjectID
	copy(id[:], h.Sum(nil))
	return id
}

// RecordKey orders a participant record inside the engine and the mirror.
type RecordKey struct {
	Subject SubjectID
	Owner   Address
	Round   Round
}

// DeriveRecordAddress derives the stable storage address of a participant
// record. The mirror keys record snapshots by it.
func DeriveRecordAddress(role StakeRole, key RecordKey) Address {
	var seed string
	switch role {
	case RoleJuror:
		seed = seedJurorRecord
	case RoleChallenger:
		seed = seedChallengerRecord
	case RoleDefender:
		seed = seedDefenderRecord
	default:
		seed = seedPool
	}

	var round [4]byte
	binary.LittleEndian.PutUint32(round[:], key.Round)

	h, _ := blake2b.New256(nil)
	h.Write([]byte(seed))
	h.Write(key.Subject[:])
	h.Write(key.Owner[:])
	h.Write(round[:])
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// DeriveEscrowAddress derives the storage address of a subject's escrow.
func DeriveEscrowAddress(subject SubjectID) Address {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(seedEscrow))
	h.Write(subject[:])
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// DerivePoolAddress derives the storage address of an owner's role pool.
func DerivePoolAddress(role StakeRole, owner Address) Address {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(seedPool))
	h.Write([]byte{byte(role)})
	h.Write(owner[:])
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}
