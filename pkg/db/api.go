// Package db defines the key-value storage contract the read-model mirror
// writes snapshots through. Implementations must make Batch commits atomic;
// the mirror pairs every payload write with its sequence cell and relies on
// the two landing together.
package db

// KVStore is a byte-oriented store with atomic batches and range iteration.
type KVStore interface {
	Writer
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	NewBatch() Batch
	NewIterator(start, end []byte) (Iterator, error)
	Close() error
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// Batch collects writes that commit atomically or not at all.
type Batch interface {
	Writer
	Delete(key []byte) error
	Commit() error
	Close() error
}

// Iterator walks a key range in ascending order. Close after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close() error
}
