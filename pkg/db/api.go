// Package db defines the key-value storage the simulator persists program
// images and run reports in.
package db

// KVStore is an ordered key-value store.
type KVStore interface {
	Writer
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	NewBatch() Batch
	// NewIterator walks keys in [start, end) in ascending order. A nil
	// bound is open.
	NewIterator(start, end []byte) (Iterator, error)
	Close() error
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// Batch groups writes that are committed atomically.
type Batch interface {
	Writer
	Delete(key []byte) error
	Commit() error
	Close() error
}

// Iterator must be closed after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close() error
}

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when there is none.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
