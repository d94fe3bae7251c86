package store

import (
	"errors"
	"fmt"

	"github.com/eigerco/warpsim/pkg/db/pebble"
)

var ErrClosed = errors.New("store is closed")

// Key prefixes. Every key is a prefix byte followed by the record key.
const (
	prefixProgram byte = iota + 1
	prefixRun
)

// PrefixToString names a key prefix for diagnostics.
func PrefixToString(p byte) string {
	switch p {
	case prefixProgram:
		return "program"
	case prefixRun:
		return "run"
	default:
		return "unknown"
	}
}

// makeKey creates a key from a prefix and a record key
func makeKey(prefix byte, key []byte) []byte {
	k := make([]byte, 1+len(key))
	k[0] = prefix
	copy(k[1:], key)
	return k
}

// translate maps kv store errors onto this package's. notFound replaces
// pebble.ErrNotFound.
func translate(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pebble.ErrNotFound):
		return notFound
	case errors.Is(err, pebble.ErrClosed):
		return ErrClosed
	}
	return fmt.Errorf("kv store: %w", err)
}
