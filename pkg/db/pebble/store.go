package pebble

import (
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

const (
	cacheSize    = 16 << 20
	memTableSize = 8 << 20
)

// KVStore implements db.KVStore on a pebble database.
type KVStore struct {
	db     *pebble.DB
	cache  *pebble.Cache
	closed bool
	mu     sync.RWMutex
}

// NewKVStore opens a store that lives in memory only.
func NewKVStore() (*KVStore, error) {
	return open("", vfs.NewMem())
}

// Open opens, or creates, a store in the directory path.
func Open(path string) (*KVStore, error) {
	return open(path, vfs.Default)
}

func open(path string, fs vfs.FS) (*KVStore, error) {
	cache := pebble.NewCache(cacheSize)
	db, err := pebble.Open(path, &pebble.Options{
		FS:           fs,
		Cache:        cache,
		MemTableSize: memTableSize,
	})
	if err != nil {
		cache.Unref()
		return nil, err
	}
	return &KVStore{db: db, cache: cache}, nil
}

func (p *KVStore) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}

	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (p *KVStore) Has(key []byte) (bool, error) {
	_, err := p.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (p *KVStore) Put(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	return p.db.Set(key, value, pebble.Sync)
}

func (p *KVStore) Delete(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	return p.db.Delete(key, pebble.Sync)
}

func (p *KVStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	err := p.db.Close()
	p.cache.Unref()
	return err
}
