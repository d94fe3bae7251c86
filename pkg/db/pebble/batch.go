package pebble

import (
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/warpsim/pkg/db"
)

type Batch struct {
	batch *pebble.Batch
	done  atomic.Bool
}

func (p *KVStore) NewBatch() db.Batch {
	return &Batch{
		batch: p.db.NewBatch(),
	}
}

func (b *Batch) Put(key, value []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	return b.batch.Set(key, value, nil)
}

func (b *Batch) Delete(key []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	return b.batch.Delete(key, nil)
}

// Commit applies the batch. The batch cannot be reused afterwards, but it
// must still be closed.
func (b *Batch) Commit() error {
	if b.done.Load() {
		return ErrBatchDone
	}
	if err := b.batch.Commit(pebble.Sync); err != nil {
		return err
	}
	b.done.Store(true)
	return nil
}

func (b *Batch) Close() error {
	b.done.Store(true)
	if b.batch == nil {
		return nil
	}
	err := b.batch.Close()
	b.batch = nil
	return err
}
