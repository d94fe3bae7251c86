package pebble

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/warpsim/pkg/db"
)

type Iterator struct {
	iter    *pebble.Iterator
	started bool
}

func (p *KVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		return nil, fmt.Errorf(ErrInIteratorCreation, err)
	}
	return &Iterator{iter: iter}, nil
}

// Next positions the iterator on the first key on its first call and steps
// forward afterwards.
func (it *Iterator) Next() bool {
	if !it.started {
		it.started = true
		return it.iter.First()
	}
	return it.iter.Next()
}

func (it *Iterator) Key() []byte {
	key := it.iter.Key()
	result := make([]byte, len(key))
	copy(result, key)
	return result
}

func (it *Iterator) Value() ([]byte, error) {
	if !it.iter.Valid() {
		return nil, ErrIteratorInvalid
	}

	val, err := it.iter.ValueAndErr()
	if err != nil {
		return nil, fmt.Errorf(ErrIteratorValue, err)
	}

	result := make([]byte, len(val))
	copy(result, val)
	return result, nil
}

func (it *Iterator) Valid() bool {
	return it.iter.Valid()
}

func (it *Iterator) Close() error {
	return it.iter.Close()
}
