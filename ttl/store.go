package ttl

import (
	badger "github.com/dgraph-io/badger/v4"
)

// Store is the subset of *badger.Txn the schedule is read and written through.
type Store interface {
	Delete(key []byte) error
	NewIterator(opts badger.IteratorOptions) *badger.Iterator
	Set(key, value []byte) error
}
