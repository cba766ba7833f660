package ttl

import (
	badger "github.com/dgraph-io/badger/v4"
)

// PrefixStore is a store that prefixes all keys with a given prefix.
type PrefixStore struct {
	base   Store
	prefix []byte
}

// NewPrefixStore creates a new PrefixStore.
func NewPrefixStore(store Store, prefix []byte) *PrefixStore {
	return &PrefixStore{
		base:   store,
		prefix: prefix,
	}
}

// Delete deletes the key from the store.
func (s *PrefixStore) Delete(key []byte) error {
	return s.base.Delete(s.key(key))
}

// NewIterator creates an iterator over the keys under the prefix. Keys of
// the returned items still carry the prefix.
func (s *PrefixStore) NewIterator(opts badger.IteratorOptions) *badger.Iterator {
	opts.Prefix = s.key(opts.Prefix)
	return s.base.NewIterator(opts)
}

// Set sets the key in the store.
func (s *PrefixStore) Set(key, value []byte) error {
	return s.base.Set(s.key(key), value)
}

// TrimKey strips the prefix from a key read through the store's iterator.
func (s *PrefixStore) TrimKey(key []byte) []byte {
	return key[len(s.prefix):]
}

func (s *PrefixStore) key(key []byte) []byte {
	k := make([]byte, 0, len(s.prefix)+len(key))
	k = append(k, s.prefix...)
	return append(k, key...)
}
