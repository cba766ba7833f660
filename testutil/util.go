package testutil

import (
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// PrepareDB opens an in-memory BadgerDB that is closed when the test ends.
func PrepareDB(t testing.TB) *badger.DB {
	opt := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opt)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// PrepareTxn creates an in-memory BadgerDB and a transaction for testing.
func PrepareTxn(t testing.TB, update bool) *badger.Txn {
	db := PrepareDB(t)
	txn := db.NewTransaction(update)
	t.Cleanup(func() {
		txn.Discard()
	})
	return txn
}

// CollectKeys returns every key in db in iteration order.
func CollectKeys(t testing.TB, db *badger.DB) [][]byte {
	var keys [][]byte
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	require.NoError(t, err)
	return keys
}
