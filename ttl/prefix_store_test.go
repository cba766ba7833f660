package ttl_test

import (
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ehsanranjbar/ordkeymap/testutil"
	"github.com/ehsanranjbar/ordkeymap/ttl"
	"github.com/stretchr/testify/require"
)

func TestPrefixStore(t *testing.T) {
	txn := testutil.PrepareTxn(t, true)
	prefix := []byte("prefix")
	store := ttl.NewPrefixStore(txn, prefix)

	var (
		key   = []byte("foo")
		value = []byte("bar")
	)

	t.Run("Set", func(t *testing.T) {
		require.NoError(t, store.Set(key, value))
		require.NoError(t, store.Set([]byte("baz"), value))
		require.Equal(t, []byte("prefix"), prefix)

		item, err := txn.Get([]byte("prefixfoo"))
		require.NoError(t, err)
		require.NotNil(t, item)
	})

	t.Run("NewIterator", func(t *testing.T) {
		it := store.NewIterator(badger.IteratorOptions{})
		defer it.Close()

		var keys []string
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(store.TrimKey(it.Item().KeyCopy(nil))))
			err := it.Item().Value(func(val []byte) error {
				require.Equal(t, value, val)
				return nil
			})
			require.NoError(t, err)
		}
		require.Equal(t, []string{"baz", "foo"}, keys)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(key))

		item, err := txn.Get([]byte("prefixfoo"))
		require.ErrorIs(t, err, badger.ErrKeyNotFound)
		require.Nil(t, item)
	})
}
