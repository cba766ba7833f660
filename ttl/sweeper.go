package ttl

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ehsanranjbar/ordkeymap"
	msgpack "github.com/vmihailenco/msgpack/v5"
)

const (
	// DefaultSchedulePrefix is the key prefix deadlines are persisted under.
	DefaultSchedulePrefix = "\x00ttl/"
	// DefaultBatchSize is the number of keys deleted per transaction by Sweep.
	DefaultBatchSize = 256
)

var (
	// ErrReservedKey is returned when a key falls under the schedule prefix.
	ErrReservedKey = errors.New("key is reserved by the sweeper")
	// ErrInvalidDeadline is returned for deadlines outside the range of int64
	// nanoseconds since the Unix epoch (years 1678 to 2262).
	ErrInvalidDeadline = errors.New("deadline out of range")
)

// Sweeper keeps deadlines for keys of a badger database and deletes the keys
// once their deadline has passed. Deadlines survive restarts.
type Sweeper struct {
	db        *badger.DB
	prefix    []byte
	batchSize int
	m         *ordkeymap.Map[string, int64, struct{}]
	mu        sync.Mutex
}

type record struct {
	Deadline int64 `msgpack:"d"`
}

// NewSweeper creates a new Sweeper and loads the deadlines persisted in db.
func NewSweeper(db *badger.DB, opts ...func(*Sweeper)) (*Sweeper, error) {
	s := &Sweeper{
		db:        db,
		prefix:    []byte(DefaultSchedulePrefix),
		batchSize: DefaultBatchSize,
		m:         ordkeymap.New[string, int64, struct{}](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.batchSize < 1 {
		return nil, fmt.Errorf("invalid batch size %d", s.batchSize)
	}
	if len(s.prefix) == 0 {
		return nil, fmt.Errorf("schedule prefix must not be empty")
	}

	err := s.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	return s, nil
}

// WithSchedulePrefix sets the prefix deadlines are stored under.
func WithSchedulePrefix(prefix []byte) func(*Sweeper) {
	return func(s *Sweeper) {
		s.prefix = bytes.Clone(prefix)
	}
}

// WithBatchSize sets the number of keys deleted per transaction.
func WithBatchSize(n int) func(*Sweeper) {
	return func(s *Sweeper) {
		s.batchSize = n
	}
}

func (s *Sweeper) load() error {
	return s.db.View(func(txn *badger.Txn) error {
		schedule := NewPrefixStore(txn, s.prefix)
		it := schedule.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := schedule.TrimKey(item.KeyCopy(nil))

			var r record
			err := item.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &r)
			})
			if err != nil {
				return fmt.Errorf("failed to decode deadline of %q: %w", key, err)
			}
			s.m.Add(string(key), r.Deadline, struct{}{})
		}
		return nil
	})
}

// Expire sets the deadline of key. An existing deadline is replaced.
func (s *Sweeper) Expire(key []byte, at time.Time) error {
	if bytes.HasPrefix(key, s.prefix) {
		return ErrReservedKey
	}
	ns := at.UnixNano()
	if !time.Unix(0, ns).Equal(at) {
		return ErrInvalidDeadline
	}

	val, err := msgpack.Marshal(record{Deadline: ns})
	if err != nil {
		return fmt.Errorf("failed to encode deadline: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Update(func(txn *badger.Txn) error {
		return NewPrefixStore(txn, s.prefix).Set(key, val)
	})
	if err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	s.m.Add(string(key), ns, struct{}{})
	return nil
}

// Persist removes the deadline of key so it is never swept. It is a no-op
// for keys without a deadline.
func (s *Sweeper) Persist(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, ok := s.m.Get(string(key)); !ok {
		return nil
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return NewPrefixStore(txn, s.prefix).Delete(key)
	})
	if err != nil {
		return fmt.Errorf("failed to delete deadline: %w", err)
	}

	s.m.Remove(string(key))
	return nil
}

// Deadline returns the deadline of key.
func (s *Sweeper) Deadline(key []byte) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, _, ok := s.m.Get(string(key))
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, at), true
}

// Pending returns the number of keys waiting to expire.
func (s *Sweeper) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.m.Len()
}

// Sweep deletes every key whose deadline is not after now, earliest first,
// and returns the deleted keys. On error the keys already deleted are
// returned along with it and the rest stay scheduled.
func (s *Sweeper) Sweep(now time.Time) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept [][]byte
	for {
		batch := s.nextBatch(now.UnixNano())
		if len(batch) == 0 {
			return swept, nil
		}

		n, err := s.deleteBatch(batch)
		for _, d := range batch[:n] {
			swept = append(swept, []byte(d.key))
		}
		if err != nil {
			for _, d := range batch[n:] {
				s.m.Add(d.key, d.at, struct{}{})
			}
			return swept, fmt.Errorf("failed to delete expired keys: %w", err)
		}
	}
}

type deadline struct {
	key string
	at  int64
}

// nextBatch takes up to batchSize keys due at now off the schedule. A group
// of keys sharing a deadline may be split across batches.
func (s *Sweeper) nextBatch(now int64) []deadline {
	var batch []deadline
	for len(batch) < s.batchSize {
		at, entries, ok := s.m.PeekSmallest()
		if !ok || at > now {
			break
		}

		if room := s.batchSize - len(batch); len(entries) > room {
			entries = entries[:room]
		}
		for _, e := range entries {
			s.m.Remove(e.Key)
			batch = append(batch, deadline{key: e.Key, at: at})
		}
	}
	return batch
}

// deleteBatch deletes the data and schedule keys of batch and returns how
// many of its deadlines were committed. A transaction that grows too big is
// committed and the rest of the batch continues in a new one.
func (s *Sweeper) deleteBatch(batch []deadline) (int, error) {
	if s.db.IsClosed() {
		return 0, badger.ErrDBClosed
	}

	txn := s.db.NewTransaction(true)
	defer func() {
		txn.Discard()
	}()

	committed := 0
	for i := 0; i < len(batch); {
		err := s.deleteExpired(txn, []byte(batch[i].key))
		if errors.Is(err, badger.ErrTxnTooBig) && i > committed {
			if err := txn.Commit(); err != nil {
				return committed, err
			}
			committed = i
			txn = s.db.NewTransaction(true)
			continue
		}
		if err != nil {
			return committed, err
		}
		i++
	}

	if err := txn.Commit(); err != nil {
		return committed, err
	}
	return len(batch), nil
}

func (s *Sweeper) deleteExpired(txn *badger.Txn, key []byte) error {
	if err := txn.Delete(key); err != nil {
		return err
	}
	return NewPrefixStore(txn, s.prefix).Delete(key)
}
