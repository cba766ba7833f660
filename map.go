package ordkeymap

import (
	"fmt"

	"github.com/google/btree"
	"golang.org/x/exp/constraints"
)

// DefaultDegree is the btree degree used for the order index when none is given.
const DefaultDegree = 32

// Pair is a key-value pair held under a single order.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// Map associates unique keys with a value and a mutable order, and gives
// efficient access to the entries holding the smallest order.
//
// Map is not safe for concurrent use.
type Map[K comparable, O any, V any] struct {
	cmp    func(a, b O) int
	values map[K]entry[O, V]
	orders *btree.BTreeG[*group[K, O]]
}

type entry[O any, V any] struct {
	order O
	value V
}

// group is the set of keys currently holding one order.
type group[K comparable, O any] struct {
	order O
	keys  map[K]struct{}
}

type config struct {
	degree int
}

// Option configures a Map.
type Option func(*config)

// WithDegree sets the degree of the btree that keeps orders sorted.
func WithDegree(degree int) Option {
	return func(c *config) {
		c.degree = degree
	}
}

// New creates an empty Map whose orders are compared with the < operator.
func New[K comparable, O constraints.Ordered, V any](opts ...Option) *Map[K, O, V] {
	return NewFunc[K, O, V](compareOrdered[O], opts...)
}

// NewFunc creates an empty Map whose orders are compared with cmp. cmp must
// return a negative number when a < b, zero when a == b and a positive number
// when a > b, and must define a strict total order.
func NewFunc[K comparable, O any, V any](cmp func(a, b O) int, opts ...Option) *Map[K, O, V] {
	c := config{degree: DefaultDegree}
	for _, opt := range opts {
		opt(&c)
	}
	if c.degree < 2 {
		panic(fmt.Sprintf("invalid btree degree %d", c.degree))
	}

	return &Map[K, O, V]{
		cmp:    cmp,
		values: make(map[K]entry[O, V]),
		orders: btree.NewG(c.degree, func(a, b *group[K, O]) bool {
			return cmp(a.order, b.order) < 0
		}),
	}
}

func compareOrdered[O constraints.Ordered](a, b O) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Len returns the number of keys in the map.
func (m *Map[K, O, V]) Len() int {
	return len(m.values)
}

// Groups returns the number of distinct orders in the map.
func (m *Map[K, O, V]) Groups() int {
	return m.orders.Len()
}

// Get returns the order and value of key.
func (m *Map[K, O, V]) Get(key K) (order O, value V, ok bool) {
	e, ok := m.values[key]
	if !ok {
		return order, value, false
	}
	return e.order, e.value, true
}

// Add adds an entry to the map. If key is already present its entry is
// replaced and the old order and value are returned with replaced set to true.
func (m *Map[K, O, V]) Add(key K, order O, value V) (oldOrder O, oldValue V, replaced bool) {
	if old, ok := m.values[key]; ok {
		delete(m.values, key)
		m.removeOrderedKey(old.order, key)
		oldOrder, oldValue, replaced = old.order, old.value, true
	}

	g, ok := m.orders.Get(&group[K, O]{order: order})
	if !ok {
		g = &group[K, O]{order: order, keys: make(map[K]struct{})}
		m.orders.ReplaceOrInsert(g)
	}
	if _, ok := g.keys[key]; ok {
		panic(fmt.Sprintf("key %v already indexed under order %v", key, order))
	}
	g.keys[key] = struct{}{}
	m.values[key] = entry[O, V]{order: order, value: value}

	return oldOrder, oldValue, replaced
}

// Remove removes key from the map and returns its order and value.
func (m *Map[K, O, V]) Remove(key K) (order O, value V, ok bool) {
	e, ok := m.values[key]
	if !ok {
		return order, value, false
	}
	delete(m.values, key)
	m.removeOrderedKey(e.order, key)
	return e.order, e.value, true
}

// PeekSmallest returns the smallest order and all the entries holding it
// without removing them. Entries are in no particular order.
func (m *Map[K, O, V]) PeekSmallest() (order O, entries []Pair[K, V], ok bool) {
	g, ok := m.orders.Min()
	if !ok {
		return order, nil, false
	}

	entries = make([]Pair[K, V], 0, len(g.keys))
	for key := range g.keys {
		e, ok := m.values[key]
		if !ok {
			panic(fmt.Sprintf("key %v of order %v is missing from values", key, g.order))
		}
		entries = append(entries, Pair[K, V]{Key: key, Value: e.value})
	}
	return g.order, entries, true
}

// RemoveSmallest removes all the entries holding the smallest order and
// returns them along with the order. Entries are in no particular order.
func (m *Map[K, O, V]) RemoveSmallest() (order O, entries []Pair[K, V], ok bool) {
	g, ok := m.orders.DeleteMin()
	if !ok {
		return order, nil, false
	}

	entries = make([]Pair[K, V], 0, len(g.keys))
	for key := range g.keys {
		e, ok := m.values[key]
		if !ok {
			panic(fmt.Sprintf("key %v of order %v is missing from values", key, g.order))
		}
		delete(m.values, key)
		entries = append(entries, Pair[K, V]{Key: key, Value: e.value})
	}
	return g.order, entries, true
}

func (m *Map[K, O, V]) removeOrderedKey(order O, key K) {
	g, ok := m.orders.Get(&group[K, O]{order: order})
	if !ok {
		panic(fmt.Sprintf("order %v of key %v is missing from orders", order, key))
	}
	if _, ok := g.keys[key]; !ok {
		panic(fmt.Sprintf("key %v is missing from group of order %v", key, order))
	}
	delete(g.keys, key)

	if len(g.keys) == 0 {
		if _, ok := m.orders.Delete(g); !ok {
			panic(fmt.Sprintf("failed to delete empty group of order %v", order))
		}
	}
}
