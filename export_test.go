package ordkeymap

import "fmt"

// Snapshot is a structural copy of both indexes of a Map.
type Snapshot[K comparable, O any, V any] struct {
	Values map[K]Entry[O, V]
	Orders []Group[K, O]
}

type Entry[O any, V any] struct {
	Order O
	Value V
}

type Group[K comparable, O any] struct {
	Order O
	Keys  map[K]struct{}
}

// Snapshot copies the indexes of m. Orders are listed in ascending order.
func (m *Map[K, O, V]) Snapshot() Snapshot[K, O, V] {
	s := Snapshot[K, O, V]{
		Values: make(map[K]Entry[O, V], len(m.values)),
		Orders: make([]Group[K, O], 0, m.orders.Len()),
	}
	for k, e := range m.values {
		s.Values[k] = Entry[O, V]{Order: e.order, Value: e.value}
	}
	m.orders.Ascend(func(g *group[K, O]) bool {
		keys := make(map[K]struct{}, len(g.keys))
		for k := range g.keys {
			keys[k] = struct{}{}
		}
		s.Orders = append(s.Orders, Group[K, O]{Order: g.order, Keys: keys})
		return true
	})
	return s
}

// CheckInvariants reports the first inconsistency between the two indexes of m.
func (m *Map[K, O, V]) CheckInvariants() error {
	var (
		err  error
		seen int
		prev *group[K, O]
	)
	m.orders.Ascend(func(g *group[K, O]) bool {
		if prev != nil && m.cmp(prev.order, g.order) >= 0 {
			err = fmt.Errorf("order %v is not greater than %v", g.order, prev.order)
			return false
		}
		prev = g

		if len(g.keys) == 0 {
			err = fmt.Errorf("group of order %v is empty", g.order)
			return false
		}
		for k := range g.keys {
			e, ok := m.values[k]
			if !ok {
				err = fmt.Errorf("key %v of order %v is missing from values", k, g.order)
				return false
			}
			if m.cmp(g.order, e.order) != 0 {
				err = fmt.Errorf("key %v is grouped under %v but holds %v", k, g.order, e.order)
				return false
			}
			seen++
		}
		return true
	})
	if err != nil {
		return err
	}
	if seen != len(m.values) {
		return fmt.Errorf("orders index %d keys but values holds %d", seen, len(m.values))
	}
	return nil
}
