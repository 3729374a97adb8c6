package memrt

import (
	"fmt"

	"github.com/roach88/streamsql/internal/runtime"
	"github.com/roach88/streamsql/internal/schema"
	"github.com/roach88/streamsql/internal/serde"
)

// tableListener observes every change of a table node: old is the
// previous value of key, value the new one. Either may be nil.
type tableListener func(d *delivery, key string, old, value *schema.Row) error

// table is a materialized table node.
//
// Each node derives its own value from its parent's (derive) and keeps the
// latest derived value per key, so it can tell an update from a delete:
// a key whose derived value disappears emits a tombstone downstream, and a
// key that was never present emits nothing.
type table struct {
	rt        *Runtime
	derive    func(value *schema.Row) (*schema.Row, error)
	state     map[string]schema.Row
	children  []*table
	listeners []tableListener
}

var _ runtime.Table = (*table)(nil)

func newTable(rt *Runtime, derive func(*schema.Row) (*schema.Row, error)) *table {
	return &table{rt: rt, derive: derive, state: make(map[string]schema.Row)}
}

func (t *table) update(d *delivery, key string, upstream *schema.Row) error {
	value := upstream
	if t.derive != nil {
		var err error
		if value, err = t.derive(upstream); err != nil {
			return err
		}
	}

	var old *schema.Row
	if prev, ok := t.state[key]; ok {
		old = &prev
	}
	if old == nil && value == nil {
		return nil
	}

	if value == nil {
		delete(t.state, key)
	} else {
		t.state[key] = *value
	}

	for _, child := range t.children {
		if err := child.update(d, key, value); err != nil {
			return err
		}
	}
	for _, l := range t.listeners {
		if err := l(d, key, old, value); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of live keys.
func (t *table) Len() int {
	return len(t.state)
}

func (t *table) MapValues(fn runtime.ValueMapper) runtime.Table {
	child := newTable(t.rt, func(v *schema.Row) (*schema.Row, error) {
		if v == nil {
			return nil, nil
		}
		out, err := fn(*v)
		if err != nil {
			return nil, err
		}
		return &out, nil
	})
	t.children = append(t.children, child)
	return child
}

func (t *table) Filter(fn runtime.Predicate) runtime.Table {
	child := newTable(t.rt, func(v *schema.Row) (*schema.Row, error) {
		if v == nil {
			return nil, nil
		}
		keep, err := fn(*v)
		if err != nil || !keep {
			return nil, err
		}
		return v, nil
	})
	t.children = append(t.children, child)
	return child
}

func (t *table) GroupBy(fn runtime.KeyMapper, keySerde serde.KeySerde, valueSerde serde.Serde) runtime.Grouped {
	g := &grouped{keySerde: keySerde, valueSerde: valueSerde}
	t.listeners = append(t.listeners, func(d *delivery, key string, old, value *schema.Row) error {
		if old != nil {
			oldKey, oldValue, err := fn(key, *old)
			if err != nil {
				return err
			}
			if err := g.emit(oldKey, oldValue, runtime.OpSubtract); err != nil {
				return err
			}
		}
		if value != nil {
			newKey, newValue, err := fn(key, *value)
			if err != nil {
				return err
			}
			return g.emit(newKey, newValue, runtime.OpAdd)
		}
		return nil
	})
	return g
}

func (t *table) To(topic string, keySerde serde.KeySerde, valueSerde serde.Serde) error {
	if topic == "" {
		return fmt.Errorf("to: empty topic name")
	}
	if keySerde == nil || valueSerde == nil {
		return fmt.Errorf("to %s: nil serde", topic)
	}
	t.listeners = append(t.listeners, func(d *delivery, key string, _, value *schema.Row) error {
		return t.rt.write(d, topic, keySerde, valueSerde, key, value)
	})
	return nil
}
