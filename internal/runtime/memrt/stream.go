package memrt

import (
	"fmt"

	"github.com/roach88/streamsql/internal/runtime"
	"github.com/roach88/streamsql/internal/schema"
	"github.com/roach88/streamsql/internal/serde"
)

type streamHandler func(d *delivery, key string, value schema.Row) error

// stream is a push-based stream node. Each operator registers a handler
// on its parent; records fan out to handlers in registration order.
type stream struct {
	rt   *Runtime
	next []streamHandler
}

var _ runtime.Stream = (*stream)(nil)

func (s *stream) push(d *delivery, key string, value schema.Row) error {
	for _, h := range s.next {
		if err := h(d, key, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *stream) MapValues(fn runtime.ValueMapper) runtime.Stream {
	child := &stream{rt: s.rt}
	s.next = append(s.next, func(d *delivery, key string, value schema.Row) error {
		out, err := fn(value)
		if err != nil {
			return err
		}
		return child.push(d, key, out)
	})
	return child
}

func (s *stream) Filter(fn runtime.Predicate) runtime.Stream {
	child := &stream{rt: s.rt}
	s.next = append(s.next, func(d *delivery, key string, value schema.Row) error {
		keep, err := fn(value)
		if err != nil {
			return err
		}
		if !keep {
			return nil
		}
		return child.push(d, key, value)
	})
	return child
}

func (s *stream) GroupBy(fn runtime.KeyMapper, keySerde serde.KeySerde, valueSerde serde.Serde) runtime.Grouped {
	g := &grouped{keySerde: keySerde, valueSerde: valueSerde}
	s.next = append(s.next, func(d *delivery, key string, value schema.Row) error {
		newKey, newValue, err := fn(key, value)
		if err != nil {
			return err
		}
		return g.emit(newKey, newValue, runtime.OpAdd)
	})
	return g
}

func (s *stream) To(topic string, keySerde serde.KeySerde, valueSerde serde.Serde) error {
	if topic == "" {
		return fmt.Errorf("to: empty topic name")
	}
	if keySerde == nil || valueSerde == nil {
		return fmt.Errorf("to %s: nil serde", topic)
	}
	s.next = append(s.next, func(d *delivery, key string, value schema.Row) error {
		return s.rt.write(d, topic, keySerde, valueSerde, key, &value)
	})
	return nil
}

// write sinks one record. A nil value writes a tombstone.
func (r *Runtime) write(d *delivery, topic string, keySerde serde.KeySerde, valueSerde serde.Serde, key string, value *schema.Row) error {
	kb, err := keySerde.Serialize(key)
	if err != nil {
		return encodeFailure(topic, schema.Row{}, err)
	}
	var vb []byte
	if value != nil {
		vb, err = valueSerde.Serialize(*value)
		if err != nil {
			return encodeFailure(topic, *value, err)
		}
	}

	offset, err := r.writer.Append(d.ctx, topic, d.rc.Partition, kb, vb, d.timestamp)
	if err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	r.stats.Written++
	r.logger.Debug("record written",
		"topic", topic,
		"partition", d.rc.Partition,
		"offset", offset,
		"source", d.rc.String(),
	)
	return nil
}
