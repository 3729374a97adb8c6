package memrt

import (
	"github.com/roach88/streamsql/internal/runtime"
	"github.com/roach88/streamsql/internal/schema"
	"github.com/roach88/streamsql/internal/serde"
)

// grouped delivers re-keyed records to its handlers.
//
// Records pass through the key and value serdes on the way, as they would
// through a repartition topic, so a grouping whose serdes cannot carry its
// rows fails the record instead of the aggregation downstream.
type grouped struct {
	keySerde   serde.KeySerde
	valueSerde serde.Serde
	handlers   []runtime.ChangeHandler
}

var _ runtime.Grouped = (*grouped)(nil)

func (g *grouped) KeySerde() serde.KeySerde { return g.keySerde }
func (g *grouped) ValueSerde() serde.Serde  { return g.valueSerde }

func (g *grouped) ForEach(fn runtime.ChangeHandler) {
	g.handlers = append(g.handlers, fn)
}

func (g *grouped) emit(key string, value schema.Row, op runtime.Op) error {
	key, value, err := g.repartition(key, value)
	if err != nil {
		return err
	}
	c := runtime.Change{Key: key, Value: value, Op: op}
	for _, h := range g.handlers {
		if err := h(c); err != nil {
			return err
		}
	}
	return nil
}

func (g *grouped) repartition(key string, value schema.Row) (string, schema.Row, error) {
	if g.keySerde != nil {
		kb, err := g.keySerde.Serialize(key)
		if err != nil {
			return "", schema.Row{}, encodeFailure("repartition", value, err)
		}
		if key, err = g.keySerde.Deserialize(kb); err != nil {
			return "", schema.Row{}, decodeFailure("repartition key", err)
		}
	}
	if g.valueSerde != nil {
		vb, err := g.valueSerde.Serialize(value)
		if err != nil {
			return "", schema.Row{}, encodeFailure("repartition", value, err)
		}
		if value, err = g.valueSerde.Deserialize(vb); err != nil {
			return "", schema.Row{}, decodeFailure("repartition value", err)
		}
	}
	return key, value, nil
}
