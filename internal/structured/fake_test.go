package structured

import (
	"github.com/roach88/streamsql/internal/runtime"
	"github.com/roach88/streamsql/internal/serde"
)

// recorder captures the calls relation operators make on runtime handles
// and the functions they pass in.
type recorder struct {
	calls     []string
	mapper    runtime.ValueMapper
	predicate runtime.Predicate
	keyMapper runtime.KeyMapper
	sinks     []string
	toErr     error
}

type fakeStream struct{ rec *recorder }

func (s fakeStream) MapValues(fn runtime.ValueMapper) runtime.Stream {
	s.rec.calls = append(s.rec.calls, "stream.mapValues")
	s.rec.mapper = fn
	return fakeStream{s.rec}
}

func (s fakeStream) Filter(fn runtime.Predicate) runtime.Stream {
	s.rec.calls = append(s.rec.calls, "stream.filter")
	s.rec.predicate = fn
	return fakeStream{s.rec}
}

func (s fakeStream) GroupBy(fn runtime.KeyMapper, ks serde.KeySerde, vs serde.Serde) runtime.Grouped {
	s.rec.calls = append(s.rec.calls, "stream.groupBy")
	s.rec.keyMapper = fn
	return fakeGrouped{ks, vs}
}

func (s fakeStream) To(topic string, _ serde.KeySerde, _ serde.Serde) error {
	s.rec.calls = append(s.rec.calls, "stream.to")
	s.rec.sinks = append(s.rec.sinks, topic)
	return s.rec.toErr
}

type fakeTable struct{ rec *recorder }

func (t fakeTable) MapValues(fn runtime.ValueMapper) runtime.Table {
	t.rec.calls = append(t.rec.calls, "table.mapValues")
	t.rec.mapper = fn
	return fakeTable{t.rec}
}

func (t fakeTable) Filter(fn runtime.Predicate) runtime.Table {
	t.rec.calls = append(t.rec.calls, "table.filter")
	t.rec.predicate = fn
	return fakeTable{t.rec}
}

func (t fakeTable) GroupBy(fn runtime.KeyMapper, ks serde.KeySerde, vs serde.Serde) runtime.Grouped {
	t.rec.calls = append(t.rec.calls, "table.groupBy")
	t.rec.keyMapper = fn
	return fakeGrouped{ks, vs}
}

func (t fakeTable) To(topic string, _ serde.KeySerde, _ serde.Serde) error {
	t.rec.calls = append(t.rec.calls, "table.to")
	t.rec.sinks = append(t.rec.sinks, topic)
	return t.rec.toErr
}

type fakeGrouped struct {
	ks serde.KeySerde
	vs serde.Serde
}

func (g fakeGrouped) KeySerde() serde.KeySerde      { return g.ks }
func (g fakeGrouped) ValueSerde() serde.Serde       { return g.vs }
func (g fakeGrouped) ForEach(runtime.ChangeHandler) {}
