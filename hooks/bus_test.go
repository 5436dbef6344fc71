package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polymixer/polymixer/chunk"
)

func TestTriggerOrder(t *testing.T) {
	bus := NewBus()
	var order []int

	bus.Register(PlacingChunk, func(Event) { order = append(order, 1) })
	bus.Register(PlacingChunk, func(Event) { order = append(order, 2) })

	bus.Trigger(Event{Topic: PlacingChunk, Start: 0, End: 4})

	assert.Equal(t, []int{1, 2}, order)
}

func TestTriggerMissingTopicIsNoop(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Trigger(Event{Topic: WritingFinish, OutputPath: "/tmp/out"})
	})
}

func TestReentrantRegisterDoesNotAffectCurrentDispatch(t *testing.T) {
	bus := NewBus()
	calls := 0

	bus.Register(PlacingComplete, func(Event) {
		calls++
		bus.Register(PlacingComplete, func(Event) { calls++ })
	})

	bus.Trigger(Event{Topic: PlacingComplete})
	assert.Equal(t, 1, calls)

	bus.Trigger(Event{Topic: PlacingComplete})
	assert.Equal(t, 3, calls)
}

func TestDispatchCount(t *testing.T) {
	bus := NewBus()
	extra := "cdfh-42"

	bus.Trigger(Event{Topic: PlacingChunk, Chunk: chunk.Chunk{Extra: extra}})
	bus.Trigger(Event{Topic: PlacingChunk, Chunk: chunk.Chunk{Extra: extra}})

	assert.Equal(t, 2, bus.DispatchCount(extra))
	assert.Equal(t, 0, bus.DispatchCount("other"))
}
