// Package hooks implements the process-wide publish-subscribe channel that
// lets polymixer producers observe where chunks ultimately land and patch
// cross-references (ZIP central-directory offsets, PNG CRCs, TrueCrypt
// salts) before the output file is emitted.
//
// It is the Go realization of original_source/hook_manager.py's
// HookManager, reshaped per spec.md §9 DESIGN NOTES: rather than a single
// *args/**kwargs callback signature, each Topic has its own typed payload
// carried inside Event, so subscribers never need to type-assert a bag of
// positional arguments.
package hooks

import (
	"fmt"

	farm "github.com/dgryski/go-farm"

	"github.com/polymixer/polymixer/chunk"
)

// Topic names one of the three hook points defined in spec.md §4.4.
type Topic string

const (
	// PlacingChunk fires immediately after a chunk is placed, only if
	// Start >= 0 (tail chunks fire this only after normalization).
	PlacingChunk Topic = "placing:chunk"
	// PlacingComplete fires once, after every chunk (including tail
	// chunks) has been placed.
	PlacingComplete Topic = "placing:complete"
	// WritingFinish fires after the output file has been fully written
	// and closed.
	WritingFinish Topic = "writing:finish"
)

// Reader is the byte-view surface producers use from a placing:complete
// subscriber to inspect final content (e.g. to read a freshly chosen salt).
// layout.Engine satisfies this interface; it is declared here, not in
// layout, so that hooks has no dependency on the layout package.
type Reader interface {
	Read(start, end int64) ([]byte, error)
}

// Event is the payload delivered to a subscriber callback. Only the fields
// relevant to Topic are populated; see the Topic constants' doc comments.
type Event struct {
	Topic Topic

	// PlacingChunk
	Start int64
	End   int64
	Chunk chunk.Chunk

	// PlacingComplete
	Engine Reader

	// WritingFinish
	OutputPath string
}

// Callback is a hook subscriber. It receives a positional Event depending
// on the topic it registered under (spec.md §4.4).
type Callback func(Event)

// Bus is an ordered multi-map from topic name to subscriber callbacks,
// dispatched synchronously in the caller's goroutine (spec.md §5: no
// concurrency, no isolation between callbacks).
type Bus struct {
	subscribers map[Topic][]Callback

	// dispatched counts placing:chunk notifications per chunk Extra tag (a
	// callback may itself call Trigger while being called, so a tag can be
	// seen more than once), keyed by a farm hash of the tag's string form
	// rather than the arbitrary interface{} value itself. Every notification
	// is still delivered; nothing is deduplicated.
	dispatched map[uint64]int
}

// NewBus returns an empty hook bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Topic][]Callback),
		dispatched:  make(map[uint64]int),
	}
}

// Register appends callback as a subscriber of topic. Missing topics start
// empty; there is no upper bound on subscriber count per topic.
func (b *Bus) Register(topic Topic, callback Callback) {
	b.subscribers[topic] = append(b.subscribers[topic], callback)
}

// Trigger invokes every callback registered under topic, in registration
// order, synchronously. Callbacks may call Register or Trigger
// re-entrantly. This Trigger dispatches over a snapshot of the subscriber
// list taken at its start, so a callback registered during dispatch is not
// called by this Trigger, only by later ones (spec.md §4.4).
func (b *Bus) Trigger(event Event) {
	subs := b.subscribers[event.Topic]
	snapshot := make([]Callback, len(subs))
	copy(snapshot, subs)

	if event.Topic == PlacingChunk {
		b.markDispatched(event.Chunk)
	}

	for _, cb := range snapshot {
		cb(event)
	}
}

// DispatchCount returns how many times PlacingChunk has fired for a chunk
// carrying this Extra tag. A producer that patches shared state from
// placing:chunk (e.g. the ZIP central-directory chunk, touched once per
// local file header) can use this to detect unexpected re-entrant
// duplication; none of the producers in this repository calls it.
func (b *Bus) DispatchCount(extra interface{}) int {
	return b.dispatched[extraKey(extra)]
}

func (b *Bus) markDispatched(c chunk.Chunk) {
	if c.Extra == nil {
		return
	}
	b.dispatched[extraKey(c.Extra)]++
}

func extraKey(extra interface{}) uint64 {
	return farm.Hash64([]byte(fmt.Sprintf("%#v", extra)))
}
