// Package layout implements the constraint-based chunk placement planner
// described in spec.md §4.2: it places Fixed and Flexible chunks into a
// single coordinate space, guarantees non-overlap via interval.Index,
// resolves negative ("tail") coordinates once every positive chunk is
// known, and materializes the final byte view for output emission.
//
// The placement algorithm (FindPosition's candidate-set search,
// NormalizeTail's slice-at-0/remove/re-anchor sequence) is translated
// one-for-one from original_source/chunk_manager.py's ChunkManager, which
// built the same three operations on top of Python's intervaltree library.
package layout

import (
	"sort"

	"github.com/pkg/errors"
	"v.io/x/lib/vlog"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/interval"
)

// State is one of the three states in the layout engine's state machine
// (spec.md §4.2).
type State int

const (
	// Accepting is the default state: Place, FindPosition, and
	// NormalizeTail may all be called.
	Accepting State = iota
	// Normalizing is entered for the duration of NormalizeTail; no
	// external caller should call Place while in this state.
	Normalizing
	// Frozen is entered once DataBlocks or Read has been called on behalf
	// of final emission; further Place calls are a programming error.
	Frozen
)

// DataBlock is one placed interval's final position and payload, as
// returned by Engine.DataBlocks for output emission (spec.md §4.2).
type DataBlock struct {
	Begin int64
	Bytes []byte
}

// TailPlacement is one tail chunk re-anchored to the positive coordinate
// space by Engine.NormalizeTail. The caller must re-insert it via Place.
type TailPlacement struct {
	Start int64
	Chunk chunk.Chunk
}

// Engine places chunks into a coordinate space on behalf of a single build.
// It is not safe for concurrent use (spec.md §5: placement is
// single-threaded by design).
type Engine struct {
	idx   interval.Index
	bus   *hooks.Bus
	state State
}

// New returns an Engine in the Accepting state. bus may be nil if the
// caller does not need placing:chunk notifications (e.g. in unit tests that
// only exercise FindPosition).
func New(bus *hooks.Bus) *Engine {
	return &Engine{bus: bus, state: Accepting}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	return e.state
}

// Place records chunk as occupying [start, start+chunk.Size). It fails with
// ErrOverlap when the new interval intersects any existing one, and with
// ErrFrozen once the engine has emitted its byte view. Negative start values
// are permitted; they are resolved later by NormalizeTail.
//
// If start >= 0, Place fires hooks.PlacingChunk synchronously before
// returning (spec.md §4.4); tail chunks (negative start at the time they
// were first considered) only fire this once NormalizeTail's caller
// re-inserts them at their resolved positive coordinate.
func (e *Engine) Place(start int64, c chunk.Chunk) error {
	if e.state == Frozen {
		return errors.Wrap(ErrFrozen, "Place")
	}

	end := start + c.Size
	if e.idx.Overlaps(start, end) {
		return errors.Wrapf(ErrOverlap, "found overlapping chunk at position [%d,%d)", start, end)
	}

	e.idx.Insert(start, end, c)
	vlog.VI(2).Infof("layout: placed chunk kind=%v at [%d,%d) extra=%v", c.Kind, start, end, c.Extra)

	if start >= 0 && e.bus != nil {
		e.bus.Trigger(hooks.Event{Topic: hooks.PlacingChunk, Start: start, End: end, Chunk: c})
	}
	return nil
}

// FindPosition returns the lowest coordinate p such that lo <= p, p+size <=
// hi, and [p, p+size) does not overlap any currently placed interval, for a
// Flexible chunk's window. It fails with ErrNoFreeSpace if no such p exists
// (spec.md §4.2).
func (e *Engine) FindPosition(c chunk.Chunk) (int64, error) {
	if c.Kind != chunk.Flexible {
		return 0, errors.Wrap(ErrNotFlexible, "FindPosition")
	}

	lo := c.Pos.Win.Lo
	if !c.Pos.Win.LoSet {
		lo = e.idx.MinBegin()
	}
	unbounded := c.Pos.Win.Hi == nil
	var hi int64
	if unbounded {
		hi = e.idx.MaxEnd()
	} else {
		hi = *c.Pos.Win.Hi
	}

	candidateSet := map[int64]bool{lo: true}
	for _, end := range e.idx.EndpointsWithin(lo, hi) {
		candidateSet[end] = true
	}
	candidates := make([]int64, 0, len(candidateSet))
	for p := range candidateSet {
		candidates = append(candidates, p)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	vlog.VI(2).Infof("layout: searching %d candidates for flexible chunk size=%d window=[%d,%v)", len(candidates), c.Size, lo, c.Pos.Win.Hi)

	for _, p := range candidates {
		end := p + c.Size
		if !unbounded && end > hi {
			continue
		}
		if !e.idx.Overlaps(p, end) {
			return p, nil
		}
	}

	return 0, errors.Wrapf(ErrNoFreeSpace, "no free space for chunk of size %d in window starting at %d", c.Size, lo)
}

// NormalizeTail resolves every chunk whose placed start is negative ("tail
// chunks", spec.md's compact notation for "offset from end of file") to a
// positive coordinate, now that every positive-coordinate chunk is known.
//
// It (i) slices the index at coordinate 0 so no placed interval straddles
// the origin, (ii) removes every interval wholly in the negative half, and
// (iii) returns each removed interval re-anchored to the positive half at
// begin + (max_end - min(0, min_begin)). The caller must re-insert each
// returned chunk via Place.
func (e *Engine) NormalizeTail() ([]TailPlacement, error) {
	if e.state != Accepting {
		return nil, errors.Errorf("NormalizeTail called in state %v, want Accepting", e.state)
	}
	e.state = Normalizing
	defer func() { e.state = Accepting }()

	newFileSize := e.idx.MaxEnd() - min64(0, e.idx.MinBegin())
	e.idx.SliceAt(0)

	removed := e.idx.RemoveOverlap(e.idx.MinBegin(), 0)
	out := make([]TailPlacement, 0, len(removed))
	for _, entry := range removed {
		out = append(out, TailPlacement{Start: entry.Begin + newFileSize, Chunk: entry.Value})
	}
	return out, nil
}

// DataBlocks returns every placed interval's final position and payload, in
// ascending Begin order, for output emission. Calling it (or Read) freezes
// the engine: further Place calls return ErrFrozen.
func (e *Engine) DataBlocks() ([]DataBlock, error) {
	e.freeze()

	entries := e.idx.Entries()
	out := make([]DataBlock, 0, len(entries))
	for _, entry := range entries {
		payload, err := entry.Value.Payload()
		if err != nil {
			return nil, errors.Wrapf(err, "data block at %d", entry.Begin)
		}
		out = append(out, DataBlock{Begin: entry.Begin, Bytes: payload})
	}
	return out, nil
}

// Read materializes the output byte view over [start, end). Gaps between
// placed intervals, and any portion of the range outside the placed
// coordinate space, read as zero bytes (spec.md §4.3). Two consecutive
// Read calls without an intervening Place return identical bytes.
func (e *Engine) Read(start, end int64) ([]byte, error) {
	e.freeze()

	if end < start {
		return nil, errors.Errorf("Read: end %d before start %d", end, start)
	}

	out := make([]byte, 0, end-start)
	cursor := start
	for _, entry := range e.idx.Overlap(start, end) {
		if entry.Begin > cursor {
			out = append(out, make([]byte, entry.Begin-cursor)...)
			cursor = entry.Begin
		}
		payload, err := entry.Value.Payload()
		if err != nil {
			return nil, errors.Wrapf(err, "read at %d", entry.Begin)
		}
		lo := cursor - entry.Begin
		hi := min64(end, entry.End) - entry.Begin
		out = append(out, payload[lo:hi]...)
		cursor = min64(end, entry.End)
	}
	if cursor < end {
		out = append(out, make([]byte, end-cursor)...)
	}
	return out, nil
}

func (e *Engine) freeze() {
	if e.state != Frozen {
		e.state = Frozen
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
