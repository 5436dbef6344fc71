package interval

import (
	"sort"

	"github.com/polymixer/polymixer/chunk"
)

// Entry is one stored half-open interval [Begin, End) and the chunk it was
// placed for.
type Entry struct {
	Begin int64
	End   int64
	Value chunk.Chunk
}

// Index is an ordered set of disjoint half-open integer intervals, each
// carrying a chunk.Chunk value, kept sorted by Begin. It is the Go
// realization of spec.md §3's "interval index" and backs layout.Engine.
//
// Overlap predicates use strict half-open semantics: abutting intervals
// [0,5) and [5,10) do not overlap (spec.md §4.1).
type Index struct {
	entries []Entry
}

// searchBegin returns the index of the first entry with Begin >= x, using
// binary search over the Begin-sorted slice — the same technique as this
// package's ancestor's SearchPosTypes, generalized from endpoint positions
// to interval starts.
func (idx *Index) searchBegin(x int64) int {
	return sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].Begin >= x
	})
}

// Insert adds a new interval. The caller is expected to have verified
// non-overlap with the current set via Overlaps first; Insert itself does
// not check, matching spec.md §4.1's contract (the layout engine performs
// the overlap query before calling Insert).
func (idx *Index) Insert(begin, end int64, value chunk.Chunk) {
	pos := idx.searchBegin(begin)
	idx.entries = append(idx.entries, Entry{})
	copy(idx.entries[pos+1:], idx.entries[pos:])
	idx.entries[pos] = Entry{Begin: begin, End: end, Value: value}
}

// Overlaps reports whether any stored interval intersects [begin, end).
func (idx *Index) Overlaps(begin, end int64) bool {
	for _, e := range idx.entries {
		if e.Begin < end && begin < e.End {
			return true
		}
	}
	return false
}

// Overlap returns every stored interval that intersects [begin, end), in
// ascending Begin order.
func (idx *Index) Overlap(begin, end int64) []Entry {
	var out []Entry
	for _, e := range idx.entries {
		if e.Begin < end && begin < e.End {
			out = append(out, e)
		}
	}
	return out
}

// SliceAt replaces any stored interval [a,b) with a < x < b by the pair
// [a,x), [x,b), both carrying the original value. Used by
// layout.Engine.NormalizeTail to guarantee no placed interval straddles the
// origin once tail chunks are re-anchored.
func (idx *Index) SliceAt(x int64) {
	var out []Entry
	changed := false
	for _, e := range idx.entries {
		if e.Begin < x && x < e.End {
			out = append(out, Entry{Begin: e.Begin, End: x, Value: e.Value})
			out = append(out, Entry{Begin: x, End: e.End, Value: e.Value})
			changed = true
		} else {
			out = append(out, e)
		}
	}
	if changed {
		sort.Slice(out, func(i, j int) bool { return out[i].Begin < out[j].Begin })
		idx.entries = out
	}
}

// RemoveOverlap deletes every stored interval intersecting [begin, end) and
// returns them in ascending Begin order.
func (idx *Index) RemoveOverlap(begin, end int64) []Entry {
	var removed []Entry
	kept := idx.entries[:0]
	for _, e := range idx.entries {
		if e.Begin < end && begin < e.End {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	idx.entries = kept
	return removed
}

// MinBegin returns the smallest Begin among stored intervals, or 0 if empty.
func (idx *Index) MinBegin() int64 {
	if len(idx.entries) == 0 {
		return 0
	}
	return idx.entries[0].Begin
}

// MaxEnd returns the largest End among stored intervals, or 0 if empty.
func (idx *Index) MaxEnd() int64 {
	var max int64
	for _, e := range idx.entries {
		if e.End > max {
			max = e.End
		}
	}
	return max
}

// Span returns MaxEnd() - MinBegin().
func (idx *Index) Span() int64 {
	return idx.MaxEnd() - idx.MinBegin()
}

// Len returns the number of stored intervals.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Entries returns the stored intervals in ascending Begin order. The
// returned slice must not be mutated by the caller.
func (idx *Index) Entries() []Entry {
	return idx.entries
}

// EndpointsWithin returns, in ascending order, the End coordinate of every
// stored interval overlapping [lo, hi) whose End is <= hi. This is the
// candidate-position source for layout.Engine.FindPosition's placement
// algorithm (spec.md §4.2 step 2).
func (idx *Index) EndpointsWithin(lo, hi int64) []int64 {
	var out []int64
	for _, e := range idx.Overlap(lo, hi) {
		if e.End <= hi {
			out = append(out, e.End)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
