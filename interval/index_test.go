package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polymixer/polymixer/chunk"
)

func TestInsertOverlap(t *testing.T) {
	var idx Index
	idx.Insert(0, 8, chunk.Chunk{})
	idx.Insert(16, 20, chunk.Chunk{})

	assert.True(t, idx.Overlaps(4, 12))
	assert.False(t, idx.Overlaps(8, 16)) // abutting, half-open
	assert.True(t, idx.Overlaps(19, 25))
}

func TestEntriesOrdering(t *testing.T) {
	var idx Index
	idx.Insert(20, 30, chunk.Chunk{})
	idx.Insert(0, 10, chunk.Chunk{})
	idx.Insert(10, 20, chunk.Chunk{})

	entries := idx.Entries()
	for i := 1; i < len(entries); i++ {
		assert.LessOrEqual(t, entries[i-1].Begin, entries[i].Begin)
	}
}

func TestSliceAt(t *testing.T) {
	var idx Index
	idx.Insert(-10, 10, chunk.Chunk{Extra: "tail"})

	idx.SliceAt(0)

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, int64(-10), idx.Entries()[0].Begin)
	assert.Equal(t, int64(0), idx.Entries()[0].End)
	assert.Equal(t, int64(0), idx.Entries()[1].Begin)
	assert.Equal(t, int64(10), idx.Entries()[1].End)
}

func TestRemoveOverlap(t *testing.T) {
	var idx Index
	idx.Insert(-10, 0, chunk.Chunk{})
	idx.Insert(0, 10, chunk.Chunk{})

	removed := idx.RemoveOverlap(idx.MinBegin(), 0)
	assert.Len(t, removed, 1)
	assert.Equal(t, int64(-10), removed[0].Begin)
	assert.Equal(t, 1, idx.Len())
}

func TestMinMaxSpan(t *testing.T) {
	var idx Index
	idx.Insert(5, 10, chunk.Chunk{})
	idx.Insert(-5, 0, chunk.Chunk{})

	assert.Equal(t, int64(-5), idx.MinBegin())
	assert.Equal(t, int64(10), idx.MaxEnd())
	assert.Equal(t, int64(15), idx.Span())
}

func TestEndpointsWithin(t *testing.T) {
	var idx Index
	idx.Insert(0, 4, chunk.Chunk{})
	idx.Insert(4, 8, chunk.Chunk{})
	idx.Insert(20, 24, chunk.Chunk{})

	ends := idx.EndpointsWithin(0, 20)
	assert.Equal(t, []int64{4, 8}, ends)
}
