package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polymixer/polymixer/producer"
)

func TestSetupNotImplemented(t *testing.T) {
	h := New()
	err := h.Setup(&producer.Args{}, nil)
	assert.Equal(t, producer.ErrNotImplemented, err)
}

func TestChunksFixture(t *testing.T) {
	h := New()
	chunks, err := h.Chunks()
	require.NoError(t, err)
	assert.Len(t, chunks, 6)
}
