// Package random generates synthetic fixed/flexible filler chunks,
// translated from original_source/modules/random.py's RandomHandler. It is
// used for seed/scenario testing of the layout engine independent of any
// real container format, not for the orchestrator's own gap-filling (that
// is step 8 of the algorithm in spec.md §4.5, unrelated to this producer).
package random

import (
	"flag"
	"math/rand"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/producer"
)

const fillerSize = 1024 * 1024

// Handler is the random producer.
type Handler struct {
	rng      *rand.Rand
	minCount int
	maxCount int
}

// New returns a fresh random producer seeded with the fixed seed 1, so it
// yields the same chunks on every run. Tests that want a different sequence
// set Handler.rng directly.
func New() producer.Producer {
	return &Handler{rng: rand.New(rand.NewSource(1)), minCount: 16, maxCount: 64}
}

// Params registers no flags: original_source/modules/random.py's param is
// also a no-op.
func (h *Handler) Params(fs *flag.FlagSet) {}

// Setup is a no-op; this producer has no external state to capture.
func (h *Handler) Setup(args *producer.Args, bus *hooks.Bus) error {
	return nil
}

// Chunks returns a random mix of fixed and flexible filler chunks, each
// built from a shared 1MiB 'R' buffer and placed contiguously (with small
// gaps) starting at offset 512, then shuffled — mirroring
// original_source/modules/random.py exactly, including the shuffle (which
// exercises the orchestrator's fixed-before-flexible partitioning rather
// than relying on generation order).
func (h *Handler) Chunks() ([]chunk.Chunk, error) {
	data := make([]byte, fillerSize)
	for i := range data {
		data[i] = 'R'
	}

	count := h.minCount + h.rng.Intn(h.maxCount-h.minCount+1)
	chunks := make([]chunk.Chunk, 0, count)
	lastPos := int64(512)

	for i := 0; i < count; i++ {
		pos := lastPos + int64(1+h.rng.Intn(512))
		size := int64(1 + h.rng.Intn(512))

		var c chunk.Chunk
		if h.rng.Intn(2) == 0 {
			c = chunk.Chunk{Kind: chunk.Fixed, Pos: chunk.AtPosition(pos), Size: size, Data: data}
		} else {
			pos2 := pos + int64(1+h.rng.Intn(512))
			hi := pos2
			c = chunk.Chunk{Kind: chunk.Flexible, Pos: chunk.InWindow(pos, true, &hi), Size: size, Data: data}
		}

		lastPos = pos + size
		chunks = append(chunks, c)
	}

	h.rng.Shuffle(len(chunks), func(i, j int) { chunks[i], chunks[j] = chunks[j], chunks[i] })

	return chunks, nil
}
