// Package pdf is a stub producer, translated from
// original_source/modules/pdf.py: a fixed layout of literal byte ranges
// that can be fed to the layout engine without a real PDF file. Real
// PDF-aware chunk extraction was never implemented upstream; Setup returns
// producer.ErrNotImplemented, matching the Python placeholder.
package pdf

import (
	"flag"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/producer"
)

// Handler is the pdf producer.
type Handler struct {
	file string
}

// New returns a fresh pdf producer.
func New() producer.Producer {
	return &Handler{}
}

// Params registers --pdf-file.
func (h *Handler) Params(fs *flag.FlagSet) {
	fs.StringVar(&h.file, "pdf-file", "", "Specify a file and its arguments.")
}

// Setup always fails: this producer is a fixture generator, not a real PDF
// parser (original_source/modules/pdf.py never implemented one either).
func (h *Handler) Setup(args *producer.Args, bus *hooks.Bus) error {
	return producer.ErrNotImplemented
}

// Chunks returns the fixed literal-byte-range fixture from
// original_source/modules/pdf.py's get_chunks, useful for exercising the
// layout engine without needing a real PDF file on disk.
func (h *Handler) Chunks() ([]chunk.Chunk, error) {
	data := make([]byte, 3000)
	for i := range data {
		data[i] = 'P'
	}

	i64 := func(v int64) *int64 { return &v }

	return []chunk.Chunk{
		{Kind: chunk.Fixed, Pos: chunk.AtPosition(100), Size: 100, Offset: 10, Data: data},
		{Kind: chunk.Fixed, Pos: chunk.AtPosition(1000), Size: 100, Offset: 100, Data: data},
		{Kind: chunk.Flexible, Pos: chunk.InWindow(1000, true, i64(1900)), Size: 100, Offset: 120, Data: data},
		{Kind: chunk.Flexible, Pos: chunk.InWindow(1000, true, i64(1900)), Size: 300, Offset: 120, Data: data},
		{Kind: chunk.Flexible, Pos: chunk.InWindow(1800, true, i64(2200)), Size: 200, Offset: 120, Data: data},
		{Kind: chunk.Fixed, Pos: chunk.AtPosition(2300), Size: 100, Offset: 200, Data: data},
	}, nil
}
