// Package png splices a foreign payload into a PNG file as a private
// ancillary chunk, generalizing original_source/modules/png2.py's
// PNGHandler. Unlike png2.py (which assumed a fixed-size payload known up
// front), the injected chunk's declared length and CRC are both recomputed
// once the layout engine has finished placing everything that lands inside
// it, since that span may be filled by another producer's chunks entirely.
package png

import (
	"encoding/binary"
	"flag"
	"hash/crc32"

	"github.com/pkg/errors"
	"v.io/x/lib/vlog"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/producer"
	"github.com/polymixer/polymixer/source"
)

var pngSignature = [8]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// defaultChunkType is an ancillary, safe-to-copy PNG chunk type (lowercase
// first and fourth letters, uppercase third letter): readers that don't
// recognize it are required by the PNG spec to skip it. Its uppercase second
// letter marks it as public, not private, under PNG's naming rules.
const defaultChunkType = "pRIv"

type fakeHeaderExtra struct{}
type crcExtra struct{}

// Handler is the png producer.
type Handler struct {
	file      string
	chunkType string

	fakeHeader []byte // 8 bytes: big-endian length + 4-byte type
	crc        []byte // 4 bytes, patched once the wrapped span is known

	fakeHeaderPos int64
	haveFakePos   bool
	crcPos        int64
	haveCrcPos    bool
}

// New returns a fresh png producer.
func New() producer.Producer {
	return &Handler{chunkType: defaultChunkType}
}

// Params registers --png-file and --png-chunk-type.
func (h *Handler) Params(fs *flag.FlagSet) {
	fs.StringVar(&h.file, "png-file", "", "Specify the source PNG file.")
	fs.StringVar(&h.chunkType, "png-chunk-type", defaultChunkType, "Private ancillary chunk type to inject.")
}

// Setup wires up the two-stage patch: placing:chunk captures where the
// header and CRC trailer landed, placing:complete reads back the bytes in
// between (via bus's Reader) and fills in the real length and CRC32.
func (h *Handler) Setup(args *producer.Args, bus *hooks.Bus) error {
	h.fakeHeader = make([]byte, 8)
	copy(h.fakeHeader[4:8], h.chunkType)
	h.crc = make([]byte, 4)

	bus.Register(hooks.PlacingChunk, func(ev hooks.Event) {
		switch ev.Chunk.Extra.(type) {
		case fakeHeaderExtra:
			h.fakeHeaderPos = ev.Start
			h.haveFakePos = true
		case crcExtra:
			h.crcPos = ev.Start
			h.haveCrcPos = true
		}
	})

	bus.Register(hooks.PlacingComplete, func(ev hooks.Event) {
		if err := h.finalize(ev.Engine); err != nil {
			vlog.Errorf("png: finalizing injected chunk: %v", err)
		}
	})

	return nil
}

// finalize computes the injected chunk's declared length and CRC32 once the
// layout is frozen: everything between the end of the header (8 bytes past
// fakeHeaderPos) and the start of the trailing CRC chunk belongs to it.
func (h *Handler) finalize(r hooks.Reader) error {
	if !h.haveFakePos || !h.haveCrcPos {
		return errors.New("png: fake header or crc chunk never placed")
	}

	dataStart := h.fakeHeaderPos + 8
	length := h.crcPos - dataStart
	if length < 0 {
		return errors.New("png: crc chunk placed before its own header")
	}
	binary.BigEndian.PutUint32(h.fakeHeader[0:4], uint32(length))

	body, err := r.Read(dataStart, h.crcPos)
	if err != nil {
		return errors.Wrap(err, "png: reading wrapped span")
	}
	binary.BigEndian.PutUint32(h.crc, crc32Of(h.chunkType, body))
	return nil
}

// Chunks splits the PNG file into: the 8-byte signature, the IHDR chunk
// verbatim, a fixed 8-byte injected chunk header, a flexible trailing CRC
// placeholder (the window between header and CRC is where other producers'
// chunks are free to land), and the remaining original chunks, each
// flexible except IEND which stays a fixed tail chunk so the file remains a
// valid PNG regardless of how the smuggled span grows.
func (h *Handler) Chunks() ([]chunk.Chunk, error) {
	f, err := source.Open(h.file)
	if err != nil {
		return nil, errors.Wrapf(err, "png: opening %s", h.file)
	}
	data := f.Data
	if len(data) < 8+8 {
		return nil, errors.New("png: file too small")
	}
	for i, b := range pngSignature {
		if data[i] != b {
			return nil, errors.New("png: missing PNG signature")
		}
	}

	ihdrLen := int64(binary.BigEndian.Uint32(data[8:12]))
	ihdrEnd := int64(8 + 4 + 4 + ihdrLen + 4)
	if ihdrEnd > int64(len(data)) {
		return nil, errors.New("png: IHDR chunk truncated")
	}

	chunks := []chunk.Chunk{
		{Kind: chunk.Fixed, Pos: chunk.AtPosition(0), Size: 8, Data: data},
		{Kind: chunk.Fixed, Pos: chunk.AtPosition(8), Size: ihdrEnd - 8, Offset: 8, Data: data},
		{Kind: chunk.Fixed, Pos: chunk.AtPosition(ihdrEnd), Size: 8, Data: h.fakeHeader, Extra: fakeHeaderExtra{}},
	}

	chunks = append(chunks, chunk.Chunk{
		Kind: chunk.Flexible, Pos: chunk.InWindow(ihdrEnd+8, true, nil), Size: 4, Data: h.crc, Extra: crcExtra{},
	})

	pos := ihdrEnd
	for pos < int64(len(data)) {
		if pos+8 > int64(len(data)) {
			return nil, errors.New("png: truncated chunk header")
		}
		size := int64(binary.BigEndian.Uint32(data[pos : pos+4]))
		header := string(data[pos+4 : pos+8])
		total := 8 + size + 4
		if pos+total > int64(len(data)) {
			return nil, errors.New("png: truncated chunk body")
		}

		if header == "IEND" {
			chunks = append(chunks, chunk.Chunk{Kind: chunk.Fixed, Pos: chunk.AtPosition(-total), Size: total, Offset: pos, Data: data})
		} else {
			chunks = append(chunks, chunk.Chunk{Kind: chunk.Flexible, Pos: chunk.InWindow(pos, true, nil), Size: total, Offset: pos, Data: data})
		}

		pos += total
	}

	return chunks, nil
}

// crc32Of computes the PNG CRC over a chunk's type and data fields (IEEE
// polynomial, per the PNG spec).
func crc32Of(chunkType string, body []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write([]byte(chunkType))
	h.Write(body)
	return h.Sum32()
}
