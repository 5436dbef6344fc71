// Package zip builds flexible chunks for every local file header of an
// existing ZIP archive plus a fixed tail chunk for its central directory,
// translated from original_source/modules/zip.py's ZIPHandler. The central
// directory's per-entry relative-offset fields and the end-of-central-
// directory's own offset field are patched in place from a placing:chunk
// subscriber once the layout engine has decided where each local file
// header actually lands.
package zip

import (
	"encoding/binary"
	"flag"

	"github.com/pkg/errors"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/producer"
	"github.com/polymixer/polymixer/source"
)

var (
	lfhSignature  = [4]byte{0x50, 0x4b, 0x03, 0x04}
	cdfhSignature = [4]byte{0x50, 0x4b, 0x01, 0x02}
	eocdSignature = [4]byte{0x50, 0x4b, 0x05, 0x06}
	ddSignature   = [4]byte{0x50, 0x4b, 0x07, 0x08}
)

// localFileHeader mirrors zip.py's LocalFileHeader, minus the fields Go
// never reads back (version/time/date/crc/filename bytes themselves).
type localFileHeader struct {
	pos              int64 // offset of this local file header within data
	cdfhPos          int64 // offset of the matching CDFH entry, for patch-back
	flags            uint16
	compressedSize   uint32
	filenameLength   uint16
	extraLength      uint16
	dataDescriptorSz int64
}

// Size reproduces LocalFileHeader.size(): the on-disk span occupied by this
// local file header, its filename/extra fields, compressed payload, and any
// trailing data descriptor (PKZIP APPNOTE 4.3.9, general purpose bit 3).
func (l *localFileHeader) Size() int64 {
	return 30 + int64(l.filenameLength) + int64(l.extraLength) + int64(l.compressedSize) + l.dataDescriptorSz
}

func parseLocalFileHeader(cdfhPos, pos int64, data []byte) (*localFileHeader, error) {
	if len(data) < 30 || data[0] != lfhSignature[0] || data[1] != lfhSignature[1] || data[2] != lfhSignature[2] || data[3] != lfhSignature[3] {
		return nil, errors.New("zip: local file header signature not found")
	}
	return &localFileHeader{
		pos:            pos,
		cdfhPos:        cdfhPos,
		flags:          binary.LittleEndian.Uint16(data[6:8]),
		compressedSize: binary.LittleEndian.Uint32(data[18:22]),
		filenameLength: binary.LittleEndian.Uint16(data[26:28]),
		extraLength:    binary.LittleEndian.Uint16(data[28:30]),
	}, nil
}

// addDataDescriptor reproduces LocalFileHeader.add_data_descriptor: a
// streamed entry (general purpose bit 3 set) stores CRC/sizes after the
// compressed data instead of in the local file header, optionally preceded
// by an optional 'PK\x07\x08' signature.
func (l *localFileHeader) addDataDescriptor(data []byte) {
	l.dataDescriptorSz = 12
	o := 0
	if len(data) >= 4 && data[0] == ddSignature[0] && data[1] == ddSignature[1] && data[2] == ddSignature[2] && data[3] == ddSignature[3] {
		o = 4
		l.dataDescriptorSz += 4
	}
	l.compressedSize = binary.LittleEndian.Uint32(data[o+4 : o+8])
}

// centralDirectoryFileHeader mirrors zip.py's CentralDirectoryFileHeader.
type centralDirectoryFileHeader struct {
	pos            int64
	compressedSize uint32
	filenameLength uint16
	extraLength    uint16
	commentLength  uint16
	relativeOffset uint32
}

func (c *centralDirectoryFileHeader) Size() int64 {
	return 46 + int64(c.filenameLength) + int64(c.extraLength) + int64(c.commentLength)
}

func parseCentralDirectoryFileHeader(pos int64, data []byte) (*centralDirectoryFileHeader, error) {
	if len(data) < 46 || data[0] != cdfhSignature[0] || data[1] != cdfhSignature[1] || data[2] != cdfhSignature[2] || data[3] != cdfhSignature[3] {
		return nil, errors.New("zip: central directory file header signature not found")
	}
	return &centralDirectoryFileHeader{
		pos:            pos,
		compressedSize: binary.LittleEndian.Uint32(data[20:24]),
		filenameLength: binary.LittleEndian.Uint16(data[28:30]),
		extraLength:    binary.LittleEndian.Uint16(data[30:32]),
		commentLength:  binary.LittleEndian.Uint16(data[32:34]),
		relativeOffset: binary.LittleEndian.Uint32(data[42:46]),
	}, nil
}

// endOfCentralDirectory mirrors zip.py's EndOfCentralDirectoryRecord.
type endOfCentralDirectory struct {
	pos          int64
	totalEntries uint16
	offset       uint32
	size         uint32
}

func parseEOCD(pos int64, data []byte) (*endOfCentralDirectory, error) {
	if len(data) < 22 || data[0] != eocdSignature[0] || data[1] != eocdSignature[1] || data[2] != eocdSignature[2] || data[3] != eocdSignature[3] {
		return nil, errors.New("zip: end of central directory signature not found")
	}
	return &endOfCentralDirectory{
		pos:          pos,
		totalEntries: binary.LittleEndian.Uint16(data[10:12]),
		size:         binary.LittleEndian.Uint32(data[12:16]),
		offset:       binary.LittleEndian.Uint32(data[16:20]),
	}, nil
}

// Handler is the zip producer.
type Handler struct {
	file        string
	firstHeader bool

	directoryChunk *chunk.Chunk
}

// New returns a fresh zip producer.
func New() producer.Producer {
	return &Handler{}
}

// Params registers --zip-file and --zip-first-header.
func (h *Handler) Params(fs *flag.FlagSet) {
	fs.StringVar(&h.file, "zip-file", "", "Specify a file and its arguments.")
	fs.BoolVar(&h.firstHeader, "zip-first-header", false, "If set the zip content starts at position zero.")
}

// Setup registers the placing:chunk patcher that keeps central-directory
// offsets in sync with where the layout engine actually places each local
// file header and the central directory itself.
func (h *Handler) Setup(args *producer.Args, bus *hooks.Bus) error {
	bus.Register(hooks.PlacingChunk, func(ev hooks.Event) {
		switch extra := ev.Chunk.Extra.(type) {
		case *localFileHeader:
			if h.directoryChunk == nil {
				return
			}
			pos := extra.cdfhPos
			binary.LittleEndian.PutUint32(h.directoryChunk.Data[pos+42:pos+46], uint32(ev.Start))
		case *endOfCentralDirectory:
			binary.LittleEndian.PutUint32(ev.Chunk.Data[extra.pos+16:extra.pos+20], uint32(ev.Start))
		}
	})
	return nil
}

// Chunks parses the ZIP archive's central directory and local file headers,
// emitting one flexible chunk per entry (unconstrained window, following
// zip.py's position=(0, None)) and one fixed tail chunk for the central
// directory plus end-of-central-directory record. With --zip-first-header
// the first entry's chunk is fixed at position 0 instead.
func (h *Handler) Chunks() ([]chunk.Chunk, error) {
	f, err := source.Open(h.file)
	if err != nil {
		return nil, errors.Wrapf(err, "zip: opening %s", h.file)
	}
	data := f.Data
	filesize := int64(len(data))

	eocd, err := h.findEOCD(data)
	if err != nil {
		return nil, err
	}

	headers, err := h.readLocalFileHeaders(data, eocd)
	if err != nil {
		return nil, err
	}

	chunks := make([]chunk.Chunk, 0, len(headers)+1)
	for i, lfh := range headers {
		c := chunk.Chunk{
			Kind:   chunk.Flexible,
			Pos:    chunk.InWindow(0, true, nil),
			Size:   lfh.Size(),
			Offset: lfh.pos,
			Data:   data,
			Extra:  lfh,
			Module: h,
		}
		if h.firstHeader && i == 0 {
			c.Kind = chunk.Fixed
			c.Pos = chunk.AtPosition(0)
		}
		chunks = append(chunks, c)
	}

	footerSize := filesize - int64(eocd.offset)
	directoryChunk := chunk.Chunk{
		Kind:   chunk.Fixed,
		Pos:    chunk.AtPosition(-footerSize),
		Size:   footerSize,
		Offset: int64(eocd.offset),
		Data:   data,
		Extra:  eocd,
		Module: h,
	}
	h.directoryChunk = &directoryChunk
	chunks = append(chunks, directoryChunk)

	return chunks, nil
}

// findEOCD reproduces ZIPHandler._parse_eocd: scan the last min(65558,
// filesize) bytes backward for the EOCD signature (it may be preceded by an
// arbitrary-length comment field).
func (h *Handler) findEOCD(data []byte) (*endOfCentralDirectory, error) {
	filesize := int64(len(data))
	footerSize := int64(65536 + 22)
	if footerSize > filesize {
		footerSize = filesize
	}
	base := filesize - footerSize
	footer := data[base:]

	for pos := len(footer) - 22; pos >= 0; pos-- {
		if pos+4 <= len(footer) && footer[pos] == eocdSignature[0] && footer[pos+1] == eocdSignature[1] && footer[pos+2] == eocdSignature[2] && footer[pos+3] == eocdSignature[3] {
			return parseEOCD(base+int64(pos), footer[pos:pos+22])
		}
	}
	return nil, errors.New("zip: EOCD signature not found")
}

// readLocalFileHeaders reproduces ZIPHandler._get_files: walk the central
// directory entry by entry, following each CDFH's relative offset to the
// matching local file header and resolving any trailing data descriptor.
func (h *Handler) readLocalFileHeaders(data []byte, eocd *endOfCentralDirectory) ([]*localFileHeader, error) {
	offset := int64(eocd.offset)
	headers := make([]*localFileHeader, 0, eocd.totalEntries)

	for i := 0; i < int(eocd.totalEntries); i++ {
		if offset+46 > int64(len(data)) {
			return nil, errors.New("zip: central directory truncated")
		}
		cdfh, err := parseCentralDirectoryFileHeader(offset, data[offset:offset+46])
		if err != nil {
			return nil, err
		}

		lfhPos := int64(cdfh.relativeOffset)
		if lfhPos+30 > int64(len(data)) {
			return nil, errors.New("zip: local file header truncated")
		}
		lfh, err := parseLocalFileHeader(offset, lfhPos, data[lfhPos:lfhPos+30])
		if err != nil {
			return nil, err
		}

		if lfh.flags&8 > 0 {
			ddStart := lfhPos + 30 + int64(lfh.filenameLength) + int64(lfh.extraLength) + int64(cdfh.compressedSize)
			if ddStart+16 > int64(len(data)) {
				return nil, errors.New("zip: data descriptor truncated")
			}
			lfh.addDataDescriptor(data[ddStart : ddStart+16])
		}

		headers = append(headers, lfh)
		offset += cdfh.Size()
	}

	return headers, nil
}
