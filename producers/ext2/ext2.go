// Package ext2 carves out the used-space regions of an ext2 filesystem
// image around a badblocks list, translated from
// original_source/modules/ext2.py's Ext2Handler. badblocks output is
// nominally already sorted ascending, but this producer doesn't assume
// that: block numbers are fed through a github.com/biogo/store/llrb tree
// so out-of-order or duplicate entries from a hand-edited badblocks file
// still produce correctly merged, non-overlapping used-space chunks.
package ext2

import (
	"bufio"
	"flag"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/biogo/store/llrb"
	"github.com/pkg/errors"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/producer"
	"github.com/polymixer/polymixer/source"
)

// blockNumber wraps a badblock number so it can be ordered by llrb.Tree.
type blockNumber int64

func (b blockNumber) Compare(other llrb.Comparable) int {
	o := other.(blockNumber)
	switch {
	case b < o:
		return -1
	case b > o:
		return 1
	default:
		return 0
	}
}

// Handler is the ext2 producer.
type Handler struct {
	file          string
	badblocksFile string
	blocksizeStr  string
	blocksize     int64
}

// New returns a fresh ext2 producer.
func New() producer.Producer {
	return &Handler{}
}

// Params registers --ext2-file, --ext2-badblocks-file and --ext2-blocksize.
func (h *Handler) Params(fs *flag.FlagSet) {
	fs.StringVar(&h.file, "ext2-file", "", "Specify a file and its arguments.")
	fs.StringVar(&h.badblocksFile, "ext2-badblocks-file", "", "Specify a file and its arguments.")
	fs.StringVar(&h.blocksizeStr, "ext2-blocksize", "", "Specify a block size.")
}

// Setup parses --ext2-blocksize; this producer has no hooks to register.
func (h *Handler) Setup(args *producer.Args, bus *hooks.Bus) error {
	size, err := strconv.ParseInt(h.blocksizeStr, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "ext2: invalid --ext2-blocksize %q", h.blocksizeStr)
	}
	h.blocksize = size
	return nil
}

// Chunks returns one fixed chunk per contiguous used-space run, computed by
// subtracting every badblock (plus a two-block safety margin on either
// side, matching ext2.py's "size + 2*blocksize" padding) from [1024,
// filesize).
func (h *Handler) Chunks() ([]chunk.Chunk, error) {
	f, err := source.Open(h.file)
	if err != nil {
		return nil, errors.Wrapf(err, "ext2: opening %s", h.file)
	}
	data := f.Data
	filesize := int64(len(data))

	blocks, err := h.readBadblocks()
	if err != nil {
		return nil, err
	}

	var chunks []chunk.Chunk
	start := int64(1024)
	blocks.Do(func(item llrb.Comparable) bool {
		block := int64(item.(blockNumber))
		size := block*h.blocksize - start
		if size > 0 {
			chunks = append(chunks, chunk.Chunk{
				Kind: chunk.Fixed, Pos: chunk.AtPosition(start), Size: size + 2*h.blocksize, Offset: start, Data: data,
			})
		}
		start = (block + 1) * h.blocksize
		return true
	})

	if size := filesize - start; size > 0 {
		chunks = append(chunks, chunk.Chunk{
			Kind: chunk.Fixed, Pos: chunk.AtPosition(start), Size: size, Offset: start, Data: data,
		})
	}

	return chunks, nil
}

func (h *Handler) readBadblocks() (*llrb.Tree, error) {
	f, err := os.Open(h.badblocksFile)
	if err != nil {
		return nil, errors.Wrapf(err, "ext2: opening %s", h.badblocksFile)
	}
	defer f.Close()

	tree := &llrb.Tree{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "ext2: parsing badblock %q", line)
		}
		tree.Insert(blockNumber(n))
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "ext2: reading badblocks file")
	}
	return tree, nil
}
