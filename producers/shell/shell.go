// Package shell builds the self-extracting shell-script prefix, translated
// from original_source/modules/shell.py's ShellHandler: a fixed 64-byte
// header chunk whose content ("tail -c+N $0|bash") can only be computed
// once the script payload's final start position is known, so it is filled
// in from a placing:complete subscriber.
package shell

import (
	"flag"
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/producer"
)

const headerSize = 64

// scriptExtra tags the flexible payload chunk so the header can find where
// it landed.
type scriptExtra struct{}

// Handler is the shell producer.
type Handler struct {
	file   string
	header []byte
	pos    int64
}

// New returns a fresh shell producer.
func New() producer.Producer {
	return &Handler{}
}

// Params registers --shell-file.
func (h *Handler) Params(fs *flag.FlagSet) {
	fs.StringVar(&h.file, "shell-file", "", "Specify a file and its arguments.")
}

// Setup registers for placing:chunk (to observe the payload's start) and
// placing:complete (to write the header once that position is final).
func (h *Handler) Setup(args *producer.Args, bus *hooks.Bus) error {
	h.header = make([]byte, headerSize)

	bus.Register(hooks.PlacingChunk, func(ev hooks.Event) {
		if _, ok := ev.Chunk.Extra.(scriptExtra); ok {
			h.pos = ev.Start
		}
	})
	bus.Register(hooks.PlacingComplete, func(hooks.Event) {
		script := fmt.Sprintf("#!/bin/bash\ntail -c+%d $0|bash\nexit\n", h.pos+1)
		copy(h.header, script)
	})

	return nil
}

// Chunks returns the fixed header chunk and a flexible chunk carrying the
// wrapped script payload ('\nexit\n' appended, as in the Python original).
func (h *Handler) Chunks() ([]chunk.Chunk, error) {
	data, err := ioutil.ReadFile(h.file)
	if err != nil {
		return nil, errors.Wrapf(err, "shell: reading %s", h.file)
	}
	data = append(data, []byte("\nexit\n")...)

	return []chunk.Chunk{
		{Kind: chunk.Fixed, Pos: chunk.AtPosition(0), Size: headerSize, Data: h.header},
		{Kind: chunk.Flexible, Pos: chunk.InWindow(0, true, nil), Size: int64(len(data)), Data: data, Extra: scriptExtra{}},
	}, nil
}
