// Package orchestrator runs the full build pipeline: collect every
// selected producer's chunks, place them through the layout engine, fire
// the placement hooks, and emit the output file. It is the Go realization
// of original_source/main.py's module-level script, restructured as a
// reusable Build function (spec.md §4.5).
package orchestrator

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blainsmith/seahash"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/layout"
	"github.com/polymixer/polymixer/producer"
)

// Config controls one Build invocation.
type Config struct {
	// OutputPath is the file Build writes the composite polyglot to.
	OutputPath string
	// DebugManifestPath, if non-empty, receives a line-oriented dump of
	// every placed interval. Snappy-framed when the path ends in
	// ".snappy" (not present in original_source/main.py; see SPEC_FULL.md).
	DebugManifestPath string
}

// Build runs the pipeline for producers, in the order given (CLI module
// order, spec.md §4.5 step 1): run Setup on every producer against a shared
// hook bus, collect chunks, partition fixed/flexible, place fixed chunks
// first, then flexible chunks by lowest fit, resolve tail chunks, fire
// placing:complete, write the output with cryptographically random gap
// filler, and fire writing:finish.
//
// Setup is called here, not by the caller, because every producer's hook
// subscriptions (ZIP's central-directory patch, PNG's CRC recompute,
// TrueCrypt/VeraCrypt's header re-keying) must be registered on the exact
// bus instance the layout engine triggers events on.
func Build(producers []producer.Producer, args *producer.Args, cfg Config) error {
	bus := hooks.NewBus()
	engine := layout.New(bus)

	for _, p := range producers {
		if err := p.Setup(args, bus); err != nil && errors.Cause(err) != producer.ErrNotImplemented {
			return errors.Wrap(err, "orchestrator: setting up producer")
		}
	}

	var all []chunk.Chunk
	for _, p := range producers {
		cs, err := p.Chunks()
		if err != nil {
			return errors.Wrap(err, "orchestrator: collecting chunks")
		}
		all = append(all, cs...)
	}

	fixed, flexible := chunk.Partition(all)

	for _, c := range fixed {
		if err := engine.Place(c.Pos.At, c); err != nil {
			return errors.Wrap(err, "orchestrator: placing fixed chunk")
		}
	}

	for _, c := range flexible {
		pos, err := engine.FindPosition(c)
		if err != nil {
			return errors.Wrap(err, "orchestrator: finding position for flexible chunk")
		}
		if err := engine.Place(pos, c); err != nil {
			return errors.Wrap(err, "orchestrator: placing flexible chunk")
		}
	}

	tails, err := engine.NormalizeTail()
	if err != nil {
		return errors.Wrap(err, "orchestrator: normalizing tail chunks")
	}
	for _, t := range tails {
		if err := engine.Place(t.Start, t.Chunk); err != nil {
			return errors.Wrap(err, "orchestrator: re-placing tail chunk")
		}
	}

	bus.Trigger(hooks.Event{Topic: hooks.PlacingComplete, Engine: engine})

	if cfg.DebugManifestPath != "" {
		if err := writeDebugManifest(engine, cfg.DebugManifestPath); err != nil {
			return errors.Wrap(err, "orchestrator: writing debug manifest")
		}
	}

	fingerprint, err := writeOutput(engine, cfg.OutputPath)
	if err != nil {
		return errors.Wrap(err, "orchestrator: writing output")
	}
	vlog.Infof("orchestrator: wrote %s fingerprint=%016x", cfg.OutputPath, fingerprint)

	bus.Trigger(hooks.Event{Topic: hooks.WritingFinish, OutputPath: cfg.OutputPath})

	return nil
}

// writeOutput materializes engine's placed chunks to path, filling every
// gap between them with cryptographically random bytes (spec.md's Open
// Question on gap content, decided in DESIGN.md in favor of random over
// zero fill, unlike layout.Engine.Read's zero-filled view used by hooks).
// It returns a seahash fingerprint of the bytes written.
func writeOutput(engine *layout.Engine, path string) (uint64, error) {
	blocks, err := engine.DataBlocks()
	if err != nil {
		return 0, errors.Wrap(err, "collecting data blocks")
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	fp := seahash.New()
	w := io.MultiWriter(f, fp)

	var cursor int64
	for _, b := range blocks {
		if b.Begin > cursor {
			gap := make([]byte, b.Begin-cursor)
			if _, err := rand.Read(gap); err != nil {
				return 0, errors.Wrap(err, "filling gap with random bytes")
			}
			if _, err := w.Write(gap); err != nil {
				return 0, errors.Wrap(err, "writing gap bytes")
			}
			cursor = b.Begin
		}
		if _, err := w.Write(b.Bytes); err != nil {
			return 0, errors.Wrap(err, "writing chunk bytes")
		}
		cursor = b.Begin + int64(len(b.Bytes))
	}

	return fp.Sum64(), nil
}

// writeDebugManifest dumps every placed interval's begin/end/size to path,
// one line per interval, optionally snappy-framed, so a build can be
// sanity-checked for overlap-free placement without a hex editor.
func writeDebugManifest(engine *layout.Engine, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	var w io.Writer = f
	if strings.HasSuffix(path, ".snappy") {
		sw := snappy.NewBufferedWriter(f)
		defer sw.Close()
		w = sw
	}

	blocks, err := engine.DataBlocks()
	if err != nil {
		return errors.Wrap(err, "collecting data blocks")
	}
	for _, b := range blocks {
		line := fmt.Sprintf("%d\t%d\t%d\n", b.Begin, b.Begin+int64(len(b.Bytes)), len(b.Bytes))
		if _, err := io.WriteString(w, line); err != nil {
			return errors.Wrap(err, "writing manifest line")
		}
	}
	return nil
}
