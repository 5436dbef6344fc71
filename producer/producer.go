// Package producer defines the contract every polymixer format module
// implements, translated from original_source/file_handler.py's FileHandler
// abstract base class (spec.md §6 "Producer contract").
package producer

import (
	"flag"

	"github.com/pkg/errors"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
)

// ErrNotImplemented is returned by Setup on stub producers (e.g. pdf) that
// exist only to exercise the contract, matching original_source/modules/
// pdf.py's placeholder `raise Exception("Not implemented yet")`.
var ErrNotImplemented = errors.New("not implemented")

// Args is the parsed CLI argument set passed to every producer's Setup. It
// wraps the global flag.FlagSet so a producer can read both global flags
// (-output) and its own namespaced flags (-zip-file, ...) registered during
// Params. The polymixer binary defines no one-letter shorthands such as -o.
type Args struct {
	Output  string
	FlagSet *flag.FlagSet
}

// Producer is the interface every format module exposes to the
// orchestrator (spec.md §6, §4.5).
type Producer interface {
	// Params adds this producer's CLI options to fs, namespaced with the
	// producer's own name (e.g. --zip-file, --truecrypt-new-salt). Called
	// once during the second argument-parsing pass (spec.md §6).
	Params(fs *flag.FlagSet)

	// Setup captures parsed options and registers hook subscribers on
	// bus. Called once after all producers' Params have run.
	Setup(args *Args, bus *hooks.Bus) error

	// Chunks returns every chunk this producer contributes to the build.
	// Called once per producer, in CLI module order.
	Chunks() ([]chunk.Chunk, error)
}
