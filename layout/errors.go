package layout

import "github.com/pkg/errors"

// Sentinel causes for the layout engine's errors: the two fatal placement
// conditions (ErrOverlap, ErrNoFreeSpace; spec.md §7) and two misuse errors
// (ErrFrozen, ErrNotFlexible). Callers recover the underlying sentinel with errors.Cause to decide how to
// report a failed build.
var (
	// ErrOverlap is the cause of an error returned by Engine.Place when the
	// requested interval intersects an already-placed chunk.
	ErrOverlap = errors.New("overlapping chunk")
	// ErrNoFreeSpace is the cause of an error returned by Engine.FindPosition
	// when no candidate position satisfies a flexible chunk's window.
	ErrNoFreeSpace = errors.New("no free space for chunk")
	// ErrFrozen is the cause of an error returned by Engine.Place once the
	// engine has entered the Frozen state (spec.md §4.2 state machine).
	ErrFrozen = errors.New("layout engine is frozen")
	// ErrNotFlexible is returned by FindPosition when called on a Fixed chunk.
	ErrNotFlexible = errors.New("FindPosition requires a Flexible chunk")
)
