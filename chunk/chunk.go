// Package chunk defines the tagged byte-region record that every polymixer
// producer emits and the layout engine consumes.
//
// A Chunk describes a slice of some producer's Data buffer together with a
// placement constraint: Fixed chunks carry a single absolute coordinate,
// Flexible chunks carry a window the layout engine is free to place them
// anywhere inside. This mirrors original_source/chunk.py's FixedChunk and
// FlexibleChunk, collapsed into one Go struct with a Kind discriminant
// instead of a class hierarchy (see DESIGN NOTES in spec.md §9).
package chunk

import "fmt"

// Kind discriminates the two Chunk variants.
type Kind int

const (
	// Fixed chunks carry an absolute placement coordinate in Position.At.
	// Position.Win is unused.
	Fixed Kind = iota
	// Flexible chunks carry a window in Position; the layout engine picks
	// the lowest free coordinate inside it.
	Flexible
)

func (k Kind) String() string {
	switch k {
	case Fixed:
		return "fixed"
	case Flexible:
		return "flexible"
	default:
		return fmt.Sprintf("chunk.Kind(%d)", int(k))
	}
}

// Window is a flexible chunk's placement constraint: [Lo, Hi). A nil Hi
// means unbounded above; Lo always defaults to the layout's current low
// water mark when the producer passes no explicit value (see Window.LoSet).
type Window struct {
	Lo    int64
	Hi    *int64 // nil => unbounded
	LoSet bool   // false => Lo should default to the index's MinBegin
}

// Position is the placement constraint carried by a Chunk. For Fixed chunks
// only At is meaningful; negative values are tail coordinates, resolved by
// layout.Engine.NormalizeTail. For Flexible chunks only Win is meaningful.
type Position struct {
	At  int64
	Win Window
}

// AtPosition returns a Position with an absolute coordinate. Negative values
// denote a tail coordinate (see spec.md §3, "Tail chunk").
func AtPosition(at int64) Position {
	return Position{At: at}
}

// InWindow returns a Position for a Flexible chunk constrained to
// [lo, hi). A nil hi means unbounded; loSet=false lets the layout engine
// substitute its current MinBegin for lo at placement time.
func InWindow(lo int64, loSet bool, hi *int64) Position {
	return Position{Win: Window{Lo: lo, LoSet: loSet, Hi: hi}}
}

// Chunk is a declared byte region together with its placement constraint.
//
// Invariants (spec.md §3):
//   0 <= Offset
//   0 <= Offset+Size <= len(Data)
//   placed payload is Data[Offset : Offset+Size]
type Chunk struct {
	Kind Kind
	Pos  Position

	Size   int64
	Offset int64
	Data   []byte

	// Extra is a producer-private tag used to re-identify this chunk in
	// hook callbacks (e.g. the ZIP producer tags each local-file-header
	// chunk with the *LocalFileHeader it was parsed from).
	Extra interface{}
	// Module back-references the producer that created this chunk.
	Module interface{}
}

// Payload returns the placed slice Data[Offset : Offset+Size], validating
// the chunk's data invariants.
func (c Chunk) Payload() ([]byte, error) {
	if c.Offset < 0 {
		return nil, fmt.Errorf("chunk: negative offset %d", c.Offset)
	}
	end := c.Offset + c.Size
	if end < c.Offset || end > int64(len(c.Data)) {
		return nil, fmt.Errorf("chunk: offset+size %d exceeds data length %d", end, len(c.Data))
	}
	return c.Data[c.Offset:end], nil
}

// Partition splits chunks into its Fixed and Flexible members, preserving
// relative order within each group (orchestrator step 3/§4.5).
func Partition(chunks []Chunk) (fixed, flexible []Chunk) {
	for _, c := range chunks {
		switch c.Kind {
		case Fixed:
			fixed = append(fixed, c)
		case Flexible:
			flexible = append(flexible, c)
		}
	}
	return fixed, flexible
}
