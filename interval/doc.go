// Package interval implements an ordered index of disjoint, half-open
// integer intervals with associated values.
//
// It is adapted from this repository's original BED interval-union package,
// which represented a genomic coordinate set as a sorted []PosType of
// interval endpoints and located positions in it with exponential/binary
// search. This package keeps the binary-search part (Index.searchBegin, used
// to find an insertion point; overlap queries are linear scans) and moves
// from a coordinate *set* (where overlapping input intervals are merged) to
// a coordinate *index* (where each interval keeps its own
// associated value and overlap is a caller error, per spec.md §4.1) — the
// shape the layout engine needs to track which chunk owns which byte range.
package interval
