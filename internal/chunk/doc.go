// Package chunk implements the append-only chunked stores backing a tape.
//
// A Store holds records in fixed-capacity chunks. Appends are O(1) amortized
// and never move previously written records, so raw slices handed out during
// a push remain valid until the next ReserveItems call. Positions are opaque
// (chunk, offset) cursors with a total order; truncation invalidates every
// position after the truncation point but retains the backing chunks for
// reuse.
//
// Records that belong together (the Jacobian entries of one statement, the
// payload bytes of one low-level function) must be preceded by a single
// ReserveItems call. This pins them into one chunk, which is what allows
// cursors to hand out contiguous per-group slices during replay.
package chunk
