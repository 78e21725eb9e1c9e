package chunk

import (
	"fmt"
	"unsafe"
)

// DefaultChunkSize is the default number of records per chunk.
const DefaultChunkSize = 1 << 16

// Budget tracks memory consumed by chunk allocations. Implementations may
// enforce a hard limit by returning false from Acquire.
type Budget interface {
	// Acquire reserves bytes. Returns false if the budget is exhausted.
	Acquire(bytes int64) bool
	// Release returns bytes to the budget.
	Release(bytes int64)
}

// Position is an opaque cursor into a Store. Positions are totally ordered
// and valid only relative to the store that produced them, and only while no
// truncation beyond them has occurred.
type Position struct {
	Chunk  int
	Offset int
}

// Before reports whether p is strictly before q.
func (p Position) Before(q Position) bool {
	return p.Chunk < q.Chunk || (p.Chunk == q.Chunk && p.Offset < q.Offset)
}

// After reports whether p is strictly after q.
func (p Position) After(q Position) bool {
	return q.Before(p)
}

// String returns a string representation of the Position.
func (p Position) String() string {
	return fmt.Sprintf("Pos(%d:%d)", p.Chunk, p.Offset)
}

// Store is an append-only chunked record log.
//
// Not safe for concurrent use; exactly one goroutine may record into or
// iterate a store at a time. Re-entrant pushes during iteration are
// disallowed by contract.
type Store[T any] struct {
	chunks    [][]T
	chunkSize int
	spare     [][]T // retained after truncation, reused on growth
	elemSize  int64
	budget    Budget
}

// New creates a store with the given chunk capacity. budget may be nil.
func New[T any](chunkSize int, budget Budget) *Store[T] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	var zero T
	s := &Store[T]{
		chunkSize: chunkSize,
		elemSize:  int64(unsafe.Sizeof(zero)),
		budget:    budget,
	}
	s.chunks = append(s.chunks, s.allocChunk(chunkSize))
	return s
}

func (s *Store[T]) allocChunk(capacity int) []T {
	// Prefer a retained spare chunk if one is large enough.
	for i, c := range s.spare {
		if cap(c) >= capacity {
			s.spare[i] = s.spare[len(s.spare)-1]
			s.spare[len(s.spare)-1] = nil
			s.spare = s.spare[:len(s.spare)-1]
			return c[:0]
		}
	}

	if s.budget != nil {
		if !s.budget.Acquire(int64(capacity) * s.elemSize) {
			panic("chunk: memory budget exhausted")
		}
	}
	return make([]T, 0, capacity)
}

// ReserveItems guarantees capacity for n more records in the current chunk,
// sealing it and allocating a new one if needed. No reallocation occurs
// between a reserve and the pushes it covers, so raw slices into the current
// chunk remain valid until the next ReserveItems.
func (s *Store[T]) ReserveItems(n int) {
	cur := s.chunks[len(s.chunks)-1]
	if cap(cur)-len(cur) >= n {
		return
	}
	capacity := s.chunkSize
	if n > capacity {
		capacity = n
	}
	s.chunks = append(s.chunks, s.allocChunk(capacity))
}

// Push appends one record. Capacity must have been ensured via ReserveItems;
// exceeding it is a programmer error.
func (s *Store[T]) Push(v T) {
	ci := len(s.chunks) - 1
	cur := s.chunks[ci]
	if len(cur) == cap(cur) {
		panic("chunk: push exceeds reserved capacity")
	}
	s.chunks[ci] = append(cur, v)
}

// Alloc reserves and appends n zero records, returning the contiguous slice
// for the caller to fill. The slice is valid until the next ReserveItems or
// Alloc call.
func (s *Store[T]) Alloc(n int) []T {
	s.ReserveItems(n)
	ci := len(s.chunks) - 1
	cur := s.chunks[ci]
	grown := cur[:len(cur)+n]
	s.chunks[ci] = grown
	return grown[len(cur):]
}

// Position captures the current write cursor.
func (s *Store[T]) Position() Position {
	ci := len(s.chunks) - 1
	return Position{Chunk: ci, Offset: len(s.chunks[ci])}
}

// ZeroPosition returns the position before the first record.
func (s *Store[T]) ZeroPosition() Position {
	return Position{}
}

// Len returns the total number of records.
func (s *Store[T]) Len() int {
	n := 0
	for _, c := range s.chunks {
		n += len(c)
	}
	return n
}

// SizeBytes returns the capacity of all allocated chunks in bytes, including
// retained spares.
func (s *Store[T]) SizeBytes() int64 {
	var n int64
	for _, c := range s.chunks {
		n += int64(cap(c)) * s.elemSize
	}
	for _, c := range s.spare {
		n += int64(cap(c)) * s.elemSize
	}
	return n
}

// ResetTo logically truncates the store after p. The truncated chunks are
// retained for reuse but are no longer readable; positions after p become
// invalid.
func (s *Store[T]) ResetTo(p Position) {
	s.check(p)
	for _, c := range s.chunks[p.Chunk+1:] {
		s.spare = append(s.spare, c[:0])
	}
	s.chunks = s.chunks[:p.Chunk+1]
	s.chunks[p.Chunk] = s.chunks[p.Chunk][:p.Offset]
}

// Reset truncates the store to empty.
func (s *Store[T]) Reset() {
	s.ResetTo(Position{})
}

func (s *Store[T]) check(p Position) {
	if p.Chunk < 0 || p.Chunk >= len(s.chunks) || p.Offset < 0 || p.Offset > len(s.chunks[p.Chunk]) {
		panic(fmt.Sprintf("chunk: position %v out of range", p))
	}
}

// ForEach visits the records in [start, end) in forward order. The visitor
// receives contiguous per-chunk runs, not one record at a time.
func (s *Store[T]) ForEach(start, end Position, fn func(run []T)) {
	s.check(start)
	s.check(end)
	if end.Before(start) {
		panic(fmt.Sprintf("chunk: inverted range %v..%v", start, end))
	}
	for ci := start.Chunk; ci <= end.Chunk; ci++ {
		lo, hi := 0, len(s.chunks[ci])
		if ci == start.Chunk {
			lo = start.Offset
		}
		if ci == end.Chunk {
			hi = end.Offset
		}
		if lo < hi {
			fn(s.chunks[ci][lo:hi])
		}
	}
}

// ForEachReverse visits the records in [end, start) in reverse chunk order,
// where start is the later position. The visitor receives forward-ordered
// runs and is expected to walk each run backward itself.
func (s *Store[T]) ForEachReverse(start, end Position, fn func(run []T)) {
	s.check(start)
	s.check(end)
	if start.Before(end) {
		panic(fmt.Sprintf("chunk: inverted range %v..%v", start, end))
	}
	for ci := start.Chunk; ci >= end.Chunk; ci-- {
		lo, hi := 0, len(s.chunks[ci])
		if ci == start.Chunk {
			hi = start.Offset
		}
		if ci == end.Chunk {
			lo = end.Offset
		}
		if lo < hi {
			fn(s.chunks[ci][lo:hi])
		}
	}
}

// Cursor reads groups of records in lockstep with an outer traversal. It is
// used for stores whose per-statement run length cannot be derived from the
// statement index alone (Jacobian entries, payload bytes).
type Cursor[T any] struct {
	s   *Store[T]
	pos Position
}

// CursorAt returns a cursor positioned at p.
func (s *Store[T]) CursorAt(p Position) Cursor[T] {
	s.check(p)
	return Cursor[T]{s: s, pos: p}
}

// Pos returns the cursor's current position.
func (c *Cursor[T]) Pos() Position {
	return c.pos
}

// Take advances forward over the next n records and returns them as one
// contiguous slice. Groups never span chunks (guaranteed by ReserveItems at
// record time); a range that would is a corrupted traversal.
func (c *Cursor[T]) Take(n int) []T {
	if n == 0 {
		return nil
	}
	// Skip the sealed tail of a chunk that a reserve skipped past.
	for c.pos.Offset == len(c.s.chunks[c.pos.Chunk]) && c.pos.Chunk < len(c.s.chunks)-1 {
		c.pos.Chunk++
		c.pos.Offset = 0
	}
	cur := c.s.chunks[c.pos.Chunk]
	if c.pos.Offset+n > len(cur) {
		panic("chunk: group spans chunk boundary")
	}
	out := cur[c.pos.Offset : c.pos.Offset+n : c.pos.Offset+n]
	c.pos.Offset += n
	return out
}

// TakeBack steps backward over the previous n records and returns them in
// forward order as one contiguous slice.
func (c *Cursor[T]) TakeBack(n int) []T {
	if n == 0 {
		return nil
	}
	for c.pos.Offset == 0 && c.pos.Chunk > 0 {
		c.pos.Chunk--
		c.pos.Offset = len(c.s.chunks[c.pos.Chunk])
	}
	if n > c.pos.Offset {
		panic("chunk: group spans chunk boundary")
	}
	cur := c.s.chunks[c.pos.Chunk]
	out := cur[c.pos.Offset-n : c.pos.Offset : c.pos.Offset]
	c.pos.Offset -= n
	return out
}
