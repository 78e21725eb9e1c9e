// Package adjoint provides the dense derivative and primal vectors of a tape.
//
// Vectors are indexed by identifier. Index 0 is a permanent dummy slot that
// absorbs reads and writes for invalid or inactive identifiers; checked reads
// of any slot that does not exist yield zero instead of an error. This is a
// considered policy: the hot path trades a small fixed overhead for avoiding
// per-access branching, and performance-sensitive callers can switch to the
// unchecked accessors once capacity has been ensured via EnsureCapacity.
package adjoint

import (
	"github.com/hupe1980/gradtape/model"
)

// Guard is a pluggable policy bracketing a burst of vector mutations.
// The base vector performs no locking; sharing one vector across goroutines
// is layered on top via a Guard such as MutexGuard.
type Guard interface {
	BeginUse()
	EndUse()
}

// Vector is a dense, resizable derivative vector indexed by identifier.
//
// Pointers into the backing array must never be cached across calls; growth
// during a separate traversal would dangle them. Hold indices instead.
type Vector struct {
	data  []float64
	guard Guard
}

// New creates a vector with capacity for at least the given number of slots.
// Slot 0 always exists.
func New(capacity int) *Vector {
	if capacity < 1 {
		capacity = 1
	}
	return &Vector{data: make([]float64, capacity)}
}

// SetGuard installs a guard policy. Pass nil to remove it.
func (v *Vector) SetGuard(g Guard) {
	v.guard = g
}

// BeginUse enters a mutation bracket. Growth and any guarding the backing
// store performs is batched once per bracket instead of once per access.
func (v *Vector) BeginUse() {
	if v.guard != nil {
		v.guard.BeginUse()
	}
}

// EndUse leaves a mutation bracket.
func (v *Vector) EndUse() {
	if v.guard != nil {
		v.guard.EndUse()
	}
}

// Size returns the number of slots, including the dummy slot.
func (v *Vector) Size() int {
	return len(v.data)
}

// EnsureCapacity grows the vector so that identifiers below n are addressable
// by the unchecked accessors. Existing values are preserved.
func (v *Vector) EnsureCapacity(n int) {
	if n <= len(v.data) {
		return
	}
	newCap := len(v.data) * 2
	if newCap < n {
		newCap = n
	}
	grown := make([]float64, newCap)
	copy(grown, v.data)
	v.data = grown
}

// At returns the value at id with bounds checking. Reading an unknown or
// invalid identifier is defined behavior and yields zero.
func (v *Vector) At(id model.Identifier) float64 {
	if id == model.InvalidIdentifier || int(id) >= len(v.data) {
		return 0
	}
	return v.data[id]
}

// Set stores val at id, growing the vector on demand. Writes to the dummy
// slot are absorbed.
func (v *Vector) Set(id model.Identifier, val float64) {
	if id == model.InvalidIdentifier {
		return
	}
	v.EnsureCapacity(int(id) + 1)
	v.data[id] = val
}

// Add accumulates val into id, growing the vector on demand.
func (v *Vector) Add(id model.Identifier, val float64) {
	if id == model.InvalidIdentifier {
		return
	}
	v.EnsureCapacity(int(id) + 1)
	v.data[id] += val
}

// AtUnchecked returns the value at id. The caller guarantees id is within
// capacity, usually via a preceding EnsureCapacity.
func (v *Vector) AtUnchecked(id model.Identifier) float64 {
	return v.data[id]
}

// SetUnchecked stores val at id without bounds checking.
func (v *Vector) SetUnchecked(id model.Identifier, val float64) {
	v.data[id] = val
}

// AddUnchecked accumulates val into id without bounds checking.
func (v *Vector) AddUnchecked(id model.Identifier, val float64) {
	v.data[id] += val
}

// Raw returns the backing slice. It aliases internal memory and is
// invalidated by the next growth; do not retain it across calls.
func (v *Vector) Raw() []float64 {
	return v.data
}

// Clear zeroes all slots, including the dummy slot.
func (v *Vector) Clear() {
	clear(v.data)
}
