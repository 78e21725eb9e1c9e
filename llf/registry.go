// Package llf handles low-level functions: externally defined opaque
// computations embedded inline in a tape's statement sequence.
//
// The tape only stores and replays a registry token plus opaque payload
// bytes; the math lives entirely in the registered callbacks. Payload slices
// handed to a callback alias tape memory and are valid only for the duration
// of the call.
package llf

import (
	"math"
	"sync"

	"github.com/hupe1980/gradtape/model"
)

// Token is an integer handle into a Registry.
type Token uint16

// InvalidToken marks an unregistered function.
const InvalidToken Token = math.MaxUint16

// VectorAccess lets a callback read and write the adjoint and primal vectors
// by identifier during replay. Accesses are bounds-checked; unknown
// identifiers read as zero.
type VectorAccess interface {
	Gradient(id model.Identifier) float64
	SetGradient(id model.Identifier, val float64)
	AddGradient(id model.Identifier, val float64)
	Primal(id model.Identifier) float64
	SetPrimal(id model.Identifier, val float64)
}

// Func is a replay callback. fixed and dynamic are the payload bytes exactly
// as they were recorded.
type Func func(fixed, dynamic []byte, va VectorAccess)

// Entry describes one registered low-level function.
type Entry struct {
	// Name identifies the function in logs and diagnostics.
	Name string
	// Forward is invoked during forward replay. May be nil.
	Forward Func
	// Reverse is invoked during reverse replay. May be nil.
	Reverse Func
}

// Registry maps tokens to low-level-function entries.
//
// Registration is typically done once at startup; lookups happen on the
// replay path. The registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an entry and returns its token.
func (r *Registry) Register(e Entry) Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= int(InvalidToken) {
		panic("llf: registry full")
	}
	r.entries = append(r.entries, e)
	return Token(len(r.entries) - 1)
}

// Lookup resolves a token.
func (r *Registry) Lookup(t Token) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if int(t) >= len(r.entries) {
		return Entry{}, false
	}
	return r.entries[t], true
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
