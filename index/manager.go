// Package index manages the identifier lifecycle of a tape.
//
// Two interchangeable policies exist. LinearManager issues identifiers from a
// monotonically increasing counter and never reuses them; ReuseManager
// recycles retired identifiers from a free list. The policy is selected
// statically at tape construction and communicated to the replay algorithms
// through the IsLinear capability, which gates optimizations such as skipping
// the adjoint clear after a statement is consumed.
package index

import "github.com/hupe1980/gradtape/model"

// Manager issues and retires identifiers. Identifier 0 is reserved and never
// issued; identifiers are unique among concurrently live variables.
//
// Managers are not safe for concurrent use.
type Manager interface {
	// Generate returns a fresh, currently unused identifier.
	Generate() model.Identifier

	// Free retires an identifier. Valid only under a reuse policy; freeing
	// under a linear policy is a programmer error and panics.
	Free(id model.Identifier)

	// IsLinear reports the active policy. Linear tapes assign each
	// identifier exactly once, so replay never needs to clear an adjoint
	// slot after consuming it.
	IsLinear() bool

	// LargestCreated returns the highest identifier issued so far. Adjoint
	// vectors sized to LargestCreated()+1 cover every live identifier.
	LargestCreated() model.Identifier

	// Reset retires all identifiers and restarts issuance from the bottom.
	Reset()
}
