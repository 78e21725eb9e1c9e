package model

import (
	"fmt"
	"math"
)

// Identifier names a variable's slot in the adjoint and primal vectors.
// It is strictly 32-bit, allowing for max 4 Billion live variables per tape.
// Under a reuse index scheme the same value denotes different variables at
// different times; treat it as valid only within a known position range,
// never as a stable identity.
type Identifier uint32

// InvalidIdentifier is the reserved dummy slot. Reads through it yield zero,
// writes through it are absorbed.
const InvalidIdentifier Identifier = 0

// MaxIdentifier is the maximum possible value for an Identifier.
const MaxIdentifier = ^Identifier(0)

// ArgumentSize is the number of Jacobian entries recorded for a statement.
type ArgumentSize uint16

const (
	// LowLevelFunctionTag is the reserved argument-count sentinel. A statement
	// carrying it references an embedded low-level-function call instead of
	// Jacobian entries.
	LowLevelFunctionTag ArgumentSize = math.MaxUint16

	// MaxArguments is the largest number of Jacobian entries a single
	// statement can carry.
	MaxArguments = int(LowLevelFunctionTag) - 1
)

// Statement is one recorded elementary assignment: the output identifier and
// the number of Jacobian entries that belong to it. The entries themselves
// live in the parallel Jacobian store.
type Statement struct {
	LHS  Identifier
	Args ArgumentSize
}

// IsLowLevelFunction reports whether the statement references an embedded
// low-level-function call.
func (s Statement) IsLowLevelFunction() bool {
	return s.Args == LowLevelFunctionTag
}

// String returns a string representation of the Statement.
func (s Statement) String() string {
	if s.IsLowLevelFunction() {
		return "Stmt(llf)"
	}
	return fmt.Sprintf("Stmt(%d<-%d args)", s.LHS, s.Args)
}

// JacobianEntry is one partial-derivative edge of a statement: the
// coefficient linking the statement's output to the input identified by ID.
type JacobianEntry struct {
	Coeff float64
	ID    Identifier
}
