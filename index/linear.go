package index

import "github.com/hupe1980/gradtape/model"

// LinearManager issues identifiers from a monotonically increasing counter.
// Identifiers are never reused; the adjoint store size equals the high-water
// mark of issued identifiers.
type LinearManager struct {
	next model.Identifier
}

// NewLinear creates a linear index manager.
func NewLinear() *LinearManager {
	return &LinearManager{next: 1}
}

// Generate implements Manager.
func (m *LinearManager) Generate() model.Identifier {
	id := m.next
	m.next++
	return id
}

// Free implements Manager. Linear identifiers cannot be retired.
func (m *LinearManager) Free(id model.Identifier) {
	panic("index: free on a linear index manager")
}

// IsLinear implements Manager.
func (m *LinearManager) IsLinear() bool {
	return true
}

// LargestCreated implements Manager.
func (m *LinearManager) LargestCreated() model.Identifier {
	return m.next - 1
}

// Reset implements Manager.
func (m *LinearManager) Reset() {
	m.next = 1
}

var _ Manager = (*LinearManager)(nil)
