package index

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/gradtape/model"
)

// ReuseManager recycles retired identifiers. Generate draws from the free
// list first and falls back to a growing counter when it is empty.
//
// A roaring bitmap tracks the currently live identifiers. It makes
// double-free and free-of-never-issued detectable as the programmer errors
// they are, and exposes the live population for diagnostics.
type ReuseManager struct {
	free []model.Identifier
	next model.Identifier
	live *roaring.Bitmap
}

// NewReuse creates a reuse index manager.
func NewReuse() *ReuseManager {
	return &ReuseManager{
		next: 1,
		live: roaring.New(),
	}
}

// Generate implements Manager.
func (m *ReuseManager) Generate() model.Identifier {
	var id model.Identifier
	if n := len(m.free); n > 0 {
		id = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		id = m.next
		m.next++
	}
	m.live.Add(uint32(id))
	return id
}

// Free implements Manager.
func (m *ReuseManager) Free(id model.Identifier) {
	if id == model.InvalidIdentifier {
		return
	}
	if !m.live.CheckedRemove(uint32(id)) {
		panic(fmt.Sprintf("index: free of identifier %d that is not live", id))
	}
	m.free = append(m.free, id)
}

// IsLinear implements Manager.
func (m *ReuseManager) IsLinear() bool {
	return false
}

// LargestCreated implements Manager.
func (m *ReuseManager) LargestCreated() model.Identifier {
	return m.next - 1
}

// Reset implements Manager.
func (m *ReuseManager) Reset() {
	m.free = m.free[:0]
	m.next = 1
	m.live.Clear()
}

// LiveCount returns the number of currently live identifiers.
func (m *ReuseManager) LiveCount() uint64 {
	return m.live.GetCardinality()
}

// IsLive reports whether id is currently issued.
func (m *ReuseManager) IsLive(id model.Identifier) bool {
	return m.live.Contains(uint32(id))
}

var _ Manager = (*ReuseManager)(nil)
