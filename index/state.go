package index

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/gradtape/model"
)

// StateCodec is implemented by managers whose issuance state can be captured
// in a snapshot and restored later. Both built-in managers implement it.
type StateCodec interface {
	// SaveState writes the manager state to w.
	SaveState(w io.Writer) error
	// LoadState replaces the manager state with the one read from r.
	LoadState(r io.Reader) error
}

// SaveState implements StateCodec.
func (m *LinearManager) SaveState(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, uint32(m.next))
}

// LoadState implements StateCodec.
func (m *LinearManager) LoadState(r io.Reader) error {
	var next uint32
	if err := binary.Read(r, binary.LittleEndian, &next); err != nil {
		return fmt.Errorf("index: load linear state: %w", err)
	}
	if next < 1 {
		return fmt.Errorf("index: corrupt linear state: next=%d", next)
	}
	m.next = model.Identifier(next)
	return nil
}

// SaveState implements StateCodec. The free list is written in order so that
// a restored manager reissues identifiers in the same sequence.
func (m *ReuseManager) SaveState(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(m.next)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.free))); err != nil {
		return err
	}
	for _, id := range m.free {
		if err := binary.Write(w, binary.LittleEndian, uint32(id)); err != nil {
			return err
		}
	}
	return nil
}

// LoadState implements StateCodec. The live set is rebuilt as every issued
// identifier minus the free list.
func (m *ReuseManager) LoadState(r io.Reader) error {
	var next, freeLen uint32
	if err := binary.Read(r, binary.LittleEndian, &next); err != nil {
		return fmt.Errorf("index: load reuse state: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &freeLen); err != nil {
		return fmt.Errorf("index: load reuse state: %w", err)
	}
	if next < 1 || uint64(freeLen) >= uint64(next) {
		return fmt.Errorf("index: corrupt reuse state: next=%d free=%d", next, freeLen)
	}

	free := make([]model.Identifier, freeLen)
	for i := range free {
		var id uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return fmt.Errorf("index: load reuse state: %w", err)
		}
		if id == 0 || id >= next {
			return fmt.Errorf("index: corrupt reuse state: free id %d", id)
		}
		free[i] = model.Identifier(id)
	}

	m.next = model.Identifier(next)
	m.free = free
	m.live.Clear()
	if next > 1 {
		m.live.AddRange(1, uint64(next))
	}
	for _, id := range free {
		m.live.Remove(uint32(id))
	}
	return nil
}
