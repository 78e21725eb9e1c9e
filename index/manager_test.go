package index

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gradtape/model"
)

func TestLinearManager(t *testing.T) {
	m := NewLinear()

	assert.True(t, m.IsLinear())
	assert.Equal(t, model.Identifier(0), m.LargestCreated())

	assert.Equal(t, model.Identifier(1), m.Generate())
	assert.Equal(t, model.Identifier(2), m.Generate())
	assert.Equal(t, model.Identifier(3), m.Generate())
	assert.Equal(t, model.Identifier(3), m.LargestCreated())

	assert.Panics(t, func() {
		m.Free(2)
	})

	m.Reset()
	assert.Equal(t, model.Identifier(1), m.Generate())
}

func TestReuseManager(t *testing.T) {
	m := NewReuse()

	assert.False(t, m.IsLinear())

	a := m.Generate()
	b := m.Generate()
	c := m.Generate()
	assert.Equal(t, model.Identifier(3), m.LargestCreated())
	assert.Equal(t, uint64(3), m.LiveCount())

	m.Free(b)
	assert.False(t, m.IsLive(b))
	assert.Equal(t, uint64(2), m.LiveCount())

	// The freed identifier is reissued before the counter grows.
	assert.Equal(t, b, m.Generate())
	assert.Equal(t, model.Identifier(3), m.LargestCreated())

	assert.Equal(t, model.Identifier(4), m.Generate())
	assert.True(t, m.IsLive(a))
	assert.True(t, m.IsLive(c))
}

func TestReuseManager_DoubleFreePanics(t *testing.T) {
	m := NewReuse()
	id := m.Generate()
	m.Free(id)

	assert.Panics(t, func() {
		m.Free(id)
	})
}

func TestReuseManager_FreeNeverIssuedPanics(t *testing.T) {
	m := NewReuse()

	assert.Panics(t, func() {
		m.Free(99)
	})
}

func TestReuseManager_FreeInvalidIsNoop(t *testing.T) {
	m := NewReuse()

	assert.NotPanics(t, func() {
		m.Free(model.InvalidIdentifier)
	})
}

func TestReuseManager_Reset(t *testing.T) {
	m := NewReuse()
	m.Free(m.Generate())
	m.Generate()

	m.Reset()
	assert.Equal(t, uint64(0), m.LiveCount())
	assert.Equal(t, model.Identifier(1), m.Generate())
}

func TestLinearManager_StateRoundTrip(t *testing.T) {
	m := NewLinear()
	for range 5 {
		m.Generate()
	}

	var buf bytes.Buffer
	require.NoError(t, m.SaveState(&buf))

	restored := NewLinear()
	require.NoError(t, restored.LoadState(&buf))

	assert.Equal(t, model.Identifier(5), restored.LargestCreated())
	assert.Equal(t, model.Identifier(6), restored.Generate())
}

func TestReuseManager_StateRoundTrip(t *testing.T) {
	m := NewReuse()
	var ids []model.Identifier
	for range 6 {
		ids = append(ids, m.Generate())
	}
	m.Free(ids[1])
	m.Free(ids[4])

	var buf bytes.Buffer
	require.NoError(t, m.SaveState(&buf))

	restored := NewReuse()
	require.NoError(t, restored.LoadState(&buf))

	assert.Equal(t, m.LargestCreated(), restored.LargestCreated())
	assert.Equal(t, m.LiveCount(), restored.LiveCount())
	assert.False(t, restored.IsLive(ids[1]))
	assert.False(t, restored.IsLive(ids[4]))
	assert.True(t, restored.IsLive(ids[0]))

	// Reissue order matches the saved free list.
	assert.Equal(t, ids[4], restored.Generate())
	assert.Equal(t, ids[1], restored.Generate())
	assert.Equal(t, model.Identifier(7), restored.Generate())
}

func TestReuseManager_LoadStateRejectsCorrupt(t *testing.T) {
	restored := NewReuse()

	// next=0 is never valid.
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	assert.Error(t, restored.LoadState(buf))

	// free id outside the issued range.
	var b bytes.Buffer
	b.Write([]byte{3, 0, 0, 0}) // next=3
	b.Write([]byte{1, 0, 0, 0}) // one free entry
	b.Write([]byte{9, 0, 0, 0}) // id 9 was never issued
	assert.Error(t, restored.LoadState(&b))
}
