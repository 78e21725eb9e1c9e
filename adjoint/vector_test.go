package adjoint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/gradtape/model"
)

func TestVector_DummySlot(t *testing.T) {
	v := New(4)

	// Reads of the invalid identifier always yield zero.
	assert.Equal(t, 0.0, v.At(model.InvalidIdentifier))

	// Writes to it are absorbed.
	v.Set(model.InvalidIdentifier, 42)
	v.Add(model.InvalidIdentifier, 42)
	assert.Equal(t, 0.0, v.At(model.InvalidIdentifier))
}

func TestVector_CheckedAccess(t *testing.T) {
	v := New(2)

	// Out-of-range reads are defined and yield zero.
	assert.Equal(t, 0.0, v.At(100))

	// Writes grow on demand.
	v.Set(100, 1.5)
	assert.Equal(t, 1.5, v.At(100))
	assert.GreaterOrEqual(t, v.Size(), 101)

	v.Add(100, 0.5)
	assert.Equal(t, 2.0, v.At(100))
}

func TestVector_UncheckedAccess(t *testing.T) {
	v := New(1)
	v.EnsureCapacity(10)

	v.SetUnchecked(5, 3.0)
	v.AddUnchecked(5, 1.0)
	assert.Equal(t, 4.0, v.AtUnchecked(5))
}

func TestVector_EnsureCapacity(t *testing.T) {
	v := New(4)
	v.Set(2, 7.0)

	v.EnsureCapacity(3) // no-op, already large enough
	assert.Equal(t, 7.0, v.At(2))

	v.EnsureCapacity(100)
	assert.GreaterOrEqual(t, v.Size(), 100)
	assert.Equal(t, 7.0, v.At(2)) // values preserved across growth
}

func TestVector_Clear(t *testing.T) {
	v := New(4)
	v.Set(1, 1)
	v.Set(2, 2)

	v.Clear()
	assert.Equal(t, 0.0, v.At(1))
	assert.Equal(t, 0.0, v.At(2))
	assert.Equal(t, 4, v.Size()) // capacity retained
}

func TestVector_Guard(t *testing.T) {
	v := New(4)
	v.SetGuard(&MutexGuard{})

	v.BeginUse()
	v.Set(1, 1.0)
	v.EndUse()

	assert.Equal(t, 1.0, v.At(1))

	// Removing the guard makes the bracket a no-op.
	v.SetGuard(nil)
	v.BeginUse()
	v.EndUse()
}
