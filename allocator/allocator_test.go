package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapAllocatorTracksOutstandingBytes(t *testing.T) {
	a := NewHeapAllocator(0)

	buf, err := a.Allocate(64, 8, WithName("widget"))
	require.NoError(t, err)
	assert.Equal(t, 64, len(buf))
	assert.EqualValues(t, 64, a.NumAllocatedBytes())
	assert.Equal(t, 64, a.AllocationSize(buf))

	a.Deallocate(buf)
	assert.EqualValues(t, 0, a.NumAllocatedBytes())
	assert.Equal(t, -1, a.AllocationSize(buf))
}

func TestHeapAllocatorEnforcesCapacity(t *testing.T) {
	a := NewHeapAllocator(128)

	_, err := a.Allocate(100, 0)
	require.NoError(t, err)

	_, err = a.Allocate(100, 0)
	assert.Error(t, err)
}

func TestHeapAllocatorReallocateCopiesContent(t *testing.T) {
	a := NewHeapAllocator(0)
	buf, err := a.Allocate(4, 0)
	require.NoError(t, err)
	copy(buf, []byte{1, 2, 3, 4})

	grown, err := a.Reallocate(buf, 8, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, grown)
}

func TestArenaAllocatorBumpsAndResets(t *testing.T) {
	a := NewArenaAllocator(16)

	first, err := a.Allocate(8, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, len(first))
	assert.EqualValues(t, 8, a.NumAllocatedBytes())

	second, err := a.Allocate(8, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, len(second))

	_, err = a.Allocate(1, 0)
	assert.Error(t, err, "arena should be exhausted")

	a.GarbageCollect()
	assert.EqualValues(t, 0, a.NumAllocatedBytes())

	third, err := a.Allocate(16, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, len(third))
}

func TestArenaAllocatorRespectsAlignment(t *testing.T) {
	a := NewArenaAllocator(32)

	_, err := a.Allocate(3, 1)
	require.NoError(t, err)

	buf, err := a.Allocate(4, 8)
	require.NoError(t, err)
	assert.Equal(t, 4, len(buf))
}

func TestChildAllocatorTracksOwnSubset(t *testing.T) {
	parent := NewHeapAllocator(0)
	child := NewChildAllocator(parent)

	buf, err := child.Allocate(32, 0)
	require.NoError(t, err)

	assert.EqualValues(t, 32, child.NumAllocatedBytes())
	assert.EqualValues(t, 32, parent.NumAllocatedBytes())

	child.Deallocate(buf)
	assert.EqualValues(t, 0, child.NumAllocatedBytes())
	assert.EqualValues(t, 0, parent.NumAllocatedBytes())
}

func TestEnvironmentSingletonIsStable(t *testing.T) {
	a := EnvironmentSingleton()
	b := EnvironmentSingleton()
	assert.Same(t, a, b)
}

func TestNewModuleAllocatorDefaultsToEnvironment(t *testing.T) {
	m := NewModuleAllocator(nil)
	buf, err := m.Allocate(16, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 16, m.NumAllocatedBytes())
	m.Deallocate(buf)
}
