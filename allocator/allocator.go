// Package allocator provides the memory-accounting façade the rest of
// velcro-core allocates through: every container, clone, and buffer
// request flows through an Allocator rather than calling make/new
// directly, so a host can swap in arena allocation, track peak usage, or
// scope a plugin's allocations for bulk teardown on unload.
package allocator

import (
	"fmt"
	"sync"
)

// AllocInfo describes one Allocate/Reallocate call, for allocators that
// want to attribute memory to a call site.
type AllocInfo struct {
	Name string
	File string
	Line int
}

// AllocOption is a functional option for describing an allocation at its
// call site. Allocators that don't track provenance may ignore it.
type AllocOption func(*AllocInfo)

// WithName tags the allocation with a human-readable name, e.g. a class
// or container name.
func WithName(name string) AllocOption {
	return func(i *AllocInfo) { i.Name = name }
}

// WithFile tags the allocation with the source file that requested it.
func WithFile(file string) AllocOption {
	return func(i *AllocInfo) { i.File = file }
}

// WithLine tags the allocation with the source line that requested it.
func WithLine(line int) AllocOption {
	return func(i *AllocInfo) { i.Line = line }
}

func applyOptions(opts []AllocOption) AllocInfo {
	var info AllocInfo
	for _, opt := range opts {
		opt(&info)
	}
	return info
}

// Allocator is the contract every velcro-core component allocates
// through. Implementations need not honor every byte of every call
// exactly (Go's runtime owns the real heap) but must honor the
// accounting contract: NumAllocatedBytes reflects outstanding
// Allocate/Reallocate calls net of Deallocate, regardless of backing
// strategy.
type Allocator interface {
	// Allocate reserves byteSize bytes and returns a zeroed buffer of
	// that length. alignment is advisory; implementations that can't
	// honor nonstandard alignment may ignore it.
	Allocate(byteSize int, alignment int, opts ...AllocOption) ([]byte, error)

	// Deallocate releases a buffer previously returned by Allocate or
	// Reallocate. Deallocating nil or an already-deallocated buffer is a
	// no-op.
	Deallocate(buf []byte)

	// Reallocate resizes buf in place if possible, or returns a new
	// buffer with buf's contents copied over (truncated or zero-extended
	// to newSize).
	Reallocate(buf []byte, newSize int, alignment int) ([]byte, error)

	// Resize is Reallocate without changing the allocation's identity
	// where the underlying strategy allows it (e.g. an arena bump
	// allocation that happens to be the most recent one). Returns the
	// resized buffer.
	Resize(buf []byte, newSize int) ([]byte, error)

	// AllocationSize returns the size last requested for buf, or -1 if
	// buf was not returned by this Allocator.
	AllocationSize(buf []byte) int

	// GarbageCollect lets an allocator reclaim internal bookkeeping (e.g.
	// ArenaAllocator resets its bump pointer, invalidating every buffer it
	// has handed out). Implementations that don't need it may no-op.
	GarbageCollect()

	// NumAllocatedBytes returns bytes currently outstanding.
	NumAllocatedBytes() int64

	// Capacity returns the total bytes this Allocator can ever hand out,
	// or -1 if unbounded.
	Capacity() int64

	// MaxAllocationSize returns the largest single Allocate call this
	// Allocator can satisfy, or -1 if unbounded.
	MaxAllocationSize() int64

	// MaxContiguousAllocationSize returns the largest single Allocate
	// call this Allocator could satisfy right now given current
	// fragmentation, or -1 if unbounded/not tracked.
	MaxContiguousAllocationSize() int64

	// UnallocatedMemory returns Capacity()-NumAllocatedBytes(), or -1 if
	// Capacity is unbounded.
	UnallocatedMemory() int64

	// SubAllocator returns an Allocator scoped to this one via
	// ChildAllocator, or nil if this Allocator doesn't support
	// sub-allocation.
	SubAllocator() Allocator
}

// =============================================================================
// HEAP ALLOCATOR
// =============================================================================

// HeapAllocator is an Allocator backed directly by the Go heap: every
// Allocate is a fresh make([]byte, ...), every Deallocate just forgets
// the accounting entry and lets the garbage collector reclaim the
// memory. This is the default, general-purpose allocator.
type HeapAllocator struct {
	mu        sync.Mutex
	live      map[*byte]int
	allocated int64
	capacity  int64
}

// NewHeapAllocator returns a HeapAllocator. capacity bounds
// NumAllocatedBytes; pass 0 for unbounded.
func NewHeapAllocator(capacity int64) *HeapAllocator {
	if capacity <= 0 {
		capacity = -1
	}
	return &HeapAllocator{
		live:     make(map[*byte]int),
		capacity: capacity,
	}
}

func bufKey(buf []byte) *byte {
	if cap(buf) == 0 {
		return nil
	}
	return &buf[:1][0]
}

func (a *HeapAllocator) Allocate(byteSize int, alignment int, opts ...AllocOption) ([]byte, error) {
	if byteSize < 0 {
		return nil, fmt.Errorf("allocator: negative size %d", byteSize)
	}
	_ = applyOptions(opts)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.capacity >= 0 && a.allocated+int64(byteSize) > a.capacity {
		return nil, fmt.Errorf("allocator: out of memory allocating %d bytes (capacity %d, in use %d)", byteSize, a.capacity, a.allocated)
	}

	buf := make([]byte, byteSize)
	if byteSize > 0 {
		a.live[bufKey(buf)] = byteSize
		a.allocated += int64(byteSize)
	}
	return buf, nil
}

func (a *HeapAllocator) Deallocate(buf []byte) {
	if len(buf) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := bufKey(buf)
	if size, ok := a.live[key]; ok {
		a.allocated -= int64(size)
		delete(a.live, key)
	}
}

func (a *HeapAllocator) Reallocate(buf []byte, newSize int, alignment int) ([]byte, error) {
	newBuf, err := a.Allocate(newSize, alignment)
	if err != nil {
		return nil, err
	}
	copy(newBuf, buf)
	a.Deallocate(buf)
	return newBuf, nil
}

func (a *HeapAllocator) Resize(buf []byte, newSize int) ([]byte, error) {
	return a.Reallocate(buf, newSize, 0)
}

func (a *HeapAllocator) AllocationSize(buf []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if size, ok := a.live[bufKey(buf)]; ok {
		return size
	}
	return -1
}

func (a *HeapAllocator) GarbageCollect() {}

func (a *HeapAllocator) NumAllocatedBytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated
}

func (a *HeapAllocator) Capacity() int64 { return a.capacity }

func (a *HeapAllocator) MaxAllocationSize() int64 { return a.capacity }

func (a *HeapAllocator) MaxContiguousAllocationSize() int64 {
	return a.UnallocatedMemory()
}

func (a *HeapAllocator) UnallocatedMemory() int64 {
	if a.capacity < 0 {
		return -1
	}
	return a.capacity - a.NumAllocatedBytes()
}

func (a *HeapAllocator) SubAllocator() Allocator {
	return NewChildAllocator(a)
}

var _ Allocator = (*HeapAllocator)(nil)
