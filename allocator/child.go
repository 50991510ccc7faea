package allocator

import "sync/atomic"

// ChildAllocator forwards every call to a parent Allocator while
// tracking its own subset of NumAllocatedBytes, so a plugin or
// subsystem can be handed a scoped view of a shared allocator: closing
// the child doesn't free the parent's memory, but it does let the host
// see (and assert on) how much of the parent a given child used.
type ChildAllocator struct {
	parent    Allocator
	allocated int64
}

// NewChildAllocator returns a ChildAllocator forwarding to parent.
func NewChildAllocator(parent Allocator) *ChildAllocator {
	return &ChildAllocator{parent: parent}
}

func (c *ChildAllocator) Allocate(byteSize int, alignment int, opts ...AllocOption) ([]byte, error) {
	buf, err := c.parent.Allocate(byteSize, alignment, opts...)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&c.allocated, int64(len(buf)))
	return buf, nil
}

func (c *ChildAllocator) Deallocate(buf []byte) {
	atomic.AddInt64(&c.allocated, -int64(len(buf)))
	c.parent.Deallocate(buf)
}

func (c *ChildAllocator) Reallocate(buf []byte, newSize int, alignment int) ([]byte, error) {
	before := len(buf)
	newBuf, err := c.parent.Reallocate(buf, newSize, alignment)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&c.allocated, int64(len(newBuf)-before))
	return newBuf, nil
}

func (c *ChildAllocator) Resize(buf []byte, newSize int) ([]byte, error) {
	return c.Reallocate(buf, newSize, 0)
}

func (c *ChildAllocator) AllocationSize(buf []byte) int {
	return c.parent.AllocationSize(buf)
}

func (c *ChildAllocator) GarbageCollect() {
	c.parent.GarbageCollect()
}

func (c *ChildAllocator) NumAllocatedBytes() int64 {
	return atomic.LoadInt64(&c.allocated)
}

func (c *ChildAllocator) Capacity() int64 {
	return c.parent.Capacity()
}

func (c *ChildAllocator) MaxAllocationSize() int64 {
	return c.parent.MaxAllocationSize()
}

func (c *ChildAllocator) MaxContiguousAllocationSize() int64 {
	return c.parent.MaxContiguousAllocationSize()
}

func (c *ChildAllocator) UnallocatedMemory() int64 {
	return c.parent.UnallocatedMemory()
}

func (c *ChildAllocator) SubAllocator() Allocator {
	return NewChildAllocator(c)
}

var _ Allocator = (*ChildAllocator)(nil)
