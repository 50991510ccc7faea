package allocator

import "sync"

var (
	environmentOnce sync.Once
	environment     Allocator
)

// EnvironmentSingleton returns the process-wide default Allocator,
// constructing it on first use. Most application code allocates through
// this rather than constructing its own HeapAllocator, so that
// NumAllocatedBytes reflects the whole process.
func EnvironmentSingleton() Allocator {
	environmentOnce.Do(func() {
		environment = NewHeapAllocator(0)
	})
	return environment
}

// NewModuleAllocator returns a ChildAllocator scoped to the given
// parent (typically EnvironmentSingleton()), intended to be held for
// the lifetime of one loaded plugin/module so its footprint can be
// inspected and, on unload, its outstanding allocations audited before
// the module is discarded.
func NewModuleAllocator(parent Allocator) *ChildAllocator {
	if parent == nil {
		parent = EnvironmentSingleton()
	}
	return NewChildAllocator(parent)
}

// ManuallyOwned is a marker documenting that an Allocator value is owned
// directly by its caller rather than via EnvironmentSingleton or a
// module scope: no wrapper type is needed for this policy, the caller
// simply holds the Allocator value itself and is responsible for its
// lifetime.
type ManuallyOwned = Allocator
