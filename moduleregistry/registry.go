// Package moduleregistry tracks the ClassData a single loaded module
// contributed to one or more serialize.Context instances, so the
// module's contribution can be cleanly un-reflected on unload.
//
// A Go plugin.Plugin never truly unloads - the process keeps its code
// and data mapped for the lifetime of the binary - but the boundary
// still matters: a Registry makes "this module's types are no longer
// visible to new lookups" an explicit, testable operation even though
// the underlying memory is never reclaimed.
package moduleregistry

import (
	"fmt"
	"sync"

	"github.com/jeeves-cluster-organization/velcro-core/serialize"
	"github.com/jeeves-cluster-organization/velcro-core/typeid"
)

// GenericClassInfo wraps one ClassData owned by a Registry's module, the
// unit Registry adds/removes as a whole.
type GenericClassInfo struct {
	ClassData *serialize.ClassData
}

// Registry is the per-module record of what that module registered,
// and into which Contexts. One Registry typically corresponds to one
// loaded plugin.Plugin.
type Registry struct {
	mu   sync.Mutex
	name string

	infos    map[typeid.ID]*GenericClassInfo
	contexts map[*serialize.Context]struct{}
}

// New returns an empty Registry for a module named name.
func New(name string) *Registry {
	return &Registry{
		name:     name,
		infos:    make(map[typeid.ID]*GenericClassInfo),
		contexts: make(map[*serialize.Context]struct{}),
	}
}

// Name returns the module name this registry was created for.
func (r *Registry) Name() string { return r.name }

// Add records info as owned by this module. If any Context is already
// registered, info is also reflected into it immediately so that
// late-arriving types become visible without a separate re-register
// pass.
func (r *Registry) Add(info *GenericClassInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.infos[info.ClassData.TypeID] = info
	for ctx := range r.contexts {
		ctx.RegisterType(info.ClassData)
	}
}

// Find looks up a ClassData this module owns by id.
func (r *Registry) Find(id typeid.ID) (*GenericClassInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.infos[id]
	return info, ok
}

// RegisterContext reflects every ClassData this module currently owns
// into ctx, and remembers ctx so Close can later un-reflect from it.
func (r *Registry) RegisterContext(ctx *serialize.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.contexts[ctx] = struct{}{}
	ctx.RegisterModule(r.name)
	for _, info := range r.infos {
		ctx.RegisterType(info.ClassData)
	}
}

// UnregisterContext removes every ClassData this module owns from ctx,
// and stops tracking ctx. It does not affect this registry's own
// record of what it owns - a later RegisterContext can re-install the
// same types into a different context.
func (r *Registry) UnregisterContext(ctx *serialize.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterContextLocked(ctx)
}

func (r *Registry) unregisterContextLocked(ctx *serialize.Context) {
	for id := range r.infos {
		ctx.UnregisterType(id)
	}
	delete(r.contexts, ctx)
}

// Close un-reflects this module's types from every context still
// tracking it, then clears the registry's own bookkeeping. Per the
// destruction order a reflected type graph requires: contexts must
// stop seeing the type before the type's own metadata is dropped.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ctx := range r.contexts {
		r.unregisterContextLocked(ctx)
	}
	r.infos = make(map[typeid.ID]*GenericClassInfo)
}

// MustAddClass is a convenience wrapper building a GenericClassInfo
// directly from a *serialize.ClassData, panicking if cd is nil.
func (r *Registry) MustAddClass(cd *serialize.ClassData) {
	if cd == nil {
		panic(fmt.Sprintf("moduleregistry: %s attempted to register a nil ClassData", r.name))
	}
	r.Add(&GenericClassInfo{ClassData: cd})
}
