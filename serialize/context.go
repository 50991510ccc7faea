package serialize

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/jeeves-cluster-organization/velcro-core/errs"
	"github.com/jeeves-cluster-organization/velcro-core/typeid"
)

// Context is the registry of reflected types and the engine that
// traverses, clones, and downcasts instances of them. One process
// typically holds one Context per independent object model (e.g. one
// for game data, one for editor-only data), though nothing prevents
// more.
type Context struct {
	mu sync.RWMutex

	byID       map[typeid.ID]*ClassData
	byName     map[string]*ClassData
	factories  map[typeid.ID]Factory
	generics   map[typeid.ID][]*ClassData // keyed by the template's generic id, legacy multimap

	perModule map[string]struct{} // module names that have registered into this context
}

// NewContext returns an empty Context with the builtin scalar types
// (int and its sized/unsigned variants, string, bool, float64)
// pre-registered, since every document is expected to bottom out in
// one of them.
func NewContext() *Context {
	c := &Context{
		byID:      make(map[typeid.ID]*ClassData),
		byName:    make(map[string]*ClassData),
		factories: make(map[typeid.ID]Factory),
		generics:  make(map[typeid.ID][]*ClassData),
		perModule: make(map[string]struct{}),
	}
	registerBuiltins(c)
	return c
}

func registerBuiltins(c *Context) {
	for id, b := range builtinScalars {
		cd := &ClassData{Name: b.name, TypeID: id, Version: 1, Serializer: b.serializer}
		c.byID[id] = cd
		c.byName[b.name] = cd
	}
}

// RegisterType inserts cd under its TypeID and Name, and under its
// TypeID in the factory map if it carries one. Re-registering the same
// TypeID replaces the previous entry, matching the original's "last
// registration wins" behavior used by hot-reload.
func (c *Context) RegisterType(cd *ClassData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[cd.TypeID] = cd
	c.byName[cd.Name] = cd
	if cd.Factory != nil {
		c.factories[cd.TypeID] = cd.Factory
	}
}

// RegisterGeneric additionally indexes cd under the generic template id
// tmpl, supporting the legacy multimap lookup where several
// specializations share one canonical template id.
func (c *Context) RegisterGeneric(tmpl typeid.ID, cd *ClassData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generics[tmpl] = append(c.generics[tmpl], cd)
}

// UnregisterType removes id from every index, including generics, and
// from the factory map.
func (c *Context) UnregisterType(id typeid.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cd, ok := c.byID[id]; ok {
		delete(c.byName, cd.Name)
	}
	delete(c.byID, id)
	delete(c.factories, id)
	for tmpl, specs := range c.generics {
		out := specs[:0]
		for _, s := range specs {
			if s.TypeID != id {
				out = append(out, s)
			}
		}
		c.generics[tmpl] = out
	}
}

// FindClassData looks up a registered type by TypeID.
func (c *Context) FindClassData(id typeid.ID) (*ClassData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cd, ok := c.byID[id]
	return cd, ok
}

// FindClassDataByName looks up a registered type by name.
func (c *Context) FindClassDataByName(name string) (*ClassData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cd, ok := c.byName[name]
	return cd, ok
}

// EnumerateDerived returns every registered ClassData whose generic
// template id is tmpl.
func (c *Context) EnumerateDerived(tmpl typeid.ID) []*ClassData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	specs := c.generics[tmpl]
	out := make([]*ClassData, len(specs))
	copy(out, specs)
	return out
}

// EnumerateAll visits every registered ClassData; visit returning false
// stops enumeration early. Carried forward from the original engine's
// registry-introspection support even though it is not exercised by the
// document format itself.
func (c *Context) EnumerateAll(visit func(*ClassData) bool) {
	c.mu.RLock()
	all := make([]*ClassData, 0, len(c.byID))
	for _, cd := range c.byID {
		all = append(all, cd)
	}
	c.mu.RUnlock()

	for _, cd := range all {
		if !visit(cd) {
			return
		}
	}
}

// ClassDeprecate installs a placeholder ClassData for a type that used
// to be reflected: any document field that names this TypeID is either
// converted via convert (if non-nil) or silently dropped.
func (c *Context) ClassDeprecate(name string, id typeid.ID, convert func(*DataElementNode) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[id] = &ClassData{
		Name:    name,
		TypeID:  id,
		Version: Deprecated,
		VersionUpgrade: &UpgradeHandler{deprecateConvert: convert},
	}
	c.byName[name] = c.byID[id]
}

// RegisterModule records that a plugin/module named name has registered
// types into this context, so ModuleRegistry can later un-reflect
// exactly that module's contributions on unload.
func (c *Context) RegisterModule(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perModule[name] = struct{}{}
}

// =============================================================================
// DOWNCAST
// =============================================================================

// CanDowncast reports whether an instance of fromID can be viewed as
// toID: trivially true if the ids match, otherwise true if toID names a
// base class of fromID anywhere in its reflected base-class chain.
func (c *Context) CanDowncast(fromID, toID typeid.ID) bool {
	_, ok := c.downcastOffset(fromID, toID)
	return fromID == toID || ok
}

// DownCast returns a pointer adjusted from an instance of fromID to an
// embedded toID base, or ok=false if fromID is not toID and does not
// reflect toID as a base.
func (c *Context) DownCast(ptr any, fromID, toID typeid.ID) (any, bool) {
	if fromID == toID {
		return ptr, true
	}
	offset, ok := c.downcastOffset(fromID, toID)
	if !ok {
		return nil, false
	}
	return offsetPointer(ptr, offset), true
}

func (c *Context) downcastOffset(fromID, toID typeid.ID) (uintptr, bool) {
	cd, ok := c.FindClassData(fromID)
	if !ok {
		return 0, false
	}
	for _, base := range cd.BaseElements() {
		if base.TypeID == toID {
			return base.Offset, true
		}
		if offset, ok := c.downcastOffset(base.TypeID, toID); ok {
			return base.Offset + offset, true
		}
	}
	return 0, false
}

// offsetPointer returns a pointer offset bytes into the object ptr
// points to, via reflect and unsafe, the idiomatic (and only) way Go
// lets a library do C++-style base-pointer adjustment.
func offsetPointer(ptr any, offset uintptr) any {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Ptr {
		return nil
	}
	elem := v.Elem()
	if elem.Kind() != reflect.Struct {
		return nil
	}
	// Find the struct field living at this byte offset, rather than
	// taking an unsafe.Pointer offset directly, so the result stays a
	// typed, GC-visible pointer.
	t := elem.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Offset == offset {
			return elem.Field(i).Addr().Interface()
		}
	}
	return nil
}

// =============================================================================
// ENUMERATION
// =============================================================================

// AccessFlags are advisory hints passed to EnumerateInstance's
// callbacks.
type AccessFlags uint32

const (
	ForRead AccessFlags = 1 << iota
	ForWrite
	// AccessHold suppresses the OnRead/WriteEnd hook at the end of the
	// call, for callers that want to keep the instance "open" across
	// several EnumerateInstance calls (e.g. incremental editing UIs).
	AccessHold
)

// EnumerateCallbacks bundles the begin/end hooks EnumerateInstance
// invokes at each node.
type EnumerateCallbacks struct {
	// BeginElem is called before descending into ptr. Returning false
	// skips the subtree (children are not visited) but still calls
	// EndElem.
	BeginElem func(ptr any, cd *ClassData, elem *ClassElement) bool
	// EndElem is called after a subtree (or the skipped node) has been
	// fully visited. Returning false stops enumeration of remaining
	// siblings at this level.
	EndElem func(ptr any, cd *ClassData, elem *ClassElement) bool
}

// EnumerateInstance performs a depth-first traversal of ptr (an
// instance of typeID, described by cd if already known) invoking cb at
// every node. It honors AccessHold by skipping the OnRead/WriteEnd
// hook, and synthesizes traversal of container-delegated fields via
// ClassData.Container.
func (c *Context) EnumerateInstance(ptr any, typeID typeid.ID, cd *ClassData, access AccessFlags, cb EnumerateCallbacks) {
	if ptr == nil {
		return
	}
	if cd == nil {
		var ok bool
		cd, ok = c.FindClassData(typeID)
		if !ok {
			return
		}
	}

	if cd.EventHandler != nil {
		if access&ForRead != 0 {
			cd.EventHandler.OnReadBegin(ptr)
		}
		if access&ForWrite != 0 {
			cd.EventHandler.OnWriteBegin(ptr)
		}
	}

	if cb.BeginElem == nil || cb.BeginElem(ptr, cd, nil) {
		c.walkElements(ptr, cd, cb)
	}

	if cb.EndElem != nil {
		cb.EndElem(ptr, cd, nil)
	}

	if access&AccessHold == 0 && cd.EventHandler != nil {
		if access&ForRead != 0 {
			cd.EventHandler.OnReadEnd(ptr)
		}
		if access&ForWrite != 0 {
			cd.EventHandler.OnWriteEnd(ptr)
		}
	}
}

func (c *Context) walkElements(ptr any, cd *ClassData, cb EnumerateCallbacks) {
	if cd.Container != nil {
		cd.Container.EnumElements(ptr, func(elementPtr any, elementTypeID typeid.ID) bool {
			elemCD, _ := c.FindClassData(elementTypeID)
			c.EnumerateInstance(elementPtr, elementTypeID, elemCD, ForRead|ForWrite, cb)
			if cb.EndElem != nil {
				return cb.EndElem(elementPtr, elemCD, nil)
			}
			return true
		})
		return
	}

	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return
	}
	elem := v.Elem()

	for i := range cd.Elements {
		el := &cd.Elements[i]
		if elem.Kind() != reflect.Struct {
			continue
		}
		fieldVal := elem.FieldByIndex(indexFor(elem.Type(), el.Offset))
		var fieldPtr any
		if fieldVal.CanAddr() {
			fieldPtr = fieldVal.Addr().Interface()
		}

		if el.Flags.Has(ElementPointer) {
			if fieldVal.Kind() == reflect.Ptr && fieldVal.IsNil() {
				// Null pointer: do not recurse, matches the boundary
				// behavior required of this traversal.
				if cb.BeginElem != nil {
					cb.BeginElem(nil, cd, el)
				}
				if cb.EndElem != nil {
					if !cb.EndElem(nil, cd, el) {
						return
					}
				}
				continue
			}
			fieldPtr = fieldVal.Interface()
		}

		childCD, _ := c.FindClassData(el.TypeID)
		proceed := true
		if cb.BeginElem != nil {
			proceed = cb.BeginElem(fieldPtr, childCD, el)
		}
		if proceed {
			c.EnumerateInstance(fieldPtr, el.TypeID, childCD, ForRead|ForWrite|AccessHold, cb)
		}
		if cb.EndElem != nil {
			if !cb.EndElem(fieldPtr, childCD, el) {
				return
			}
		}
	}
}

// indexFor finds the struct field index path for a byte offset,
// supporting only top-level fields (no embedded-struct descent), which
// is all ClassBuilder ever records an Offset for.
func indexFor(t reflect.Type, offset uintptr) []int {
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Offset == offset {
			return []int{i}
		}
	}
	return nil
}

// =============================================================================
// CLONE
// =============================================================================

// CloneObject allocates a new instance of typeID via its registered
// factory and deep-copies src into it.
func (c *Context) CloneObject(src any, typeID typeid.ID) (any, error) {
	c.mu.RLock()
	factory, ok := c.factories[typeID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("serialize: no factory registered for %v", typeID)
	}
	dst := factory.Create()
	if err := c.CloneObjectInplace(dst, src, typeID); err != nil {
		return nil, err
	}
	return dst, nil
}

// CloneObjectInplace deep-copies src into the already-live instance dst,
// both assumed to be instances of typeID.
func (c *Context) CloneObjectInplace(dst, src any, typeID typeid.ID) error {
	cd, ok := c.FindClassData(typeID)
	if !ok {
		return fmt.Errorf("serialize: no ClassData registered for %v", typeID)
	}

	h := errs.NewErrorHandler()
	c.cloneValue(dst, src, cd, h)
	if h.NErrors() > 0 {
		return fmt.Errorf("serialize: clone failed: %s", h.Format())
	}

	if cd.EventHandler != nil {
		cd.EventHandler.PostClone(dst)
	}
	return nil
}

func (c *Context) cloneValue(dst, src any, cd *ClassData, h *errs.ErrorHandler) {
	if cd.Serializer != nil {
		data, err := cd.Serializer.Save(src)
		if err != nil {
			h.ReportError("clone: save failed: %v", err)
			return
		}
		if err := cd.Serializer.Load(dst, data); err != nil {
			h.ReportError("clone: load failed: %v", err)
		}
		return
	}

	if cd.Container != nil {
		cd.Container.Clear(dst)
		cd.Container.EnumElements(src, func(elementPtr any, elementTypeID typeid.ID) bool {
			newElem := cd.Container.ReserveElement(dst)
			if newElem == nil {
				h.ReportWarning("clone: container full, dropping element")
				return true
			}
			elemCD, ok := c.FindClassData(elementTypeID)
			if !ok {
				h.ReportError("clone: unknown element type %v", elementTypeID)
				return true
			}
			c.cloneValue(newElem, elementPtr, elemCD, h)
			return true
		})
		return
	}

	dstV := reflect.ValueOf(dst)
	srcV := reflect.ValueOf(src)
	if dstV.Kind() != reflect.Ptr || srcV.Kind() != reflect.Ptr {
		h.ReportError("clone: %s is not addressable", cd.Name)
		return
	}
	dstElem, srcElem := dstV.Elem(), srcV.Elem()

	for i := range cd.Elements {
		el := &cd.Elements[i]
		h.Push(el.Name)

		idx := indexFor(srcElem.Type(), el.Offset)
		if idx == nil {
			h.Pop()
			continue
		}
		srcField := srcElem.FieldByIndex(idx)
		dstField := dstElem.FieldByIndex(idx)

		if el.Flags.Has(ElementPointer) {
			c.clonePointerField(dstField, srcField, el, h)
			h.Pop()
			continue
		}

		childCD, ok := c.FindClassData(el.TypeID)
		if !ok || !dstField.CanAddr() || !srcField.CanAddr() {
			dstField.Set(srcField)
			h.Pop()
			continue
		}
		c.cloneValue(dstField.Addr().Interface(), srcField.Addr().Interface(), childCD, h)
		h.Pop()
	}
}

func (c *Context) clonePointerField(dstField, srcField reflect.Value, el *ClassElement, h *errs.ErrorHandler) {
	if srcField.IsNil() {
		dstField.Set(reflect.Zero(dstField.Type()))
		return
	}

	// Resolve the most-derived registered type for the pointed-to value so
	// a polymorphic field (Base* pointing at a Derived) clones into a
	// fresh instance of the same concrete type, not just the static base.
	concreteType := srcField.Elem().Type()
	concreteID := concreteIDFor(concreteType)
	childCD, ok := c.FindClassData(concreteID)
	if !ok {
		childCD, ok = c.FindClassData(el.TypeID)
		if !ok {
			h.ReportError("clone: unknown pointer element type for %s", el.Name)
			return
		}
	}

	c.mu.RLock()
	factory, hasFactory := c.factories[childCD.TypeID]
	c.mu.RUnlock()
	if !hasFactory {
		h.ReportError("clone: no factory for pointer element %s", el.Name)
		return
	}

	newInstance := factory.Create()
	c.cloneValue(newInstance, srcField.Interface(), childCD, h)

	newVal := reflect.ValueOf(newInstance)
	if newVal.Type().AssignableTo(dstField.Type()) {
		dstField.Set(newVal)
	} else {
		h.ReportError("clone: factory for %s produced incompatible type %s", el.Name, newVal.Type())
	}
}

func concreteIDFor(t reflect.Type) typeid.ID {
	name := t.String()
	if t.PkgPath() != "" {
		name = t.PkgPath() + "." + t.Name()
	}
	return typeid.CreateName(name)
}
