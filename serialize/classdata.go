// Package serialize implements the reflection and serialization graph:
// per-type metadata (ClassData/ClassElement), a registry of that
// metadata keyed by stable type identity (Context), a
// traversal engine over live object graphs (EnumerateInstance, clone,
// downcast), and a persisted-document tree (DataElementNode) that can
// be populated from or used to populate a live object.
package serialize

import (
	"hash/crc32"
	"sync/atomic"

	"github.com/jeeves-cluster-organization/velcro-core/typeid"
)

// NameCRC derives the CRC32-IEEE checksum used throughout this package
// to key fields and attributes by name. hash/crc32 is used directly
// rather than a hand-rolled table: it is bit-compatible with the
// original engine's CRC32 (same IEEE polynomial) and reimplementing the
// table generation would only risk a silent mismatch.
func NameCRC(name string) uint32 {
	return crc32.ChecksumIEEE([]byte(name))
}

// ClassElementFlags is a bitset describing one reflected field.
type ClassElementFlags uint32

const (
	ElementPointer ClassElementFlags = 1 << iota
	ElementBaseClass
	ElementNoDefaultValue
	ElementDynamicField
	ElementUIElement
)

func (f ClassElementFlags) Has(bit ClassElementFlags) bool { return f&bit == bit }

// AttributeID identifies an attribute key, derived the same way a field
// name is (CRC32), so attribute keys and field names share one
// collision domain by convention without forcing a dependency between
// the two.
type AttributeID = uint32

// AttributeOwnership controls who is responsible for an Attribute's
// value outliving the AttributeRef that names it.
type AttributeOwnership int

const (
	// OwnershipNone: the value is a plain, already-immortal value (e.g. a
	// constant); no refcounting needed.
	OwnershipNone AttributeOwnership = iota
	// OwnershipSelf: the AttributeRef owns its value; it is released when
	// the ref's count drops to zero.
	OwnershipSelf
	// OwnershipParent: the value's lifetime is tied to the owning
	// ClassData/Attribute's module, not to this particular ref.
	OwnershipParent
)

// AttributeRef is a ref-counted handle to an attribute's value, modeling
// the module-scoped attribute storage the original engine uses so
// attributes outlive the reflection graph exactly as long as the module
// that registered them stays loaded.
type AttributeRef struct {
	Value     any
	Ownership AttributeOwnership
	count     int32
}

// NewAttributeRef wraps value with an initial refcount of 1.
func NewAttributeRef(value any, ownership AttributeOwnership) *AttributeRef {
	return &AttributeRef{Value: value, Ownership: ownership, count: 1}
}

// Retain increments the refcount and returns the ref, for convenient
// chaining at registration sites that hand the same attribute to
// multiple elements.
func (a *AttributeRef) Retain() *AttributeRef {
	atomic.AddInt32(&a.count, 1)
	return a
}

// Release decrements the refcount and reports whether it reached zero.
// Callers whose Ownership is OwnershipSelf must stop using Value once
// Release returns true.
func (a *AttributeRef) Release() bool {
	return atomic.AddInt32(&a.count, -1) == 0
}

// Attribute pairs an AttributeID with the ref that owns its value.
type Attribute struct {
	ID  AttributeID
	Ref *AttributeRef
}

// ClassElement describes one reflected field of a ClassData: either a
// data member or a base-class slot.
type ClassElement struct {
	Name       string
	NameCRC    uint32
	TypeID     typeid.ID
	DataSize   uintptr
	Offset     uintptr
	Flags      ClassElementFlags
	GenericID  typeid.ID // zero if this field's type has no generic/template info
	Attributes []Attribute

	// classData is not set or read anywhere in this package; element
	// types are resolved by TypeID through Context.FindClassData.
	classData *ClassData
}

// ClassData describes one reflected type: its identity, its version,
// the ordered list of base classes and fields that make it up, and the
// function hooks (factory, serializer, container, event handler) that
// let the traversal engine operate on instances of it.
type ClassData struct {
	Name     string
	TypeID   typeid.ID
	Version  uint32
	Elements []ClassElement

	Factory       Factory
	Serializer    Serializer
	Container     Container
	EventHandler  EventHandler
	PersistentID  func(instance any) uint64
	VersionUpgrade *UpgradeHandler

	Attributes []Attribute
}

// Deprecated is the version sentinel ClassDeprecate installs.
const Deprecated uint32 = ^uint32(0)

// IsDeprecated reports whether cd represents a deprecated type: no
// members, version pinned to Deprecated, present only so old documents
// referencing it can be recognized and skipped or converted.
func (cd *ClassData) IsDeprecated() bool {
	return cd.Version == Deprecated
}

// FindElement returns the ClassElement named name, if any.
func (cd *ClassData) FindElement(name string) (*ClassElement, bool) {
	crc := NameCRC(name)
	for i := range cd.Elements {
		if cd.Elements[i].NameCRC == crc {
			return &cd.Elements[i], true
		}
	}
	return nil, false
}

// FindElementByCRC returns the ClassElement whose name hashes to crc.
func (cd *ClassData) FindElementByCRC(crc uint32) (*ClassElement, bool) {
	for i := range cd.Elements {
		if cd.Elements[i].NameCRC == crc {
			return &cd.Elements[i], true
		}
	}
	return nil, false
}

// BaseElements returns only the elements flagged ElementBaseClass, in
// declaration order (bases are always declared before fields by
// ClassBuilder).
func (cd *ClassData) BaseElements() []ClassElement {
	var out []ClassElement
	for _, el := range cd.Elements {
		if el.Flags.Has(ElementBaseClass) {
			out = append(out, el)
		}
	}
	return out
}

// Factory creates instances of a reflected type behind an any, for code
// (like CloneObject) that only knows a TypeID. It has no destroy hook;
// instances are left to the garbage collector.
type Factory interface {
	Create() any
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func() any

func (f FactoryFunc) Create() any { return f() }

// EventHandler observes a traversal as it enters/leaves an instance.
type EventHandler interface {
	OnReadBegin(instance any)
	OnReadEnd(instance any)
	OnWriteBegin(instance any)
	OnWriteEnd(instance any)
	PostClone(instance any)
}

// Container lets a ClassData delegate enumeration of a dynamically
// sized field (slice, map) to type-specific logic instead of a fixed
// Elements list.
type Container interface {
	// EnumElements visits every element currently in container,
	// invoking visit(elementPtr, elementTypeID) for each. Returning false
	// from visit stops enumeration early.
	EnumElements(container any, visit func(elementPtr any, elementTypeID typeid.ID) bool)

	// ReserveElement appends a new, zero-valued element to container and
	// returns a pointer to it, or nil if the container cannot grow
	// (fixed-capacity container already full).
	ReserveElement(container any) any

	// GetElementByIndex returns a pointer to the i'th element if
	// container is index-addressable and large enough, or nil otherwise.
	GetElementByIndex(container any, i int) any

	// Clear empties container in place, used before CloneObjectInplace
	// repopulates it so stale entries don't linger.
	Clear(container any)
}
