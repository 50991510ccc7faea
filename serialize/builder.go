package serialize

import (
	"fmt"
	"reflect"

	"github.com/jeeves-cluster-organization/velcro-core/typeid"
)

// ClassBuilder assembles a ClassData for T field by field, mirroring the
// reflected-field offsets a hand-written Elements slice would otherwise
// require the caller to compute themselves. One builder produces one
// ClassData; Build() is the only way to get it out.
type ClassBuilder[T any] struct {
	cd      *ClassData
	t       reflect.Type
	fieldOf map[string]reflect.StructField
	err     error
}

// NewClassBuilder starts a ClassBuilder for T, named name.
func NewClassBuilder[T any](name string) *ClassBuilder[T] {
	t := reflect.TypeOf(*new(T))
	fields := make(map[string]reflect.StructField, t.NumField())
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			fields[t.Field(i).Name] = t.Field(i)
		}
	}
	return &ClassBuilder[T]{
		cd:      &ClassData{Name: name, TypeID: typeid.Of[T](), Version: 1},
		t:       t,
		fieldOf: fields,
	}
}

// Version sets the ClassData's current version (default 1).
func (b *ClassBuilder[T]) Version(v uint32) *ClassBuilder[T] {
	b.cd.Version = v
	return b
}

// Field reflects the named Go struct field of T into a ClassElement.
// The field's type-id, size, generic info and pointer-ness all come
// from reflect.StructField itself rather than from the caller, the same
// way the offset already did: the only thing a call site supplies is
// which field to describe and any flags reflect can't infer on its own
// (ElementBaseClass, ElementNoDefaultValue, ...).
func (b *ClassBuilder[T]) Field(goName string, flags ClassElementFlags) *ClassBuilder[T] {
	sf, ok := b.fieldOf[goName]
	if !ok {
		b.err = fmt.Errorf("serialize: %s has no field %q", b.t, goName)
		return b
	}

	declared := sf.Type
	typeForID := declared
	if declared.Kind() == reflect.Ptr {
		flags |= ElementPointer
		typeForID = declared.Elem()
	}

	elem := ClassElement{
		Name:     sf.Name,
		NameCRC:  NameCRC(sf.Name),
		TypeID:   typeid.OfReflectType(typeForID),
		DataSize: declared.Size(),
		Offset:   sf.Offset,
		Flags:    flags,
	}
	if genID, ok := genericElementID(typeForID); ok {
		elem.GenericID = genID
	}
	b.cd.Elements = append(b.cd.Elements, elem)
	return b
}

// FieldFromBase records goName as a base-class slot rather than a plain
// data member: EnumerateInstance and the clone/downcast logic treat it
// as an embedded object contributing its own reflected fields, not an
// opaque leaf. The base's own TypeID is reflected from goName's Go
// type, so it always agrees with whatever ClassData that base type was
// built with.
func (b *ClassBuilder[T]) FieldFromBase(goName string) *ClassBuilder[T] {
	before := len(b.cd.Elements)
	b.Field(goName, ElementBaseClass)
	if len(b.cd.Elements) == before {
		return b
	}
	// Move the new base ahead of any plain fields already recorded, so
	// Elements always lists bases first.
	els := b.cd.Elements
	for i := len(els) - 1; i > 0 && !els[i-1].Flags.Has(ElementBaseClass); i-- {
		els[i], els[i-1] = els[i-1], els[i]
	}
	return b
}

// PointerField is Field for a field holding a pointer to a polymorphic
// reflected type. The ElementPointer flag is also inferred automatically
// from the field's Go type, so this is mostly documentation at the call
// site; it's kept as its own method because "this edge is polymorphic"
// is worth spelling out where a ClassData is assembled.
func (b *ClassBuilder[T]) PointerField(goName string) *ClassBuilder[T] {
	return b.Field(goName, ElementPointer)
}

var (
	sliceTemplateID = typeid.CreateName("serialize.slice")
	mapTemplateID   = typeid.CreateName("serialize.map")
)

// genericElementID derives the composed generic id for container field
// types (slice, array, map) the way Compose documents for template
// instantiations, so downstream code can recognize a container's
// element (and key) type without a second reflect pass. Scalar and
// struct fields carry no generic information and report ok=false.
func genericElementID(t reflect.Type) (id typeid.ID, ok bool) {
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return typeid.Compose(sliceTemplateID, typeid.OfReflectType(t.Elem())), true
	case reflect.Map:
		return typeid.Compose(mapTemplateID, typeid.OfReflectType(t.Key()), typeid.OfReflectType(t.Elem())), true
	default:
		return typeid.Nil, false
	}
}

// Factory installs fn as the ClassData's Factory.
func (b *ClassBuilder[T]) Factory(fn func() any) *ClassBuilder[T] {
	b.cd.Factory = FactoryFunc(fn)
	return b
}

// Serializer installs ser as the ClassData's Serializer, making the type
// an opaque leaf to the traversal engine. Mutually exclusive with Field:
// Build reports an error if both were used.
func (b *ClassBuilder[T]) Serializer(ser Serializer) *ClassBuilder[T] {
	b.cd.Serializer = ser
	return b
}

// EventHandler installs h as the ClassData's EventHandler.
func (b *ClassBuilder[T]) EventHandler(h EventHandler) *ClassBuilder[T] {
	b.cd.EventHandler = h
	return b
}

// Container installs c as the ClassData's Container, delegating
// enumeration of a dynamically sized field to type-specific logic
// instead of the fixed Elements list. Mutually exclusive with Field.
func (b *ClassBuilder[T]) Container(c Container) *ClassBuilder[T] {
	b.cd.Container = c
	return b
}

// PersistentID installs fn as the function that recovers a stable
// identity for instances of T across saves, used by editor undo/redo
// and networked replication to correlate objects that moved but were
// not recreated.
func (b *ClassBuilder[T]) PersistentID(fn func(instance any) uint64) *ClassBuilder[T] {
	b.cd.PersistentID = fn
	return b
}

// Attribute attaches a module-scoped attribute to the type itself
// (as opposed to one of its fields).
func (b *ClassBuilder[T]) Attribute(id AttributeID, ref *AttributeRef) *ClassBuilder[T] {
	b.cd.Attributes = append(b.cd.Attributes, Attribute{ID: id, Ref: ref})
	return b
}

// Upgrades installs h as the ClassData's VersionUpgrade handler.
func (b *ClassBuilder[T]) Upgrades(h *UpgradeHandler) *ClassBuilder[T] {
	b.cd.VersionUpgrade = h
	return b
}

// Build validates and returns the assembled ClassData. It does not
// register the result into any Context; call Context.RegisterType with
// the result to make it visible to lookups.
func (b *ClassBuilder[T]) Build() (*ClassData, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.cd.Serializer != nil && len(b.cd.Elements) > 0 {
		return nil, fmt.Errorf("serialize: %s declares both a Serializer and Fields; a type is either an opaque leaf or a reflected aggregate, not both", b.cd.Name)
	}
	if b.cd.Serializer != nil && b.cd.Container != nil {
		return nil, fmt.Errorf("serialize: %s declares both a Serializer and a Container", b.cd.Name)
	}
	return b.cd, nil
}
