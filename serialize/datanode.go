package serialize

import (
	"fmt"
	"reflect"

	"github.com/jeeves-cluster-organization/velcro-core/errs"
	"github.com/jeeves-cluster-organization/velcro-core/typeid"
)

// DataElementNode is one node of a persisted document tree: its own
// DataElement payload, an ordered list of children, and a back-pointer
// to the ClassData describing it (nil for leaves holding a builtin
// scalar, since those need no further reflection to read back).
type DataElementNode struct {
	Element  DataElement
	Children []*DataElementNode
	Class    *ClassData
}

// NewDataElementNode constructs an empty node for typeID at version.
func NewDataElementNode(name string, typeID typeid.ID, version uint32) *DataElementNode {
	return &DataElementNode{Element: *NewDataElement(name, typeID, version)}
}

// FindElement returns the direct child whose name hashes to crc, or nil.
func (n *DataElementNode) FindElement(crc uint32) *DataElementNode {
	for _, c := range n.Children {
		if c.Element.NameCRC == crc {
			return c
		}
	}
	return nil
}

// FindSubElement searches the full subtree (depth-first) for the first
// node whose name hashes to crc.
func (n *DataElementNode) FindSubElement(crc uint32) *DataElementNode {
	if n.Element.NameCRC == crc {
		return n
	}
	for _, c := range n.Children {
		if found := c.FindSubElement(crc); found != nil {
			return found
		}
	}
	return nil
}

// AddElement appends child to n's children and returns it.
func (n *DataElementNode) AddElement(child *DataElementNode) *DataElementNode {
	n.Children = append(n.Children, child)
	return child
}

// ReplaceElement replaces the first child whose name hashes to crc with
// replacement, or appends replacement if no such child exists.
func (n *DataElementNode) ReplaceElement(crc uint32, replacement *DataElementNode) {
	for i, c := range n.Children {
		if c.Element.NameCRC == crc {
			n.Children[i] = replacement
			return
		}
	}
	n.Children = append(n.Children, replacement)
}

// RemoveElement removes child from n's children by identity.
func (n *DataElementNode) RemoveElement(child *DataElementNode) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// Convert mutates n in place to represent a different type: children are
// discarded and the version reset, matching Convert[T]'s contract in
// the live-object API below.
func (n *DataElementNode) Convert(name string, typeID typeid.ID, version uint32) {
	n.Element = *NewDataElement(name, typeID, version)
	n.Children = nil
	n.Class = nil
}

// =============================================================================
// LEAF VALUE ACCESS (generic, live-object <-> DataElementNode for builtin
// scalars and any type registered with a Context)
// =============================================================================

// GetData decodes n's leaf payload into a value of type T. If n's
// Category is Text, the text is decoded directly with the matching
// Serializer's LoadText.
func GetData[T any](n *DataElementNode, ctx *Context, h *errs.ErrorHandler) (T, error) {
	var zero T
	wantID := typeid.Of[T]()
	if n.Element.TypeID != wantID {
		err := fmt.Errorf("serialize: field %q holds %v, not %v", n.Element.Name, n.Element.TypeID, wantID)
		if h != nil {
			h.ReportError("%v", err)
		}
		return zero, err
	}

	ser, err := serializerFor(n.Element.TypeID, ctx)
	if err != nil {
		if h != nil {
			h.ReportError("%v", err)
		}
		return zero, err
	}

	var out T
	ptr := any(&out)
	if n.Element.Category == Text {
		if err := ser.LoadText(ptr, string(n.Element.Data)); err != nil {
			if h != nil {
				h.ReportError("%v", err)
			}
			return zero, err
		}
		return out, nil
	}

	if err := ser.Load(ptr, n.Element.Data); err != nil {
		if h != nil {
			h.ReportError("%v", err)
		}
		return zero, err
	}
	return out, nil
}

// SetData encodes value into n's leaf payload as Binary, clearing any
// existing children (a leaf cannot also carry a reflected subtree).
func SetData[T any](n *DataElementNode, ctx *Context, value T, h *errs.ErrorHandler) error {
	id := typeid.Of[T]()
	ser, err := serializerFor(id, ctx)
	if err != nil {
		if h != nil {
			h.ReportError("%v", err)
		}
		return err
	}

	data, err := ser.Save(any(&value))
	if err != nil {
		if h != nil {
			h.ReportError("%v", err)
		}
		return err
	}

	n.Element.TypeID = id
	n.Element.Category = Binary
	n.Element.Data = data
	n.Children = nil
	return nil
}

func serializerFor(id typeid.ID, ctx *Context) (Serializer, error) {
	if b, ok := builtinScalars[id]; ok {
		return b.serializer, nil
	}
	if ctx != nil {
		if cd, ok := ctx.FindClassData(id); ok && cd.Serializer != nil {
			return cd.Serializer, nil
		}
	}
	return nil, fmt.Errorf("serialize: no serializer registered for type %v", id)
}

// decodeLeafAny and encodeLeafAny are the context-free counterparts
// GetData/SetData rely on internally for the upgrade handler, which
// operates on raw document nodes without necessarily holding the
// Context that produced them. They only support the builtin scalar
// set; a type-change upgrade between two struct types must supply its
// own convert function operating on already-decoded Go values instead.
func decodeLeafAny(n *DataElementNode) (any, error) {
	b, ok := builtinScalars[n.Element.TypeID]
	if !ok {
		return nil, fmt.Errorf("serialize: type-change upgrade needs a builtin scalar type, got %v", n.Element.TypeID)
	}
	rv := reflect.New(reflect.TypeOf(zeroValueFor(b.name)))
	if n.Element.Category == Text {
		if err := b.serializer.LoadText(rv.Interface(), string(n.Element.Data)); err != nil {
			return nil, err
		}
	} else if err := b.serializer.Load(rv.Interface(), n.Element.Data); err != nil {
		return nil, err
	}
	return rv.Elem().Interface(), nil
}

func encodeLeafAny(n *DataElementNode, value any) error {
	b, ok := builtinScalars[n.Element.TypeID]
	if !ok {
		return fmt.Errorf("serialize: type-change upgrade needs a builtin scalar type, got %v", n.Element.TypeID)
	}
	rv := reflect.New(reflect.TypeOf(value))
	rv.Elem().Set(reflect.ValueOf(value))
	data, err := b.serializer.Save(rv.Interface())
	if err != nil {
		return err
	}
	n.Element.Category = Binary
	n.Element.Data = data
	return nil
}

func zeroValueFor(scalarName string) any {
	switch scalarName {
	case "int":
		return int(0)
	case "int8":
		return int8(0)
	case "int16":
		return int16(0)
	case "int32":
		return int32(0)
	case "int64":
		return int64(0)
	case "uint":
		return uint(0)
	case "uint8":
		return uint8(0)
	case "uint16":
		return uint16(0)
	case "uint32":
		return uint32(0)
	case "uint64":
		return uint64(0)
	case "bool":
		return false
	case "string":
		return ""
	case "float64":
		return float64(0)
	default:
		return nil
	}
}

// =============================================================================
// HIERARCHY POPULATION
// =============================================================================

// GetDataHierarchy populates the live instance objPtr (of typeID) from
// n's subtree: n's own element is expected to describe typeID, and each
// child is matched to the corresponding ClassElement of the parent's
// ClassData by name, downcast-verified when the parent is a
// pointer-typed container element.
func (n *DataElementNode) GetDataHierarchy(ctx *Context, objPtr any, typeID typeid.ID, h *errs.ErrorHandler) error {
	cd, ok := ctx.FindClassData(typeID)
	if !ok {
		if h != nil {
			h.ReportError("unknown type %v", typeID)
		}
		return fmt.Errorf("serialize: unknown type %v", typeID)
	}

	if cd.VersionUpgrade != nil {
		if err := cd.VersionUpgrade.Apply(n, n.Element.Version); err != nil {
			if h != nil {
				h.ReportError("%v", err)
			}
			return err
		}
	}

	if cd.Serializer != nil {
		if n.Element.Category == Text {
			return cd.Serializer.LoadText(objPtr, string(n.Element.Data))
		}
		return cd.Serializer.Load(objPtr, n.Element.Data)
	}

	v := reflect.ValueOf(objPtr)
	if v.Kind() != reflect.Ptr {
		err := fmt.Errorf("serialize: GetDataHierarchy target must be a pointer, got %T", objPtr)
		if h != nil {
			h.ReportError("%v", err)
		}
		return err
	}
	elem := v.Elem()

	for _, child := range n.Children {
		pushTag(h, child.Element.Name)
		// A child stored as a ClassDeprecate'd type goes through that
		// type's converter first, and is dropped silently when there is
		// no converter or it reports failure.
		if dcd, ok := ctx.FindClassData(child.Element.TypeID); ok && dcd.IsDeprecated() {
			if dcd.VersionUpgrade == nil || dcd.VersionUpgrade.deprecateConvert == nil || !dcd.VersionUpgrade.deprecateConvert(child) {
				popTag(h)
				continue
			}
		}
		el, ok := cd.FindElementByCRC(child.Element.NameCRC)
		if !ok {
			if h != nil {
				h.ReportWarning("unrecognized field %q ignored", child.Element.Name)
			}
			popTag(h)
			continue
		}

		idx := indexFor(elem.Type(), el.Offset)
		if idx == nil {
			popTag(h)
			continue
		}
		fieldVal := elem.FieldByIndex(idx)

		if el.Flags.Has(ElementPointer) {
			if err := n.populatePointerField(ctx, fieldVal, child, el, h); err != nil {
				popTag(h)
				return err
			}
			popTag(h)
			continue
		}

		if !fieldVal.CanAddr() {
			popTag(h)
			continue
		}
		if err := child.GetDataHierarchy(ctx, fieldVal.Addr().Interface(), el.TypeID, h); err != nil {
			popTag(h)
			return err
		}
		popTag(h)
	}
	return nil
}

// pushTag/popTag wrap ErrorHandler.Push/Pop for a handler that may be
// nil: GetDataHierarchy accepts an omitted handler for callers that
// don't care to accumulate per-field diagnostics.
func pushTag(h *errs.ErrorHandler, tag string) {
	if h != nil {
		h.Push(tag)
	}
}

func popTag(h *errs.ErrorHandler) {
	if h != nil {
		h.Pop()
	}
}

func (n *DataElementNode) populatePointerField(ctx *Context, fieldVal reflect.Value, child *DataElementNode, el *ClassElement, h *errs.ErrorHandler) error {
	concreteID := child.Element.TypeID
	childCD, ok := ctx.FindClassData(concreteID)
	if !ok {
		childCD, ok = ctx.FindClassData(el.TypeID)
		if !ok {
			if h != nil {
				h.ReportError("unknown pointer element type for %q", el.Name)
			}
			return fmt.Errorf("serialize: unknown pointer element type for %q", el.Name)
		}
	}
	if !ctx.CanDowncast(childCD.TypeID, el.TypeID) {
		err := fmt.Errorf("serialize: %v is not a %v, cannot populate field %q", childCD.TypeID, el.TypeID, el.Name)
		if h != nil {
			h.ReportError("%v", err)
		}
		return err
	}

	ctx.mu.RLock()
	factory, hasFactory := ctx.factories[childCD.TypeID]
	ctx.mu.RUnlock()
	if !hasFactory {
		err := fmt.Errorf("serialize: no factory for pointer field %q", el.Name)
		if h != nil {
			h.ReportError("%v", err)
		}
		return err
	}

	instance := factory.Create()
	if err := child.GetDataHierarchy(ctx, instance, childCD.TypeID, h); err != nil {
		return err
	}

	instVal := reflect.ValueOf(instance)
	if !instVal.Type().AssignableTo(fieldVal.Type()) {
		err := fmt.Errorf("serialize: factory for %q produced incompatible type %s", el.Name, instVal.Type())
		if h != nil {
			h.ReportError("%v", err)
		}
		return err
	}
	fieldVal.Set(instVal)
	return nil
}

// SetDataHierarchy builds n's subtree from the live instance objPtr by
// driving EnumerateInstance and saving each leaf to its byte payload.
func (n *DataElementNode) SetDataHierarchy(ctx *Context, objPtr any, typeID typeid.ID, h *errs.ErrorHandler) error {
	cd, ok := ctx.FindClassData(typeID)
	if !ok {
		if h != nil {
			h.ReportError("unknown type %v", typeID)
		}
		return fmt.Errorf("serialize: unknown type %v", typeID)
	}

	n.Element.TypeID = typeID
	n.Element.Version = cd.Version
	n.Children = nil
	n.Class = cd

	if cd.Serializer != nil {
		data, err := cd.Serializer.Save(objPtr)
		if err != nil {
			if h != nil {
				h.ReportError("%v", err)
			}
			return err
		}
		n.Element.Category = Binary
		n.Element.Data = data
		return nil
	}

	v := reflect.ValueOf(objPtr)
	if v.Kind() != reflect.Ptr {
		err := fmt.Errorf("serialize: SetDataHierarchy source must be a pointer, got %T", objPtr)
		if h != nil {
			h.ReportError("%v", err)
		}
		return err
	}
	elem := v.Elem()

	for i := range cd.Elements {
		el := &cd.Elements[i]
		idx := indexFor(elem.Type(), el.Offset)
		if idx == nil {
			continue
		}
		fieldVal := elem.FieldByIndex(idx)

		child := NewDataElementNode(el.Name, el.TypeID, 1)

		if el.Flags.Has(ElementPointer) {
			if fieldVal.IsNil() {
				continue // null pointer: omit from the document, matching GetDataHierarchy's skip-on-null reading
			}
			concreteType := fieldVal.Elem().Type()
			concreteID := concreteIDFor(concreteType)
			concreteCD, ok := ctx.FindClassData(concreteID)
			targetID := el.TypeID
			if ok {
				targetID = concreteCD.TypeID
			}
			if err := child.SetDataHierarchy(ctx, fieldVal.Interface(), targetID, h); err != nil {
				return err
			}
			n.Children = append(n.Children, child)
			continue
		}

		if !fieldVal.CanAddr() {
			continue
		}
		if err := child.SetDataHierarchy(ctx, fieldVal.Addr().Interface(), el.TypeID, h); err != nil {
			return err
		}
		n.Children = append(n.Children, child)
	}
	return nil
}

