// Package typeid implements stable, cross-module type identity: a
// 128-bit value derived from a type's fully-qualified name (or supplied
// explicitly) that two independently compiled plugins can agree on
// without sharing a registry at compile time.
package typeid

import (
	"crypto/sha1"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// ID is a 128-bit stable type identity. Two ID values compare equal iff
// they were derived from the same name (or the same explicit bytes).
type ID [16]byte

// Nil is the zero ID, used to mean "no type" / "unresolved".
var Nil ID

// Equal reports whether id and other identify the same type.
func (id ID) Equal(other ID) bool {
	return id == other
}

// Less imposes an arbitrary but total and stable order over ID values,
// so IDs can key sorted containers.
func (id ID) Less(other ID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// IsNil reports whether id is the zero value.
func (id ID) IsNil() bool {
	return id == Nil
}

// String renders id as a canonical hyphenated hex string, matching
// uuid.UUID's layout since ID and uuid.UUID share representation.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Hash returns a 64-bit digest of id suitable for map/set bucketing
// where a full 128-bit key is unnecessary overhead.
func (id ID) Hash() uint64 {
	var h uint64
	for i, b := range id {
		h ^= uint64(b) << (8 * (i % 8))
	}
	return h
}

// FromString parses the canonical hyphenated hex representation produced
// by String.
func FromString(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("typeid: %w", err)
	}
	return ID(u), nil
}

// CreateName derives a stable ID from an arbitrary name string. Unlike
// Of, this does not depend on Go's reflect.Type machinery at all, so it
// is the right tool for naming things that aren't Go types: modules,
// wire protocols, attribute keys.
//
// The derivation is a version-5 (SHA-1) UUID under one fixed namespace,
// so the same name always yields the same ID regardless of process,
// build, or module boundary.
func CreateName(name string) ID {
	return ID(uuid.NewSHA1(typeidNamespace, []byte(name)))
}

// typeidNamespace is the fixed namespace UUID used as the root of every
// CreateName derivation: the standard RFC 4122 DNS namespace, so any
// other version-5 derivation under that namespace from the same name
// produces the same ID.
var typeidNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

var (
	registryMu sync.RWMutex
	registry   = map[ID]reflect.Type{}
	byType     = map[reflect.Type]ID{}
)

// Of returns the stable ID for T, deriving and caching it from T's
// package path and name on first use. Two calls to Of[T] in different
// processes (or different plugins within the same process) agree on the
// same ID as long as T's package path and name are unchanged, since both
// derive from CreateName over that qualified name.
func Of[T any]() ID {
	return typeOf(reflect.TypeOf((*T)(nil)).Elem())
}

// OfReflectType is the reflect.Type analogue of Of, for callers that
// only have a runtime reflect.Type in hand (a struct field's declared
// type, say) rather than a compile-time type parameter. It derives and
// caches exactly as Of does, including the enum fallback.
func OfReflectType(t reflect.Type) ID {
	return typeOf(t)
}

func typeOf(t reflect.Type) ID {
	registryMu.RLock()
	if id, ok := byType[t]; ok {
		registryMu.RUnlock()
		return id
	}
	registryMu.RUnlock()

	id := deriveID(t)

	registryMu.Lock()
	registry[id] = t
	byType[t] = id
	registryMu.Unlock()

	return id
}

// deriveID computes the id a type gets on first use: an enum-shaped
// type (a defined integer kind with no explicit Register call already
// on record) falls back to the id of its underlying integral kind,
// matching GetTypeTraits' is_enum contract; everything else derives
// from its own qualified name.
func deriveID(t reflect.Type) ID {
	if isEnumKind(t) {
		return typeOf(underlyingNumericKind(t.Kind()))
	}
	return CreateName(qualifiedName(t))
}

// isEnumKind reports whether t is the Go idiom for an enum: a type
// defined in some package (PkgPath non-empty) over one of the integer
// kinds, as opposed to a predeclared type like int32 itself.
func isEnumKind(t reflect.Type) bool {
	if t.PkgPath() == "" {
		return false
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

// underlyingNumericKind returns the predeclared reflect.Type for an
// integer kind (int32 for reflect.Int32, and so on).
func underlyingNumericKind(k reflect.Kind) reflect.Type {
	switch k {
	case reflect.Int:
		return reflect.TypeOf(int(0))
	case reflect.Int8:
		return reflect.TypeOf(int8(0))
	case reflect.Int16:
		return reflect.TypeOf(int16(0))
	case reflect.Int32:
		return reflect.TypeOf(int32(0))
	case reflect.Int64:
		return reflect.TypeOf(int64(0))
	case reflect.Uint:
		return reflect.TypeOf(uint(0))
	case reflect.Uint8:
		return reflect.TypeOf(uint8(0))
	case reflect.Uint16:
		return reflect.TypeOf(uint16(0))
	case reflect.Uint32:
		return reflect.TypeOf(uint32(0))
	case reflect.Uint64:
		return reflect.TypeOf(uint64(0))
	default:
		return reflect.TypeOf(int(0))
	}
}

func qualifiedName(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// Register associates an explicit, caller-chosen ID with T, overriding
// whatever Of[T] would otherwise derive. Use this when a type's ID must
// match a value baked into serialized data from before a package or type
// was renamed.
func Register[T any](id ID) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = t
	byType[t] = id
}

// Lookup returns the reflect.Type previously associated with id via
// Of/Register, if any has been observed in this process.
func Lookup(id ID) (reflect.Type, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	t, ok := registry[id]
	return t, ok
}

// PointerResolution selects how OfPointer treats the pointer-ness of a
// type when deriving its ID.
type PointerResolution int

const (
	// PointerRemoved derives the ID as if T were not a pointer: *Foo and
	// Foo share an ID. Used when serializing through an interface where
	// the pointer is an implementation detail of storage, not identity.
	PointerRemoved PointerResolution = iota
	// Canonical preserves pointer-ness: Of[T]() composed with a fixed
	// pointer sentinel ID via Compose, so *Foo's ID differs from Foo's
	// but is still derived from it.
	Canonical
	// Generic returns the pointer template's own ID, ignoring the
	// pointee entirely: every *T under Generic shares one ID regardless
	// of T. Used where downstream code only needs to recognize "this is
	// some pointer" without distinguishing which one.
	Generic
)

var pointerTagID = CreateName("typeid.pointer")

// OfPointer returns the ID for *T under the given PointerResolution.
func OfPointer[T any](res PointerResolution) ID {
	base := Of[T]()
	switch res {
	case PointerRemoved:
		return base
	case Generic:
		// The owning template's own id, independent of the argument: every
		// *T shares this id regardless of T.
		return pointerTagID
	default: // Canonical
		return Compose(pointerTagID, base)
	}
}

// Compose derives a single ID representing a generic/template type
// instantiated with the given template id and argument ids, e.g.
// Compose(Of[Vector[T]](), Of[int]()) for Vector[int]. Composition is
// deterministic but neither commutative nor associative: argument order
// and nesting are both part of identity.
func Compose(tmpl ID, args ...ID) ID {
	h := sha1.New()
	h.Write(tmpl[:])
	for _, a := range args {
		h.Write(a[:])
	}
	sum := h.Sum(nil)
	var id ID
	copy(id[:], sum[:16])
	// Stamp the UUID version/variant bits so Compose results remain valid,
	// printable UUIDs like every other ID in this package.
	id[6] = (id[6] & 0x0f) | 0x50
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}
