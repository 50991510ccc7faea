package serialize

// Serializer converts between a live value and a leaf DataElement's byte
// payload. Types with a Serializer are treated as opaque leaves by the
// traversal engine: EnumerateInstance does not walk into their fields.
//
// Implementations may be held two ways, mirroring the original engine's
// dual disposition: a borrowed, process-wide singleton (stateless
// serializers, the common case) or a per-registration instance that
// owns whatever state it needs. Both are just a Serializer value to
// ClassData; nothing in this package distinguishes them beyond which
// constructor a caller used.
type Serializer interface {
	// Save encodes value (a pointer to the live field) into binary
	// little-endian bytes.
	Save(value any) ([]byte, error)

	// Load decodes binary little-endian bytes into the live field
	// pointed to by value.
	Load(value any, data []byte) error

	// SaveText encodes value into the TEXT wire representation
	// (printf-style for numbers, "true"/"false" for bool).
	SaveText(value any) (string, error)

	// LoadText decodes a TEXT wire representation into value.
	LoadText(value any, text string) error

	// CompareValueData reports whether lhs and rhs (both pointers to the
	// same field type) hold equal values. Nothing in this package calls
	// it; cloning goes through Save/Load without a comparison step.
	CompareValueData(lhs, rhs any) bool

	// Clone copies src's value into dst (both pointers to the field
	// type), bypassing the save/load byte round-trip when a direct copy
	// is cheaper and equivalent.
	Clone(dst, src any) error
}
