package serialize

import (
	"encoding/binary"
	"fmt"

	"github.com/jeeves-cluster-organization/velcro-core/typeid"
)

// Category selects how a DataElement's payload is encoded on the wire.
type Category int

const (
	// Binary stores data_size bytes verbatim, little-endian for numeric
	// fields.
	Binary Category = iota
	// BinaryBigEndian is Binary with the whole payload byte-reversed on
	// the wire. Encode and DecodeDataElement reverse every payload
	// whatever its type, strings included, and a payload holding several
	// numeric fields is reversed as one block, not field by field.
	BinaryBigEndian
	// Text stores a UTF-8 printf-style rendering of the value: integers
	// via their decimal form, floats as "%.7f", bools as "true"/"false".
	Text
)

// DataElement is one leaf (or subtree root) of a serialized document: a
// name, its CRC32, the reflected type it holds, the version it was
// written at, and the raw wire payload.
type DataElement struct {
	Name     string
	NameCRC  uint32
	TypeID   typeid.ID
	Version  uint32
	Category Category
	Data     []byte
	cursor   int
}

// NewDataElement constructs a named, empty DataElement for typeID at
// the given version.
func NewDataElement(name string, typeID typeid.ID, version uint32) *DataElement {
	return &DataElement{Name: name, NameCRC: NameCRC(name), TypeID: typeID, Version: version}
}

// reverseInPlace reverses buf's byte order, used to materialize
// BinaryBigEndian payloads from a little-endian-encoded value and back.
func reverseInPlace(buf []byte) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}

// Encode renders the element's framed wire form: a 4-byte little-endian
// size header followed by the payload, byte-order-adjusted per
// Category.
func (e *DataElement) Encode() []byte {
	payload := make([]byte, len(e.Data))
	copy(payload, e.Data)
	if e.Category == BinaryBigEndian {
		reverseInPlace(payload)
	}

	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// DecodeDataElement parses the framed wire form Encode produces. cat
// must match the Category the bytes were written with, since the size
// header alone does not record endianness.
func DecodeDataElement(name string, typeID typeid.ID, version uint32, cat Category, wire []byte) (*DataElement, error) {
	if len(wire) < 4 {
		return nil, fmt.Errorf("serialize: truncated element header for %q", name)
	}
	size := binary.LittleEndian.Uint32(wire[:4])
	if uint32(len(wire)-4) < size {
		return nil, fmt.Errorf("serialize: truncated element payload for %q: want %d bytes, got %d", name, size, len(wire)-4)
	}
	payload := make([]byte, size)
	copy(payload, wire[4:4+size])
	if cat == BinaryBigEndian {
		reverseInPlace(payload)
	}
	return &DataElement{Name: name, NameCRC: NameCRC(name), TypeID: typeID, Version: version, Category: cat, Data: payload}, nil
}
