package serialize

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/jeeves-cluster-organization/velcro-core/typeid"
)

// builtinScalar pairs a scalar type's wire name with its Serializer, the
// single source of truth both Context registration and the upgrade
// handler's context-free leaf codec draw from.
type builtinScalar struct {
	name       string
	serializer Serializer
}

var builtinScalars = map[typeid.ID]builtinScalar{
	typeid.Of[int]():     {"int", &intSerializer{width: 8, signed: true}},
	typeid.Of[int8]():    {"int8", &intSerializer{width: 1, signed: true}},
	typeid.Of[int16]():   {"int16", &intSerializer{width: 2, signed: true}},
	typeid.Of[int32]():   {"int32", &intSerializer{width: 4, signed: true}},
	typeid.Of[int64]():   {"int64", &intSerializer{width: 8, signed: true}},
	typeid.Of[uint]():    {"uint", &intSerializer{width: 8, signed: false}},
	typeid.Of[uint8]():   {"uint8", &intSerializer{width: 1, signed: false}},
	typeid.Of[uint16]():  {"uint16", &intSerializer{width: 2, signed: false}},
	typeid.Of[uint32]():  {"uint32", &intSerializer{width: 4, signed: false}},
	typeid.Of[uint64]():  {"uint64", &intSerializer{width: 8, signed: false}},
	typeid.Of[bool]():    {"bool", boolSerializer{}},
	typeid.Of[string]():  {"string", stringSerializer{}},
	typeid.Of[float64](): {"float64", float64Serializer{}},
}

// intSerializer is the builtin Serializer for Go's signed/unsigned
// integer kinds, reflected at a fixed width chosen per type in the
// builtinScalars table.
type intSerializer struct {
	width int // bytes: 1, 2, 4, 8
	signed bool
}

func (s *intSerializer) Save(value any) ([]byte, error) {
	v, err := toInt64(value)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, s.width)
	switch s.width {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, uint64(v))
	}
	return buf, nil
}

func (s *intSerializer) Load(value any, data []byte) error {
	if len(data) < s.width {
		return fmt.Errorf("serialize: short integer payload: want %d bytes, got %d", s.width, len(data))
	}
	var v uint64
	switch s.width {
	case 1:
		v = uint64(data[0])
	case 2:
		v = uint64(binary.LittleEndian.Uint16(data))
	case 4:
		v = uint64(binary.LittleEndian.Uint32(data))
	case 8:
		v = binary.LittleEndian.Uint64(data)
	}
	return fromUint64(value, v)
}

func (s *intSerializer) SaveText(value any) (string, error) {
	v, err := toInt64(value)
	if err != nil {
		return "", err
	}
	if s.signed {
		return strconv.FormatInt(v, 10), nil
	}
	return strconv.FormatUint(uint64(v), 10), nil
}

func (s *intSerializer) LoadText(value any, text string) error {
	if s.signed {
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return err
		}
		return fromUint64(value, uint64(v))
	}
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return err
	}
	return fromUint64(value, v)
}

func (s *intSerializer) CompareValueData(lhs, rhs any) bool {
	a, errA := toInt64(lhs)
	b, errB := toInt64(rhs)
	return errA == nil && errB == nil && a == b
}

func (s *intSerializer) Clone(dst, src any) error {
	v, err := toInt64(src)
	if err != nil {
		return err
	}
	return fromUint64(dst, uint64(v))
}

func toInt64(value any) (int64, error) {
	switch p := value.(type) {
	case *int:
		return int64(*p), nil
	case *int8:
		return int64(*p), nil
	case *int16:
		return int64(*p), nil
	case *int32:
		return int64(*p), nil
	case *int64:
		return *p, nil
	case *uint:
		return int64(*p), nil
	case *uint8:
		return int64(*p), nil
	case *uint16:
		return int64(*p), nil
	case *uint32:
		return int64(*p), nil
	case *uint64:
		return int64(*p), nil
	default:
		return 0, fmt.Errorf("serialize: %T is not an integer pointer", value)
	}
}

func fromUint64(value any, v uint64) error {
	switch p := value.(type) {
	case *int:
		*p = int(v)
	case *int8:
		*p = int8(v)
	case *int16:
		*p = int16(v)
	case *int32:
		*p = int32(v)
	case *int64:
		*p = int64(v)
	case *uint:
		*p = uint(v)
	case *uint8:
		*p = uint8(v)
	case *uint16:
		*p = uint16(v)
	case *uint32:
		*p = uint32(v)
	case *uint64:
		*p = v
	default:
		return fmt.Errorf("serialize: %T is not an integer pointer", value)
	}
	return nil
}

// boolSerializer is the builtin Serializer for bool.
type boolSerializer struct{}

func (boolSerializer) Save(value any) ([]byte, error) {
	p, ok := value.(*bool)
	if !ok {
		return nil, fmt.Errorf("serialize: %T is not *bool", value)
	}
	if *p {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func (boolSerializer) Load(value any, data []byte) error {
	p, ok := value.(*bool)
	if !ok {
		return fmt.Errorf("serialize: %T is not *bool", value)
	}
	if len(data) < 1 {
		return fmt.Errorf("serialize: empty bool payload")
	}
	*p = data[0] != 0
	return nil
}

func (boolSerializer) SaveText(value any) (string, error) {
	p, ok := value.(*bool)
	if !ok {
		return "", fmt.Errorf("serialize: %T is not *bool", value)
	}
	if *p {
		return "true", nil
	}
	return "false", nil
}

func (boolSerializer) LoadText(value any, text string) error {
	p, ok := value.(*bool)
	if !ok {
		return fmt.Errorf("serialize: %T is not *bool", value)
	}
	*p = text == "true"
	return nil
}

func (boolSerializer) CompareValueData(lhs, rhs any) bool {
	a, aok := lhs.(*bool)
	b, bok := rhs.(*bool)
	return aok && bok && *a == *b
}

func (boolSerializer) Clone(dst, src any) error {
	s, ok := src.(*bool)
	if !ok {
		return fmt.Errorf("serialize: %T is not *bool", src)
	}
	d, ok := dst.(*bool)
	if !ok {
		return fmt.Errorf("serialize: %T is not *bool", dst)
	}
	*d = *s
	return nil
}

// stringSerializer is the builtin Serializer for string.
type stringSerializer struct{}

func (stringSerializer) Save(value any) ([]byte, error) {
	p, ok := value.(*string)
	if !ok {
		return nil, fmt.Errorf("serialize: %T is not *string", value)
	}
	return []byte(*p), nil
}

func (stringSerializer) Load(value any, data []byte) error {
	p, ok := value.(*string)
	if !ok {
		return fmt.Errorf("serialize: %T is not *string", value)
	}
	*p = string(data)
	return nil
}

func (stringSerializer) SaveText(value any) (string, error) {
	p, ok := value.(*string)
	if !ok {
		return "", fmt.Errorf("serialize: %T is not *string", value)
	}
	return *p, nil
}

func (stringSerializer) LoadText(value any, text string) error {
	p, ok := value.(*string)
	if !ok {
		return fmt.Errorf("serialize: %T is not *string", value)
	}
	*p = text
	return nil
}

func (stringSerializer) CompareValueData(lhs, rhs any) bool {
	a, aok := lhs.(*string)
	b, bok := rhs.(*string)
	return aok && bok && *a == *b
}

func (stringSerializer) Clone(dst, src any) error {
	s, ok := src.(*string)
	if !ok {
		return fmt.Errorf("serialize: %T is not *string", src)
	}
	d, ok := dst.(*string)
	if !ok {
		return fmt.Errorf("serialize: %T is not *string", dst)
	}
	*d = *s
	return nil
}

// float64Serializer is the builtin Serializer for float64, TEXT-encoded
// with 7 fractional digits per the engine's printf("%.7f") convention.
type float64Serializer struct{}

func (float64Serializer) Save(value any) ([]byte, error) {
	p, ok := value.(*float64)
	if !ok {
		return nil, fmt.Errorf("serialize: %T is not *float64", value)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(*p))
	return buf, nil
}

func (float64Serializer) Load(value any, data []byte) error {
	p, ok := value.(*float64)
	if !ok {
		return fmt.Errorf("serialize: %T is not *float64", value)
	}
	if len(data) < 8 {
		return fmt.Errorf("serialize: short float64 payload: want 8 bytes, got %d", len(data))
	}
	*p = math.Float64frombits(binary.LittleEndian.Uint64(data))
	return nil
}

func (float64Serializer) SaveText(value any) (string, error) {
	p, ok := value.(*float64)
	if !ok {
		return "", fmt.Errorf("serialize: %T is not *float64", value)
	}
	return fmt.Sprintf("%.7f", *p), nil
}

func (float64Serializer) LoadText(value any, text string) error {
	p, ok := value.(*float64)
	if !ok {
		return fmt.Errorf("serialize: %T is not *float64", value)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (float64Serializer) CompareValueData(lhs, rhs any) bool {
	a, aok := lhs.(*float64)
	b, bok := rhs.(*float64)
	if !aok || !bok {
		return false
	}
	return math.Abs(*a-*b) < 1e-9
}

func (float64Serializer) Clone(dst, src any) error {
	s, ok := src.(*float64)
	if !ok {
		return fmt.Errorf("serialize: %T is not *float64", src)
	}
	d, ok := dst.(*float64)
	if !ok {
		return fmt.Errorf("serialize: %T is not *float64", dst)
	}
	*d = *s
	return nil
}
