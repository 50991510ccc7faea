package typeid

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleA struct{ X int }
type sampleB struct{ Y string }

func TestOfIsStableAndDistinct(t *testing.T) {
	a1 := Of[sampleA]()
	a2 := Of[sampleA]()
	b := Of[sampleB]()

	assert.True(t, a1.Equal(a2))
	assert.False(t, a1.Equal(b))
	assert.False(t, a1.IsNil())
}

func TestCreateNameIsDeterministicAcrossCalls(t *testing.T) {
	id1 := CreateName("velcro.demo.Widget")
	id2 := CreateName("velcro.demo.Widget")
	id3 := CreateName("velcro.demo.Gadget")

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestStringRoundTrip(t *testing.T) {
	id := CreateName("velcro.demo.Widget")
	parsed, err := FromString(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestRegisterOverridesDerivedID(t *testing.T) {
	custom := CreateName("legacy.sampleA")
	Register[sampleA](custom)

	assert.Equal(t, custom, Of[sampleA]())

	t_, ok := Lookup(custom)
	require.True(t, ok)
	assert.Equal(t, "sampleA", t_.Name())
}

func TestOfPointerResolutions(t *testing.T) {
	removed := OfPointer[sampleA](PointerRemoved)
	assert.Equal(t, Of[sampleA](), removed)

	// Canonical is Of[T]() combined with a fixed pointer sentinel.
	canonical := OfPointer[sampleA](Canonical)
	assert.Equal(t, Compose(pointerTagID, Of[sampleA]()), canonical)
	assert.NotEqual(t, Of[sampleA](), canonical)

	// Generic is the sentinel alone: every pointer type shares it,
	// independent of the pointee.
	generic := OfPointer[sampleA](Generic)
	assert.Equal(t, pointerTagID, generic)
	genericB := OfPointer[sampleB](Generic)
	assert.Equal(t, generic, genericB)

	assert.NotEqual(t, canonical, generic)
	assert.NotEqual(t, removed, generic)
}

func TestComposeIsOrderSensitiveAndDeterministic(t *testing.T) {
	tmpl := CreateName("velcro.demo.Vector")
	intID := CreateName("int")
	stringID := CreateName("string")

	vecInt1 := Compose(tmpl, intID)
	vecInt2 := Compose(tmpl, intID)
	vecString := Compose(tmpl, stringID)
	pair := Compose(tmpl, intID, stringID)
	pairReversed := Compose(tmpl, stringID, intID)

	assert.Equal(t, vecInt1, vecInt2)
	assert.NotEqual(t, vecInt1, vecString)
	assert.NotEqual(t, pair, pairReversed)
}

func TestLessIsAntisymmetric(t *testing.T) {
	a := CreateName("a")
	b := CreateName("b")
	require.NotEqual(t, a, b)
	assert.NotEqual(t, a.Less(b), b.Less(a))
}

type direction int32

const (
	directionNorth direction = iota
	directionSouth
)

func TestTraitsOf(t *testing.T) {
	assert.True(t, TraitsOf[sampleA]().Has(TraitStruct))
	assert.True(t, TraitsOf[int]().Has(TraitNumeric))
	assert.True(t, TraitsOf[string]().Has(TraitString))
	assert.True(t, TraitsOf[[]int]().Has(TraitSlice))
	assert.True(t, TraitsOf[map[string]int]().Has(TraitMap))
	assert.True(t, TraitsOf[*sampleA]().Has(TraitPointer))
}

func TestTraitsOf_SignedUnsignedEnum(t *testing.T) {
	assert.True(t, TraitsOf[int32]().Has(IsSigned))
	assert.False(t, TraitsOf[int32]().Has(IsUnsigned))

	assert.True(t, TraitsOf[uint32]().Has(IsUnsigned))
	assert.False(t, TraitsOf[uint32]().Has(IsSigned))

	assert.False(t, TraitsOf[int32]().Has(IsEnum))
	assert.True(t, TraitsOf[direction]().Has(IsEnum))
	assert.True(t, TraitsOf[direction]().Has(IsSigned))

	assert.False(t, TraitsOf[float64]().Has(IsSigned))
	assert.False(t, TraitsOf[float64]().Has(IsUnsigned))
}

func TestOf_UnregisteredEnumFallsBackToUnderlyingKind(t *testing.T) {
	assert.Equal(t, Of[int32](), Of[direction]())
}

func TestOfReflectTypeMatchesOf(t *testing.T) {
	assert.Equal(t, Of[sampleA](), OfReflectType(reflect.TypeOf(sampleA{})))
}
