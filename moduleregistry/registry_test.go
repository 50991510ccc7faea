package moduleregistry

import (
	"testing"

	"github.com/jeeves-cluster-organization/velcro-core/serialize"
	"github.com/jeeves-cluster-organization/velcro-core/typeid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gadget struct {
	Power int32
}

type otherGadget struct {
	Name string
}

func gadgetClassData(t *testing.T) *serialize.ClassData {
	t.Helper()
	cd, err := serialize.NewClassBuilder[gadget]("moduleregistry.gadget").
		Field("Power", 0).
		Build()
	require.NoError(t, err)
	return cd
}

func TestRegistry_AddThenFind(t *testing.T) {
	r := New("gadgets")
	cd := gadgetClassData(t)

	r.MustAddClass(cd)

	info, ok := r.Find(cd.TypeID)
	require.True(t, ok)
	assert.Same(t, cd, info.ClassData)
}

func TestRegistry_FindUnknownReturnsFalse(t *testing.T) {
	r := New("gadgets")
	_, ok := r.Find(typeid.Of[otherGadget]())
	assert.False(t, ok)
}

func TestRegistry_RegisterContextReflectsExistingTypes(t *testing.T) {
	r := New("gadgets")
	cd := gadgetClassData(t)
	r.MustAddClass(cd)

	ctx := serialize.NewContext()
	r.RegisterContext(ctx)

	found, ok := ctx.FindClassData(cd.TypeID)
	require.True(t, ok)
	assert.Same(t, cd, found)
}

func TestRegistry_AddAfterRegisterContextPropagates(t *testing.T) {
	r := New("gadgets")
	ctx := serialize.NewContext()
	r.RegisterContext(ctx)

	cd := gadgetClassData(t)
	r.MustAddClass(cd)

	_, ok := ctx.FindClassData(cd.TypeID)
	assert.True(t, ok)
}

func TestRegistry_UnregisterContextRemovesTypes(t *testing.T) {
	r := New("gadgets")
	cd := gadgetClassData(t)
	r.MustAddClass(cd)

	ctx := serialize.NewContext()
	r.RegisterContext(ctx)
	r.UnregisterContext(ctx)

	_, ok := ctx.FindClassData(cd.TypeID)
	assert.False(t, ok)
}

func TestRegistry_CloseUnregistersFromAllTrackedContexts(t *testing.T) {
	r := New("gadgets")
	cd := gadgetClassData(t)
	r.MustAddClass(cd)

	ctxA := serialize.NewContext()
	ctxB := serialize.NewContext()
	r.RegisterContext(ctxA)
	r.RegisterContext(ctxB)

	r.Close()

	_, okA := ctxA.FindClassData(cd.TypeID)
	_, okB := ctxB.FindClassData(cd.TypeID)
	assert.False(t, okA)
	assert.False(t, okB)

	_, found := r.Find(cd.TypeID)
	assert.False(t, found, "Close should also clear the registry's own bookkeeping")
}

func TestRegistry_MustAddClassPanicsOnNil(t *testing.T) {
	r := New("gadgets")
	assert.Panics(t, func() {
		r.MustAddClass(nil)
	})
}
