package grpc

import (
	"context"
	"testing"

	"github.com/jeeves-cluster-organization/velcro-core/eventbus"
	"github.com/jeeves-cluster-organization/velcro-core/serialize"
	"github.com/jeeves-cluster-organization/velcro-core/typeid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestEventBusService_DispatchRoutesToHandler(t *testing.T) {
	bus := eventbus.NewContext[string](eventbus.DefaultTraits())
	_, err := bus.Connect("lantern", 0, func(ctx context.Context, args ...any) (any, error) {
		return args[0], nil
	})
	require.NoError(t, err)

	svc := NewEventBusService(bus, &TestLogger{})

	req, err := structpb.NewStruct(map[string]any{
		"address": "lantern",
		"kind":    "event",
		"args":    []any{"lit"},
	})
	require.NoError(t, err)

	resp, err := svc.Dispatch(context.Background(), req)
	require.NoError(t, err)

	results := resp.GetFields()["results"].GetListValue().GetValues()
	require.Len(t, results, 1)
	entry := results[0].GetStructValue().GetFields()
	assert.Equal(t, "lit", entry["value"].GetStringValue())
}

func TestEventBusService_DispatchNoHandlerErrors(t *testing.T) {
	bus := eventbus.NewContext[string](eventbus.DefaultTraits())
	svc := NewEventBusService(bus, &TestLogger{})

	req, err := structpb.NewStruct(map[string]any{"address": "ghost", "kind": "event"})
	require.NoError(t, err)

	_, err = svc.Dispatch(context.Background(), req)
	assert.Error(t, err)
}

func TestDocumentService_GetPutRoundTrip(t *testing.T) {
	sctx := serialize.NewContext()
	node := serialize.NewDataElementNode("counter", typeid.Of[int32](), 1)
	require.NoError(t, serialize.SetData(node, sctx, int32(5), nil))

	svc := NewDocumentService(sctx, &TestLogger{})
	svc.Register("counter", node)

	got, err := svc.Get(context.Background(), wrapperspb.String("counter"))
	require.NoError(t, err)
	assert.Equal(t, node.Element.Encode(), got.GetValue())

	putReq, err := structpb.NewStruct(map[string]any{
		"name": "counter",
		"data": string(node.Element.Encode()),
	})
	require.NoError(t, err)

	_, err = svc.Put(context.Background(), putReq)
	require.NoError(t, err)
}

func TestDocumentService_GetUnknownNameErrors(t *testing.T) {
	sctx := serialize.NewContext()
	svc := NewDocumentService(sctx, &TestLogger{})

	_, err := svc.Get(context.Background(), wrapperspb.String("missing"))
	assert.Error(t, err)
}

func TestNewServer_RegistersServices(t *testing.T) {
	bus := eventbus.NewContext[string](eventbus.DefaultTraits())
	sctx := serialize.NewContext()

	srv := NewServer(&TestLogger{}, NewEventBusService(bus, &TestLogger{}), NewDocumentService(sctx, &TestLogger{}))
	info := srv.GetServiceInfo()

	_, hasBus := info["velcro.EventBusService"]
	_, hasDoc := info["velcro.DocumentService"]
	assert.True(t, hasBus)
	assert.True(t, hasDoc)
}
