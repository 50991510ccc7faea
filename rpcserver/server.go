package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/jeeves-cluster-organization/velcro-core/eventbus"
	"github.com/jeeves-cluster-organization/velcro-core/serialize"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Logger is the structured logging contract every server component in
// this package depends on, so nothing here couples to a concrete
// logging library.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// =============================================================================
// EVENT BUS SERVICE
//
// Hand-registered in place of generated .pb.go stubs: requests and
// responses are exchanged as structpb.Struct/Value, which already
// implement proto.Message, so the wire format needs no .proto
// compilation step.
// =============================================================================

// EventBusServer is implemented by anything that can serve the
// EventBusService RPCs.
type EventBusServer interface {
	Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// EventBusService adapts an eventbus.Context[string] (string addresses,
// the natural identity for a network-facing bus) to gRPC: Dispatch
// decodes {"address": string, "kind": "event"|"broadcast"|"reverse",
// "args": [...]} and replays it onto the bus, returning each handler's
// result as {"results": [...]}. An event or reverse dispatch that
// reaches no handler fails with an eventbus.NoHandlerError; a broadcast
// that reaches none returns an empty result list.
type EventBusService struct {
	bus    *eventbus.Context[string]
	logger Logger
}

// NewEventBusService wraps bus for RPC dispatch.
func NewEventBusService(bus *eventbus.Context[string], logger Logger) *EventBusService {
	return &EventBusService{bus: bus, logger: logger}
}

func (s *EventBusService) Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	address := fields["address"].GetStringValue()
	kind := fields["kind"].GetStringValue()

	var args []any
	for _, v := range fields["args"].GetListValue().GetValues() {
		args = append(args, v.AsInterface())
	}

	var (
		results []eventbus.HandlerResult
		err     error
	)
	switch kind {
	case "broadcast":
		results, err = s.bus.Broadcast(ctx, args...)
	case "reverse":
		results, err = s.bus.Reverse(ctx, address, args...)
	default:
		results, err = s.bus.Event(ctx, address, args...)
	}
	if err == nil && len(results) == 0 && kind != "broadcast" {
		err = eventbus.NewNoHandlerError(address)
	}
	if err != nil {
		s.logger.Warn("rpc_dispatch_failed", "address", address, "kind", kind, "error", err.Error())
		return nil, fmt.Errorf("dispatch failed: %w", err)
	}

	out := make([]any, len(results))
	for i, r := range results {
		entry := map[string]any{"value": r.Value}
		if r.Err != nil {
			entry["error"] = r.Err.Error()
		}
		out[i] = entry
	}
	resp, err := structpb.NewStruct(map[string]any{"results": out})
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return resp, nil
}

var eventBusServiceDesc = grpc.ServiceDesc{
	ServiceName: "velcro.EventBusService",
	HandlerType: (*EventBusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: eventBusDispatchHandler},
	},
	Metadata: "velcro/eventbus.proto",
}

func eventBusDispatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventBusServer).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/velcro.EventBusService/Dispatch"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EventBusServer).Dispatch(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// =============================================================================
// DOCUMENT SERVICE
//
// Exposes DataElementNode trees by name over RPC: Get returns the root
// element's framed wire form (DataElement.Encode), Put decodes one with
// DecodeDataElement into an already registered root. Neither call
// consults the serialize.Context the service holds.
// =============================================================================

// DocumentServer is implemented by anything that can serve the
// DocumentService RPCs.
type DocumentServer interface {
	Get(ctx context.Context, name *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Put(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

// DocumentService holds a named collection of document roots, each a
// DataElementNode describing one object of a type registered in ctx.
type DocumentService struct {
	ctx    *serialize.Context
	logger Logger

	mu   sync.RWMutex
	docs map[string]*serialize.DataElementNode
}

// NewDocumentService returns an empty DocumentService backed by ctx.
func NewDocumentService(ctx *serialize.Context, logger Logger) *DocumentService {
	return &DocumentService{ctx: ctx, logger: logger, docs: make(map[string]*serialize.DataElementNode)}
}

// Register installs node under name, making it reachable via Get/Put.
func (s *DocumentService) Register(name string, node *serialize.DataElementNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[name] = node
}

func (s *DocumentService) Get(ctx context.Context, name *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	s.mu.RLock()
	node, ok := s.docs[name.GetValue()]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document %q not found", name.GetValue())
	}
	return wrapperspb.Bytes(node.Element.Encode()), nil
}

func (s *DocumentService) Put(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.GetFields()
	name := fields["name"].GetStringValue()
	data := []byte(fields["data"].GetStringValue())

	s.mu.RLock()
	node, ok := s.docs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document %q not found", name)
	}

	decoded, err := serialize.DecodeDataElement(node.Element.Name, node.Element.TypeID, node.Element.Version, node.Element.Category, data)
	if err != nil {
		return nil, fmt.Errorf("decoding document %q: %w", name, err)
	}

	s.mu.Lock()
	node.Element = *decoded
	s.mu.Unlock()

	s.logger.Debug("document_updated", "name", name)
	return &emptypb.Empty{}, nil
}

var documentServiceDesc = grpc.ServiceDesc{
	ServiceName: "velcro.DocumentService",
	HandlerType: (*DocumentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: documentGetHandler},
		{MethodName: "Put", Handler: documentPutHandler},
	},
	Metadata: "velcro/document.proto",
}

func documentGetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocumentServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/velcro.DocumentService/Get"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DocumentServer).Get(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func documentPutHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocumentServer).Put(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/velcro.DocumentService/Put"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DocumentServer).Put(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// =============================================================================
// SERVER LIFECYCLE
// =============================================================================

// NewServer constructs a *grpc.Server with the standard interceptor
// chain, an OpenTelemetry stats handler, and registers
// busService/docService onto it.
func NewServer(logger Logger, busService *EventBusService, docService *DocumentService) *grpc.Server {
	opts := ServerOptions(logger)
	opts = append(opts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&eventBusServiceDesc, busService)
	srv.RegisterService(&documentServiceDesc, docService)
	return srv
}

// StartBackground starts srv listening on addr in its own goroutine,
// returning immediately with the running *grpc.Server so the caller can
// GracefulStop it later.
func StartBackground(addr string, srv *grpc.Server) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	go func() {
		_ = srv.Serve(lis)
	}()
	return srv, nil
}
