package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectEventDisconnect(t *testing.T) {
	bus := NewContext[string](DefaultTraits())

	var got []any
	handle, err := bus.Connect("alpha", 0, func(ctx context.Context, args ...any) (any, error) {
		got = append(got, args...)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	results, err := bus.Event(context.Background(), "alpha", 42)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Value)
	assert.Equal(t, []any{42}, got)

	require.NoError(t, bus.Disconnect("alpha", handle))
	assert.False(t, bus.HasHandlers("alpha"))

	err = bus.Disconnect("alpha", handle)
	var unknown *UnknownHandleError
	assert.ErrorAs(t, err, &unknown)
}

func TestEventNoHandlerReturnsError(t *testing.T) {
	bus := NewContext[string](DefaultTraits())
	_, err := bus.EventResult(context.Background(), "nobody")
	var nh *NoHandlerError
	assert.ErrorAs(t, err, &nh)
}

func TestHandlerSingleRejectsSecondConnect(t *testing.T) {
	traits := DefaultTraits()
	traits.HandlerPolicy = HandlerSingle
	bus := NewContext[string](traits)

	_, err := bus.Connect("addr", 0, func(ctx context.Context, args ...any) (any, error) { return nil, nil })
	require.NoError(t, err)

	_, err = bus.Connect("addr", 0, func(ctx context.Context, args ...any) (any, error) { return nil, nil })
	var violation *HandlerPolicyViolationError
	assert.ErrorAs(t, err, &violation)
}

func TestBroadcastFansOutToEveryAddress(t *testing.T) {
	bus := NewContext[string](DefaultTraits())

	var mu sync.Mutex
	seen := map[string]int{}
	record := func(addr string) HandlerFunc {
		return func(ctx context.Context, args ...any) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			seen[addr]++
			return nil, nil
		}
	}
	_, _ = bus.Connect("a", 0, record("a"))
	_, _ = bus.Connect("b", 0, record("b"))

	_, err := bus.Broadcast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, seen["a"])
	assert.Equal(t, 1, seen["b"])
}

func TestReverseRunsHandlersBackToFront(t *testing.T) {
	bus := NewContext[string](DefaultTraits())

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		_, _ = bus.Connect("addr", 0, func(ctx context.Context, args ...any) (any, error) {
			order = append(order, i)
			return nil, nil
		})
	}

	_, err := bus.Reverse(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestOrderedDispatch_StableOnEqualKeys(t *testing.T) {
	traits := DefaultTraits()
	traits.HandlerPolicy = HandlerMultipleAndOrdered
	traits.OrderCompare = func(a, b int) bool { return a < b }
	bus := NewContext[string](traits)

	var order []string
	connect := func(name string, priority int) {
		_, _ = bus.Connect("addr", priority, func(ctx context.Context, args ...any) (any, error) {
			order = append(order, name)
			return nil, nil
		})
	}
	// Three handlers share priority 0; two more at priority 1 and -1.
	connect("first-at-zero", 0)
	connect("second-at-zero", 0)
	connect("high-priority", -1)
	connect("third-at-zero", 0)
	connect("low-priority", 1)

	_, err := bus.Event(context.Background(), "addr")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"high-priority",
		"first-at-zero", "second-at-zero", "third-at-zero",
		"low-priority",
	}, order)
}

func TestQueueEventDefersUntilExecuteQueuedEvents(t *testing.T) {
	bus := NewContext[string](DefaultTraits())

	var fired bool
	_, _ = bus.Connect("addr", 0, func(ctx context.Context, args ...any) (any, error) {
		fired = true
		return nil, nil
	})

	require.NoError(t, bus.QueueEvent("addr"))
	assert.False(t, fired)
	assert.Equal(t, 1, bus.PendingQueuedEvents())

	require.NoError(t, bus.ExecuteQueuedEvents(context.Background()))
	assert.True(t, fired)
	assert.Equal(t, 0, bus.PendingQueuedEvents())
}

func TestQueueEventRejectedWhenQueuingDisabled(t *testing.T) {
	traits := DefaultTraits()
	traits.EnableQueuedEvents = false
	bus := NewContext[string](traits)

	err := bus.QueueEvent("addr")
	assert.Error(t, err)
}

// TestQueueDuringLocklessDispatch resolves the open question of whether
// queuing events while a lockless dispatch is in flight is safe: the
// queue mutex is independent of the address-map lock, so it is.
func TestQueueDuringLocklessDispatch(t *testing.T) {
	traits := DefaultTraits()
	traits.LocklessDispatch = true
	bus := NewContext[string](traits)

	release := make(chan struct{})
	entered := make(chan struct{})
	_, _ = bus.Connect("slow", 0, func(ctx context.Context, args ...any) (any, error) {
		close(entered)
		<-release
		return nil, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = bus.Event(context.Background(), "slow")
	}()

	<-entered
	err := bus.QueueEvent("slow")
	assert.NoError(t, err)
	assert.Equal(t, 1, bus.PendingQueuedEvents())

	close(release)
	wg.Wait()
}

func TestReentrantDispatchIsRejectedByDefault(t *testing.T) {
	bus := NewContext[string](DefaultTraits())

	var innerErr error
	_, _ = bus.Connect("addr", 0, func(ctx context.Context, args ...any) (any, error) {
		_, innerErr = bus.Event(ctx, "addr")
		return nil, nil
	})

	_, err := bus.Event(context.Background(), "addr")
	require.NoError(t, err)

	var reentrancy *ReentrancyError
	assert.ErrorAs(t, innerErr, &reentrancy)
}

func TestReentrantDispatchAllowedWhenEnabled(t *testing.T) {
	traits := DefaultTraits()
	traits.AllowReentrancy = true
	bus := NewContext[string](traits)

	depth := 0
	handle, _ := bus.Connect("addr", 0, func(ctx context.Context, args ...any) (any, error) {
		depth++
		if depth < 3 {
			_, _ = bus.Event(ctx, "addr")
		}
		return nil, nil
	})
	require.NotEmpty(t, handle)

	_, err := bus.Event(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}

func TestHasReentrantEventBusUseThisThread(t *testing.T) {
	traits := DefaultTraits()
	traits.AllowReentrancy = true
	bus := NewContext[string](traits)

	var innerSawReentrant, outerSawReentrant bool
	_, _ = bus.Connect("addr", 0, func(ctx context.Context, args ...any) (any, error) {
		if len(args) == 0 {
			outerSawReentrant = bus.HasReentrantEventBusUseThisThread(ctx, "addr")
			_, _ = bus.Event(ctx, "addr", "inner")
		} else {
			innerSawReentrant = bus.HasReentrantEventBusUseThisThread(ctx, "addr")
		}
		return nil, nil
	})

	_, err := bus.Event(context.Background(), "addr")
	require.NoError(t, err)
	assert.False(t, outerSawReentrant)
	assert.True(t, innerSawReentrant)
}

func TestHasReentrantEventBusUseThisThread_DifferentAddressNotReentrant(t *testing.T) {
	bus := NewContext[string](DefaultTraits())

	var sawReentrant bool
	_, _ = bus.Connect("outer", 0, func(ctx context.Context, args ...any) (any, error) {
		_, err := bus.Event(ctx, "inner")
		sawReentrant = bus.HasReentrantEventBusUseThisThread(ctx, "outer")
		return nil, err
	})
	_, _ = bus.Connect("inner", 0, func(ctx context.Context, args ...any) (any, error) {
		return nil, nil
	})

	_, err := bus.Event(context.Background(), "outer")
	require.NoError(t, err)
	assert.False(t, sawReentrant)
}

func TestRouterChainRunsInOrder(t *testing.T) {
	bus := NewContext[string](DefaultTraits())

	var trace []string
	bus.AddRouter(&traceRouter{order: 10, name: "second", trace: &trace})
	bus.AddRouter(&traceRouter{order: -10, name: "first", trace: &trace})

	_, _ = bus.Connect("addr", 0, func(ctx context.Context, args ...any) (any, error) {
		trace = append(trace, "handler")
		return nil, nil
	})

	_, err := bus.Event(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "handler"}, trace)
}

type traceRouter struct {
	order int
	name  string
	trace *[]string
}

func (r *traceRouter) Order() int { return r.order }

func (r *traceRouter) Route(ctx context.Context, ev RouterEvent, forward ForwardFunc) ([]HandlerResult, error) {
	*r.trace = append(*r.trace, r.name)
	return forward(ctx, ev.Args)
}

type blockingRouter struct{}

func (blockingRouter) Order() int { return 0 }

func (blockingRouter) Route(ctx context.Context, ev RouterEvent, forward ForwardFunc) ([]HandlerResult, error) {
	return nil, nil
}

func TestRouterCanSwallowEventWithoutForwarding(t *testing.T) {
	bus := NewContext[string](DefaultTraits())
	bus.AddRouter(blockingRouter{})

	fired := false
	_, _ = bus.Connect("addr", 0, func(ctx context.Context, args ...any) (any, error) {
		fired = true
		return nil, nil
	})

	results, err := bus.Event(context.Background(), "addr")
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.False(t, fired)
}

func TestForwardEventResultRejectsQueuedDispatch(t *testing.T) {
	_, err := ForwardEventResult(context.Background(), RouterEvent{Queued: true}, func(ctx context.Context, args []any) ([]HandlerResult, error) {
		t.Fatal("forward should not be called for a queued event")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrQueuedResultForwardingUnsupported)
}

func TestCircuitBreakerRouterOpensAfterThreshold(t *testing.T) {
	bus := NewContext[string](DefaultTraits())
	breaker := NewCircuitBreakerRouter(0, 2, 50*time.Millisecond)
	bus.AddRouter(breaker)

	calls := 0
	_, _ = bus.Connect("addr", 0, func(ctx context.Context, args ...any) (any, error) {
		calls++
		return nil, assertErr
	})

	_, _ = bus.Event(context.Background(), "addr")
	_, _ = bus.Event(context.Background(), "addr")
	assert.Equal(t, "open", breaker.States()["addr"])

	_, _ = bus.Event(context.Background(), "addr")
	assert.Equal(t, 2, calls, "breaker should have blocked the third call")

	time.Sleep(60 * time.Millisecond)
	_, _ = bus.Event(context.Background(), "addr")
	assert.Equal(t, 3, calls, "breaker should allow a half-open trial after resetTimeout")
}

var assertErr = &Error{Message: "boom"}
