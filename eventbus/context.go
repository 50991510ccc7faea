package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

type singleAddress struct{}

// connection is one handler's registration at an address.
type connection[ID comparable] struct {
	handle string
	order  int
	seq    uint64 // insertion sequence, used to break order ties stably
	fn     HandlerFunc
}

type addressSlot[ID comparable] struct {
	conns []connection[ID]
}

// queuedCall is a deferred Broadcast or Event captured by QueueEvent /
// QueueBroadcast and replayed by ExecuteQueuedEvents.
type queuedCall[ID comparable] struct {
	broadcast bool
	address   ID
	args      []any
}

// Context owns one address-partitioned dispatch bus: the connected
// handlers, the router chain, the deferred-event queue, and the
// bookkeeping (dispatch counter, handle allocator) needed to run them.
// The zero value is not usable; construct with NewContext.
type Context[ID comparable] struct {
	traits Traits
	logger BusLogger

	mu        sync.RWMutex
	addresses map[ID]*addressSlot[ID]
	single    *addressSlot[ID]
	routers   []routerEntry

	queueMu sync.Mutex
	queue   []queuedCall[ID]

	nextHandle    uint64
	nextSeq       uint64
	dispatchCount atomic.Uint64
}

// NewContext constructs a Context governed by the given Traits. When
// traits.HandlerPolicy is HandlerMultipleAndOrdered, traits.OrderCompare
// must be non-nil.
func NewContext[ID comparable](traits Traits) *Context[ID] {
	if traits.HandlerPolicy == HandlerMultipleAndOrdered && traits.OrderCompare == nil {
		panic("eventbus: HandlerMultipleAndOrdered requires a non-nil OrderCompare")
	}
	c := &Context[ID]{
		traits:    traits,
		logger:    &defaultBusLogger{},
		addresses: make(map[ID]*addressSlot[ID]),
	}
	if traits.AddressPolicy == AddressSingle {
		c.single = &addressSlot[ID]{}
	}
	return c
}

// SetLogger overrides the Context's logger. Pass NoopBusLogger() to
// silence it.
func (c *Context[ID]) SetLogger(logger BusLogger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logger == nil {
		logger = &defaultBusLogger{}
	}
	c.logger = logger
}

// DispatchCount returns the running total of per-address fan-outs this
// Context has run, including queued events executed via
// ExecuteQueuedEvents. A Broadcast counts once per address it reaches;
// a dispatch swallowed by a router or rejected as reentrant is not
// counted. The total is never decremented.
func (c *Context[ID]) DispatchCount() uint64 {
	return c.dispatchCount.Load()
}

func (c *Context[ID]) slotFor(address ID, create bool) *addressSlot[ID] {
	if c.traits.AddressPolicy == AddressSingle {
		return c.single
	}
	slot, ok := c.addresses[address]
	if !ok {
		if !create {
			return nil
		}
		slot = &addressSlot[ID]{}
		c.addresses[address] = slot
	}
	return slot
}

// =============================================================================
// CONNECT / DISCONNECT
// =============================================================================

// Connect registers fn to run whenever address is dispatched. order is
// used only under HandlerMultipleAndOrdered; it is ignored otherwise.
// Returns a handle for a later Disconnect.
func (c *Context[ID]) Connect(address ID, order int, fn HandlerFunc) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("eventbus: Connect called with nil handler")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	slot := c.slotFor(address, true)
	if c.traits.HandlerPolicy == HandlerSingle && len(slot.conns) >= 1 {
		return "", NewHandlerPolicyViolationError(address, c.traits.HandlerPolicy)
	}

	c.nextHandle++
	handle := fmt.Sprintf("conn_%d", c.nextHandle)
	c.nextSeq++
	conn := connection[ID]{handle: handle, order: order, seq: c.nextSeq, fn: fn}
	slot.conns = append(slot.conns, conn)

	if c.traits.HandlerPolicy == HandlerMultipleAndOrdered {
		cmp := c.traits.OrderCompare
		sort.SliceStable(slot.conns, func(i, j int) bool {
			a, b := slot.conns[i], slot.conns[j]
			if cmp(a.order, b.order) {
				return true
			}
			if cmp(b.order, a.order) {
				return false
			}
			return a.seq < b.seq
		})
	}

	c.logger.Debug("handler_connected", "address", address, "handle", handle)
	return handle, nil
}

// Disconnect removes the handler registered under handle. Disconnecting
// an unknown or already-disconnected handle returns UnknownHandleError.
func (c *Context[ID]) Disconnect(address ID, handle string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := c.slotFor(address, false)
	if slot == nil {
		return NewUnknownHandleError(handle)
	}
	for i, conn := range slot.conns {
		if conn.handle == handle {
			slot.conns = append(slot.conns[:i], slot.conns[i+1:]...)
			c.logger.Debug("handler_disconnected", "address", address, "handle", handle)
			return nil
		}
	}
	return NewUnknownHandleError(handle)
}

// HasHandlers reports whether address has at least one connected
// handler.
func (c *Context[ID]) HasHandlers(address ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slot := c.slotFor(address, false)
	return slot != nil && len(slot.conns) > 0
}

// Clear disconnects every handler and clears the router chain and
// pending queue. Intended for tests.
func (c *Context[ID]) Clear() {
	c.mu.Lock()
	c.addresses = make(map[ID]*addressSlot[ID])
	if c.traits.AddressPolicy == AddressSingle {
		c.single = &addressSlot[ID]{}
	}
	c.routers = nil
	c.mu.Unlock()

	c.queueMu.Lock()
	c.queue = nil
	c.queueMu.Unlock()
}

// =============================================================================
// DISPATCH
// =============================================================================

// lockForDispatch takes whichever lock Traits.LocklessDispatch calls
// for and returns the matching unlock func. Lockless mode takes the
// read lock, so concurrent snapshots do not wait for each other but
// still exclude a concurrent Connect/Disconnect (which always takes the
// write lock). Non-lockless mode takes the write lock itself. The lock
// covers only connsSnapshot's copy of the handler list; handlers run
// after it is released.
func (c *Context[ID]) lockForDispatch() func() {
	if c.traits.LocklessDispatch {
		c.mu.RLock()
		return c.mu.RUnlock
	}
	c.mu.Lock()
	return c.mu.Unlock
}

func (c *Context[ID]) connsSnapshot(address ID) []connection[ID] {
	unlock := c.lockForDispatch()
	defer unlock()
	slot := c.slotFor(address, false)
	if slot == nil {
		return nil
	}
	out := make([]connection[ID], len(slot.conns))
	copy(out, slot.conns)
	return out
}

func (c *Context[ID]) allAddresses() []ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	addrs := make([]ID, 0, len(c.addresses))
	for id := range c.addresses {
		addrs = append(addrs, id)
	}
	return addrs
}

// runAt invokes every handler connected at address, in their configured
// order, collecting one HandlerResult per handler. If reverse is true,
// handlers run back to front.
func (c *Context[ID]) runAt(ctx context.Context, address ID, args []any, reverse bool) ([]HandlerResult, error) {
	ctx, reentrant := pushCallstack(ctx, c, address)
	if reentrant && !c.traits.AllowReentrancy {
		return nil, NewReentrancyError(address)
	}

	conns := c.connsSnapshot(address)
	if reverse {
		for i, j := 0, len(conns)-1; i < j; i, j = i+1, j-1 {
			conns[i], conns[j] = conns[j], conns[i]
		}
	}

	c.dispatchCount.Add(1)

	results := make([]HandlerResult, len(conns))
	for i, conn := range conns {
		v, err := conn.fn(ctx, args...)
		results[i] = HandlerResult{Value: v, Err: err}
		if err != nil {
			c.logger.Warn("handler_failed", "address", address, "handle", conn.handle, "error", err.Error())
		}
	}
	return results, nil
}

// Broadcast dispatches args to every handler connected at every address
// known to the Context. Under AddressSingle it dispatches to the single
// implicit address.
func (c *Context[ID]) Broadcast(ctx context.Context, args ...any) ([]HandlerResult, error) {
	if c.traits.AddressPolicy == AddressSingle {
		var zero ID
		return c.dispatchRouted(ctx, zero, args, false, false)
	}

	var all []HandlerResult
	for _, addr := range c.allAddresses() {
		res, err := c.dispatchRouted(ctx, addr, args, false, false)
		if err != nil {
			return all, err
		}
		all = append(all, res...)
	}
	return all, nil
}

// Event dispatches args to the handlers connected at address, in
// connection (or configured) order.
func (c *Context[ID]) Event(ctx context.Context, address ID, args ...any) ([]HandlerResult, error) {
	return c.dispatchRouted(ctx, address, args, false, false)
}

// EventResult dispatches like Event but returns only the first handler's
// result, matching the common HandlerSingle usage. Returns NoHandlerError
// if nothing is connected at address.
func (c *Context[ID]) EventResult(ctx context.Context, address ID, args ...any) (any, error) {
	results, err := c.dispatchRouted(ctx, address, args, false, false)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, NewNoHandlerError(address)
	}
	return results[0].Value, results[0].Err
}

// Reverse dispatches args to the handlers connected at address in
// back-to-front order, the mirror image of Event. Used by hosts that
// need late-connected handlers (e.g. outer decorators) to see an event
// before early-connected ones.
func (c *Context[ID]) Reverse(ctx context.Context, address ID, args ...any) ([]HandlerResult, error) {
	return c.dispatchRouted(ctx, address, args, true, false)
}

// ReverseResult is Reverse restricted to the first (i.e. most recently
// connected) handler's result.
func (c *Context[ID]) ReverseResult(ctx context.Context, address ID, args ...any) (any, error) {
	results, err := c.dispatchRouted(ctx, address, args, true, false)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, NewNoHandlerError(address)
	}
	return results[0].Value, results[0].Err
}

func (c *Context[ID]) dispatchRouted(ctx context.Context, address ID, args []any, reverse bool, queued bool) ([]HandlerResult, error) {
	ev := RouterEvent{Address: address, Args: args, Queued: queued}
	terminal := func(ctx context.Context, args []any) ([]HandlerResult, error) {
		return c.runAt(ctx, address, args, reverse)
	}
	return c.runThroughRouters(ctx, ev, terminal)
}

// =============================================================================
// QUEUED DISPATCH
// =============================================================================

// QueueEvent defers an Event(address, args...) dispatch to be run later
// by ExecuteQueuedEvents, on whatever goroutine calls it. Returns an
// error if traits.EnableQueuedEvents is false.
func (c *Context[ID]) QueueEvent(address ID, args ...any) error {
	if !c.traits.EnableQueuedEvents {
		c.logger.Warn("event_queuing_disabled", "address", address)
		return fmt.Errorf("eventbus: event queuing disabled for this context")
	}
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	c.queue = append(c.queue, queuedCall[ID]{address: address, args: args})
	return nil
}

// QueueBroadcast defers a Broadcast(args...) dispatch.
func (c *Context[ID]) QueueBroadcast(args ...any) error {
	if !c.traits.EnableQueuedEvents {
		c.logger.Warn("broadcast_queuing_disabled")
		return fmt.Errorf("eventbus: event queuing disabled for this context")
	}
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	c.queue = append(c.queue, queuedCall[ID]{broadcast: true, args: args})
	return nil
}

// ExecuteQueuedEvents runs and drains every call queued since the last
// call to ExecuteQueuedEvents, in FIFO order, stopping at the first
// dispatch error. Each replayed dispatch reaches the routers with
// RouterEvent.Queued set. The queue has its own mutex, independent of
// the address map lock, so queuing never blocks on Connect/Disconnect;
// each replayed dispatch takes the address map lock only while it
// copies the handler list.
func (c *Context[ID]) ExecuteQueuedEvents(ctx context.Context) error {
	c.queueMu.Lock()
	pending := c.queue
	c.queue = nil
	c.queueMu.Unlock()

	for _, call := range pending {
		var err error
		if !call.broadcast {
			_, err = c.dispatchRouted(ctx, call.address, call.args, false, true)
		} else if c.traits.AddressPolicy == AddressSingle {
			var zero ID
			_, err = c.dispatchRouted(ctx, zero, call.args, false, true)
		} else {
			for _, addr := range c.allAddresses() {
				if _, err = c.dispatchRouted(ctx, addr, call.args, false, true); err != nil {
					break
				}
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// PendingQueuedEvents returns the number of calls waiting for the next
// ExecuteQueuedEvents.
func (c *Context[ID]) PendingQueuedEvents() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue)
}
