package eventbus

import "context"

// RouterEvent describes one dispatch as it is offered to a Router before
// handlers run.
type RouterEvent struct {
	Address any
	Args    []any
	Queued  bool
}

// Router intercepts dispatches on a Context before they reach connected
// handlers. Routers run in ascending Order; a Router may forward the
// event on to handlers unchanged, rewrite it, or swallow it entirely by
// not calling Forward.
type Router interface {
	// Order determines position in the router chain; lower runs first.
	Order() int

	// Route is invoked for every dispatch. forward, if called, continues
	// to the next router (or to handlers if this is the last one) and
	// returns whatever that step produced. Route may call forward zero,
	// one, or more times, and may inspect or alter ev.Args before doing
	// so.
	Route(ctx context.Context, ev RouterEvent, forward ForwardFunc) ([]HandlerResult, error)
}

// ForwardFunc continues dispatch to the next stage of the router chain.
type ForwardFunc func(ctx context.Context, args []any) ([]HandlerResult, error)

// HandlerResult pairs one connected handler's return value with any
// error it produced.
type HandlerResult struct {
	Value any
	Err   error
}

type routerEntry struct {
	router Router
}

// ForwardEventResult is a convenience a Router calls when it wants a
// single collected result rather than the full []HandlerResult that
// forward returns, mirroring EventResult/ReverseResult for routed
// dispatch. It refuses queued events: once a dispatch has been queued
// there is no synchronous caller left to hand a result back to.
func ForwardEventResult(ctx context.Context, ev RouterEvent, forward ForwardFunc) (any, error) {
	if ev.Queued {
		return nil, ErrQueuedResultForwardingUnsupported
	}
	results, err := forward(ctx, ev.Args)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, NewNoHandlerError(ev.Address)
	}
	return results[0].Value, results[0].Err
}

// ForwardEvent is the full-fan-out counterpart of ForwardEventResult: it
// forwards unconditionally and returns every handler's result.
func ForwardEvent(ctx context.Context, ev RouterEvent, forward ForwardFunc) ([]HandlerResult, error) {
	return forward(ctx, ev.Args)
}

// AddRouter inserts r into the Context's router chain, keeping the chain
// sorted by ascending Order(); routers added with equal Order preserve
// insertion order (stable).
func (c *Context[ID]) AddRouter(r Router) {
	c.mu.Lock()
	defer c.mu.Unlock()

	order := r.Order()
	idx := len(c.routers)
	for i, existing := range c.routers {
		if existing.router.Order() > order {
			idx = i
			break
		}
	}
	c.routers = append(c.routers, routerEntry{})
	copy(c.routers[idx+1:], c.routers[idx:])
	c.routers[idx] = routerEntry{router: r}
}

// RemoveRouter removes the first router equal to r from the chain.
func (c *Context[ID]) RemoveRouter(r Router) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.routers {
		if existing.router == r {
			c.routers = append(c.routers[:i], c.routers[i+1:]...)
			return
		}
	}
}

// runThroughRouters threads a dispatch through the router chain, ending
// in the terminal fan-out function. With no routers registered, terminal
// runs directly.
func (c *Context[ID]) runThroughRouters(ctx context.Context, ev RouterEvent, terminal ForwardFunc) ([]HandlerResult, error) {
	c.mu.RLock()
	chain := make([]routerEntry, len(c.routers))
	copy(chain, c.routers)
	c.mu.RUnlock()

	var next func(i int) ForwardFunc
	next = func(i int) ForwardFunc {
		return func(ctx context.Context, args []any) ([]HandlerResult, error) {
			if i >= len(chain) {
				return terminal(ctx, args)
			}
			step := ev
			step.Args = args
			return chain[i].router.Route(ctx, step, next(i+1))
		}
	}

	return next(0)(ctx, ev.Args)
}
