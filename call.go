package transport

import (
	"context"
	"weak"
)

// Call is one user-issued HTTP request/response exchange. The Connection
// it acquires holds only a weak handle back to it (spec §9: "the
// Connection holds only weak handles to its Calls (for leak
// detection)"), so a Call that is dropped without releasing its
// allocation can still be noticed and pruned by the pool's closer task.
type Call struct {
	ctx      context.Context
	listener EventListener

	canceled bool

	// plansToCancel is populated by the fast-fallback finder so cancel()
	// can unblock every in-flight racing plan (spec §5 "cancels every
	// plan in a plans_to_cancel list").
	plansToCancel []*Plan

	// connection is the connection this call most recently acquired, if
	// any. The route planner's preference order (spec §4.2) tries this
	// connection before consulting the pool or enumerating routes; it
	// self-gates once the connection is no longer healthy or eligible.
	connection *Connection
}

func NewCall(ctx context.Context, listener EventListener) *Call {
	if listener == nil {
		listener = NoopEventListener{}
	}
	return &Call{ctx: ctx, listener: listener}
}

// Cancel is idempotent, safe from any thread, and never blocks (spec
// §5). It flips the canceled flag observed at suspension points and
// cancels every plan registered via trackPlan.
func (c *Call) Cancel() {
	c.canceled = true
	for _, p := range c.plansToCancel {
		p.cancel()
	}
}

func (c *Call) Canceled() bool { return c.canceled }

func (c *Call) trackPlan(p *Plan) {
	c.plansToCancel = append(c.plansToCancel, p)
}

// Connection returns the connection this call last successfully
// acquired, or nil if it hasn't acquired one yet.
func (c *Call) Connection() *Connection { return c.connection }

// SetConnection records the connection this call just acquired, so a
// later exchange on the same call (a redirect, an auth retry) prefers
// reusing it (spec §4.2 "reuse the call's existing connection").
func (c *Call) SetConnection(conn *Connection) { c.connection = conn }

// weakHandle returns a GC-weak reference to c, stored by the Connection
// it acquires (spec §9 "Cyclic references between Call, Connection, and
// Pool"). stdlib weak.Pointer is the only primitive for this; no
// ecosystem library provides GC weak references (DESIGN.md).
func (c *Call) weakHandle() weak.Pointer[Call] {
	return weak.Make(c)
}
