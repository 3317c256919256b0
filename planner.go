package transport

import (
	"context"
	"fmt"
	"net"
)

// RoutePlanner produces a Plan per call to plan(), in the preference
// order from spec §4.2: reuse the call's connection, reuse a pooled
// connection, else plan a fresh connect. plan() itself keeps no deferred
// plans; the exchange finders hold and drain those.
type RoutePlanner struct {
	pool          *ConnectionPool
	proxySelector ProxySelector
	dns           DNS
	routeDB       *RouteDatabase
	tlsEngine     TLSEngine
	dialer        func(ctx context.Context, network, addr string) (net.Conn, error)
	tunnelAuth    Authenticator
	listener      EventListener
}

func NewRoutePlanner(pool *ConnectionPool, proxySelector ProxySelector, dns DNS, routeDB *RouteDatabase, tlsEngine TLSEngine, tunnelAuth Authenticator, listener EventListener) *RoutePlanner {
	if listener == nil {
		listener = NoopEventListener{}
	}
	return &RoutePlanner{
		pool:          pool,
		proxySelector: proxySelector,
		dns:           dns,
		routeDB:       routeDB,
		tlsEngine:     tlsEngine,
		tunnelAuth:    tunnelAuth,
		listener:      listener,
	}
}

// NewSelector builds the RouteSelector for one exchange-finder attempt
// sequence (spec §4.2 step 4b). A finder creates exactly one per Find()
// call and threads it through every plan() call for that exchange, so
// enumeration advances instead of restarting from the first route.
func (rp *RoutePlanner) NewSelector(ctx context.Context, address Address) (*RouteSelector, error) {
	var proxies []Proxy
	if rp.proxySelector != nil {
		var err error
		proxies, err = rp.proxySelector.Select(ctx, address.Host)
		if err != nil {
			return nil, err
		}
	}
	if len(proxies) == 0 {
		proxies = []Proxy{{Type: ProxyNone}}
	}
	return NewRouteSelector(address, proxies, rp.dns, rp.routeDB), nil
}

// plan implements spec §4.2's preference order. existingConn is the
// call's currently-held connection, if any (step 1); it is nil on the
// first call for a given exchange. extensive selects the health-check
// mode for pool reuse and is caller-driven: non-idempotent requests
// demand the extensive check (spec §4.1). selector is the exchange's
// shared RouteSelector (step 4b), obtained once via NewSelector.
func (rp *RoutePlanner) plan(ctx context.Context, address Address, existingConn *Connection, requireMultiplexed, extensive bool, selector *RouteSelector, user *Call) (*Plan, error) {
	if existingConn != nil && existingConn.isHealthy(extensive) && existingConn.isEligible(address) {
		return &Plan{Kind: PlanReuse, reused: existingConn}, nil
	}

	if pooled := rp.pool.acquire(address, requireMultiplexed, extensive, user); pooled != nil {
		return &Plan{Kind: PlanReuse, reused: pooled}, nil
	}

	route, ok, err := selector.Next(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("transport: no route available to %s", address.Host)
	}

	if pooled := rp.pool.acquire(address, requireMultiplexed, extensive, user); pooled != nil {
		return &Plan{Kind: PlanReuse, reused: pooled}, nil
	}

	p := &Plan{
		Kind:      PlanConnect,
		route:     route,
		tlsEngine: rp.tlsEngine,
		dialer:    rp.dialer,
		listener:  rp.listener,
	}
	if route.Proxy.Type == ProxyHTTP && address.IsHTTPS() {
		p.tunnel = &tunnelRequest{
			targetHostPort: fmt.Sprintf("%s:%d", address.Host, address.Port),
			proxyAuth:      rp.tunnelAuth,
			route:          route,
		}
	}
	return p, nil
}

// hasNext implements the route retry policy from spec §4.2: a route is
// retryable iff its connection has no recorded route failure
// (routeFailureCount == 0) and is not yet marked no_new_exchanges. See DESIGN.md's "Open Questions" for why this
// negates no_new_exchanges rather than requiring it, despite §4.2's
// literal phrasing reading as a plain conjunction.
func (rp *RoutePlanner) hasNext(failed *Connection) bool {
	if failed == nil {
		return true
	}
	failed.mu.Lock()
	defer failed.mu.Unlock()
	return failed.routeFailureCount == 0 && !failed.noNewExchanges
}
