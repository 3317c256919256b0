package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanPrefersExistingConnectionOverPoolAndRoute(t *testing.T) {
	addr := httpAddress("example.com")
	dns := &fakeDNS{ips: map[string][]net.IP{"example.com": {mustParseIP(t, "1.1.1.1")}}}
	pool := NewConnectionPool(5, time.Minute, nil, nil, nil)
	planner := newTestPlanner(t, pool, dns, (&dialScript{}).dial)

	existing := newIdleConnection(addr, time.Now())
	selector, err := planner.NewSelector(context.Background(), addr)
	require.NoError(t, err)

	p, err := planner.plan(context.Background(), addr, existing, false, false, selector, NewCall(context.Background(), nil))
	require.NoError(t, err)
	assert.Equal(t, PlanReuse, p.Kind)
	assert.Same(t, existing, p.reused)
}

func TestPlanPrefersPooledConnectionOverFreshRoute(t *testing.T) {
	addr := httpAddress("example.com")
	dns := &fakeDNS{ips: map[string][]net.IP{"example.com": {mustParseIP(t, "1.1.1.1")}}}
	pool := NewConnectionPool(5, time.Minute, nil, nil, nil)
	pooled := newIdleConnection(addr, time.Now())
	pool.connections = append(pool.connections, pooled)
	planner := newTestPlanner(t, pool, dns, (&dialScript{}).dial)

	selector, err := planner.NewSelector(context.Background(), addr)
	require.NoError(t, err)
	p, err := planner.plan(context.Background(), addr, nil, false, false, selector, NewCall(context.Background(), nil))
	require.NoError(t, err)
	assert.Equal(t, PlanReuse, p.Kind)
	assert.Same(t, pooled, p.reused)
}

func TestPlanBuildsFreshConnectWhenNothingReusable(t *testing.T) {
	addr := httpAddress("example.com")
	dns := &fakeDNS{ips: map[string][]net.IP{"example.com": {mustParseIP(t, "1.1.1.1")}}}
	pool := NewConnectionPool(5, time.Minute, nil, nil, nil)
	planner := newTestPlanner(t, pool, dns, (&dialScript{}).dial)

	selector, err := planner.NewSelector(context.Background(), addr)
	require.NoError(t, err)
	p, err := planner.plan(context.Background(), addr, nil, false, false, selector, NewCall(context.Background(), nil))
	require.NoError(t, err)
	assert.Equal(t, PlanConnect, p.Kind)
	assert.Equal(t, "1.1.1.1", p.route.IP.String())
}

func TestPlanWrapsTunnelForHTTPSThroughHTTPProxy(t *testing.T) {
	addr := Address{Scheme: "https", Host: "example.com", Port: 443}
	dns := &fakeDNS{ips: map[string][]net.IP{"proxy.example.com": {mustParseIP(t, "9.9.9.9")}}}
	pool := NewConnectionPool(5, time.Minute, nil, nil, nil)
	rp := NewRoutePlanner(pool, nil, dns, NewRouteDatabase(), nil, nil, nil)

	selector := NewRouteSelector(addr, []Proxy{{Type: ProxyHTTP, Addr: "proxy.example.com:8080"}}, dns, rp.routeDB)
	p, err := rp.plan(context.Background(), addr, nil, false, false, selector, NewCall(context.Background(), nil))
	require.NoError(t, err)
	require.NotNil(t, p.tunnel)
	assert.Equal(t, "example.com:443", p.tunnel.targetHostPort)
}

func TestHasNextStopsAfterNoNewExchanges(t *testing.T) {
	rp := NewRoutePlanner(nil, nil, nil, nil, nil, nil, nil)
	assert.True(t, rp.hasNext(nil))

	failed := &Connection{}
	assert.True(t, rp.hasNext(failed))

	failed.noNewExchanges = true
	assert.False(t, rp.hasNext(failed))

	failed2 := &Connection{routeFailureCount: 1}
	assert.False(t, rp.hasNext(failed2))
}
