package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseIP(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	require.NotNil(t, ip)
	return ip
}

type fakeDNS struct {
	ips map[string][]net.IP
}

func (f *fakeDNS) Lookup(_ context.Context, host string) ([]net.IP, error) {
	return f.ips[host], nil
}

func TestRouteSelectorSkipsFailedRoutes(t *testing.T) {
	addr := Address{Scheme: "https", Host: "example.com", Port: 443}
	dns := &fakeDNS{ips: map[string][]net.IP{
		"example.com": {mustParseIP(t, "1.1.1.1"), mustParseIP(t, "2.2.2.2")},
	}}
	db := NewRouteDatabase()
	db.Failed(Route{Address: addr, IP: mustParseIP(t, "1.1.1.1")})

	sel := NewRouteSelector(addr, []Proxy{{Type: ProxyNone}}, dns, db)

	r, ok, err := sel.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2.2.2.2", r.IP.String())

	_, ok, err = sel.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRouteSelectorFallsBackToFailedWhenNoneHealthy(t *testing.T) {
	addr := Address{Scheme: "https", Host: "example.com", Port: 443}
	dns := &fakeDNS{ips: map[string][]net.IP{
		"example.com": {mustParseIP(t, "1.1.1.1")},
	}}
	db := NewRouteDatabase()
	db.Failed(Route{Address: addr, IP: mustParseIP(t, "1.1.1.1")})

	sel := NewRouteSelector(addr, []Proxy{{Type: ProxyNone}}, dns, db)
	r, ok, err := sel.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.1.1.1", r.IP.String())
}
