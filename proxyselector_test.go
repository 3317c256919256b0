package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobinProxySelectorCyclesInOrder(t *testing.T) {
	sel, err := NewRoundRobinProxySelector("http://proxy1.example.com:8080", "socks5://proxy2.example.com:1080")
	require.NoError(t, err)

	p1, err := sel.Select(context.Background(), "target.example.com")
	require.NoError(t, err)
	require.Len(t, p1, 1)
	assert.Equal(t, ProxyHTTP, p1[0].Type)
	assert.Equal(t, "proxy1.example.com:8080", p1[0].Addr)

	p2, err := sel.Select(context.Background(), "target.example.com")
	require.NoError(t, err)
	assert.Equal(t, ProxySOCKS5, p2[0].Type)

	p3, err := sel.Select(context.Background(), "target.example.com")
	require.NoError(t, err)
	assert.Equal(t, ProxyHTTP, p3[0].Type)
	assert.Equal(t, "proxy1.example.com:8080", p3[0].Addr)
}

func TestRoundRobinProxySelectorEmptyMeansDirect(t *testing.T) {
	sel, err := NewRoundRobinProxySelector()
	require.NoError(t, err)

	p, err := sel.Select(context.Background(), "target.example.com")
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, ProxyNone, p[0].Type)
}

func TestRoundRobinProxySelectorRejectsUnsupportedScheme(t *testing.T) {
	_, err := NewRoundRobinProxySelector("ftp://proxy.example.com")
	assert.Error(t, err)
}
