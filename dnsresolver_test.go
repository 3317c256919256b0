package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemDNSShortCircuitsLiteralIP(t *testing.T) {
	d := NewSystemDNS()
	ips, err := d.Lookup(context.Background(), "93.184.216.34")
	require.NoError(t, err)
	require.Len(t, ips, 1)
	assert.True(t, net.IP.Equal(ips[0], net.ParseIP("93.184.216.34")))
}
