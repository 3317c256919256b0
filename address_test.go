package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressEqual(t *testing.T) {
	specA := ConnectionSpec{Name: "modern", MinTLS: 0x0303, MaxTLS: 0x0304, CipherSuites: []uint16{0x1301, 0x1302}}
	specB := ConnectionSpec{Name: "modern", MinTLS: 0x0303, MaxTLS: 0x0304, CipherSuites: []uint16{0x1301, 0x1302}}
	specC := ConnectionSpec{Name: "modern", MinTLS: 0x0303, MaxTLS: 0x0304, CipherSuites: []uint16{0x1301, 0x1303}}

	a := Address{Scheme: "https", Host: "example.com", Port: 443, ConnectionSpecs: []ConnectionSpec{specA}, SupportedProtos: []string{"h2"}}
	b := Address{Scheme: "https", Host: "example.com", Port: 443, ConnectionSpecs: []ConnectionSpec{specB}, SupportedProtos: []string{"h2"}}
	c := Address{Scheme: "https", Host: "example.com", Port: 443, ConnectionSpecs: []ConnectionSpec{specC}, SupportedProtos: []string{"h2"}}
	d := Address{Scheme: "https", Host: "other.com", Port: 443, ConnectionSpecs: []ConnectionSpec{specA}, SupportedProtos: []string{"h2"}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.True(t, a.IsHTTPS())
}

func TestRouteDatabasePostpone(t *testing.T) {
	db := NewRouteDatabase()
	addr := Address{Scheme: "https", Host: "example.com", Port: 443}
	r := Route{Address: addr, IP: mustParseIP(t, "93.184.216.34")}

	assert.False(t, db.ShouldPostpone(r))
	db.Failed(r)
	assert.True(t, db.ShouldPostpone(r))
	db.Connected(r)
	assert.False(t, db.ShouldPostpone(r))
}
