package transport

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	credentials *http.Request
	err         error
	calls       int
}

func (a *fakeAuthenticator) Authenticate(route Route, challenge *http.Response) (*http.Request, error) {
	a.calls++
	return a.credentials, a.err
}

func serveOneConnect(t *testing.T, server net.Conn, status int) {
	t.Helper()
	go func() {
		req, err := http.ReadRequest(bufio.NewReader(server))
		if err != nil {
			return
		}
		_ = req.Body.Close()
		resp := &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     make(http.Header),
		}
		_ = resp.Write(server)
		_ = server.Close()
	}()
}

func TestTunnelRunSucceedsOn200(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	serveOneConnect(t, server, http.StatusOK)

	tr := &tunnelRequest{targetHostPort: "example.com:443"}
	next, err := tr.run(context.Background(), client)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestTunnelRunRetriesWithCredentialsOn407(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	serveOneConnect(t, server, http.StatusProxyAuthRequired)

	auth := &fakeAuthenticator{credentials: &http.Request{
		Method: "CONNECT",
		URL:    &url.URL{Opaque: "example.com:443"},
		Host:   "example.com:443",
		Header: http.Header{"Proxy-Authorization": {"Basic dGVzdA=="}},
	}}
	tr := &tunnelRequest{targetHostPort: "example.com:443", proxyAuth: auth}
	next, err := tr.run(context.Background(), client)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, 1, auth.calls)
	assert.NotNil(t, next.credentials)
}

func TestTunnelRunFailsOn407WithoutAuthenticator(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	serveOneConnect(t, server, http.StatusProxyAuthRequired)

	tr := &tunnelRequest{targetHostPort: "example.com:443"}
	next, err := tr.run(context.Background(), client)
	assert.Error(t, err)
	assert.Nil(t, next)
}
