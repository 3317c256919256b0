package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// tunnelRequest describes a pending CONNECT tunnel through an HTTP
// proxy (spec §4.2 "Tunnel construction"). run() issues the CONNECT and
// returns a non-nil follow-up tunnelRequest (carrying proxy-auth
// credentials) on a 407, matching the ConnectResult.NextPlan contract.
type tunnelRequest struct {
	targetHostPort string
	proxyAuth      Authenticator
	route          Route
	credentials    *http.Request // set on the authenticated retry
}

// run writes the CONNECT request and reads the proxy's response line +
// headers off conn. No request body is ever sent (spec §4.2). A 200
// response means the tunnel is established and conn is now ready for a
// TLS handshake; a 407 with a usable Authenticator produces a follow-up
// tunnelRequest to retry with credentials.
func (t *tunnelRequest) run(ctx context.Context, conn net.Conn) (*tunnelRequest, error) {
	req := t.credentials
	if req == nil {
		req = &http.Request{
			Method: "CONNECT",
			URL:    &url.URL{Opaque: t.targetHostPort},
			Host:   t.targetHostPort,
			Header: http.Header{
				"Host":             {t.targetHostPort},
				"Proxy-Connection": {"Keep-Alive"},
				"User-Agent":       {"Go-http-client/transport"},
			},
		}
	}
	if err := req.Write(conn); err != nil {
		return nil, err
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil, nil
	case resp.StatusCode == http.StatusProxyAuthRequired && t.proxyAuth != nil:
		retry, err := t.proxyAuth.Authenticate(t.route, resp)
		if err != nil {
			return nil, err
		}
		if retry == nil {
			return nil, fmt.Errorf("tunnel: proxy authentication required (%s)", t.targetHostPort)
		}
		next := *t
		next.credentials = retry
		return &next, nil
	default:
		return nil, fmt.Errorf("tunnel: proxy refused CONNECT to %s: %s", t.targetHostPort, resp.Status)
	}
}
