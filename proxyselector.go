package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
)

// RoundRobinProxySelector cycles through a fixed proxy list, ignoring
// the target URL (spec §C supplemented feature, adapted from the
// teacher's fetch/proxy.go roundRobinProxy). An empty list means
// connect direct.
type RoundRobinProxySelector struct {
	proxies []Proxy
	index   uint32
}

// NewRoundRobinProxySelector parses rawURLs ("http://host:port",
// "socks5://host:port"; a bare "host:port" defaults to HTTP) into a
// RoundRobinProxySelector. An empty rawURLs list yields a selector that
// always returns ProxyNone.
func NewRoundRobinProxySelector(rawURLs ...string) (*RoundRobinProxySelector, error) {
	proxies := make([]Proxy, 0, len(rawURLs))
	for _, raw := range rawURLs {
		s := raw
		if !strings.Contains(s, "://") {
			s = "http://" + s
		}
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("transport: invalid proxy url %q: %w", raw, err)
		}
		var ptype ProxyType
		switch u.Scheme {
		case "", "http", "https":
			ptype = ProxyHTTP
		case "socks5":
			ptype = ProxySOCKS5
		default:
			return nil, fmt.Errorf("transport: unsupported proxy scheme %q", u.Scheme)
		}
		addr := u.Host
		if addr == "" {
			addr = u.Opaque
		}
		proxies = append(proxies, Proxy{Type: ptype, Addr: addr})
	}
	return &RoundRobinProxySelector{proxies: proxies}, nil
}

func (r *RoundRobinProxySelector) Select(_ context.Context, _ string) ([]Proxy, error) {
	if len(r.proxies) == 0 {
		return []Proxy{{Type: ProxyNone}}, nil
	}
	i := atomic.AddUint32(&r.index, 1) - 1
	return []Proxy{r.proxies[i%uint32(len(r.proxies))]}, nil
}
