package transport

import (
	"context"
	"net"
	"sync"
)

// Route is an Address plus a concrete proxy choice plus a concrete IP
// socket address (spec §3 "Route").
type Route struct {
	Address Address
	Proxy   Proxy
	IP      net.IP
}

func (r Route) SocketAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: r.IP, Port: r.Address.Port}
}

// RouteDatabase records routes that recently failed so the planner can
// deprioritise them (spec §3). Safe for concurrent use; process-wide per
// spec §5 ("Shared-resource policy").
type RouteDatabase struct {
	mu     sync.Mutex
	failed map[routeKey]bool
}

type routeKey struct {
	addr  string
	proxy Proxy
	ip    string
}

func NewRouteDatabase() *RouteDatabase {
	return &RouteDatabase{failed: make(map[routeKey]bool)}
}

func key(r Route) routeKey {
	return routeKey{addr: r.Address.key(), proxy: r.Proxy, ip: r.IP.String()}
}

func (d *RouteDatabase) Failed(r Route) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed[key(r)] = true
}

func (d *RouteDatabase) Connected(r Route) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failed, key(r))
}

func (d *RouteDatabase) ShouldPostpone(r Route) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failed[key(r)]
}

// RouteSelector enumerates (proxy, inet) pairs for an Address, proxy
// choices coming from a ProxySelector and inet choices from DNS (spec
// §4.2 step 4b). Routes the RouteDatabase has recently marked failed are
// skipped in favour of later healthy ones; see Next for which failed
// routes are offered at all.
type RouteSelector struct {
	address Address
	proxies []Proxy
	proxyIx int

	dns DNS
	db  *RouteDatabase

	pendingIPs []net.IP
	ipIx       int
	curProxy   Proxy
}

func NewRouteSelector(address Address, proxies []Proxy, dns DNS, db *RouteDatabase) *RouteSelector {
	return &RouteSelector{address: address, proxies: proxies, dns: dns, db: db}
}

func (s *RouteSelector) HasNext() bool {
	return s.ipIx < len(s.pendingIPs) || s.proxyIx < len(s.proxies)
}

// Next materialises the next route to attempt, resolving DNS for the
// current proxy's target as needed. It returns the first remaining route
// not marked failed; only when none remains does it return the first
// failed route it passed in this call. Failed routes passed over before
// a healthy one is returned are not offered again.
func (s *RouteSelector) Next(ctx context.Context) (Route, bool, error) {
	var deferredFailed *Route
	for s.HasNext() {
		if s.ipIx >= len(s.pendingIPs) {
			if s.proxyIx >= len(s.proxies) {
				break
			}
			proxy := s.proxies[s.proxyIx]
			s.proxyIx++
			host := s.address.Host
			if proxy.Type != ProxyNone {
				host, _, _ = net.SplitHostPort(proxy.Addr)
			}
			ips, err := s.dns.Lookup(ctx, host)
			if err != nil {
				return Route{}, false, err
			}
			s.pendingIPs = ips
			s.ipIx = 0
			s.curProxy = proxy
		}
		ip := s.pendingIPs[s.ipIx]
		s.ipIx++
		r := Route{Address: s.address, Proxy: s.curProxy, IP: ip}
		if s.db != nil && s.db.ShouldPostpone(r) {
			if deferredFailed == nil {
				rc := r
				deferredFailed = &rc
			}
			continue
		}
		return r, true, nil
	}
	if deferredFailed != nil {
		return *deferredFailed, true, nil
	}
	return Route{}, false, nil
}
