package transport

import (
	"context"
	"net"
	"net/http"
)

// External collaborator contracts (spec §6). The core depends only on
// these interfaces; concrete implementations (DNS resolution, the TLS
// library itself, disk caching, cookie storage, ...) live outside the
// core per spec §1's explicit out-of-scope list.

// DNS resolves a hostname to a list of candidate IP addresses.
type DNS interface {
	Lookup(ctx context.Context, host string) ([]net.IP, error)
}

// ProxySelector chooses zero or more proxies to try for a URL, in
// preference order. An empty slice (not nil) means "connect direct."
type ProxySelector interface {
	Select(ctx context.Context, targetURL string) ([]Proxy, error)
}

// Proxy identifies a single proxy choice: NO_PROXY, or an HTTP/SOCKS
// proxy at host:port.
type Proxy struct {
	Type ProxyType
	Addr string // host:port, empty for ProxyNone
}

type ProxyType int

const (
	ProxyNone ProxyType = iota
	ProxyHTTP
	ProxySOCKS5
)

// TLSSession is the negotiated result of a TLS handshake: the
// ALPN-negotiated protocol and enough identity to satisfy certificate
// pinning and coalescing checks.
type TLSSession struct {
	NegotiatedProto string
	PeerCertSHA256  [][32]byte
}

// TLSEngine performs the handshake itself and post-handshake hostname
// verification; spec §6 keeps "the TLS library itself" out of the
// core's scope and reaches it only through this contract.
type TLSEngine interface {
	Handshake(ctx context.Context, conn net.Conn, spec ConnectionSpec, serverName string) (net.Conn, TLSSession, error)
	Verify(serverName string, session TLSSession) error
}

// CertificatePinner checks a verified chain's pins for a hostname,
// independent of standard certificate-authority trust.
type CertificatePinner interface {
	Check(hostname string, certSHA256 [][32]byte) error
}

// Authenticator produces a follow-up request carrying credentials for a
// proxy or origin challenge response (e.g. a 407 from a CONNECT tunnel,
// spec §4.2 "Tunnel construction").
type Authenticator interface {
	Authenticate(route Route, challenge *http.Response) (*http.Request, error)
}

// EventListener receives start/end hooks for each phase of a call, per
// spec §6. All methods are optional no-ops in NoopEventListener.
type EventListener interface {
	DNSStart(host string)
	DNSEnd(addrs []net.IP, err error)
	ConnectStart(route Route)
	ConnectEnd(route Route, proto string, err error)
	SecureConnectStart()
	SecureConnectEnd(session TLSSession, err error)
	RequestStart()
	RequestEnd(err error)
	ResponseStart()
	ResponseEnd(err error)
	CallStart()
	CallEnd()
	CallFailed(err error)
}

// NoopEventListener implements EventListener with no-ops; used as the
// default and by pre-opened pool connections that have no real Call
// (spec §9 "PoolUser (no call, no listeners) is realised as the no-op
// implementation").
type NoopEventListener struct{}

func (NoopEventListener) DNSStart(string)                      {}
func (NoopEventListener) DNSEnd([]net.IP, error)                {}
func (NoopEventListener) ConnectStart(Route)                    {}
func (NoopEventListener) ConnectEnd(Route, string, error)       {}
func (NoopEventListener) SecureConnectStart()                   {}
func (NoopEventListener) SecureConnectEnd(TLSSession, error)    {}
func (NoopEventListener) RequestStart()                         {}
func (NoopEventListener) RequestEnd(error)                       {}
func (NoopEventListener) ResponseStart()                         {}
func (NoopEventListener) ResponseEnd(error)                      {}
func (NoopEventListener) CallStart()                             {}
func (NoopEventListener) CallEnd()                               {}
func (NoopEventListener) CallFailed(error)                       {}

// HTTP1Codec is the out-of-scope HTTP/1 wire codec contract (spec §6):
// the core only ever calls these three operations against a connection
// carrying an HTTP/1 exchange.
type HTTP1Codec interface {
	WriteRequest(header http.Header, body func() (int64, error)) error
	ReadResponse() (*http.Response, error)
	StreamBody() (interface{ Read([]byte) (int, error) }, error)
}
