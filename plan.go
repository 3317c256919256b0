package transport

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"sync"
)

// PlanKind tags a Plan's variant (spec §3/§9 "tagged variant with a
// uniform step()").
type PlanKind int

const (
	PlanReuse PlanKind = iota
	PlanConnect
)

// ConnectResult is the outcome of one Plan step: success xor a deferred
// next_plan (a tunnel follow-up or TLS fallback) xor a failure (spec
// §3).
type ConnectResult struct {
	Success  bool
	NextPlan *Plan
	Failure  error
}

// Plan is a single attempt to obtain a usable Connection (spec §3). A
// ReusePlan wraps an already-live Connection; a ConnectPlan carries
// everything needed to dial a fresh one, parameterised by TLS-fallback
// index and attempt number (spec §4.2 "TLS fallback").
type Plan struct {
	Kind PlanKind

	// ReusePlan
	reused *Connection

	// ConnectPlan
	route       Route
	tlsFallback int
	attempt     int
	tlsEngine   TLSEngine
	dialer      func(ctx context.Context, network, addr string) (net.Conn, error)
	listener    EventListener

	// tunnel, if non-nil, is run to completion before the raw TCP
	// connection is usable for a TLS handshake (spec §4.2 "Tunnel
	// construction": HTTPS-through-HTTP-proxy CONNECT).
	tunnel *tunnelRequest

	mu        sync.Mutex
	canceled  bool
	rawConn   net.Conn
	tlsConn   net.Conn
	session   TLSSession
	connected *Connection
}

// isReady reports whether this plan already names a usable Connection
// without further I/O (the ReusePlan case, or a ConnectPlan that has run
// to completion).
func (p *Plan) isReady() bool {
	if p.Kind == PlanReuse {
		return p.reused != nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected != nil
}

// cancel is idempotent and non-blocking: it marks the plan canceled and
// closes whatever socket the plan already holds, which unblocks a tunnel
// exchange or TLS handshake running on it. A TCP dial still in progress
// holds no socket yet and is not interrupted; connectTCP sees the flag
// once the dial returns and closes the new socket.
func (p *Plan) cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.canceled {
		return
	}
	p.canceled = true
	if p.tlsConn != nil {
		_ = p.tlsConn.Close()
	} else if p.rawConn != nil {
		_ = p.rawConn.Close()
	}
}

func (p *Plan) isCanceled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canceled
}

// connectTCP dials the plan's route, then, if the route requires an
// HTTPS-through-HTTP-proxy tunnel, issues the CONNECT request. A 407
// response is surfaced as a NextPlan carrying the tunnelAuthenticator's
// credentialed retry (spec §4.2).
func (p *Plan) connectTCP(ctx context.Context) ConnectResult {
	if p.isCanceled() {
		return ConnectResult{Failure: CanceledError{}}
	}
	addr := p.route.SocketAddr().String()
	dial := p.dialer
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	p.listener.ConnectStart(p.route)
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		p.listener.ConnectEnd(p.route, "", err)
		return ConnectResult{Failure: &NetworkError{Op: "connect", Cause: err}}
	}
	p.mu.Lock()
	if p.canceled {
		p.mu.Unlock()
		_ = conn.Close()
		return ConnectResult{Failure: CanceledError{}}
	}
	p.rawConn = conn
	p.mu.Unlock()
	p.listener.ConnectEnd(p.route, "", nil)

	if p.tunnel != nil {
		next, err := p.tunnel.run(ctx, conn)
		if err != nil {
			return ConnectResult{Failure: &NetworkError{Op: "tunnel", Cause: err}}
		}
		if next != nil {
			retry := *p
			retry.tunnel = next
			retry.mu = sync.Mutex{}
			retry.rawConn = nil
			return ConnectResult{NextPlan: &retry}
		}
	}
	return ConnectResult{Success: true}
}

// connectTLS performs the handshake, classifying a downgradable failure
// as a next_plan with an incremented TLS-fallback index (spec §4.2 "TLS
// fallback": "protocol-version / cipher-mismatch ... not certificate
// errors").
func (p *Plan) connectTLS(ctx context.Context, serverName string) ConnectResult {
	if !p.route.Address.IsHTTPS() {
		p.mu.Lock()
		p.connected = newConnection(p.route, "http/1.1", p.rawConn, nil)
		p.mu.Unlock()
		return ConnectResult{Success: true}
	}
	specs := p.route.Address.ConnectionSpecs
	if p.tlsFallback >= len(specs) {
		return ConnectResult{Failure: &TLSHandshakeError{Kind: TLSCertInvalid, Cause: errAllSpecsExhausted}}
	}
	spec := specs[p.tlsFallback]

	p.listener.SecureConnectStart()
	tlsConn, session, err := p.tlsEngine.Handshake(ctx, p.rawConn, spec, serverName)
	if err != nil {
		p.listener.SecureConnectEnd(TLSSession{}, err)
		if isDowngradable(err) && p.tlsFallback+1 < len(specs) {
			next := *p
			next.tlsFallback = p.tlsFallback + 1
			next.mu = sync.Mutex{}
			return ConnectResult{NextPlan: &next}
		}
		return ConnectResult{Failure: &TLSHandshakeError{Kind: TLSCertInvalid, Cause: err}}
	}
	if err := p.tlsEngine.Verify(serverName, session); err != nil {
		_ = tlsConn.Close()
		p.listener.SecureConnectEnd(session, err)
		return ConnectResult{Failure: &TLSHandshakeError{Kind: TLSCertPinningFailure, Cause: err}}
	}
	p.listener.SecureConnectEnd(session, nil)

	p.mu.Lock()
	if p.canceled {
		p.mu.Unlock()
		_ = tlsConn.Close()
		return ConnectResult{Failure: CanceledError{}}
	}
	p.tlsConn = tlsConn
	p.session = session
	p.connected = newConnection(p.route, session.NegotiatedProto, tlsConn, &session)
	p.mu.Unlock()
	return ConnectResult{Success: true}
}

// handleSuccess returns the Connection this plan produced.
func (p *Plan) handleSuccess() *Connection {
	if p.Kind == PlanReuse {
		return p.reused
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// close releases whatever socket this plan opened without handing it to
// the pool (used when the plan is abandoned after losing a fast-fallback
// race or after an unrecoverable failure).
func (p *Plan) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tlsConn != nil {
		_ = p.tlsConn.Close()
	} else if p.rawConn != nil {
		_ = p.rawConn.Close()
	}
}

var errAllSpecsExhausted = errors.New("transport: all TLS ConnectionSpecs exhausted")

// isDowngradable classifies a handshake error as retryable-with-fallback
// (protocol version / cipher mismatch) versus a hard certificate
// failure, which is never retried (spec §4.2/§7).
func isDowngradable(err error) bool {
	var certErr x509.CertificateInvalidError
	var hostErr x509.HostnameError
	var unknownAuthErr x509.UnknownAuthorityError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) || errors.As(err, &unknownAuthErr) {
		return false
	}
	return true
}
