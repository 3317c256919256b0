package transport

import (
	"context"
	"crypto/sha256"
	"net"

	tls "github.com/refraction-networking/utls"
)

// UTLSEngine performs the TLS handshake with a uTLS ClientHelloID,
// letting callers present a non-Go fingerprint on the wire (spec §6's
// TLSEngine collaborator, adapted from the teacher's dialTLSWithContext
// in fetch/http2/patch.go). ALPN candidates are always {"h2",
// "http/1.1"}; the negotiated protocol and a SHA-256 digest of every
// peer certificate are surfaced via TLSSession for connection
// coalescing and pinning.
type UTLSEngine struct {
	HelloID ClientHelloID
	Pinner  CertificatePinner
}

// ClientHelloID selects the uTLS fingerprint preset; the zero value
// means tls.HelloGolang (stdlib-equivalent handshake).
type ClientHelloID = tls.ClientHelloID

func NewUTLSEngine(pinner CertificatePinner) *UTLSEngine {
	return &UTLSEngine{HelloID: tls.HelloGolang, Pinner: pinner}
}

func (e *UTLSEngine) Handshake(ctx context.Context, conn net.Conn, spec ConnectionSpec, serverName string) (net.Conn, TLSSession, error) {
	cfg := &tls.Config{
		ServerName:   serverName,
		MinVersion:   spec.MinTLS,
		MaxVersion:   spec.MaxTLS,
		CipherSuites: spec.CipherSuites,
		NextProtos:   []string{"h2", "http/1.1"},
	}
	helloID := e.HelloID
	if helloID == (tls.ClientHelloID{}) {
		helloID = tls.HelloGolang
	}
	uconn := tls.UClient(conn, cfg, helloID)
	if err := uconn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, TLSSession{}, err
	}
	state := uconn.ConnectionState()
	session := TLSSession{NegotiatedProto: state.NegotiatedProtocol}
	for _, cert := range state.PeerCertificates {
		session.PeerCertSHA256 = append(session.PeerCertSHA256, sha256.Sum256(cert.Raw))
	}
	return uconn, session, nil
}

func (e *UTLSEngine) Verify(serverName string, session TLSSession) error {
	if e.Pinner == nil {
		return nil
	}
	return e.Pinner.Check(serverName, session.PeerCertSHA256)
}

