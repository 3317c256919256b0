package transport

import (
	"strconv"
	"strings"
)

// Address is the immutable target identity: scheme, host, port, and the
// security parameters that must match for two connections to be
// pool-compatible (spec §3). Address holds slice fields and so cannot be
// compared with ==; Equal reports value equality.
type Address struct {
	Scheme string // "http" or "https"
	Host   string
	Port   int

	ConnectionSpecs []ConnectionSpec // TLS version/cipher fallback list, tried in order
	CertPinnerID    string           // identity of the CertificatePinner in use, "" if none
	ProxySelectorID string           // identity of the ProxySelector in use
	DNSID           string           // identity of the DNS resolver in use
	SupportedProtos []string         // ALPN candidates, e.g. {"h2", "http/1.1"}
}

// ConnectionSpec names one TLS posture: a minimum/maximum TLS version
// and an ordered cipher-suite list. ConnectPlan steps through a host
// Address's ConnectionSpecs on a downgradable handshake failure (§4.2
// "TLS fallback").
type ConnectionSpec struct {
	Name         string
	MinTLS       uint16
	MaxTLS       uint16
	CipherSuites []uint16
}

func (s ConnectionSpec) Equal(o ConnectionSpec) bool {
	if s.Name != o.Name || s.MinTLS != o.MinTLS || s.MaxTLS != o.MaxTLS || len(s.CipherSuites) != len(o.CipherSuites) {
		return false
	}
	for i := range s.CipherSuites {
		if s.CipherSuites[i] != o.CipherSuites[i] {
			return false
		}
	}
	return true
}

// Equal reports value equality, used by the pool/planner instead of ==
// so a nil vs. empty ConnectionSpecs/SupportedProtos slice compares
// equal (spec §3: "Two connections are pool-compatible iff their
// Addresses are equal").
func (a Address) Equal(b Address) bool {
	if a.Scheme != b.Scheme || a.Host != b.Host || a.Port != b.Port ||
		a.CertPinnerID != b.CertPinnerID || a.ProxySelectorID != b.ProxySelectorID || a.DNSID != b.DNSID {
		return false
	}
	if len(a.SupportedProtos) != len(b.SupportedProtos) {
		return false
	}
	for i := range a.SupportedProtos {
		if a.SupportedProtos[i] != b.SupportedProtos[i] {
			return false
		}
	}
	if len(a.ConnectionSpecs) != len(b.ConnectionSpecs) {
		return false
	}
	for i := range a.ConnectionSpecs {
		if !a.ConnectionSpecs[i].Equal(b.ConnectionSpecs[i]) {
			return false
		}
	}
	return true
}

func (a Address) IsHTTPS() bool { return a.Scheme == "https" }

// key returns a comparable identity for a, for use as a map key.
// Address itself holds slice fields (ConnectionSpecs, SupportedProtos)
// and so cannot be a map key directly; key() encodes the same fields
// Equal compares.
func (a Address) key() string {
	var b strings.Builder
	b.WriteString(a.Scheme)
	b.WriteByte('|')
	b.WriteString(a.Host)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(a.Port))
	b.WriteByte('|')
	b.WriteString(a.CertPinnerID)
	b.WriteByte('|')
	b.WriteString(a.ProxySelectorID)
	b.WriteByte('|')
	b.WriteString(a.DNSID)
	b.WriteByte('|')
	b.WriteString(strings.Join(a.SupportedProtos, ","))
	for _, spec := range a.ConnectionSpecs {
		b.WriteByte('|')
		b.WriteString(spec.Name)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(spec.MinTLS)))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(spec.MaxTLS)))
		for _, cs := range spec.CipherSuites {
			b.WriteByte(',')
			b.WriteString(strconv.Itoa(int(cs)))
		}
	}
	return b.String()
}
