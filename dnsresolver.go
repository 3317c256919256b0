package transport

import (
	"context"
	"net"
)

// SystemDNS resolves hostnames via net.DefaultResolver (spec §6's DNS
// collaborator; "the TLS library itself" and DNS resolution are kept out
// of the core's decision-making, reached only through this contract).
type SystemDNS struct {
	Resolver *net.Resolver
}

func NewSystemDNS() *SystemDNS {
	return &SystemDNS{Resolver: net.DefaultResolver}
}

func (d *SystemDNS) Lookup(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}
