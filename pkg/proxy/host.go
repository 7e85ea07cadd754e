package proxy

import (
	"context"
	"net"
	"slices"
	"strings"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// HostFunctions are the only host capabilities a PAC script can reach.
type HostFunctions interface {
	// DNSResolve returns the first IPv4 address of host.
	DNSResolve(ctx context.Context, host string) (string, bool)
	// MyIPAddress returns the primary non-loopback IPv4 address of this machine.
	MyIPAddress(ctx context.Context) string
}

// SystemHost implements HostFunctions with the system resolver and gopsutil interface data.
type SystemHost struct {
	Resolver *net.Resolver
}

// DNSResolve implements HostFunctions.
func (h SystemHost) DNSResolve(ctx context.Context, host string) (string, bool) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), true
		}
		return "", false
	}
	resolver := h.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", false
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String(), true
		}
	}
	return "", false
}

// MyIPAddress implements HostFunctions.
func (h SystemHost) MyIPAddress(ctx context.Context) string {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return "127.0.0.1"
	}
	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(strings.TrimSpace(addr.Addr))
			}
			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
				continue
			}
			if v4 := ip.To4(); v4 != nil {
				return v4.String()
			}
		}
	}
	return "127.0.0.1"
}
