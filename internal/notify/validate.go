package notify

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateOption configures URL validation.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	allowPrivate bool
}

// AllowPrivateIPs disables the private address check. Intended for tests and
// closed-network deployments.
func AllowPrivateIPs() ValidateOption {
	return func(c *validateConfig) { c.allowPrivate = true }
}

// extraReserved covers reserved ranges the stdlib classifiers miss.
var extraReserved = []*net.IPNet{
	mustCIDR("100.64.0.0/10"), // shared address space (CGN)
	mustCIDR("192.0.0.0/24"),
	mustCIDR("192.0.2.0/24"), // TEST-NET-1
	mustCIDR("198.51.100.0/24"),
	mustCIDR("203.0.113.0/24"),
	mustCIDR("198.18.0.0/15"), // benchmarking
	mustCIDR("240.0.0.0/4"),
}

// ValidateURL checks that a URL is safe as a delivery target. Schemes other
// than http/https are rejected, and the hostname must not resolve to a
// private, loopback, or otherwise reserved address, which would open an SSRF
// hole through the delivery worker.
func ValidateURL(rawURL string, opts ...ValidateOption) error {
	var cfg validateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "https" && scheme != "http" {
		return fmt.Errorf("URL scheme %q not allowed; use http or https", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a hostname")
	}

	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("cannot resolve hostname %q: %w", host, err)
	}

	if cfg.allowPrivate {
		return nil
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if isReservedIP(ip) {
			return fmt.Errorf("URL resolves to private/reserved IP %s", ipStr)
		}
	}
	return nil
}

func isReservedIP(ip net.IP) bool {
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return true
	}
	if v4 := ip.To4(); v4 != nil && v4.Equal(net.IPv4bcast) {
		return true
	}
	for _, network := range extraReserved {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func mustCIDR(s string) *net.IPNet {
	_, network, err := net.ParseCIDR(s)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR %q: %v", s, err))
	}
	return network
}
