// Package weburl provides URL validation shared by the citation registry and
// the HTTP fetcher. It rejects dangerous schemes and hosts in private or
// reserved address space (SSRF prevention).
package weburl

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// MaxURLLength caps accepted URLs.
const MaxURLLength = 2000

// Pre-compiled CIDRs for ranges the stdlib predicates miss.
var (
	cgnat    *net.IPNet // 100.64.0.0/10 carrier-grade NAT
	v6unique *net.IPNet // fc00::/7 IPv6 unique local
)

func init() {
	_, cgnat, _ = net.ParseCIDR("100.64.0.0/10")
	_, v6unique, _ = net.ParseCIDR("fc00::/7")
}

// Sanitize normalizes and validates a URL. It rejects non-http(s) schemes,
// dangerous schemes (javascript, data, vbscript, file), oversized URLs, and
// hosts in loopback, link-local, private, or reserved ranges. It returns
// the normalized URL and its hostname.
func Sanitize(rawURL string) (clean string, host string, err error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", "", fmt.Errorf("empty URL")
	}
	if len(rawURL) > MaxURLLength {
		return "", "", fmt.Errorf("URL exceeds %d characters", MaxURLLength)
	}

	lower := strings.ToLower(rawURL)
	for _, scheme := range []string{"javascript:", "data:", "vbscript:", "file:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", "", fmt.Errorf("dangerous scheme %q", strings.TrimSuffix(scheme, ":"))
		}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", fmt.Errorf("scheme must be http or https, got %q", parsed.Scheme)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return "", "", fmt.Errorf("URL has no host")
	}
	if err := ValidateHost(hostname); err != nil {
		return "", "", err
	}

	return parsed.String(), strings.ToLower(hostname), nil
}

// lookupIP is swapped out by tests to avoid real DNS.
var lookupIP = net.LookupIP

// ValidateHost rejects hostnames that are, or resolve into, private address
// space.
func ValidateHost(host string) error {
	lowHost := strings.ToLower(host)
	if lowHost == "localhost" || strings.HasSuffix(lowHost, ".localhost") {
		return fmt.Errorf("localhost is not allowed")
	}
	if strings.HasSuffix(lowHost, ".local") || strings.HasSuffix(lowHost, ".internal") {
		return fmt.Errorf("local domain %q is not allowed", lowHost)
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return fmt.Errorf("private or reserved IP %s is not allowed", ip)
		}
		return nil
	}

	// A public name pointing at private space is as dangerous as a literal
	// private IP. Resolution failures pass: an unresolvable host cannot be
	// fetched anyway, and DialControl re-checks the connect address.
	ips, err := lookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if IsPrivateIP(ip) {
			return fmt.Errorf("host %q resolves to private or reserved IP %s", lowHost, ip)
		}
	}
	return nil
}

// DialControl is a net.Dialer Control hook that re-validates the address a
// connection is actually made to, closing the DNS-rebinding window between
// hostname validation and connect.
func DialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid dial address %q: %w", address, err)
	}
	if ip := net.ParseIP(host); ip != nil && IsPrivateIP(ip) {
		return fmt.Errorf("connection to private or reserved IP %s refused", ip)
	}
	return nil
}

// IsPrivateIP reports whether an IP falls in loopback, private, link-local,
// CGNAT, or unique-local space. IPv6-mapped IPv4 addresses are unwrapped.
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
			return true
		}
	}
	return cgnat.Contains(ip) || v6unique.Contains(ip)
}
