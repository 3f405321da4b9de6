// Package urlguard validates user-supplied URLs before the fetch pipeline
// touches them. It normalizes the URL, pins the scheme to https, and rejects
// any host that is, or resolves to, private, loopback, or link-local address
// space, closing the obvious SSRF and DNS-rebinding holes.
package urlguard

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// Error codes.
const (
	CodeInvalidURL            = "INVALID_URL"
	CodeInvalidScheme         = "INVALID_SCHEME"
	CodeCredentialsNotAllowed = "CREDENTIALS_NOT_ALLOWED"
	CodePrivateIP             = "PRIVATE_IP"
	CodeDNSLookupFailed       = "DNS_LOOKUP_FAILED"
)

// Error is a guard rejection. All guard errors are client-fault and
// non-retryable.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code string, message string) *Error {
	return &Error{Code: code, Status: 400, Message: message}
}

// GuardedURL is a normalized URL that passed all checks.
type GuardedURL struct {
	URL  string
	Host string
}

// LookupFunc resolves a hostname to its addresses. Injectable for tests.
type LookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// Guard validates and normalizes untrusted URLs.
type Guard struct {
	lookup LookupFunc
}

// New creates a guard using the default resolver.
func New() *Guard {
	return &Guard{
		lookup: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, 0, len(addrs))
			for _, addr := range addrs {
				ips = append(ips, addr.IP)
			}
			return ips, nil
		},
	}
}

// NewWithLookup creates a guard with a custom resolver.
func NewWithLookup(lookup LookupFunc) *Guard {
	g := New()
	if lookup != nil {
		g.lookup = lookup
	}
	return g
}

// Normalize validates the raw input and returns the canonical URL string.
// A missing scheme defaults to https; fragments are stripped; the host is
// lowercased; non-https schemes and embedded credentials are rejected.
func (g *Guard) Normalize(input string) (*url.URL, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, newError(CodeInvalidURL, "url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, newError(CodeInvalidURL, "url is not parseable")
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return nil, newError(CodeInvalidScheme, "only https urls are allowed")
	}
	if parsed.User != nil {
		return nil, newError(CodeCredentialsNotAllowed, "urls with embedded credentials are not allowed")
	}
	if parsed.Hostname() == "" {
		return nil, newError(CodeInvalidURL, "url has no host")
	}

	parsed.Scheme = "https"
	parsed.Fragment = ""
	parsed.Host = strings.ToLower(parsed.Host)
	return parsed, nil
}

// AssertPublicHost rejects hostnames that are, or resolve to, non-public
// address space. Literal addresses are checked directly; hostnames are
// resolved and every returned address is checked, which also defends against
// DNS rebinding where a public-looking name resolves privately.
func (g *Guard) AssertPublicHost(ctx context.Context, hostname string) error {
	host := strings.ToLower(strings.TrimSpace(hostname))
	host = strings.Trim(host, "[]")

	if addr, err := netip.ParseAddr(host); err == nil {
		if !isPublicAddr(addr) {
			return newError(CodePrivateIP, "host resolves to a private or reserved address")
		}
		return nil
	}

	ips, err := g.lookup(ctx, host)
	if err != nil || len(ips) == 0 {
		return newError(CodeDNSLookupFailed, "hostname could not be resolved")
	}
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			return newError(CodeDNSLookupFailed, "hostname resolved to an invalid address")
		}
		if !isPublicAddr(addr) {
			return newError(CodePrivateIP, "host resolves to a private or reserved address")
		}
	}
	return nil
}

// GuardURL runs Normalize and AssertPublicHost and returns the guarded URL.
func (g *Guard) GuardURL(ctx context.Context, input string) (*GuardedURL, error) {
	parsed, err := g.Normalize(input)
	if err != nil {
		return nil, err
	}
	if err := g.AssertPublicHost(ctx, parsed.Hostname()); err != nil {
		return nil, err
	}
	return &GuardedURL{URL: parsed.String(), Host: parsed.Hostname()}, nil
}

func isPublicAddr(addr netip.Addr) bool {
	// Collapse IPv4-mapped IPv6 so ::ffff:127.0.0.1 hits the IPv4 rules.
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsPrivate() || addr.IsUnspecified() {
		return false
	}
	return true
}
