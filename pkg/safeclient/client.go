// Package safeclient provides an HTTP client with SSRF protection, used
// for fetching remote thumbnail images referenced by untrusted metadata.
package safeclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrForbiddenIP is returned when a connection would reach a private or
// otherwise internal IP range.
var ErrForbiddenIP = errors.New("connection to private/internal IP addresses is forbidden")

// forbiddenCIDRs are the ranges blocked at dial time. Checking at the
// dialer level (not just at URL parse time) defeats DNS rebinding.
var forbiddenCIDRs = []string{
	// IPv4 private, loopback, link-local, CGN, "this" network
	"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16",
	"127.0.0.0/8", "169.254.0.0/16", "100.64.0.0/10", "0.0.0.0/8",
	// IPv4 multicast, broadcast, documentation nets
	"224.0.0.0/4", "255.255.255.255/32",
	"192.0.2.0/24", "198.51.100.0/24", "203.0.113.0/24",
	// IPv6 loopback, unspecified, ULA, link/site-local, multicast, docs
	"::1/128", "::/128", "fc00::/7", "fe80::/10", "fec0::/10",
	"ff00::/8", "2001:db8::/32",
}

var forbiddenNets = mustParseCIDRs(forbiddenCIDRs)

func mustParseCIDRs(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("safeclient: bad CIDR %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// IsForbiddenIP reports whether the IP falls in a blocked range.
func IsForbiddenIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	// Unwrap IPv4-mapped IPv6 addresses before matching.
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, n := range forbiddenNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// safeDialer validates the resolved IP right before connecting.
func safeDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control: func(network, address string, c syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return fmt.Errorf("failed to parse address: %w", err)
			}
			ip := net.ParseIP(host)
			if ip == nil {
				return fmt.Errorf("invalid IP address: %s", host)
			}
			if IsForbiddenIP(ip) {
				return ErrForbiddenIP
			}
			return nil
		},
	}
}

// New creates an HTTP client with SSRF protection and the given overall
// request timeout.
func New(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext:           safeDialer().DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// Get performs a GET request with SSRF protection.
func Get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return client.Do(req)
}
