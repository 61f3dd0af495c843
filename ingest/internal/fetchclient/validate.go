package fetchclient

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrPrivateAddress is returned when a URL resolves to a private, loopback,
// or link-local address (covers cloud metadata endpoints).
var ErrPrivateAddress = errors.New("fetchclient: URL targets a private or loopback address")

// ErrUnsafeScheme is returned for non-HTTP(S) schemes.
var ErrUnsafeScheme = errors.New("fetchclient: only http and https schemes are allowed")

var blockedNets []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",     // RFC 1918
		"172.16.0.0/12",  // RFC 1918
		"192.168.0.0/16", // RFC 1918
		"127.0.0.0/8",    // loopback
		"169.254.0.0/16", // link-local, includes 169.254.169.254 metadata
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	} {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("fetchclient: bad builtin CIDR %s: %v", cidr, err))
		}
		blockedNets = append(blockedNets, n)
	}
}

// ValidateURL checks scheme, host presence, and that the host does not
// point at a blocked network. Hostnames are resolved so internal names
// can't sidestep the literal-IP check. DNS failures pass through: the
// fetch itself will surface them as ordinary network errors.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("fetchclient: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("fetchclient: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if blockedIP(ip) {
			return ErrPrivateAddress
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && blockedIP(ip) {
			return ErrPrivateAddress
		}
	}
	return nil
}

func blockedIP(ip net.IP) bool {
	for _, n := range blockedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
