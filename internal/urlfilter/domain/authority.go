package domain

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// ErrMalformedAuthority is returned when an authority string cannot be
// decomposed into a shard key. Classification treats it as fail-closed.
var ErrMalformedAuthority = errors.New("malformed authority")

// ShardKey identifies one rule shard: the parent domain plus port,
// e.g. "cisco.com:443". It is the unit of caching and admin mutation.
type ShardKey string

// hostProfile normalizes hosts like a DNS lookup but without STD3 label
// strictness: mirrored traffic carries underscored hosts (_dmarc,
// _domainkey) that must key consistently rather than fail closed.
var hostProfile = idna.New(idna.MapForLookup(), idna.StrictDomainName(false))

func (k ShardKey) String() string { return string(k) }

// ParseAuthority decomposes a "host:port" authority into its shard key and
// the subdomain segments beneath the parent domain. Segments are ordered
// from the label adjacent to the parent domain outward, so walking them in
// order descends the subdomain tree: "www.badguys.cisco.com:443" yields
// ("cisco.com:443", ["badguys", "www"]).
//
// Pure function. Hosts are normalized to lowercase ASCII (punycode) before
// splitting, so unicode authorities key consistently.
func ParseAuthority(authority string) (ShardKey, []string, error) {
	host, port, err := net.SplitHostPort(authority)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %q", ErrMalformedAuthority, authority)
	}
	if !validPort(port) {
		return "", nil, fmt.Errorf("%w: invalid port %q", ErrMalformedAuthority, port)
	}

	ascii, err := hostProfile.ToASCII(strings.ToLower(strings.TrimSuffix(host, ".")))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %q: %v", ErrMalformedAuthority, host, err)
	}

	labels := strings.Split(ascii, ".")
	if len(labels) < 2 {
		return "", nil, fmt.Errorf("%w: host %q has fewer than two labels", ErrMalformedAuthority, host)
	}
	for _, l := range labels {
		if l == "" {
			return "", nil, fmt.Errorf("%w: host %q has an empty label", ErrMalformedAuthority, host)
		}
	}

	parent := labels[len(labels)-2] + "." + labels[len(labels)-1]
	key := ShardKey(parent + ":" + port)

	// Remaining labels reversed: innermost (closest to parent) first.
	rest := labels[:len(labels)-2]
	subs := make([]string, 0, len(rest))
	for i := len(rest) - 1; i >= 0; i-- {
		subs = append(subs, rest[i])
	}
	return key, subs, nil
}

func validPort(port string) bool {
	n, err := strconv.ParseUint(port, 10, 16)
	return err == nil && n > 0
}

// SplitPathSegments splits a URL path into trie segments, dropping empty
// segments so "/a//b/" and "/a/b" address the same node. A root or empty
// path yields no segments.
func SplitPathSegments(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
