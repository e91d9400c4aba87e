// Package invocation implements the instruction-receipt data model: the
// content-addressed fingerprint that memoizes execution (§3, §4.3).
package invocation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ipfs/go-cid"

	"github.com/ipvm-wg/homestar/ipld"
)

// Scheme names the transport a Resource is fetched over.
type Scheme string

const (
	SchemeIPFS  Scheme = "ipfs"
	SchemeHTTPS Scheme = "https"
)

// Resource names a Wasm component by URI. Only ipfs:// and https:// schemes
// are recognized (§3).
type Resource struct {
	raw    string
	scheme Scheme
}

// ParseResource validates and wraps a resource URI.
func ParseResource(raw string) (Resource, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Resource{}, fmt.Errorf("invocation: invalid resource URI %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case string(SchemeIPFS):
		return Resource{raw: raw, scheme: SchemeIPFS}, nil
	case string(SchemeHTTPS):
		return Resource{raw: raw, scheme: SchemeHTTPS}, nil
	default:
		return Resource{}, fmt.Errorf("invocation: unsupported resource scheme %q (want ipfs or https)", u.Scheme)
	}
}

// Scheme reports the resource's transport scheme.
func (r Resource) Scheme() Scheme { return r.scheme }

// String returns the resource's raw URI.
func (r Resource) String() string { return r.raw }

// CID extracts the CID named by an ipfs:// resource, if any.
func (r Resource) CID() (cid.Cid, bool) {
	if r.scheme != SchemeIPFS {
		return cid.Undef, false
	}
	rest := strings.TrimPrefix(r.raw, "ipfs://")
	rest = strings.TrimPrefix(rest, "/ipfs/")
	c, err := cid.Decode(rest)
	if err != nil {
		return cid.Undef, false
	}
	return c, true
}

// ToIPLD renders the resource as its wire form: a plain string.
func (r Resource) ToIPLD() ipld.Value { return ipld.String(r.raw) }

// ResourceFromIPLD parses a Resource out of its wire string form.
func ResourceFromIPLD(v ipld.Value) (Resource, error) {
	s, ok := v.AsString()
	if !ok {
		return Resource{}, fmt.Errorf("invocation: resource must be a string, got %s", v.Kind())
	}
	return ParseResource(s)
}
