// Package xlog supplies zerolog field helpers for the CID- and
// peer-id-shaped identifiers that recur across this codebase, mirroring
// utils/logging's id-to-hex helpers in the teacher repository.
package xlog

import (
	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
)

// CIDStr renders a CID (or the zero value) as its textual form for logging.
func CIDStr(c cid.Cid) string {
	if !c.Defined() {
		return "<undefined>"
	}
	return c.String()
}

// CIDs renders a slice of CIDs as their textual forms.
func CIDs(cs []cid.Cid) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, CIDStr(c))
	}
	return out
}

// WithCID returns e with field key set to c's textual form.
func WithCID(e *zerolog.Event, key string, c cid.Cid) *zerolog.Event {
	return e.Str(key, CIDStr(c))
}

// WithPeer returns e with field key set to p's textual form.
func WithPeer(e *zerolog.Event, key string, p peer.ID) *zerolog.Event {
	return e.Str(key, p.String())
}
