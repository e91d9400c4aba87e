package invocation

import (
	"encoding/base32"
	"fmt"
)

// base32hexLower is the lowercase, unpadded base32hex alphabet the RPC
// boundary accepts for legacy nonce encodings (§6, Open Question).
var base32hexLower = base32.NewEncoding("0123456789abcdefghijklmnopqrstuv").WithPadding(base32.NoPadding)

// NormalizeNonce accepts the three equivalent nonce encodings named in §6
// (empty string, base32hex-lower string, or raw bytes) and returns the
// normalized byte form, rejecting anything that isn't 0, 12, or 16 bytes
// once decoded, per the Open Question's resolution.
func NormalizeNonce(raw interface{}) ([]byte, error) {
	var b []byte
	switch v := raw.(type) {
	case nil:
		b = nil
	case []byte:
		b = v
	case string:
		if v == "" {
			b = nil
		} else {
			decoded, err := base32hexLower.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("invocation: nonce %q is not valid base32hex-lower: %w", v, err)
			}
			b = decoded
		}
	default:
		return nil, fmt.Errorf("invocation: unsupported nonce encoding of type %T", raw)
	}

	switch len(b) {
	case 0, 12, 16:
		return b, nil
	default:
		return nil, fmt.Errorf("invocation: nonce must be 0, 12, or 16 bytes, got %d", len(b))
	}
}

// EncodeNonce renders bytes back to the canonical base32hex-lower string
// form used when a nonce needs to travel through a text field.
func EncodeNonce(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base32hexLower.EncodeToString(b)
}
