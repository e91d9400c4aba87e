package ipld

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"sort"

	"github.com/ipfs/go-cid"
)

// linkTag is the CBOR tag number the DAG-CBOR spec reserves for CIDs.
const linkTag = 42

// EncodeDAGCBOR renders v in canonical DAG-CBOR: deterministic map key
// ordering, shortest-form integers, and 64-bit floats throughout, so that
// CID(v) is stable across any encode/decode round trip (§3 invariant).
//
// This codec is hand-written rather than routed through a generic CBOR
// library's "canonical mode": DAG-CBOR's determinism rules (map-key byte
// ordering, the mandatory 8-byte float width, the tag-42 link convention)
// are narrower and stricter than RFC 7049 canonical CBOR, and CID stability
// depends on getting them exactly right. See DESIGN.md.
func EncodeDAGCBOR(v Value) ([]byte, error) {
	var buf []byte
	var err error
	buf, err = appendValue(buf, v)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeDAGCBOR parses canonical (or merely well-formed) DAG-CBOR back into
// a Value.
func DecodeDAGCBOR(b []byte) (Value, error) {
	d := &decoder{buf: b}
	v, err := d.decodeValue()
	if err != nil {
		return Value{}, err
	}
	if d.pos != len(d.buf) {
		return Value{}, fmt.Errorf("ipld: %d trailing bytes after top-level DAG-CBOR value", len(d.buf)-d.pos)
	}
	return v, nil
}

func appendHead(buf []byte, major byte, n uint64) []byte {
	switch {
	case n < 24:
		return append(buf, major<<5|byte(n))
	case n <= 0xff:
		return append(buf, major<<5|24, byte(n))
	case n <= 0xffff:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		return append(append(buf, major<<5|25), b...)
	case n <= 0xffffffff:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n))
		return append(append(buf, major<<5|26), b...)
	default:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, n)
		return append(append(buf, major<<5|27), b...)
	}
}

func appendValue(buf []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, 0xf6), nil
	case KindBool:
		if v.boolVal {
			return append(buf, 0xf5), nil
		}
		return append(buf, 0xf4), nil
	case KindInt:
		return appendBigInt(buf, v.intVal), nil
	case KindFloat:
		buf = append(buf, 0xfb)
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, math.Float64bits(v.floatVal))
		return append(buf, b...), nil
	case KindString:
		buf = appendHead(buf, 3, uint64(len(v.strVal)))
		return append(buf, v.strVal...), nil
	case KindBytes:
		buf = appendHead(buf, 2, uint64(len(v.bytesVal)))
		return append(buf, v.bytesVal...), nil
	case KindList:
		buf = appendHead(buf, 4, uint64(len(v.listVal)))
		for _, elem := range v.listVal {
			var err error
			buf, err = appendValue(buf, elem)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KindMap:
		return appendMap(buf, v.mapVal)
	case KindLink:
		return appendLink(buf, v.linkVal)
	default:
		return nil, fmt.Errorf("ipld: cannot encode value of unknown kind %d", v.kind)
	}
}

func appendBigInt(buf []byte, n *big.Int) []byte {
	if n.Sign() >= 0 {
		if n.IsUint64() {
			return appendHead(buf, 0, n.Uint64())
		}
		buf = appendHead(buf, 6, 2)
		mag := n.Bytes()
		buf = appendHead(buf, 2, uint64(len(mag)))
		return append(buf, mag...)
	}
	// major type 1 encodes -(1+n)
	m := new(big.Int).Neg(n)
	m.Sub(m, big.NewInt(1))
	if m.IsUint64() {
		return appendHead(buf, 1, m.Uint64())
	}
	buf = appendHead(buf, 6, 3)
	mag := m.Bytes()
	buf = appendHead(buf, 2, uint64(len(mag)))
	return append(buf, mag...)
}

func appendLink(buf []byte, c cid.Cid) ([]byte, error) {
	if !c.Defined() {
		return nil, fmt.Errorf("ipld: cannot encode an undefined link")
	}
	raw := c.Bytes()
	content := make([]byte, 0, len(raw)+1)
	content = append(content, 0x00) // identity multibase prefix
	content = append(content, raw...)
	buf = appendHead(buf, 6, linkTag)
	buf = appendHead(buf, 2, uint64(len(content)))
	return append(buf, content...), nil
}

// appendMap sorts fields by the bytewise order of their encoded keys, the
// deterministic ordering DAG-CBOR requires.
func appendMap(buf []byte, m map[string]Value) ([]byte, error) {
	type field struct {
		encodedKey []byte
		val        Value
	}
	fields := make([]field, 0, len(m))
	for k, v := range m {
		ek := appendHead(nil, 3, uint64(len(k)))
		ek = append(ek, k...)
		fields = append(fields, field{encodedKey: ek, val: v})
	}
	sort.Slice(fields, func(i, j int) bool {
		a, b := fields[i].encodedKey, fields[j].encodedKey
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})

	buf = appendHead(buf, 5, uint64(len(fields)))
	for _, f := range fields {
		buf = append(buf, f.encodedKey...)
		var err error
		buf, err = appendValue(buf, f.val)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readBytes(n uint64) ([]byte, error) {
	if n > uint64(len(d.buf)-d.pos) {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}

func (d *decoder) readHead() (major byte, ai byte, arg uint64, err error) {
	b, err := d.readByte()
	if err != nil {
		return 0, 0, 0, err
	}
	major = b >> 5
	ai = b & 0x1f
	switch {
	case ai < 24:
		arg = uint64(ai)
	case ai == 24:
		b, err := d.readByte()
		if err != nil {
			return 0, 0, 0, err
		}
		arg = uint64(b)
	case ai == 25:
		b, err := d.readBytes(2)
		if err != nil {
			return 0, 0, 0, err
		}
		arg = uint64(binary.BigEndian.Uint16(b))
	case ai == 26:
		b, err := d.readBytes(4)
		if err != nil {
			return 0, 0, 0, err
		}
		arg = uint64(binary.BigEndian.Uint32(b))
	case ai == 27:
		b, err := d.readBytes(8)
		if err != nil {
			return 0, 0, 0, err
		}
		arg = binary.BigEndian.Uint64(b)
	default:
		return 0, 0, 0, fmt.Errorf("ipld: indefinite-length or reserved CBOR items are not valid DAG-CBOR")
	}
	return major, ai, arg, nil
}

func (d *decoder) decodeValue() (Value, error) {
	major, ai, arg, err := d.readHead()
	if err != nil {
		return Value{}, err
	}
	switch major {
	case 0:
		return IntBig(new(big.Int).SetUint64(arg)), nil
	case 1:
		n := new(big.Int).SetUint64(arg)
		n.Add(n, big.NewInt(1))
		n.Neg(n)
		return IntBig(n), nil
	case 2:
		b, err := d.readBytes(arg)
		if err != nil {
			return Value{}, err
		}
		return Bytes(b), nil
	case 3:
		b, err := d.readBytes(arg)
		if err != nil {
			return Value{}, err
		}
		return String(string(b)), nil
	case 4:
		items := make([]Value, 0, arg)
		for i := uint64(0); i < arg; i++ {
			elem, err := d.decodeValue()
			if err != nil {
				return Value{}, err
			}
			items = append(items, elem)
		}
		return List(items...), nil
	case 5:
		m := make(map[string]Value, arg)
		for i := uint64(0); i < arg; i++ {
			keyMajor, _, keyArg, err := d.readHead()
			if err != nil {
				return Value{}, err
			}
			if keyMajor != 3 {
				return Value{}, fmt.Errorf("ipld: map keys must be text strings")
			}
			kb, err := d.readBytes(keyArg)
			if err != nil {
				return Value{}, err
			}
			val, err := d.decodeValue()
			if err != nil {
				return Value{}, err
			}
			m[string(kb)] = val
		}
		return Map(m), nil
	case 6:
		return d.decodeTagged(arg)
	case 7:
		return d.decodeSimple(ai, arg)
	default:
		return Value{}, fmt.Errorf("ipld: unsupported CBOR major type %d", major)
	}
}

func (d *decoder) decodeTagged(tag uint64) (Value, error) {
	switch tag {
	case linkTag:
		inner, err := d.decodeValue()
		if err != nil {
			return Value{}, err
		}
		raw, ok := inner.AsBytes()
		if !ok || len(raw) == 0 || raw[0] != 0x00 {
			return Value{}, fmt.Errorf("ipld: malformed CID link (missing identity multibase prefix)")
		}
		c, err := cid.Cast(raw[1:])
		if err != nil {
			return Value{}, fmt.Errorf("ipld: malformed CID link: %w", err)
		}
		return Link(c), nil
	case 2, 3:
		inner, err := d.decodeValue()
		if err != nil {
			return Value{}, err
		}
		raw, ok := inner.AsBytes()
		if !ok {
			return Value{}, fmt.Errorf("ipld: malformed bignum")
		}
		n := new(big.Int).SetBytes(raw)
		if tag == 3 {
			n.Add(n, big.NewInt(1))
			n.Neg(n)
		}
		return IntBig(n), nil
	default:
		return Value{}, fmt.Errorf("ipld: unsupported CBOR tag %d", tag)
	}
}

func (d *decoder) decodeSimple(ai byte, arg uint64) (Value, error) {
	switch ai {
	case 20:
		return Bool(false), nil
	case 21:
		return Bool(true), nil
	case 22:
		return Null(), nil
	case 25:
		return Float(float64(halfToFloat32(uint16(arg)))), nil
	case 26:
		return Float(float64(math.Float32frombits(uint32(arg)))), nil
	case 27:
		return Float(math.Float64frombits(arg)), nil
	default:
		return Value{}, fmt.Errorf("ipld: unsupported CBOR simple value (additional info %d)", ai)
	}
}

// halfToFloat32 decodes an IEEE 754 binary16 value. DAG-CBOR never emits
// half-precision floats, but a decoder should still be lenient on input.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := int32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	var bits uint32
	switch exp {
	case 0:
		if frac == 0 {
			bits = sign << 31
		} else {
			// subnormal
			for frac&0x400 == 0 {
				frac <<= 1
				exp--
			}
			exp++
			frac &= 0x3ff
			bits = (sign << 31) | (uint32(exp+112) << 23) | (frac << 13)
		}
	case 0x1f:
		bits = (sign << 31) | (0xff << 23) | (frac << 13)
	default:
		bits = (sign << 31) | (uint32(exp+112) << 23) | (frac << 13)
	}
	return math.Float32frombits(bits)
}
