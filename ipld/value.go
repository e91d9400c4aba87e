// Package ipld implements the recursive, self-describing IPLD value model
// used throughout homestar: Null, Bool, Integer (i128-range), Float,
// String, Bytes, List, Map, and Link (CID). Values are canonically
// encodable as DAG-CBOR (binary, used for CID computation) and DAG-JSON
// (human-readable, used at the RPC boundary).
package ipld

import (
	"fmt"
	"math/big"

	"github.com/ipfs/go-cid"
)

// Kind enumerates the IPLD value classes.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// Value is the recursive IPLD sum type. The zero Value is Null.
type Value struct {
	kind Kind

	boolVal  bool
	intVal   *big.Int
	floatVal float64
	strVal   string
	bytesVal []byte
	listVal  []Value
	mapVal   map[string]Value
	linkVal  cid.Cid
}

// Null returns the IPLD null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, boolVal: b} }

// Int wraps a native int64 into an IPLD Integer.
func Int(i int64) Value { return Value{kind: KindInt, intVal: big.NewInt(i)} }

// IntBig wraps an arbitrary-precision integer, as required for the
// i128-range integers named in the data model.
func IntBig(i *big.Int) Value { return Value{kind: KindInt, intVal: new(big.Int).Set(i)} }

// Float wraps a float64.
func Float(f float64) Value { return Value{kind: KindFloat, floatVal: f} }

// String wraps a UTF-8 string.
func String(s string) Value { return Value{kind: KindString, strVal: s} }

// Bytes wraps a byte string.
func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bytesVal: cp}
}

// List wraps an ordered sequence of values.
func List(vs ...Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: KindList, listVal: cp}
}

// Map wraps a string-keyed map of values. The caller's map is copied.
func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, mapVal: cp}
}

// Link wraps a CID reference to another IPLD value.
func Link(c cid.Cid) Value { return Value{kind: KindLink, linkVal: c} }

// Kind reports the value's class.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload and whether v is a Bool.
func (v Value) AsBool() (bool, bool) { return v.boolVal, v.kind == KindBool }

// AsInt returns the integer payload and whether v is an Integer.
func (v Value) AsInt() (*big.Int, bool) {
	if v.kind != KindInt {
		return nil, false
	}
	return v.intVal, true
}

// AsFloat returns the float payload and whether v is a Float.
func (v Value) AsFloat() (float64, bool) { return v.floatVal, v.kind == KindFloat }

// AsString returns the string payload and whether v is a String.
func (v Value) AsString() (string, bool) { return v.strVal, v.kind == KindString }

// AsBytes returns the byte payload and whether v is Bytes.
func (v Value) AsBytes() ([]byte, bool) { return v.bytesVal, v.kind == KindBytes }

// AsList returns the element slice and whether v is a List.
func (v Value) AsList() ([]Value, bool) { return v.listVal, v.kind == KindList }

// AsMap returns the field map and whether v is a Map.
func (v Value) AsMap() (map[string]Value, bool) { return v.mapVal, v.kind == KindMap }

// AsLink returns the CID payload and whether v is a Link.
func (v Value) AsLink() (cid.Cid, bool) { return v.linkVal, v.kind == KindLink }

// Equal reports deep, kind-sensitive equality between v and other.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolVal == other.boolVal
	case KindInt:
		return v.intVal.Cmp(other.intVal) == 0
	case KindFloat:
		return v.floatVal == other.floatVal
	case KindString:
		return v.strVal == other.strVal
	case KindBytes:
		if len(v.bytesVal) != len(other.bytesVal) {
			return false
		}
		for i := range v.bytesVal {
			if v.bytesVal[i] != other.bytesVal[i] {
				return false
			}
		}
		return true
	case KindList:
		if len(v.listVal) != len(other.listVal) {
			return false
		}
		for i := range v.listVal {
			if !v.listVal[i].Equal(other.listVal[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.mapVal) != len(other.mapVal) {
			return false
		}
		for k, mv := range v.mapVal {
			ov, ok := other.mapVal[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	case KindLink:
		return v.linkVal.Equals(other.linkVal)
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.boolVal)
	case KindInt:
		return v.intVal.String()
	case KindFloat:
		return fmt.Sprintf("%v", v.floatVal)
	case KindString:
		return fmt.Sprintf("%q", v.strVal)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bytesVal))
	case KindList:
		return fmt.Sprintf("list(%d)", len(v.listVal))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.mapVal))
	case KindLink:
		return v.linkVal.String()
	default:
		return "<invalid>"
	}
}
