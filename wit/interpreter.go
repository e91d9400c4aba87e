package wit

import (
	"encoding/base32"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/ipvm-wg/homestar/ipld"
)

// base32hexLower mirrors invocation.NormalizeNonce's text encoding for
// byte strings crossing a text boundary, so `list<u8>` accepts the same
// base-encoded string convention nonces do (§4.1, "base-encoded").
var base32hexLower = base32.NewEncoding("0123456789abcdefghijklmnopqrstuv").WithPadding(base32.NoPadding)

type intBoundsPair struct {
	lo *big.Int
	hi *big.Int
}

var (
	boundsU8  = bounds(0, 0xff)
	boundsU16 = bounds(0, 0xffff)
	boundsU32 = bounds(0, 0xffffffff)
	boundsU64 = boundsUint64()
	boundsS8  = bounds(-0x80, 0x7f)
	boundsS16 = bounds(-0x8000, 0x7fff)
	boundsS32 = bounds(-0x80000000, 0x7fffffff)
	boundsS64 = boundsInt64()
)

func bounds(lo, hi int64) intBoundsPair {
	return intBoundsPair{big.NewInt(lo), big.NewInt(hi)}
}

func boundsUint64() intBoundsPair {
	max := new(big.Int).SetUint64(^uint64(0))
	return intBoundsPair{big.NewInt(0), max}
}

func boundsInt64() intBoundsPair {
	return intBoundsPair{big.NewInt(-1 << 63), big.NewInt(1<<63 - 1)}
}

func intBoundsFor(k Kind) (*big.Int, *big.Int) {
	switch k {
	case KindU8:
		return boundsU8.lo, boundsU8.hi
	case KindU16:
		return boundsU16.lo, boundsU16.hi
	case KindU32:
		return boundsU32.lo, boundsU32.hi
	case KindU64:
		return boundsU64.lo, boundsU64.hi
	case KindS8:
		return boundsS8.lo, boundsS8.hi
	case KindS16:
		return boundsS16.lo, boundsS16.hi
	case KindS32:
		return boundsS32.lo, boundsS32.hi
	case KindS64:
		return boundsS64.lo, boundsS64.hi
	default:
		return nil, nil
	}
}

// ToWIT translates v into the WIT runtime value expected by t, per the
// forward contract of §4.1. The returned error, if any, is a *wit.Error
// annotated with the IPLD path at which translation failed.
func ToWIT(t Type, v ipld.Value) (Value, error) {
	return toWIT(t, v, nil)
}

func toWIT(t Type, v ipld.Value, path Path) (Value, error) {
	switch t.Kind {
	case KindBool:
		b, ok := v.AsBool()
		if !ok {
			return Value{}, newErr(TypeMismatch, path, "expected bool, got %s", v.Kind())
		}
		return VBool(b), nil

	case KindU8, KindU16, KindU32, KindU64, KindS8, KindS16, KindS32, KindS64:
		n, ok := v.AsInt()
		if !ok {
			return Value{}, newErr(TypeMismatch, path, "expected integer, got %s", v.Kind())
		}
		lo, hi := intBoundsFor(t.Kind)
		if n.Cmp(lo) < 0 || n.Cmp(hi) > 0 {
			return Value{}, newErr(RangeOverflow, path, "%s does not fit %s", n, t.Kind)
		}
		return intToWIT(t.Kind, n), nil

	case KindFloat32, KindFloat64:
		var f float64
		if fv, ok := v.AsFloat(); ok {
			f = fv
		} else if n, ok := v.AsInt(); ok {
			bf := new(big.Float).SetInt(n)
			f, _ = bf.Float64()
		} else {
			return Value{}, newErr(TypeMismatch, path, "expected float or integer, got %s", v.Kind())
		}
		if t.Kind == KindFloat32 {
			return VFloat32(float32(f)), nil
		}
		return VFloat64(f), nil

	case KindChar:
		s, ok := v.AsString()
		if !ok {
			return Value{}, newErr(TypeMismatch, path, "expected single-rune string, got %s", v.Kind())
		}
		if utf8.RuneCountInString(s) != 1 {
			return Value{}, newErr(TypeMismatch, path, "expected exactly one rune, got %d", utf8.RuneCountInString(s))
		}
		r, _ := utf8.DecodeRuneInString(s)
		return VChar(r), nil

	case KindString:
		switch v.Kind() {
		case ipld.KindString:
			s, _ := v.AsString()
			return VString(s), nil
		case ipld.KindBytes:
			b, _ := v.AsBytes()
			return VString(string(b)), nil
		case ipld.KindNull:
			return VString("null"), nil
		case ipld.KindLink:
			c, _ := v.AsLink()
			return VString(c.String()), nil
		default:
			return Value{}, newErr(TypeMismatch, path, "expected string, bytes, null, or link, got %s", v.Kind())
		}

	case KindList:
		if t.Elem.Kind == KindU8 {
			b, err := bytesFromIPLD(v, path)
			if err != nil {
				return Value{}, err
			}
			elems := make([]Value, len(b))
			for i, by := range b {
				elems[i] = VU8(by)
			}
			return VList(elems...), nil
		}
		list, ok := v.AsList()
		if !ok {
			return Value{}, newErr(TypeMismatch, path, "expected list, got %s", v.Kind())
		}
		out := make([]Value, len(list))
		for i, item := range list {
			wv, err := toWIT(*t.Elem, item, path.index(i))
			if err != nil {
				return Value{}, err
			}
			out[i] = wv
		}
		return VList(out...), nil

	case KindTuple:
		list, ok := v.AsList()
		if !ok {
			return Value{}, newErr(TypeMismatch, path, "expected list for tuple, got %s", v.Kind())
		}
		if len(list) != len(t.Tuple) {
			return Value{}, newErr(ArityMismatch, path, "tuple wants %d elements, got %d", len(t.Tuple), len(list))
		}
		out := make([]Value, len(list))
		for i, item := range list {
			wv, err := toWIT(t.Tuple[i], item, path.index(i))
			if err != nil {
				return Value{}, err
			}
			out[i] = wv
		}
		return VTuple(out...), nil

	case KindRecord:
		m, ok := v.AsMap()
		if !ok {
			return Value{}, newErr(TypeMismatch, path, "expected map for record, got %s", v.Kind())
		}
		if len(m) != len(t.Fields) {
			return Value{}, newErr(ArityMismatch, path, "record wants %d fields, got %d", len(t.Fields), len(m))
		}
		out := make(map[string]Value, len(t.Fields))
		for _, f := range t.Fields {
			fv, ok := m[f.Name]
			if !ok {
				return Value{}, newErr(TypeMismatch, path, "record missing field %q", f.Name)
			}
			wv, err := toWIT(f.Type, fv, path.field(f.Name))
			if err != nil {
				return Value{}, err
			}
			out[f.Name] = wv
		}
		return VRecord(out), nil

	case KindVariant:
		m, ok := v.AsMap()
		if !ok || len(m) != 1 {
			return Value{}, newErr(TypeMismatch, path, "expected single-key map for variant, got %s", v.Kind())
		}
		for k, inner := range m {
			c := findCase(t.Cases, k)
			if c == nil {
				return Value{}, newErr(UnknownVariantCase, path, "unknown variant case %q", k)
			}
			cp := path.field(k)
			if c.Payload == nil {
				if !inner.IsNull() {
					return Value{}, newErr(TypeMismatch, cp, "case %q takes no payload", k)
				}
				return VVariant(k, nil), nil
			}
			wv, err := toWIT(*c.Payload, inner, cp)
			if err != nil {
				return Value{}, err
			}
			return VVariant(k, &wv), nil
		}
		panic("unreachable")

	case KindEnum:
		s, ok := v.AsString()
		if !ok {
			return Value{}, newErr(TypeMismatch, path, "expected string for enum, got %s", v.Kind())
		}
		found := false
		for _, n := range t.Names {
			if n == s {
				found = true
				break
			}
		}
		if !found {
			return Value{}, newErr(UnknownVariantCase, path, "unknown enum case %q", s)
		}
		return VEnum(s), nil

	case KindFlags:
		list, ok := v.AsList()
		if !ok {
			return Value{}, newErr(TypeMismatch, path, "expected list for flags, got %s", v.Kind())
		}
		names := make([]string, len(list))
		for i, item := range list {
			s, ok := item.AsString()
			if !ok {
				return Value{}, newErr(TypeMismatch, path.index(i), "expected string flag, got %s", item.Kind())
			}
			if !containsName(t.Names, s) {
				return Value{}, newErr(UnknownVariantCase, path.index(i), "unknown flag %q", s)
			}
			names[i] = s
		}
		return VFlags(names...), nil

	case KindOption:
		if v.IsNull() {
			return VOption(nil), nil
		}
		wv, err := toWIT(*t.Elem, v, path)
		if err != nil {
			return Value{}, err
		}
		return VOption(&wv), nil

	case KindResult:
		return resultToWIT(t, v, path)

	default:
		return Value{}, newErr(TypeMismatch, path, "unsupported target kind %s", t.Kind)
	}
}

func resultToWIT(t Type, v ipld.Value, path Path) (Value, error) {
	list, ok := v.AsList()
	if !ok || len(list) != 2 {
		return Value{}, newErr(ArityMismatch, path, "result must be a 2-list, got %s", v.Kind())
	}
	a, b := list[0], list[1]
	aFilled, bFilled := !a.IsNull(), !b.IsNull()

	if aFilled {
		if t.Ok != nil {
			wv, err := toWIT(*t.Ok, a, path.index(0))
			if err != nil {
				return Value{}, err
			}
			return VOk(&wv), nil
		}
		return VOk(nil), nil
	}
	if bFilled {
		if t.Err != nil {
			wv, err := toWIT(*t.Err, b, path.index(1))
			if err != nil {
				return Value{}, err
			}
			return VErr(&wv), nil
		}
		return VErr(nil), nil
	}
	return Value{}, newErr(AmbiguousResult, path, "both sides of result are null")
}

func bytesFromIPLD(v ipld.Value, path Path) ([]byte, error) {
	switch v.Kind() {
	case ipld.KindBytes:
		b, _ := v.AsBytes()
		return b, nil
	case ipld.KindString:
		s, _ := v.AsString()
		b, err := base32hexLower.DecodeString(s)
		if err != nil {
			return nil, newErr(TypeMismatch, path, "not valid base32hex-lower: %v", err)
		}
		return b, nil
	case ipld.KindList:
		list, _ := v.AsList()
		out := make([]byte, len(list))
		for i, item := range list {
			n, ok := item.AsInt()
			if !ok || n.Sign() < 0 || n.Cmp(big.NewInt(0xff)) > 0 {
				return nil, newErr(RangeOverflow, path.index(i), "byte out of range")
			}
			out[i] = byte(n.Uint64())
		}
		return out, nil
	default:
		return nil, newErr(TypeMismatch, path, "expected bytes, string, or list<u8>, got %s", v.Kind())
	}
}

func intToWIT(k Kind, n *big.Int) Value {
	switch k {
	case KindU8:
		return VU8(uint8(n.Uint64()))
	case KindU16:
		return VU16(uint16(n.Uint64()))
	case KindU32:
		return VU32(uint32(n.Uint64()))
	case KindU64:
		return VU64(n.Uint64())
	case KindS8:
		return VS8(int8(n.Int64()))
	case KindS16:
		return VS16(int16(n.Int64()))
	case KindS32:
		return VS32(int32(n.Int64()))
	case KindS64:
		return VS64(n.Int64())
	default:
		panic(fmt.Sprintf("wit: intToWIT called with non-integer kind %s", k))
	}
}

func findCase(cases []Case, name string) *Case {
	for i := range cases {
		if cases[i].Name == name {
			return &cases[i]
		}
	}
	return nil
}

func containsName(names []string, s string) bool {
	for _, n := range names {
		if n == s {
			return true
		}
	}
	return false
}

// FromWIT translates a WIT runtime value of type t back into IPLD, per the
// reverse contract of §4.1. The conversions are deliberately asymmetric to
// ToWIT in the ways §4.1 documents: list<u8> always returns as Bytes, a
// string always returns as String even if it looks like a CID, and result
// unit sides that are "occupied" use the integer sentinel 1.
func FromWIT(t Type, wv Value) (ipld.Value, error) {
	return fromWIT(t, wv, nil)
}

func fromWIT(t Type, wv Value, path Path) (ipld.Value, error) {
	switch t.Kind {
	case KindBool:
		b, ok := wv.Bool()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected bool WIT value")
		}
		return ipld.Bool(b), nil

	case KindU8, KindU16, KindU32, KindU64:
		u, ok := wv.Uint()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected unsigned WIT value")
		}
		return ipld.IntBig(new(big.Int).SetUint64(u)), nil

	case KindS8, KindS16, KindS32, KindS64:
		i, ok := wv.Int()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected signed WIT value")
		}
		return ipld.Int(i), nil

	case KindFloat32:
		f, ok := wv.Float32()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected float32 WIT value")
		}
		return ipld.Float(float64(f)), nil

	case KindFloat64:
		f, ok := wv.Float64()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected float64 WIT value")
		}
		return ipld.Float(f), nil

	case KindChar:
		r, ok := wv.Char()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected char WIT value")
		}
		return ipld.String(string(r)), nil

	case KindString:
		s, ok := wv.String()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected string WIT value")
		}
		return ipld.String(s), nil

	case KindList:
		if t.Elem.Kind == KindU8 {
			list, ok := wv.List()
			if !ok {
				return ipld.Value{}, newErr(TypeMismatch, path, "expected list<u8> WIT value")
			}
			b := make([]byte, len(list))
			for i, item := range list {
				u, ok := item.Uint()
				if !ok {
					return ipld.Value{}, newErr(TypeMismatch, path.index(i), "expected u8 element")
				}
				b[i] = byte(u)
			}
			return ipld.Bytes(b), nil
		}
		list, ok := wv.List()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected list WIT value")
		}
		out := make([]ipld.Value, len(list))
		for i, item := range list {
			iv, err := fromWIT(*t.Elem, item, path.index(i))
			if err != nil {
				return ipld.Value{}, err
			}
			out[i] = iv
		}
		return ipld.List(out...), nil

	case KindTuple:
		tup, ok := wv.Tuple()
		if !ok || len(tup) != len(t.Tuple) {
			return ipld.Value{}, newErr(ArityMismatch, path, "expected %d-tuple WIT value", len(t.Tuple))
		}
		out := make([]ipld.Value, len(tup))
		for i, item := range tup {
			iv, err := fromWIT(t.Tuple[i], item, path.index(i))
			if err != nil {
				return ipld.Value{}, err
			}
			out[i] = iv
		}
		return ipld.List(out...), nil

	case KindRecord:
		rec, ok := wv.Record()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected record WIT value")
		}
		out := make(map[string]ipld.Value, len(t.Fields))
		for _, f := range t.Fields {
			fv, ok := rec[f.Name]
			if !ok {
				return ipld.Value{}, newErr(TypeMismatch, path, "record WIT value missing field %q", f.Name)
			}
			iv, err := fromWIT(f.Type, fv, path.field(f.Name))
			if err != nil {
				return ipld.Value{}, err
			}
			out[f.Name] = iv
		}
		return ipld.Map(out), nil

	case KindVariant:
		name, payload, ok := wv.Variant()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected variant WIT value")
		}
		c := findCase(t.Cases, name)
		if c == nil {
			return ipld.Value{}, newErr(UnknownVariantCase, path, "unknown variant case %q", name)
		}
		if c.Payload == nil || payload == nil {
			return ipld.Map(map[string]ipld.Value{name: ipld.Null()}), nil
		}
		iv, err := fromWIT(*c.Payload, *payload, path.field(name))
		if err != nil {
			return ipld.Value{}, err
		}
		return ipld.Map(map[string]ipld.Value{name: iv}), nil

	case KindEnum:
		name, ok := wv.Enum()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected enum WIT value")
		}
		return ipld.String(name), nil

	case KindFlags:
		names, ok := wv.Flags()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected flags WIT value")
		}
		out := make([]ipld.Value, len(names))
		for i, n := range names {
			out[i] = ipld.String(n)
		}
		return ipld.List(out...), nil

	case KindOption:
		opt, ok := wv.Option()
		if !ok {
			return ipld.Value{}, newErr(TypeMismatch, path, "expected option WIT value")
		}
		if opt == nil {
			return ipld.Null(), nil
		}
		return fromWIT(*t.Elem, *opt, path)

	case KindResult:
		return resultFromWIT(t, wv, path)

	default:
		return ipld.Value{}, newErr(TypeMismatch, path, "unsupported source kind %s", t.Kind)
	}
}

func resultFromWIT(t Type, wv Value, path Path) (ipld.Value, error) {
	ok, val, isResult := wv.Result()
	if !isResult {
		return ipld.Value{}, newErr(TypeMismatch, path, "expected result WIT value")
	}
	sentinel := ipld.Int(1)
	if ok {
		if val == nil {
			return ipld.List(sentinel, ipld.Null()), nil
		}
		iv, err := fromWIT(*t.Ok, *val, path.index(0))
		if err != nil {
			return ipld.Value{}, err
		}
		return ipld.List(iv, ipld.Null()), nil
	}
	if val == nil {
		return ipld.List(ipld.Null(), sentinel), nil
	}
	iv, err := fromWIT(*t.Err, *val, path.index(1))
	if err != nil {
		return ipld.Value{}, err
	}
	return ipld.List(ipld.Null(), iv), nil
}
