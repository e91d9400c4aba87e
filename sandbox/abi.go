package sandbox

import (
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v25"

	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/wit"
)

// coreABI lowers wit.Value arguments onto and lifts wit.Value results off
// of a component's core Wasm exports.
//
// The eight WIT numeric classes, bool, and char flatten to exactly one
// core value each, matching the component model's canonical ABI. Every
// other WIT class (string, list, tuple, record, variant, enum, flags,
// option, result) is instead passed as canonical DAG-CBOR bytes written
// into the guest's linear memory via its exported `cabi_realloc`
// allocator, addressed by a (ptr, len) pair of i32 core values. This is a
// deliberate simplification of the full canonical-ABI value flattening
// wit-bindgen generates: it preserves complete data fidelity across the
// IPLD<->WIT boundary (§4.1's interpreter runs unchanged either side of
// it) without hand-rolling record/variant/list flattening rules per
// guest language ABI, which is out of scope for the sandbox's own
// responsibility of fuel/memory/timeout enforcement (§4.2).
type coreABI struct {
	store *wasmtime.Store
	inst  *wasmtime.Instance
}

func (a *coreABI) lower(t wit.Type, wv wit.Value) ([]interface{}, error) {
	switch t.Kind {
	case wit.KindBool:
		b, _ := wv.Bool()
		if b {
			return []interface{}{int32(1)}, nil
		}
		return []interface{}{int32(0)}, nil
	case wit.KindU8, wit.KindU16, wit.KindU32:
		u, _ := wv.Uint()
		return []interface{}{int32(u)}, nil
	case wit.KindU64:
		u, _ := wv.Uint()
		return []interface{}{int64(u)}, nil
	case wit.KindS8, wit.KindS16, wit.KindS32:
		i, _ := wv.Int()
		return []interface{}{int32(i)}, nil
	case wit.KindS64:
		i, _ := wv.Int()
		return []interface{}{int64(i)}, nil
	case wit.KindFloat32:
		f, _ := wv.Float32()
		return []interface{}{f}, nil
	case wit.KindFloat64:
		f, _ := wv.Float64()
		return []interface{}{f}, nil
	case wit.KindChar:
		r, _ := wv.Char()
		return []interface{}{int32(r)}, nil
	default:
		iv, err := wit.FromWIT(t, wv)
		if err != nil {
			return nil, fmt.Errorf("sandbox: lower %s: %w", t.Kind, err)
		}
		encoded, err := ipld.EncodeDAGCBOR(iv)
		if err != nil {
			return nil, fmt.Errorf("sandbox: cbor-encode %s argument: %w", t.Kind, err)
		}
		ptr, err := a.writeGuestBytes(encoded)
		if err != nil {
			return nil, err
		}
		return []interface{}{int32(ptr), int32(len(encoded))}, nil
	}
}

func (a *coreABI) lift(t wit.Type, core []interface{}) (wit.Value, error) {
	switch t.Kind {
	case wit.KindBool:
		i, ok := core[0].(int32)
		if !ok {
			return wit.Value{}, fmt.Errorf("sandbox: expected i32 for bool result")
		}
		return wit.VBool(i != 0), nil
	case wit.KindU8:
		i, _ := core[0].(int32)
		return wit.VU8(uint8(i)), nil
	case wit.KindU16:
		i, _ := core[0].(int32)
		return wit.VU16(uint16(i)), nil
	case wit.KindU32:
		i, _ := core[0].(int32)
		return wit.VU32(uint32(i)), nil
	case wit.KindU64:
		i, _ := core[0].(int64)
		return wit.VU64(uint64(i)), nil
	case wit.KindS8:
		i, _ := core[0].(int32)
		return wit.VS8(int8(i)), nil
	case wit.KindS16:
		i, _ := core[0].(int32)
		return wit.VS16(int16(i)), nil
	case wit.KindS32:
		i, _ := core[0].(int32)
		return wit.VS32(i), nil
	case wit.KindS64:
		i, _ := core[0].(int64)
		return wit.VS64(i), nil
	case wit.KindFloat32:
		f, _ := core[0].(float32)
		return wit.VFloat32(f), nil
	case wit.KindFloat64:
		f, _ := core[0].(float64)
		return wit.VFloat64(f), nil
	case wit.KindChar:
		i, _ := core[0].(int32)
		return wit.VChar(rune(i)), nil
	default:
		if len(core) != 2 {
			return wit.Value{}, fmt.Errorf("sandbox: expected (ptr, len) result for %s, got %d values", t.Kind, len(core))
		}
		ptr, _ := core[0].(int32)
		length, _ := core[1].(int32)
		encoded, err := a.readGuestBytes(ptr, length)
		if err != nil {
			return wit.Value{}, err
		}
		iv, err := ipld.DecodeDAGCBOR(encoded)
		if err != nil {
			return wit.Value{}, fmt.Errorf("sandbox: cbor-decode %s result: %w", t.Kind, err)
		}
		return wit.ToWIT(t, iv)
	}
}

// writeGuestBytes allocates space via the guest's exported cabi_realloc
// and copies b into it, returning the guest pointer.
func (a *coreABI) writeGuestBytes(b []byte) (int32, error) {
	realloc := a.inst.GetFunc(a.store, "cabi_realloc")
	if realloc == nil {
		return 0, fmt.Errorf("sandbox: guest does not export cabi_realloc")
	}
	res, err := realloc.Call(a.store, int32(0), int32(0), int32(1), int32(len(b)))
	if err != nil {
		return 0, newError(FailureTrap, fmt.Errorf("cabi_realloc: %w", err))
	}
	ptr, ok := res.(int32)
	if !ok {
		return 0, fmt.Errorf("sandbox: cabi_realloc returned non-i32 result")
	}
	mem := a.inst.GetExport(a.store, "memory")
	if mem == nil || mem.Memory() == nil {
		return 0, fmt.Errorf("sandbox: guest does not export linear memory")
	}
	data := mem.Memory().UnsafeData(a.store)
	copy(data[ptr:], b)
	return ptr, nil
}

func (a *coreABI) readGuestBytes(ptr, length int32) ([]byte, error) {
	mem := a.inst.GetExport(a.store, "memory")
	if mem == nil || mem.Memory() == nil {
		return nil, fmt.Errorf("sandbox: guest does not export linear memory")
	}
	data := mem.Memory().UnsafeData(a.store)
	if int(ptr)+int(length) > len(data) {
		return nil, fmt.Errorf("sandbox: guest result (ptr=%d, len=%d) exceeds memory bounds", ptr, length)
	}
	out := make([]byte, length)
	copy(out, data[ptr:int(ptr)+int(length)])
	return out, nil
}
