package wit

import "fmt"

// Value is a Wasm component-model runtime value produced or consumed by
// the sandbox's function call boundary. Like ipld.Value it is a tagged
// union; the populated fields depend on Kind.
type Value struct {
	kind Kind

	boolVal  bool
	intVal   int64  // s8..s64
	uintVal  uint64 // u8..u64
	f32Val   float32
	f64Val   float64
	charVal  rune
	strVal   string
	listVal  []Value
	tupleVal []Value

	recordVal map[string]Value

	caseName    string // Variant, Enum
	casePayload *Value // Variant only

	flagsVal []string

	optionVal *Value // nil means None

	resultOK  bool
	resultVal *Value // nil means the resolved side is unit
}

func VBool(b bool) Value          { return Value{kind: KindBool, boolVal: b} }
func VU8(u uint8) Value           { return Value{kind: KindU8, uintVal: uint64(u)} }
func VU16(u uint16) Value         { return Value{kind: KindU16, uintVal: uint64(u)} }
func VU32(u uint32) Value         { return Value{kind: KindU32, uintVal: uint64(u)} }
func VU64(u uint64) Value         { return Value{kind: KindU64, uintVal: u} }
func VS8(i int8) Value            { return Value{kind: KindS8, intVal: int64(i)} }
func VS16(i int16) Value          { return Value{kind: KindS16, intVal: int64(i)} }
func VS32(i int32) Value          { return Value{kind: KindS32, intVal: int64(i)} }
func VS64(i int64) Value          { return Value{kind: KindS64, intVal: i} }
func VFloat32(f float32) Value    { return Value{kind: KindFloat32, f32Val: f} }
func VFloat64(f float64) Value    { return Value{kind: KindFloat64, f64Val: f} }
func VChar(r rune) Value          { return Value{kind: KindChar, charVal: r} }
func VString(s string) Value      { return Value{kind: KindString, strVal: s} }
func VList(vs ...Value) Value     { return Value{kind: KindList, listVal: vs} }
func VTuple(vs ...Value) Value    { return Value{kind: KindTuple, tupleVal: vs} }
func VRecord(m map[string]Value) Value {
	return Value{kind: KindRecord, recordVal: m}
}
func VEnum(name string) Value { return Value{kind: KindEnum, caseName: name} }
func VFlags(names ...string) Value {
	return Value{kind: KindFlags, flagsVal: names}
}

// VVariant constructs a variant value. payload is nil for a no-payload case.
func VVariant(caseName string, payload *Value) Value {
	return Value{kind: KindVariant, caseName: caseName, casePayload: payload}
}

// VOption constructs an option value; pass nil for None.
func VOption(v *Value) Value { return Value{kind: KindOption, optionVal: v} }

// VOk constructs a result value in the Ok state. val is nil when the Ok
// side is unit.
func VOk(val *Value) Value { return Value{kind: KindResult, resultOK: true, resultVal: val} }

// VErr constructs a result value in the Err state. val is nil when the
// Err side is unit.
func VErr(val *Value) Value { return Value{kind: KindResult, resultOK: false, resultVal: val} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() (bool, bool)       { return v.boolVal, v.kind == KindBool }
func (v Value) Uint() (uint64, bool)     { return v.uintVal, v.kind.IsInteger() && !isSigned(v.kind) }
func (v Value) Int() (int64, bool)       { return v.intVal, v.kind.IsInteger() && isSigned(v.kind) }
func (v Value) Float32() (float32, bool) { return v.f32Val, v.kind == KindFloat32 }
func (v Value) Float64() (float64, bool) { return v.f64Val, v.kind == KindFloat64 }
func (v Value) Char() (rune, bool)       { return v.charVal, v.kind == KindChar }
func (v Value) String() (string, bool)   { return v.strVal, v.kind == KindString }
func (v Value) List() ([]Value, bool)    { return v.listVal, v.kind == KindList }
func (v Value) Tuple() ([]Value, bool)   { return v.tupleVal, v.kind == KindTuple }
func (v Value) Record() (map[string]Value, bool) {
	return v.recordVal, v.kind == KindRecord
}
func (v Value) Enum() (string, bool) { return v.caseName, v.kind == KindEnum }
func (v Value) Flags() ([]string, bool) {
	return v.flagsVal, v.kind == KindFlags
}
func (v Value) Variant() (string, *Value, bool) {
	return v.caseName, v.casePayload, v.kind == KindVariant
}
func (v Value) Option() (*Value, bool) { return v.optionVal, v.kind == KindOption }
func (v Value) Result() (ok bool, val *Value, isResult bool) {
	return v.resultOK, v.resultVal, v.kind == KindResult
}

func isSigned(k Kind) bool {
	switch k {
	case KindS8, KindS16, KindS32, KindS64:
		return true
	default:
		return false
	}
}

func (v Value) GoString() string {
	return fmt.Sprintf("wit.Value{kind:%s}", v.kind)
}
