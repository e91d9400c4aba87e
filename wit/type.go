// Package wit implements the type-directed, recursive interpreter that
// bridges IPLD values and Wasm component-model (WIT) values (§4.1). The
// interpreter never introspects at runtime: every recursive step carries
// the expected wit.Type as an explicit parameter.
package wit

// Kind enumerates the WIT value classes the interpreter understands.
type Kind uint8

const (
	KindBool Kind = iota
	KindU8
	KindU16
	KindU32
	KindU64
	KindS8
	KindS16
	KindS32
	KindS64
	KindFloat32
	KindFloat64
	KindChar
	KindString
	KindList
	KindTuple
	KindRecord
	KindVariant
	KindEnum
	KindFlags
	KindOption
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindS8:
		return "s8"
	case KindS16:
		return "s16"
	case KindS32:
		return "s32"
	case KindS64:
		return "s64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindRecord:
		return "record"
	case KindVariant:
		return "variant"
	case KindEnum:
		return "enum"
	case KindFlags:
		return "flags"
	case KindOption:
		return "option"
	case KindResult:
		return "result"
	default:
		return "unknown"
	}
}

// IsInteger reports whether k is one of the eight WIT integer classes.
func (k Kind) IsInteger() bool {
	switch k {
	case KindU8, KindU16, KindU32, KindU64, KindS8, KindS16, KindS32, KindS64:
		return true
	default:
		return false
	}
}

// Field names a single member of a record type.
type Field struct {
	Name string
	Type Type
}

// Case names a single arm of a variant type. Payload is nil when the case
// carries no value, matching WIT's `case-name` (no parens) syntax.
type Case struct {
	Name    string
	Payload *Type
}

// Type is a WIT interface type. Only the fields relevant to Kind are
// populated; the zero Type is Bool.
type Type struct {
	Kind Kind

	Elem *Type // List, Option

	Tuple []Type // Tuple

	Fields []Field // Record

	Cases []Case // Variant

	Names []string // Enum, Flags

	Ok  *Type // Result; nil means unit
	Err *Type // Result; nil means unit
}

func Bool() Type    { return Type{Kind: KindBool} }
func U8() Type      { return Type{Kind: KindU8} }
func U16() Type     { return Type{Kind: KindU16} }
func U32() Type     { return Type{Kind: KindU32} }
func U64() Type     { return Type{Kind: KindU64} }
func S8() Type      { return Type{Kind: KindS8} }
func S16() Type     { return Type{Kind: KindS16} }
func S32() Type     { return Type{Kind: KindS32} }
func S64() Type     { return Type{Kind: KindS64} }
func Float32() Type { return Type{Kind: KindFloat32} }
func Float64() Type { return Type{Kind: KindFloat64} }
func Char() Type    { return Type{Kind: KindChar} }
func String() Type  { return Type{Kind: KindString} }

// List constructs a `list<elem>` type.
func List(elem Type) Type { return Type{Kind: KindList, Elem: &elem} }

// Tuple constructs a `tuple<...>` type.
func Tuple(elems ...Type) Type { return Type{Kind: KindTuple, Tuple: elems} }

// Record constructs a `record{...}` type.
func Record(fields ...Field) Type { return Type{Kind: KindRecord, Fields: fields} }

// Variant constructs a `variant{...}` type.
func Variant(cases ...Case) Type { return Type{Kind: KindVariant, Cases: cases} }

// Enum constructs an `enum{...}` type.
func Enum(names ...string) Type { return Type{Kind: KindEnum, Names: names} }

// Flags constructs a `flags{...}` type.
func Flags(names ...string) Type { return Type{Kind: KindFlags, Names: names} }

// Option constructs an `option<elem>` type.
func Option(elem Type) Type { return Type{Kind: KindOption, Elem: &elem} }

// Result constructs a `result<ok,err>` type. Pass nil for a unit side.
func Result(ok, err *Type) Type { return Type{Kind: KindResult, Ok: ok, Err: err} }

// CaseNoPayload constructs a variant case carrying no value.
func CaseNoPayload(name string) Case { return Case{Name: name} }

// CaseWith constructs a variant case carrying a value of type t.
func CaseWith(name string, t Type) Case { return Case{Name: name, Payload: &t} }
