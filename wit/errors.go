package wit

import (
	"fmt"
	"strings"
)

// ErrorKind classifies why a translation between IPLD and WIT failed (§4.1).
type ErrorKind uint8

const (
	// TypeMismatch means the IPLD value's class is not admitted by the
	// target WIT type.
	TypeMismatch ErrorKind = iota
	// ArityMismatch means a tuple, record, or result list had the wrong
	// number of elements or fields for its target type.
	ArityMismatch
	// RangeOverflow means an integer or float value does not fit the
	// target WIT numeric type's range.
	RangeOverflow
	// UnknownVariantCase means a variant or enum case name is not one of
	// the target type's declared cases.
	UnknownVariantCase
	// AmbiguousResult means a result<T,E> 2-list could not be
	// structurally disambiguated into Ok or Err.
	AmbiguousResult
)

func (k ErrorKind) String() string {
	switch k {
	case TypeMismatch:
		return "type mismatch"
	case ArityMismatch:
		return "arity mismatch"
	case RangeOverflow:
		return "range overflow"
	case UnknownVariantCase:
		return "unknown variant case"
	case AmbiguousResult:
		return "ambiguous result"
	default:
		return "unknown error"
	}
}

// Path locates where in the recursive IPLD/WIT structure a translation
// failure occurred, e.g. []string{"args", "[0]", ".some"}.
type Path []string

func (p Path) String() string {
	if len(p) == 0 {
		return "$"
	}
	return "$" + strings.Join(p, "")
}

func (p Path) field(name string) Path {
	return append(append(Path{}, p...), "."+name)
}

func (p Path) index(i int) Path {
	return append(append(Path{}, p...), fmt.Sprintf("[%d]", i))
}

// Error reports a failed IPLD<->WIT translation, annotated with the path
// at which it occurred (§4.1).
type Error struct {
	Kind ErrorKind
	Path Path
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("wit: %s at %s: %s", e.Kind, e.Path, e.Msg)
}

func newErr(kind ErrorKind, path Path, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Path: path, Msg: fmt.Sprintf(format, args...)}
}
