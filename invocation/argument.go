package invocation

import (
	"fmt"

	"github.com/ipvm-wg/homestar/ipld"
)

// AwaitSelector picks which branch of a pointed-to receipt's output an
// Await resolves against (§3, §4.5).
type AwaitSelector string

const (
	AwaitOK    AwaitSelector = "await/ok"
	AwaitError AwaitSelector = "await/error"
	AwaitAny   AwaitSelector = "await/*"
)

func (s AwaitSelector) valid() bool {
	switch s {
	case AwaitOK, AwaitError, AwaitAny:
		return true
	default:
		return false
	}
}

// Await is a placeholder for the (as yet unresolved) output of a prior task.
type Await struct {
	Selector AwaitSelector
	Pointer  Pointer
}

// Argument is either a literal IPLD value or an Await.
type Argument struct {
	isAwait bool
	literal ipld.Value
	await   Await
}

// ArgLiteral wraps a concrete IPLD value as an Argument.
func ArgLiteral(v ipld.Value) Argument { return Argument{literal: v} }

// ArgAwait wraps a promise on a prior task's output as an Argument.
func ArgAwait(selector AwaitSelector, ptr Pointer) Argument {
	return Argument{isAwait: true, await: Await{Selector: selector, Pointer: ptr}}
}

// IsAwait reports whether the argument is a promise rather than a literal.
func (a Argument) IsAwait() bool { return a.isAwait }

// Await returns the promise payload, if any.
func (a Argument) Await() (Await, bool) { return a.await, a.isAwait }

// Literal returns the literal payload, if any.
func (a Argument) Literal() (ipld.Value, bool) { return a.literal, !a.isAwait }

// ToIPLD renders the argument in its wire form.
func (a Argument) ToIPLD() ipld.Value {
	if !a.isAwait {
		return a.literal
	}
	return ipld.Map(map[string]ipld.Value{
		string(a.await.Selector): a.await.Pointer.ToIPLD(),
	})
}

// ArgumentFromIPLD parses an Argument out of its wire form: a single-key
// map whose key is one of the three await selectors names an Await;
// anything else is a literal.
func ArgumentFromIPLD(v ipld.Value) (Argument, error) {
	m, ok := v.AsMap()
	if ok && len(m) == 1 {
		for k, inner := range m {
			sel := AwaitSelector(k)
			if sel.valid() {
				ptr, err := PointerFromIPLD(inner)
				if err != nil {
					return Argument{}, fmt.Errorf("invocation: invalid await pointer for %s: %w", k, err)
				}
				return ArgAwait(sel, ptr), nil
			}
		}
	}
	return ArgLiteral(v), nil
}
