package invocation

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/ipvm-wg/homestar/ipld"
)

// Pointer names the invocation/instruction/receipt whose output is to be
// spliced into a dependent task's arguments (§3).
type Pointer struct {
	Target cid.Cid
}

// NewPointer wraps a CID as a Pointer.
func NewPointer(c cid.Cid) Pointer { return Pointer{Target: c} }

// ToIPLD renders a Pointer as a Link, i.e. the DAG-JSON {"/": "<cid>"} form.
func (p Pointer) ToIPLD() ipld.Value { return ipld.Link(p.Target) }

// PointerFromIPLD parses a Pointer out of a Link value.
func PointerFromIPLD(v ipld.Value) (Pointer, error) {
	c, ok := v.AsLink()
	if !ok {
		return Pointer{}, fmt.Errorf("invocation: pointer must be a link, got %s", v.Kind())
	}
	return NewPointer(c), nil
}

func (p Pointer) String() string { return p.Target.String() }
