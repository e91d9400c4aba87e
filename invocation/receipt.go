package invocation

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/ipvm-wg/homestar/ipld"
)

// OutTag distinguishes the three shapes a task's output may take (§3).
type OutTag string

const (
	OutOk    OutTag = "ok"
	OutError OutTag = "error"
	OutJust  OutTag = "just"
)

func (t OutTag) valid() bool {
	switch t {
	case OutOk, OutError, OutJust:
		return true
	default:
		return false
	}
}

// Output is a task's tagged result: (Ok|Error|Just, IPLD) (§3).
type Output struct {
	Tag   OutTag
	Value ipld.Value
}

// Ok wraps a successful result.
func Ok(v ipld.Value) Output { return Output{Tag: OutOk, Value: v} }

// Err wraps a failed result.
func Err(v ipld.Value) Output { return Output{Tag: OutError, Value: v} }

// Just wraps a result with no ok/error distinction (used by e.g. pure
// data-producing instructions with no failure mode).
func Just(v ipld.Value) Output { return Output{Tag: OutJust, Value: v} }

// IsError reports whether the output is tagged error.
func (o Output) IsError() bool { return o.Tag == OutError }

// ToIPLD renders the output as the 2-element [tag, value] list (§3).
func (o Output) ToIPLD() ipld.Value {
	return ipld.List(ipld.String(string(o.Tag)), o.Value)
}

// OutputFromIPLD parses an Output out of its wire form.
func OutputFromIPLD(v ipld.Value) (Output, error) {
	list, ok := v.AsList()
	if !ok || len(list) != 2 {
		return Output{}, fmt.Errorf("invocation: out must be a 2-element [tag, value] list")
	}
	tagStr, ok := list[0].AsString()
	if !ok {
		return Output{}, fmt.Errorf("invocation: out[0] must be a string tag")
	}
	tag := OutTag(tagStr)
	if !tag.valid() {
		return Output{}, fmt.Errorf("invocation: unknown out tag %q", tagStr)
	}
	return Output{Tag: tag, Value: list[1]}, nil
}

// IssuerDID identifies the peer that produced a receipt, e.g.
// "did:key:z6Mk...".
type IssuerDID string

// Receipt is a signed, content-addressed record of one instruction
// execution (§3). Its CID memoizes the execution; a receipt with
// Ran == <instruction-CID> is what the cache keys on.
type Receipt struct {
	Ran    Pointer
	Out    Output
	Meta   map[string]ipld.Value
	Issuer *IssuerDID
	Prf    []cid.Cid
}

// ToIPLD renders the receipt in its canonical wire form.
func (r Receipt) ToIPLD() ipld.Value {
	m := map[string]ipld.Value{
		keyRan: r.Ran.ToIPLD(),
		keyOut: r.Out.ToIPLD(),
		keyMeta: ipld.Map(func() map[string]ipld.Value {
			if r.Meta == nil {
				return map[string]ipld.Value{}
			}
			return r.Meta
		}()),
		keyProof: ipld.List(func() []ipld.Value {
			out := make([]ipld.Value, len(r.Prf))
			for i, c := range r.Prf {
				out[i] = ipld.Link(c)
			}
			return out
		}()...),
	}
	if r.Issuer != nil {
		m[keyIssuer] = ipld.String(string(*r.Issuer))
	} else {
		m[keyIssuer] = ipld.Null()
	}
	return ipld.Map(m)
}

// CID computes the receipt's content identifier, which memoizes the
// execution or replay event that produced it (§3).
func (r Receipt) CID() (cid.Cid, error) {
	return ipld.ComputeCID(r.ToIPLD())
}

// ReceiptFromIPLD parses a Receipt out of its wire form.
func ReceiptFromIPLD(v ipld.Value) (Receipt, error) {
	m, ok := v.AsMap()
	if !ok {
		return Receipt{}, fmt.Errorf("invocation: receipt must be a map, got %s", v.Kind())
	}

	ranVal, ok := m[keyRan]
	if !ok {
		return Receipt{}, fmt.Errorf("invocation: receipt missing %q", keyRan)
	}
	ran, err := PointerFromIPLD(ranVal)
	if err != nil {
		return Receipt{}, fmt.Errorf("invocation: receipt.ran: %w", err)
	}

	outVal, ok := m[keyOut]
	if !ok {
		return Receipt{}, fmt.Errorf("invocation: receipt missing %q", keyOut)
	}
	out, err := OutputFromIPLD(outVal)
	if err != nil {
		return Receipt{}, fmt.Errorf("invocation: receipt.out: %w", err)
	}

	var meta map[string]ipld.Value
	if mv, ok := m[keyMeta]; ok {
		meta, _ = mv.AsMap()
	}

	var issuer *IssuerDID
	if iv, ok := m[keyIssuer]; ok && !iv.IsNull() {
		s, ok := iv.AsString()
		if !ok {
			return Receipt{}, fmt.Errorf("invocation: %q must be a string", keyIssuer)
		}
		did := IssuerDID(s)
		issuer = &did
	}

	var prf []cid.Cid
	if pv, ok := m[keyProof]; ok {
		list, ok := pv.AsList()
		if !ok {
			return Receipt{}, fmt.Errorf("invocation: receipt.prf must be a list")
		}
		prf = make([]cid.Cid, len(list))
		for i, item := range list {
			c, ok := item.AsLink()
			if !ok {
				return Receipt{}, fmt.Errorf("invocation: receipt.prf[%d] must be a link", i)
			}
			prf[i] = c
		}
	}

	return Receipt{Ran: ran, Out: out, Meta: meta, Issuer: issuer, Prf: prf}, nil
}

const (
	keyRan    = "ran"
	keyOut    = "out"
	keyIssuer = "iss"
)
