package invocation

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/ipvm-wg/homestar/ipld"
)

// OpWasmRun is the only recognized instruction operation today.
const OpWasmRun = "wasm/run"

const (
	keyResource = "rsc"
	keyOp       = "op"
	keyInput    = "input"
	keyNonce    = "nnc"
	keyFunc     = "func"
	keyArgs     = "args"
)

// Instruction is the tuple {resource, op, input: {func, args}, nonce}
// whose CID is the task's fingerprint and primary cache key (§3).
type Instruction struct {
	Resource Resource
	Op       string
	Func     string
	Args     []Argument
	Nonce    []byte
}

// NewInstruction builds a wasm/run Instruction, normalizing its nonce.
func NewInstruction(resource Resource, fn string, args []Argument, nonce interface{}) (Instruction, error) {
	n, err := NormalizeNonce(nonce)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		Resource: resource,
		Op:       OpWasmRun,
		Func:     fn,
		Args:     args,
		Nonce:    n,
	}, nil
}

// Pure reports whether the instruction is pure in (resource, func, args):
// an empty nonce means repeated invocations are always cache hits (§3).
func (in Instruction) Pure() bool { return len(in.Nonce) == 0 }

// ToIPLD renders the instruction in its canonical wire form.
func (in Instruction) ToIPLD() ipld.Value {
	args := make([]ipld.Value, len(in.Args))
	for i, a := range in.Args {
		args[i] = a.ToIPLD()
	}
	return ipld.Map(map[string]ipld.Value{
		keyResource: in.Resource.ToIPLD(),
		keyOp:       ipld.String(in.Op),
		keyInput: ipld.Map(map[string]ipld.Value{
			keyFunc: ipld.String(in.Func),
			keyArgs: ipld.List(args...),
		}),
		keyNonce: ipld.Bytes(in.Nonce),
	})
}

// CID computes the instruction's fingerprint, the cache key used by the
// scheduler before dispatch (§3, §4.5).
func (in Instruction) CID() (cid.Cid, error) {
	return ipld.ComputeCID(in.ToIPLD())
}

// InstructionFromIPLD parses an Instruction out of its wire form.
func InstructionFromIPLD(v ipld.Value) (Instruction, error) {
	m, ok := v.AsMap()
	if !ok {
		return Instruction{}, fmt.Errorf("invocation: instruction must be a map, got %s", v.Kind())
	}

	rscVal, ok := m[keyResource]
	if !ok {
		return Instruction{}, fmt.Errorf("invocation: instruction missing %q", keyResource)
	}
	resource, err := ResourceFromIPLD(rscVal)
	if err != nil {
		return Instruction{}, err
	}

	op := OpWasmRun
	if opVal, ok := m[keyOp]; ok {
		s, ok := opVal.AsString()
		if !ok {
			return Instruction{}, fmt.Errorf("invocation: %q must be a string", keyOp)
		}
		op = s
	}

	inputVal, ok := m[keyInput]
	if !ok {
		return Instruction{}, fmt.Errorf("invocation: instruction missing %q", keyInput)
	}
	inputMap, ok := inputVal.AsMap()
	if !ok {
		return Instruction{}, fmt.Errorf("invocation: %q must be a map", keyInput)
	}
	fnVal, ok := inputMap[keyFunc]
	if !ok {
		return Instruction{}, fmt.Errorf("invocation: input missing %q", keyFunc)
	}
	fn, ok := fnVal.AsString()
	if !ok {
		return Instruction{}, fmt.Errorf("invocation: %q must be a string", keyFunc)
	}
	argsVal, ok := inputMap[keyArgs]
	if !ok {
		return Instruction{}, fmt.Errorf("invocation: input missing %q", keyArgs)
	}
	argsList, ok := argsVal.AsList()
	if !ok {
		return Instruction{}, fmt.Errorf("invocation: %q must be a list", keyArgs)
	}
	args := make([]Argument, len(argsList))
	for i, av := range argsList {
		arg, err := ArgumentFromIPLD(av)
		if err != nil {
			return Instruction{}, fmt.Errorf("invocation: argument %d: %w", i, err)
		}
		args[i] = arg
	}

	var nonceRaw interface{}
	if nonceVal, ok := m[keyNonce]; ok {
		if b, ok := nonceVal.AsBytes(); ok {
			nonceRaw = b
		} else if s, ok := nonceVal.AsString(); ok {
			nonceRaw = s
		} else if !nonceVal.IsNull() {
			return Instruction{}, fmt.Errorf("invocation: %q must be bytes or a string", keyNonce)
		}
	}
	nonce, err := NormalizeNonce(nonceRaw)
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{Resource: resource, Op: op, Func: fn, Args: args, Nonce: nonce}, nil
}
