package invocation

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/ipvm-wg/homestar/ipld"
)

const (
	keyRun   = "run"
	keyCause = "cause"
	keyMeta  = "meta"
	keyProof = "prf"
)

// Task pairs an Instruction with UCAN proofs and per-task resource limits
// (§3). Cause optionally links to the task that produced this one via
// downstream scheduling (rarely populated at submission time).
type Task struct {
	Run   Instruction
	Cause *Pointer
	Meta  Resources
	Prf   []cid.Cid
}

// ToIPLD renders the task in its canonical wire form.
func (t Task) ToIPLD() ipld.Value {
	m := map[string]ipld.Value{
		keyRun:  t.Run.ToIPLD(),
		keyMeta: t.Meta.ToIPLD(),
		keyProof: ipld.List(func() []ipld.Value {
			out := make([]ipld.Value, len(t.Prf))
			for i, c := range t.Prf {
				out[i] = ipld.Link(c)
			}
			return out
		}()...),
	}
	if t.Cause != nil {
		m[keyCause] = t.Cause.ToIPLD()
	} else {
		m[keyCause] = ipld.Null()
	}
	return ipld.Map(m)
}

// TaskFromIPLD parses a Task out of its wire form.
func TaskFromIPLD(v ipld.Value) (Task, error) {
	m, ok := v.AsMap()
	if !ok {
		return Task{}, fmt.Errorf("invocation: task must be a map, got %s", v.Kind())
	}

	runVal, ok := m[keyRun]
	if !ok {
		return Task{}, fmt.Errorf("invocation: task missing %q", keyRun)
	}
	run, err := InstructionFromIPLD(runVal)
	if err != nil {
		return Task{}, fmt.Errorf("invocation: task.run: %w", err)
	}

	meta, err := ResourcesFromIPLD(m[keyMeta])
	if err != nil {
		return Task{}, fmt.Errorf("invocation: task.meta: %w", err)
	}

	var cause *Pointer
	if cv, ok := m[keyCause]; ok && !cv.IsNull() {
		p, err := PointerFromIPLD(cv)
		if err != nil {
			return Task{}, fmt.Errorf("invocation: task.cause: %w", err)
		}
		cause = &p
	}

	var prf []cid.Cid
	if pv, ok := m[keyProof]; ok {
		list, ok := pv.AsList()
		if !ok {
			return Task{}, fmt.Errorf("invocation: task.prf must be a list")
		}
		prf = make([]cid.Cid, len(list))
		for i, item := range list {
			c, ok := item.AsLink()
			if !ok {
				return Task{}, fmt.Errorf("invocation: task.prf[%d] must be a link", i)
			}
			prf[i] = c
		}
	}

	return Task{Run: run, Cause: cause, Meta: meta, Prf: prf}, nil
}

// InstructionCID computes the fingerprint of the task's instruction, the
// scheduler's primary cache key (§4.5).
func (t Task) InstructionCID() (cid.Cid, error) {
	return t.Run.CID()
}
