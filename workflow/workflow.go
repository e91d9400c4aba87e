// Package workflow implements the ordered task list, its static DAG
// analysis into independent dispatch batches, and the WorkflowInfo record
// published to the DHT for progress tracking (§3, §4.5).
package workflow

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
)

const keyTasks = "tasks"

// Workflow is an ordered sequence of tasks. Tasks may execute concurrently
// once their await-set has resolved; the workflow's CID is computed from
// its task list alone (§3) — Name is metadata and never affects the CID.
type Workflow struct {
	Name  string
	Tasks []invocation.Task
}

// ToIPLD renders the workflow's CID-bearing wire form: just its tasks.
func (w Workflow) ToIPLD() ipld.Value {
	tasks := make([]ipld.Value, len(w.Tasks))
	for i, t := range w.Tasks {
		tasks[i] = t.ToIPLD()
	}
	return ipld.Map(map[string]ipld.Value{
		keyTasks: ipld.List(tasks...),
	})
}

// CID computes the workflow's content identifier.
func (w Workflow) CID() (cid.Cid, error) {
	return ipld.ComputeCID(w.ToIPLD())
}

// FromIPLD parses a Workflow's task list out of its wire form. Name, being
// outside the CID-bearing structure, is supplied separately by the caller
// (e.g. from an RPC submission's out-of-band name field).
func FromIPLD(v ipld.Value, name string) (Workflow, error) {
	m, ok := v.AsMap()
	if !ok {
		return Workflow{}, fmt.Errorf("workflow: must be a map, got %s", v.Kind())
	}
	tasksVal, ok := m[keyTasks]
	if !ok {
		return Workflow{}, fmt.Errorf("workflow: missing %q", keyTasks)
	}
	list, ok := tasksVal.AsList()
	if !ok {
		return Workflow{}, fmt.Errorf("workflow: %q must be a list", keyTasks)
	}
	tasks := make([]invocation.Task, len(list))
	for i, tv := range list {
		t, err := invocation.TaskFromIPLD(tv)
		if err != nil {
			return Workflow{}, fmt.Errorf("workflow: task %d: %w", i, err)
		}
		tasks[i] = t
	}
	return Workflow{Name: name, Tasks: tasks}, nil
}

// NumTasks reports how many tasks the workflow contains.
func (w Workflow) NumTasks() int { return len(w.Tasks) }
