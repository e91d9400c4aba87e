package workflow

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
)

// ErrCyclicWorkflow is returned when the await graph among a workflow's
// tasks contains a cycle (§4.5, §7).
var ErrCyclicWorkflow = errors.New("workflow: cyclic await graph")

// Schedule is the static analysis result: a topologically ordered list of
// independent batches. Tasks within a batch have no awaits on each other
// and may dispatch concurrently; batch N+1 only dispatches once every task
// in batch N has produced a receipt (§4.5, §5).
type Schedule struct {
	Batches [][]int // task indices, in workflow.Tasks order
}

// Analyze builds a Schedule for w. An edge a -> b exists iff task b has an
// Await whose Pointer names task a's instruction CID (the only CID a
// sibling task can reference before any receipts exist). Awaits that name
// something outside the workflow are not DAG edges; they are resolved
// against the receipt cache/DHT at dispatch time instead (§4.5 step 3-4).
func Analyze(w Workflow) (Schedule, error) {
	n := len(w.Tasks)

	instructionCIDs := make([]cid.Cid, n)
	indexByInstructionCID := make(map[cid.Cid]int, n)
	for i, t := range w.Tasks {
		c, err := t.InstructionCID()
		if err != nil {
			return Schedule{}, fmt.Errorf("workflow: task %d: %w", i, err)
		}
		instructionCIDs[i] = c
		if _, exists := indexByInstructionCID[c]; !exists {
			indexByInstructionCID[c] = i
		}
	}

	// adjacency: dependants[i] = tasks that depend on task i
	dependants := make([][]int, n)
	indegree := make([]int, n)

	for b, t := range w.Tasks {
		seen := map[int]bool{}
		for _, arg := range t.Run.Args {
			await, ok := arg.Await()
			if !ok {
				continue
			}
			a, ok := indexByInstructionCID[await.Pointer.Target]
			if !ok || a == b || seen[a] {
				continue
			}
			seen[a] = true
			dependants[a] = append(dependants[a], b)
			indegree[b]++
		}
	}

	var batches [][]int
	remaining := n
	done := make([]bool, n)

	for remaining > 0 {
		var batch []int
		for i := 0; i < n; i++ {
			if !done[i] && indegree[i] == 0 {
				batch = append(batch, i)
			}
		}
		if len(batch) == 0 {
			return Schedule{}, ErrCyclicWorkflow
		}
		for _, i := range batch {
			done[i] = true
			remaining--
			for _, d := range dependants[i] {
				indegree[d]--
			}
		}
		batches = append(batches, batch)
	}

	return Schedule{Batches: batches}, nil
}
