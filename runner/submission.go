package runner

import (
	"fmt"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/workflow"
)

const (
	keySubmissionName  = "name"
	keySubmissionTasks = "tasks"
)

// ParseSubmission decodes the §6 workflow-submission RPC boundary shape,
// `{ tasks: [ { run, meta, prf, cause? } ], name? }`, encoded as DAG-JSON
// (so CIDs may arrive as `{"/": "<cid>"}` links and byte fields as
// `{"/": {"bytes": "<base64>"}}`, and nonces as empty string,
// base32hex-lower string, or byte object — all handled by
// ipld.DecodeDAGJSON and invocation.TaskFromIPLD/NormalizeNonce).
func ParseSubmission(raw []byte) (workflow.Workflow, error) {
	v, err := ipld.DecodeDAGJSON(raw)
	if err != nil {
		return workflow.Workflow{}, fmt.Errorf("runner: decode submission: %w", err)
	}

	m, ok := v.AsMap()
	if !ok {
		return workflow.Workflow{}, fmt.Errorf("runner: submission must be a JSON object")
	}

	tasksVal, ok := m[keySubmissionTasks]
	if !ok {
		return workflow.Workflow{}, fmt.Errorf("runner: submission missing %q", keySubmissionTasks)
	}
	tasksList, ok := tasksVal.AsList()
	if !ok {
		return workflow.Workflow{}, fmt.Errorf("runner: submission %q must be a list", keySubmissionTasks)
	}
	if len(tasksList) == 0 {
		return workflow.Workflow{}, fmt.Errorf("runner: submission must contain at least one task")
	}

	tasks := make([]invocation.Task, len(tasksList))
	for i, tv := range tasksList {
		task, err := invocation.TaskFromIPLD(tv)
		if err != nil {
			return workflow.Workflow{}, fmt.Errorf("runner: submission task %d: %w", i, err)
		}
		tasks[i] = task
	}

	name := ""
	if nv, ok := m[keySubmissionName]; ok {
		if s, ok := nv.AsString(); ok {
			name = s
		}
	}

	return workflow.Workflow{Name: name, Tasks: tasks}, nil
}

// EncodeReceiptNotification renders the §6 receipt-notification RPC
// boundary shape, `{ metadata: { name, replayed, receipt_cid }, receipt }`,
// for one completed task.
func EncodeReceiptNotification(taskName string, replayed bool, receipt invocation.Receipt) ([]byte, error) {
	receiptCID, err := receipt.CID()
	if err != nil {
		return nil, fmt.Errorf("runner: compute receipt cid: %w", err)
	}
	v := ipld.Map(map[string]ipld.Value{
		"metadata": ipld.Map(map[string]ipld.Value{
			"name":        ipld.String(taskName),
			"replayed":    ipld.Bool(replayed),
			"receipt_cid": ipld.Link(receiptCID),
		}),
		"receipt": receipt.ToIPLD(),
	})
	return ipld.EncodeDAGJSON(v)
}
