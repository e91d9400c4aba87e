// Package worker executes one workflow at a time: it schedules
// invocation.Task dispatch batch by batch per workflow.Analyze's DAG,
// resolves await-arguments against resolved receipts, runs the sandbox,
// and replicates each resulting receipt through the receipt cache,
// durable store, and network (§4.5, §5).
package worker

import "errors"

// ErrPromiseBranchMismatch is returned when an await/ok argument points to
// a receipt whose output is tagged Error (or the symmetric case for
// await/error): §4.5's "Promise selector semantics".
var ErrPromiseBranchMismatch = errors.New("worker: promise branch mismatch")

// ErrUnresolvedPromise is returned when an Await's pointer names neither a
// sibling task's instruction nor a resolvable prior receipt.
var ErrUnresolvedPromise = errors.New("worker: unresolved promise")

// ErrNoSignature is returned when a Deps has no SignatureResolver
// configured for a resource/function pair the workflow needs.
var ErrNoSignature = errors.New("worker: no signature registered for function")
