package workflow

import (
	"github.com/ipfs/go-cid"

	"github.com/ipvm-wg/homestar/ipld"
)

const (
	keyCID            = "cid"
	keyName           = "name"
	keyNumTasks       = "num_tasks"
	keyProgress      = "progress"
	keyProgressCount = "progress_count"
)

// Info is the record published to the DHT under a workflow's CID so peers
// can resume a partially completed workflow (§3). Progress is append-only:
// it may only grow for a given workflow CID (§3 invariant).
type Info struct {
	CID           cid.Cid
	Name          string
	NumTasks      uint32
	Progress      []cid.Cid
	ProgressCount uint32
}

// NewInfo creates a fresh Info for a just-submitted workflow.
func NewInfo(workflowCID cid.Cid, name string, numTasks int) Info {
	return Info{
		CID:      workflowCID,
		Name:     name,
		NumTasks: uint32(numTasks),
	}
}

// Completed reports whether every task has produced a receipt.
func (i Info) Completed() bool { return i.ProgressCount >= i.NumTasks && i.NumTasks > 0 }

// WithReceipt appends receiptCID to progress if it is not already present,
// returning the updated Info. Progress never shrinks and a receipt is
// never recorded twice (§3 invariant).
func (i Info) WithReceipt(receiptCID cid.Cid) Info {
	for _, c := range i.Progress {
		if c.Equals(receiptCID) {
			return i
		}
	}
	next := i
	next.Progress = append(append([]cid.Cid{}, i.Progress...), receiptCID)
	next.ProgressCount = uint32(len(next.Progress))
	return next
}

// ToIPLD renders the info in its DHT wire form.
func (i Info) ToIPLD() ipld.Value {
	progress := make([]ipld.Value, len(i.Progress))
	for idx, c := range i.Progress {
		progress[idx] = ipld.Link(c)
	}
	m := map[string]ipld.Value{
		keyCID:           ipld.Link(i.CID),
		keyNumTasks:      ipld.Int(int64(i.NumTasks)),
		keyProgress:      ipld.List(progress...),
		keyProgressCount: ipld.Int(int64(i.ProgressCount)),
	}
	if i.Name != "" {
		m[keyName] = ipld.String(i.Name)
	} else {
		m[keyName] = ipld.Null()
	}
	return ipld.Map(m)
}

// InfoFromIPLD parses an Info out of its DHT wire form.
func InfoFromIPLD(v ipld.Value) (Info, error) {
	m, ok := v.AsMap()
	if !ok {
		return Info{}, errNotMap
	}
	c, ok := m[keyCID].AsLink()
	if !ok {
		return Info{}, errBadField(keyCID)
	}
	numTasks, ok := m[keyNumTasks].AsInt()
	if !ok {
		return Info{}, errBadField(keyNumTasks)
	}
	progressCount, ok := m[keyProgressCount].AsInt()
	if !ok {
		return Info{}, errBadField(keyProgressCount)
	}
	var progress []cid.Cid
	if pl, ok := m[keyProgress].AsList(); ok {
		progress = make([]cid.Cid, len(pl))
		for idx, pv := range pl {
			pc, ok := pv.AsLink()
			if !ok {
				return Info{}, errBadField(keyProgress)
			}
			progress[idx] = pc
		}
	}
	var name string
	if nv, ok := m[keyName]; ok {
		name, _ = nv.AsString()
	}
	return Info{
		CID:           c,
		Name:          name,
		NumTasks:      uint32(numTasks.Uint64()),
		Progress:      progress,
		ProgressCount: uint32(progressCount.Uint64()),
	}, nil
}
