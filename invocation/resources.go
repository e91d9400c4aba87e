package invocation

import (
	"time"

	"github.com/ipvm-wg/homestar/ipld"
)

// Default sandbox resource limits applied when a task's meta omits them
// (§4.2).
const (
	DefaultMemoryBytes uint64 = 4 << 30 // 4 GiB
	DefaultTimeout            = 100 * time.Second
)

const (
	keyFuel   = "fuel"
	keyMemory = "memory"
	keyTime   = "time"
)

// Resources carries the optional fuel/memory/time limits for one task's
// execution (§3).
type Resources struct {
	Fuel   *uint64
	Memory *uint64
	Time   *uint64 // milliseconds
}

// FuelOrUnlimited returns the fuel budget, or false if unmetered.
func (r Resources) FuelOrUnlimited() (uint64, bool) {
	if r.Fuel == nil {
		return 0, false
	}
	return *r.Fuel, true
}

// MemoryOrDefault returns the memory cap, defaulting per §4.2.
func (r Resources) MemoryOrDefault() uint64 {
	if r.Memory == nil {
		return DefaultMemoryBytes
	}
	return *r.Memory
}

// TimeoutOrDefault returns the wall-clock timeout, defaulting per §4.2.
func (r Resources) TimeoutOrDefault() time.Duration {
	if r.Time == nil {
		return DefaultTimeout
	}
	return time.Duration(*r.Time) * time.Millisecond
}

// ToIPLD renders the resource limits, omitting unset fields.
func (r Resources) ToIPLD() ipld.Value {
	m := map[string]ipld.Value{}
	if r.Fuel != nil {
		m[keyFuel] = ipld.Int(int64(*r.Fuel))
	}
	if r.Memory != nil {
		m[keyMemory] = ipld.Int(int64(*r.Memory))
	}
	if r.Time != nil {
		m[keyTime] = ipld.Int(int64(*r.Time))
	}
	return ipld.Map(m)
}

// ResourcesFromIPLD parses Resources out of its wire form.
func ResourcesFromIPLD(v ipld.Value) (Resources, error) {
	var r Resources
	m, ok := v.AsMap()
	if !ok {
		if v.IsNull() {
			return r, nil
		}
		return r, errNotAMap("meta")
	}
	if fv, ok := m[keyFuel]; ok {
		n, ok := fv.AsInt()
		if !ok {
			return r, errWrongType(keyFuel, "integer")
		}
		u := n.Uint64()
		r.Fuel = &u
	}
	if mv, ok := m[keyMemory]; ok {
		n, ok := mv.AsInt()
		if !ok {
			return r, errWrongType(keyMemory, "integer")
		}
		u := n.Uint64()
		r.Memory = &u
	}
	if tv, ok := m[keyTime]; ok {
		n, ok := tv.AsInt()
		if !ok {
			return r, errWrongType(keyTime, "integer")
		}
		u := n.Uint64()
		r.Time = &u
	}
	return r, nil
}
