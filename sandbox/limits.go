package sandbox

// storeLimits mirrors homestar-wasm's StoreLimitsAsync: a memory (and
// optionally table) cap enforced as the guest's linear memory grows,
// independent of the fuel budget that bounds compute (§4.2).
type storeLimits struct {
	maxMemoryBytes   uint64
	maxTableElements uint64
	memoryConsumed   uint64
}

func newStoreLimits(maxMemoryBytes uint64) *storeLimits {
	return &storeLimits{maxMemoryBytes: maxMemoryBytes}
}

// memoryGrowing reports whether a guest memory growth from current to
// desired bytes should be permitted under the configured cap.
func (l *storeLimits) memoryGrowing(current, desired uint64) bool {
	if l.maxMemoryBytes != 0 && desired > l.maxMemoryBytes {
		return false
	}
	l.memoryConsumed = desired
	return true
}

// tableGrowing reports whether a guest table growth to desired elements
// should be permitted.
func (l *storeLimits) tableGrowing(desired uint64) bool {
	return l.maxTableElements == 0 || desired <= l.maxTableElements
}
