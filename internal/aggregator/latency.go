package aggregator

import "sync/atomic"

// latencyTracker holds the running average and maximum observed
// receive-to-applied latency, matching spec.md §4.5's exact recurrence:
// avg_new = (15*avg_old + sample) / 16, and a CAS loop for the max that
// only updates when a sample strictly exceeds the current value.
type latencyTracker struct {
	avgNs atomic.Uint64
	maxNs atomic.Uint64
}

func (t *latencyTracker) observe(sampleNs uint64) {
	for {
		old := t.avgNs.Load()
		next := (15*old + sampleNs) / 16
		if t.avgNs.CompareAndSwap(old, next) {
			break
		}
	}
	for {
		old := t.maxNs.Load()
		if sampleNs <= old {
			break
		}
		if t.maxNs.CompareAndSwap(old, sampleNs) {
			break
		}
	}
}

func (t *latencyTracker) average() uint64 { return t.avgNs.Load() }
func (t *latencyTracker) max() uint64     { return t.maxNs.Load() }
