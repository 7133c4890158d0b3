package pool

import "runtime/debug"

// TuneGC mirrors the teacher's core/pools.gc_tuning.go: net threads run
// hot allocate/free cycles inside their own arenas and pools, so the
// default GOGC cadence fights the design instead of helping it. spec.md §5
// describes a deliberately low-allocation steady state once pools are
// warm; raising GOGC (and optionally setting a soft memory limit) reduces
// GC pause frequency without the server ever needing to call runtime.GC
// itself.
func TuneGC(percent int, softMemLimitBytes int64) {
	if percent > 0 {
		debug.SetGCPercent(percent)
	}
	if softMemLimitBytes > 0 {
		debug.SetMemoryLimit(softMemLimitBytes)
	}
}
