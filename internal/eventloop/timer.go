package eventloop

import "time"

// TimerQueueKind names the 8 fixed-timeout queues spec.md §4.2/§5 describe:
// "Five timer queues with per-operation assignment" in §4.2 plus the
// backend/100-continue/accept-retry/gc-sweep queues named elsewhere,
// rounded up to 8 fixed slots as spec.md §3 states ("strung on one of 8
// fixed-timeout queues").
type TimerQueueKind int

const (
	TimerKeepAlive TimerQueueKind = iota
	TimerRead
	TimerWrite
	TimerBackend
	Timer100Continue
	TimerAcceptRetry
	TimerWorkerIdle
	TimerMisc
	numTimerQueues
)

// Timer is {absolute deadline, callback, data} per spec.md §3.
type Timer struct {
	deadline time.Time
	fn       func()
	queue    TimerQueueKind
	index    int // position in the owning queue's slice, -1 when unset
}

// timerQueue holds Timers for one fixed timeout, naturally ordered since
// inserts are monotonic (spec.md §4.1 "set_timer ... deadline = now +
// queue.timeout. Queues are naturally ordered because inserts are
// monotonic").
type timerQueue struct {
	timeout time.Duration
	timers  []*Timer
}

func (q *timerQueue) push(t *Timer) {
	t.index = len(q.timers)
	q.timers = append(q.timers, t)
}

func (q *timerQueue) remove(t *Timer) {
	if t.index < 0 || t.index >= len(q.timers) || q.timers[t.index] != t {
		return
	}
	last := len(q.timers) - 1
	q.timers[t.index] = q.timers[last]
	q.timers[t.index].index = t.index
	q.timers = q.timers[:last]
	t.index = -1
}

// expired pops and returns every timer whose deadline is <= now. It scans
// the whole queue and returns timers in slice order, which is not strictly
// deadline order once remove has swapped a later timer into a freed slot.
func (q *timerQueue) expired(now time.Time) []*Timer {
	var out []*Timer
	kept := q.timers[:0]
	for _, t := range q.timers {
		if !now.Before(t.deadline) {
			out = append(out, t)
		} else {
			kept = append(kept, t)
		}
	}
	for i, t := range kept {
		t.index = i
	}
	q.timers = kept
	return out
}

// defaultTimeouts mirrors the durations named across spec.md §4.2 (100ms
// accept retry implied by listener poll cadence), §6 (1.5s 100-continue
// default wait), §5 (5s shutdown_timeout used for worker-idle reaping) and
// reasonable per-queue defaults for the remaining operations; callers may
// override via SetTimeout before the loop starts.
var defaultTimeouts = [numTimerQueues]time.Duration{
	TimerKeepAlive:   75 * time.Second,
	TimerRead:        10 * time.Second,
	TimerWrite:       10 * time.Second,
	TimerBackend:     10 * time.Second,
	Timer100Continue: 1500 * time.Millisecond,
	TimerAcceptRetry: 100 * time.Millisecond,
	TimerWorkerIdle:  5 * time.Second,
	TimerMisc:        30 * time.Second,
}
