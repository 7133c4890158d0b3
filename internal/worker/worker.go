// Package worker implements the per-net-thread worker factory spec.md
// §4.4 describes: a pool of OS threads running blocking handler.on_request
// calls, signalled back to the owning net thread via an eventfd-style
// completion channel.
//
// Grounded on the teacher's core/pools/worker_pool.go work-stealing
// goroutine pool, generalized from round-robin task submission (fire and
// forget) to the spec's borrow/signal/complete contract, since the INWORKER
// flow needs a specific worker-to-connection binding and a completion
// notification the owning net thread can select on, not just eventual
// execution.
package worker

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Job is one blocking handler invocation offloaded to a worker.
type Job struct {
	Run      func()
	Done     chan struct{}
}

// worker is one OS-thread-affine goroutine, matching spec.md §5: "Each
// worker thread is affine to any net thread that created it."
type worker struct {
	jobs chan *Job
}

func (w *worker) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for job := range w.jobs {
		job.Run()
		close(job.Done)
	}
}

// Factory is the per-net-thread pool of idle workers, spec.md §4.4 step 1:
// "The net thread pops (or creates, up to NXWEB_MAX_WORKERS) an idle
// worker ... and signals the worker."
type Factory struct {
	maxWorkers int

	mu    sync.Mutex
	cond  *sync.Cond
	idle  []*worker
	count int

	submitted atomic.Uint64
	completed atomic.Uint64
}

// NewFactory creates a Factory capped at maxWorkers live goroutines (0
// selects NXWEB_MAX_WORKERS' conventional default of 4x CPU count).
func NewFactory(maxWorkers int) *Factory {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU() * 4
	}
	f := &Factory{maxWorkers: maxWorkers}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Submit runs fn on an idle or newly created worker and returns a channel
// closed once fn has completed and its worker is back on the idle list,
// the net thread's eventfd-completion subscription point (spec.md §4.4
// steps 2-3). Submit blocks the calling goroutine only long enough to hand
// off the job, never for fn's duration.
func (f *Factory) Submit(fn func()) <-chan struct{} {
	f.submitted.Add(1)
	job := &Job{Run: fn, Done: make(chan struct{})}
	finished := make(chan struct{})

	w := f.acquire()
	w.jobs <- job
	go func() {
		<-job.Done
		f.completed.Add(1)
		f.release(w)
		close(finished)
	}()
	return finished
}

// acquire pops an idle worker or creates a new one, up to maxWorkers live
// goroutines (spec.md §4.4 step 1, §5 "≤ NXWEB_MAX_WORKERS"). Once the cap
// is hit with no idle worker available, it blocks until release frees one
// rather than spawning past the cap.
func (f *Factory) acquire() *worker {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if n := len(f.idle); n > 0 {
			w := f.idle[n-1]
			f.idle = f.idle[:n-1]
			return w
		}
		if f.count < f.maxWorkers {
			w := &worker{jobs: make(chan *Job, 1)}
			f.count++
			go w.loop()
			return w
		}
		f.cond.Wait()
	}
}

func (f *Factory) release(w *worker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.idle) >= f.maxWorkers {
		close(w.jobs)
		f.count--
		f.cond.Broadcast()
		return
	}
	f.idle = append(f.idle, w)
	f.cond.Broadcast()
}

// Stats reports submitted/completed counts for internal/metrics and
// internal/diag.
func (f *Factory) Stats() (submitted, completed uint64, liveWorkers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted.Load(), f.completed.Load(), f.count
}

// Close tears down idle workers; in-flight jobs are left to finish.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.idle {
		close(w.jobs)
	}
	f.idle = nil
}
