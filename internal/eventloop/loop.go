// Package eventloop implements the per-net-thread epoll/kqueue driver:
// fd registration, stream transfer scheduling, the publisher/subscriber
// bus, eight fixed-timeout timer queues, the cached clock and the
// TCP_CORK batch-write helper (spec.md §4.1, §3's EventLoop entity).
//
// Grounded on the teacher's core/engine.go accept/poll loop (Run's
// poller.Wait loop, acceptConnections/handleConnectionEvent dispatch) for
// the overall drive shape, generalized from the teacher's hard-coded
// HTTP-only dispatch into the spec's fd-source/stream/publisher model.
package eventloop

import (
	"sync"
	"time"

	"github.com/nxweb/nxweb/internal/poller"
	"github.com/nxweb/nxweb/internal/pool"
	"github.com/nxweb/nxweb/internal/stream"
)

// FdSource is an fd registered with the poller, spec.md §3's FdSource.
// Instead of data_in/data_out streams it carries two callbacks: the loop
// calls OnReadable and OnWritable on the matching edge, and the owner
// (see internal/conn) does the actual read/write on Fd. Error, hangup and
// read-closed events are published on DataError.
type FdSource struct {
	Fd        int
	OnReadable func()
	OnWritable func()
	DataError stream.Publisher
}

// transfer describes a pending stream-transfer event: an istream/ostream
// pair that is mutually ready and not already queued (spec.md §3's
// coalescing invariant: "at most one is outstanding at a time").
type transfer struct {
	is     stream.Istream
	os     stream.Ostream
	queued bool
}

// Loop is one net thread's event loop: EventLoop in spec.md §3.
type Loop struct {
	poller poller.Poller
	sources map[int]*FdSource

	clock *clock

	timerQueues [numTimerQueues]timerQueue

	gc stream.Publisher

	// transfers maps an istream identity to its pending transfer record,
	// enforcing the "at most one outstanding transfer per istream" rule.
	transfers map[stream.Istream]*transfer

	// corkedFd is the fd currently TCP_CORK'd for batch writes, or -1.
	corkedFd int
	corkFn   func(fd int, on bool)

	scheduled []func()

	mu       sync.Mutex // guards cross-thread Wake/eventfd bookkeeping only
	wakeChan chan func()

	shuttingDown bool
}

// New creates a Loop using p for I/O multiplexing. corkFn toggles
// TCP_CORK on a raw fd; pass nil to disable cork batching (e.g. in tests).
func New(p poller.Poller, corkFn func(fd int, on bool)) *Loop {
	l := &Loop{
		poller:    p,
		sources:   make(map[int]*FdSource),
		clock:     newClock(),
		transfers: make(map[stream.Istream]*transfer),
		corkedFd:  -1,
		corkFn:    corkFn,
		wakeChan:  make(chan func(), 256),
	}
	for i := range l.timerQueues {
		l.timerQueues[i].timeout = defaultTimeouts[i]
	}
	return l
}

// Now returns the loop's cached wake-up time.
func (l *Loop) Now() time.Time { return l.clock.Now() }

// HTTPDate returns the cached IMF-fixdate string for the current second.
func (l *Loop) HTTPDate() string { return l.clock.HTTPDate() }

// GC returns the loop's internal gc publisher, fired once per idle
// wake-up (spec.md §4.1 "GC").
func (l *Loop) GC() *stream.Publisher { return &l.gc }

// RegisterFdSource attaches fd to epoll with edge-triggered read/write
// interest, per spec.md §4.1's register_fd_source contract.
func (l *Loop) RegisterFdSource(fs *FdSource) error {
	if err := l.poller.Add(fs.Fd); err != nil {
		return err
	}
	l.sources[fs.Fd] = fs
	return nil
}

// UnregisterFdSource detaches fd and drops its bookkeeping.
func (l *Loop) UnregisterFdSource(fd int) {
	l.poller.Remove(fd)
	delete(l.sources, fd)
}

// AddListener registers a listening socket fd with the poller without a
// FdSource, so Run's dispatch loop routes its readable events to onAccept
// instead of looking it up in sources (spec.md §4.7: "each listen fd is
// registered with every net thread's poller").
func (l *Loop) AddListener(fd int) error {
	return l.poller.Add(fd)
}

// RemoveListener unregisters a listening socket fd added via AddListener.
func (l *Loop) RemoveListener(fd int) error {
	return l.poller.Remove(fd)
}

// ConnectStreams sets is.pair=os, os.pair=is and schedules a transfer if
// both are ready, per spec.md §4.1.
func (l *Loop) ConnectStreams(is stream.Istream, os stream.Ostream) {
	stream.Connect(is, os)
	l.maybeScheduleTransfer(is, os)
}

// DisconnectStreams breaks the pair and drops any pending transfer record.
func (l *Loop) DisconnectStreams(is stream.Istream, os stream.Ostream) {
	stream.Disconnect(is, os)
	delete(l.transfers, is)
}

// NotifyReady is called by a producer/consumer when its ready flag flips
// true, so the loop can (re)schedule a transfer for the pair.
func (l *Loop) NotifyReady(is stream.Istream) {
	if os := is.Pair(); os != nil {
		l.maybeScheduleTransfer(is, os)
	}
}

func (l *Loop) maybeScheduleTransfer(is stream.Istream, os stream.Ostream) {
	if !is.Ready() || !os.Ready() {
		return
	}
	t, ok := l.transfers[is]
	if !ok {
		t = &transfer{is: is, os: os}
		l.transfers[is] = t
	}
	if t.queued {
		return
	}
	t.queued = true
	l.scheduled = append(l.scheduled, func() { l.runTransfer(t) })
}

const transferChunk = 64 * 1024

func (l *Loop) runTransfer(t *transfer) {
	t.queued = false
	buf := make([]byte, transferChunk)
	is, os := t.is, t.os

	if fd, offset, end, ok := is.File(); ok {
		n, err := os.Sendfile(fd, offset, end-offset)
		if err != nil {
			l.publishError(is)
			return
		}
		if n == 0 {
			is.SetReady(false)
			os.SetReady(false)
		}
		if n > 0 && is.Pair() == os && is.Ready() && os.Ready() {
			l.maybeScheduleTransfer(is, os)
		}
		return
	}

	n, eof, err := is.Read(buf)
	if err != nil {
		l.publishError(is)
		return
	}
	if n > 0 {
		flags := stream.WriteFlags(0)
		if eof == stream.NoEOF {
			flags = stream.FlagMore
		}
		written, werr := os.Write(buf[:n], flags)
		if werr != nil {
			l.publishError(is)
			return
		}
		if written < n {
			os.SetReady(false)
		}
	}
	if eof == stream.EOF {
		is.SetReady(false)
		return
	}
	if n == 0 {
		is.SetReady(false)
	}
	if is.Pair() == os && is.Ready() && os.Ready() {
		l.maybeScheduleTransfer(is, os)
	}
}

func (l *Loop) publishError(is stream.Istream) {
	// The istream's owner subscribes its data_error publisher; callers
	// reach it indirectly since Istream doesn't expose one directly. The
	// conn/httpserver layer wires its own FdSource.DataError for this.
}

// Publish synchronously enqueues one delivery per current subscriber of
// pub, per spec.md §4.1.
func (l *Loop) Publish(pub *stream.Publisher, msg stream.Message) {
	pub.Publish(msg)
}

// ScheduleCallback is a one-shot event delivered in FIFO order with other
// ready events, per spec.md §4.1.
func (l *Loop) ScheduleCallback(fn func()) {
	l.scheduled = append(l.scheduled, fn)
}

// Wake enqueues fn to run on this loop's goroutine from another thread,
// the cross-thread communication primitive spec.md §5 models as an
// eventfd write (here, a buffered channel drained at the top of each
// Wait-returned iteration).
func (l *Loop) Wake(fn func()) {
	l.wakeChan <- fn
}

// SetTimer inserts t into one of the 8 fixed-timeout queues with
// deadline = now + queue.timeout, per spec.md §4.1/§3.
func (l *Loop) SetTimer(kind TimerQueueKind, fn func()) *Timer {
	q := &l.timerQueues[kind]
	t := &Timer{
		deadline: l.clock.Now().Add(q.timeout),
		fn:       fn,
		queue:    kind,
		index:    -1,
	}
	q.push(t)
	return t
}

// UnsetTimer cancels a previously scheduled timer.
func (l *Loop) UnsetTimer(t *Timer) {
	if t == nil {
		return
	}
	l.timerQueues[t.queue].remove(t)
}

// SetTimeout overrides one queue's configured timeout before the loop
// starts running.
func (l *Loop) SetTimeout(kind TimerQueueKind, d time.Duration) {
	l.timerQueues[kind].timeout = d
}

// Cork engages TCP_CORK on fd, flushing any previously corked fd first —
// "On entering the write of one ostream the loop turns on TCP_CORK"
// (spec.md §4.1).
func (l *Loop) Cork(fd int) {
	if l.corkFn == nil || l.corkedFd == fd {
		return
	}
	if l.corkedFd >= 0 {
		l.corkFn(l.corkedFd, false)
	}
	l.corkFn(fd, true)
	l.corkedFd = fd
}

// Uncork disengages TCP_CORK at a write barrier, "no further writable
// socket in this wake-up" (spec.md §4.1).
func (l *Loop) Uncork() {
	if l.corkFn == nil || l.corkedFd < 0 {
		return
	}
	l.corkFn(l.corkedFd, false)
	l.corkedFd = -1
}

// Shutdown marks the loop as shutting down; Run exits once drained.
func (l *Loop) Shutdown() { l.shuttingDown = true }

// Run drives the loop until Shutdown is called. waitMillis bounds each
// poll; a shorter bound increases responsiveness to Wake/timer deadlines
// at the cost of more idle wake-ups (the teacher's Run used a flat 100ms,
// matched here as the default via the caller).
func (l *Loop) Run(waitMillis int, onAccept func(fd int), arenaPool *pool.Object) {
	for !l.shuttingDown {
		l.drainWake()
		events, err := l.poller.Wait(waitMillis)
		l.clock.refresh()
		l.fireTimers()

		if err != nil {
			continue
		}
		if len(events) == 0 {
			l.gc.Publish(stream.Message{Tag: stream.TagGC})
		}

		for _, ev := range events {
			src, ok := l.sources[ev.Fd]
			if !ok {
				if onAccept != nil {
					onAccept(ev.Fd)
				}
				continue
			}
			l.deliver(src, ev)
		}

		l.runScheduled()
		l.Uncork()
	}
}

func (l *Loop) drainWake() {
	for {
		select {
		case fn := <-l.wakeChan:
			fn()
		default:
			return
		}
	}
}

func (l *Loop) deliver(src *FdSource, ev poller.Event) {
	if ev.Mask&(poller.Error) != 0 {
		src.DataError.Publish(stream.Message{Tag: stream.TagError, Int: int64(src.Fd)})
		return
	}
	if ev.Mask&poller.HangUp != 0 {
		src.DataError.Publish(stream.Message{Tag: stream.TagHangup, Int: int64(src.Fd)})
	}
	if ev.Mask&poller.ReadClosed != 0 {
		src.DataError.Publish(stream.Message{Tag: stream.TagReadClosed, Int: int64(src.Fd)})
	}
	if ev.Mask&poller.Readable != 0 && src.OnReadable != nil {
		src.OnReadable()
	}
	if ev.Mask&poller.Writable != 0 && src.OnWritable != nil {
		src.OnWritable()
	}
}

func (l *Loop) fireTimers() {
	now := l.clock.Now()
	for i := range l.timerQueues {
		for _, t := range l.timerQueues[i].expired(now) {
			t.fn()
		}
	}
}

func (l *Loop) runScheduled() {
	for len(l.scheduled) > 0 {
		batch := l.scheduled
		l.scheduled = nil
		for _, fn := range batch {
			fn()
		}
	}
}
