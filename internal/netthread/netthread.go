// Package netthread wires one OS-thread-affine event loop together with
// its worker factory, response cache access, access-log fragment buffer
// and request-ID generator, implementing spec.md §5's NetThread entity: N
// = min(NumCPU, NXWEB_MAX_NET_THREADS) independent cooperative loops, no
// work stealing, sockets pinned to whichever thread's poller accepted
// them.
//
// Grounded on the teacher's core/engine.go Engine (the single hard-coded
// loop generalized here into N independent instances) and
// core/pools.WorkerPool's per-engine worker ownership.
package netthread

import (
	"runtime"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/nxweb/nxweb/internal/accesslog"
	"github.com/nxweb/nxweb/internal/arena"
	"github.com/nxweb/nxweb/internal/cache"
	"github.com/nxweb/nxweb/internal/conn"
	"github.com/nxweb/nxweb/internal/diag"
	"github.com/nxweb/nxweb/internal/eventloop"
	"github.com/nxweb/nxweb/internal/handler"
	"github.com/nxweb/nxweb/internal/httpserver"
	"github.com/nxweb/nxweb/internal/listener"
	"github.com/nxweb/nxweb/internal/pool"
	"github.com/nxweb/nxweb/internal/poller"
	"github.com/nxweb/nxweb/internal/reqid"
	"github.com/nxweb/nxweb/internal/worker"
)

// MaxNetThreads is spec.md §5's NXWEB_MAX_NET_THREADS.
const MaxNetThreads = 16

// Count picks N = min(NumCPU, MaxNetThreads), spec.md §5.
func Count() int {
	n := runtime.NumCPU()
	if n > MaxNetThreads {
		n = MaxNetThreads
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Config bundles the per-thread sizing knobs shared by every NetThread.
type Config struct {
	MaxWorkers    int
	PollWaitMs    int
	ArenaWarmup   int
	ArenaChunkLen int
	Dispatcher    *handler.Dispatcher
	Cache         *cache.MemCache
	AccessLog     *accesslog.Writer
	Log           *logrus.Logger
}

// NetThread is one cooperative event loop plus its owned worker factory,
// arena pool, byte pool, request-ID generator and access-log fragment
// buffer, all confined to the thread's own goroutine — no field here is
// touched from any other NetThread.
type NetThread struct {
	num    int
	loop   *eventloop.Loop
	worker *worker.Factory
	reqGen *reqid.Generator
	log    *accesslog.ThreadLog
	bufs   *pool.BytePool
	arenas *pool.Object
	conns  map[int]*conn.Connection

	cfg Config

	activeConns atomic.Int64
}

// New builds the platform poller and every per-thread pool for thread
// number num (0-based, also used as the high byte of every request ID it
// mints, spec.md §3's ServerProto.id composition).
func New(num int, cfg Config, corkFn func(fd int, on bool)) (*NetThread, error) {
	p, err := poller.NewPoller()
	if err != nil {
		return nil, err
	}

	nt := &NetThread{
		num:    num,
		loop:   eventloop.New(p, corkFn),
		worker: worker.NewFactory(cfg.MaxWorkers),
		reqGen: reqid.NewGenerator(byte(num)),
		log:    accesslog.NewThreadLog(num),
		bufs:   pool.NewBytePool(),
		conns:  make(map[int]*conn.Connection),
		cfg:    cfg,
	}
	nt.arenas = pool.New(pool.Config{
		New:        func() any { return arena.New(cfg.ArenaChunkLen) },
		Reset:      func(v any) { v.(*arena.Arena).Reset() },
		WarmupSize: cfg.ArenaWarmup,
	})
	cfg.AccessLog.Register(nt.log)
	return nt, nil
}

// Loop returns the thread's event loop, for Listener.Register.
func (nt *NetThread) Loop() *eventloop.Loop { return nt.loop }

// AccessLog returns the thread's unsynchronized fragment buffer.
func (nt *NetThread) AccessLog() *accesslog.ThreadLog { return nt.log }

// ActiveConnections reports the current live-connection count, for
// internal/diag and internal/metrics.
func (nt *NetThread) ActiveConnections() int64 { return nt.activeConns.Load() }

// Stats reports this thread's contribution to a SIGUSR2 dump. Read
// buffers come from plain sync.Pool tiers with no hit-rate wrapper
// (internal/pool.BytePool) and connections are not pooled, so only the
// arena pool — the one per-thread pool built on internal/pool.Object —
// reports gets/news/hit rate; ConnPool and BufferPool are left at their
// zero values rather than faked.
func (nt *NetThread) Stats() diag.ThreadStats {
	_, _, entries, capacity := nt.cfg.Cache.Stats()
	return diag.ThreadStats{
		ThreadNum:         nt.num,
		ActiveConnections: int(nt.activeConns.Load()),
		ArenaPool:         nt.arenas.Stats(),
		CacheEntries:      entries,
		CacheCapacity:     capacity,
	}
}

// onAccept wires a freshly accepted fd into a new Connection bound to a
// fresh ServerProto sharing this thread's dispatcher, request-ID
// generator and pooled arena.
func (nt *NetThread) onAccept(fd int) {
	a := nt.arenas.Get().(*arena.Arena)
	c := conn.New(fd, nt.loop, nt.bufs, func() *httpserver.ServerProto {
		return httpserver.NewServerProto(nt.loop, nt.reqGen, nt.cfg.Dispatcher, a)
	})
	nt.activeConns.Add(1)
	c.SetOnClose(func(closed *conn.Connection) {
		delete(nt.conns, closed.Fd())
		nt.activeConns.Add(-1)
		nt.arenas.Put(a)
	})
	nt.conns[fd] = c
}

// Run drives the loop forever. listeners are registered before the first
// iteration; corkFn was already bound at construction.
func (nt *NetThread) Run(listeners []*listener.Listener) {
	for _, ln := range listeners {
		if err := ln.Register(nt.loop); err != nil {
			nt.cfg.Log.WithError(err).WithField("addr", ln.Addr()).Error("register listener")
		}
	}

	byFd := make(map[int]*listener.Listener, len(listeners))
	for _, ln := range listeners {
		byFd[ln.Fd()] = ln
	}

	nt.loop.Run(nt.cfg.PollWaitMs, func(fd int) {
		if ln, ok := byFd[fd]; ok {
			ln.Accept(nt.loop, nt.onAccept)
			return
		}
	}, nt.arenas)
}

// Shutdown stops accepting and requests the loop to exit once drained,
// spec.md §5: "net threads stop accepting, unsubscribe listeners,
// finalise factories and proxy pools, and exit their loop."
func (nt *NetThread) Shutdown(listeners []*listener.Listener) {
	nt.loop.Wake(func() {
		for _, ln := range listeners {
			ln.Unregister(nt.loop)
		}
		nt.worker.Close()
		nt.loop.Shutdown()
	})
}
