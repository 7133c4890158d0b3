// Package server wires the per-thread pieces (internal/netthread,
// internal/listener, internal/accesslog, internal/cache,
// internal/metrics, internal/diag) into the single top-level process
// spec.md §5/§6 describes: N net threads sharing one dispatcher, memory
// cache and access-log writer, brought up and torn down by OS signals.
//
// Grounded on the teacher's app.App (cfg+engine wrapper, Run spawning a
// signal-await goroutine alongside the blocking engine loop), generalized
// from one engine to N net threads and from a bare os.Exit(0) on
// SIGINT/SIGTERM into spec.md §5's staged shutdown (stop accepting,
// unregister listeners, drain, forced exit after ShutdownTimeout) plus the additional
// SIGHUP/SIGUSR1/SIGUSR2 handling spec.md §6 names.
package server

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/nxweb/nxweb/internal/accesslog"
	"github.com/nxweb/nxweb/internal/cache"
	"github.com/nxweb/nxweb/internal/diag"
	"github.com/nxweb/nxweb/internal/handler"
	"github.com/nxweb/nxweb/internal/listener"
	"github.com/nxweb/nxweb/internal/netthread"
)

// Config bundles everything Server needs beyond what each NetThread
// already owns per-thread.
type Config struct {
	HTTPAddr        string // "-H", empty disables
	HTTPSAddr       string // "-S", empty disables (TLS is out of scope, spec.md §1; kept only as a bind-address placeholder)
	NetThreads      int    // 0 selects netthread.Count()
	MaxWorkers      int
	PollWaitMs      int
	ArenaWarmup     int
	ArenaChunkLen   int
	ShutdownTimeout time.Duration // default 5s, spec.md §5
	PidFile         string

	Dispatcher *handler.Dispatcher
	Cache      *cache.MemCache
	AccessLog  *accesslog.Writer
	Log        *logrus.Logger
}

// Server owns every net thread and listener for one process lifetime.
type Server struct {
	cfg       Config
	threads   []*netthread.NetThread
	listeners []*listener.Listener
}

// New binds every configured listener and constructs one NetThread per
// CPU (bounded by netthread.MaxNetThreads), all sharing cfg.Dispatcher,
// cfg.Cache and cfg.AccessLog as spec.md §5's shared-resource discipline
// requires.
func New(cfg Config) (*Server, error) {
	if cfg.NetThreads <= 0 {
		cfg.NetThreads = netthread.Count()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	var listeners []*listener.Listener
	for _, addr := range []string{cfg.HTTPAddr, cfg.HTTPSAddr} {
		if addr == "" {
			continue
		}
		ln, err := listener.Bind(addr)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", addr, err)
		}
		listeners = append(listeners, ln)
	}

	ntCfg := netthread.Config{
		MaxWorkers:    cfg.MaxWorkers,
		PollWaitMs:    cfg.PollWaitMs,
		ArenaWarmup:   cfg.ArenaWarmup,
		ArenaChunkLen: cfg.ArenaChunkLen,
		Dispatcher:    cfg.Dispatcher,
		Cache:         cfg.Cache,
		AccessLog:     cfg.AccessLog,
		Log:           cfg.Log,
	}

	threads := make([]*netthread.NetThread, cfg.NetThreads)
	for i := range threads {
		nt, err := netthread.New(i, ntCfg, corkSocket)
		if err != nil {
			for _, ln := range listeners {
				ln.Close()
			}
			return nil, fmt.Errorf("net thread %d: %w", i, err)
		}
		threads[i] = nt
	}

	return &Server{cfg: cfg, threads: threads, listeners: listeners}, nil
}

// Run starts every net thread on its own goroutine, writes the pid file,
// and blocks handling signals until a graceful or forced shutdown
// completes. It returns the process exit code spec.md §6 names (0 on a
// graceful shutdown; this function never itself returns 1 — argument
// errors are reported by internal/config before Run is ever called).
func (s *Server) Run() int {
	if s.cfg.PidFile != "" {
		if err := os.WriteFile(s.cfg.PidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
			s.cfg.Log.WithError(err).Warn("write pid file")
		}
		defer os.Remove(s.cfg.PidFile)
	}

	var wg sync.WaitGroup
	for _, nt := range s.threads {
		wg.Add(1)
		go func(nt *netthread.NetThread) {
			defer wg.Done()
			nt.Run(s.listeners)
		}(nt)
	}

	sig := make(chan os.Signal, 8)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGALRM)

	for {
		switch <-sig {
		case syscall.SIGTERM, syscall.SIGINT:
			s.cfg.Log.Info("shutdown signal received, draining net threads")
			s.shutdown(&wg, sig)
			return 0
		case syscall.SIGHUP, syscall.SIGUSR1:
			s.reopenLogs()
		case syscall.SIGUSR2:
			s.dumpDiagnostics()
		case syscall.SIGALRM:
			// Ignored: shutdown enforces ShutdownTimeout with its own
			// timer and does not wait for SIGALRM.
		}
	}
}

// shutdown flips every thread's loop into its drain-and-exit path, then
// waits for all of them to return from Run, or forces os.Exit(1) if
// ShutdownTimeout elapses first. The deadline is a Go timer; SIGALRM
// plays no part in it.
func (s *Server) shutdown(wg *sync.WaitGroup, sig chan os.Signal) {
	for _, nt := range s.threads {
		nt.Shutdown(s.listeners)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if err := s.cfg.AccessLog.Close(); err != nil {
			s.cfg.Log.WithError(err).Warn("close access log")
		}
	case <-time.After(s.cfg.ShutdownTimeout):
		s.cfg.Log.Warn("shutdown timeout exceeded, forcing exit")
		os.Exit(1)
	}
}

func (s *Server) reopenLogs() {
	if err := s.cfg.AccessLog.Reopen(); err != nil {
		s.cfg.Log.WithError(err).Error("reopen access log")
	}
	if f, ok := s.cfg.Log.Out.(*os.File); ok {
		reopened, err := os.OpenFile(f.Name(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			s.cfg.Log.WithError(err).Error("reopen error log")
			return
		}
		s.cfg.Log.SetOutput(reopened)
	}
}

// corkSocket toggles TCP_CORK on fd, the batching eventloop.Loop.Cork/
// Uncork drive around each write burst (spec.md §4.1). Errors are
// ignored: a failed cork toggle degrades to uncorked writes, never to a
// protocol error.
func corkSocket(fd int, on bool) {
	val := 0
	if on {
		val = 1
	}
	unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_CORK, val)
}

func (s *Server) dumpDiagnostics() {
	stats := make([]diag.ThreadStats, len(s.threads))
	for i, nt := range s.threads {
		stats[i] = nt.Stats()
	}
	if err := diag.Dump(s.cfg.Log.Out, stats); err != nil {
		s.cfg.Log.WithError(err).Error("dump diagnostics")
	}
}
