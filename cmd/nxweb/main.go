// Command nxweb is the CLI entry point spec.md §6 names: it parses flags
// and an optional JSON config file, brings up the logger, access log,
// memory cache and handler registry, then starts internal/server and
// blocks until a graceful or forced shutdown.
//
// Grounded on the teacher's examples/basic/main.go (config.New →
// app.New → app.Run flow), generalized from a single-engine HTTP server
// into nxweb's N-net-thread model and spec.md §6's richer flag/signal
// surface.
package main

import (
	"fmt"
	"os"

	"github.com/nxweb/nxweb/internal/accesslog"
	"github.com/nxweb/nxweb/internal/cache"
	"github.com/nxweb/nxweb/internal/config"
	"github.com/nxweb/nxweb/internal/handler"
	"github.com/nxweb/nxweb/internal/httpclient"
	"github.com/nxweb/nxweb/internal/httpserver"
	"github.com/nxweb/nxweb/internal/server"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, helpOrVersion, err := config.Parse(args)
	if helpOrVersion {
		printUsage()
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "nxweb:", err)
		return 1
	}

	if cfg.WorkDir != "" {
		if err := os.Chdir(cfg.WorkDir); err != nil {
			fmt.Fprintln(os.Stderr, "nxweb: chdir:", err)
			return 1
		}
	}

	log, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nxweb: open error log:", err)
		return 1
	}

	accessLogPath := cfg.AccessLog
	if accessLogPath == "" {
		accessLogPath = os.DevNull
	}
	accessLog, err := accesslog.Open(accessLogPath)
	if err != nil {
		log.WithError(err).Error("open access log")
		return 1
	}

	memCache := cache.New(cache.Config{
		Capacity:    cfg.CacheCapacity,
		MaxItemSize: int64(cfg.CacheMaxItemLen),
		TTL:         cfg.CacheTTL,
	})

	httpclient.RetryCount = cfg.ProxyRetryCount

	dispatcher := defaultDispatcher(memCache)

	srv, err := server.New(server.Config{
		HTTPAddr:        cfg.HTTPAddr,
		HTTPSAddr:       cfg.HTTPSAddr,
		NetThreads:      cfg.NetThreads,
		MaxWorkers:      cfg.MaxWorkers,
		PollWaitMs:      cfg.PollWaitMs,
		ArenaWarmup:     cfg.ArenaWarmup,
		ArenaChunkLen:   cfg.ArenaChunkLen,
		ShutdownTimeout: cfg.ShutdownTimeout,
		PidFile:         cfg.PidFile,
		Dispatcher:      dispatcher,
		Cache:           memCache,
		AccessLog:       accessLog,
		Log:             log,
	})
	if err != nil {
		log.WithError(err).Error("start server")
		return 1
	}

	stopWatch, err := config.Watch(cfg.ConfigFile, cfg.ConfigTarget, func(next *config.Config) {
		log.Info("config file changed, note: live values apply on next restart")
		_ = next
	})
	if err != nil {
		log.WithError(err).Warn("watch config file")
	} else {
		defer stopWatch()
	}

	return srv.Run()
}

// defaultDispatcher wires the out-of-the-box handler set every nxweb
// process starts with: a catch-all static-file handler rooted at the
// working directory, matching the teacher's default of serving the
// current directory when no routes are registered.
func defaultDispatcher(memCache *cache.MemCache) *handler.Dispatcher {
	reg := handler.NewRegistry()
	reg.Add(handler.NewStaticFileHandler("/", 0, handler.StaticFileConfig{
		Dir:   ".",
		Cache: httpserver.NewFileCache(1024),
	}))

	return &handler.Dispatcher{
		Registry: reg,
		Cache:    memCache,
	}
}

func printUsage() {
	fmt.Println(`nxweb - an embeddable, event-driven HTTP/1.1 server

Usage: nxweb [flags]

  -d               daemonise
  -s pid           shut down the running instance named by pid-file
  -w dir           chdir before starting
  -l file          error log file
  -a file          access log file
  -p file          pid file
  -u user          drop privileges to this user
  -g group         drop privileges to this group
  -H [ip]:port     HTTP bind address
  -S [ip]:port     HTTPS bind address
  -c file          JSON config file
  -T target        named sub-tree of the config file to load
  -h               this help
  -v               version`)
}
