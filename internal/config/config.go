// Package config implements the CLI surface and config-file layering
// spec.md §6 describes: flags for daemonisation, bind addresses, log
// paths and privilege drop, optionally overridden by a JSON config file
// and environment variables, with the file re-read on change.
//
// Grounded on SPEC_FULL.md §6's DOMAIN STACK binding: `spf13/cobra` for
// the flag surface and `spf13/viper` for the JSON/env layering, the same
// pairing `nabbar-golib`'s and `thushan-olla`'s config packages use. This
// repo's single static Config struct doesn't need `nabbar-golib`'s
// dynamic component-registration framework, so the flags bind directly
// into one viper instance rather than through that machinery.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config mirrors spec.md §6's CLI flags plus the sizing knobs
// internal/server.Config and internal/netthread.Config need.
type Config struct {
	Daemonize    bool
	ShutdownPid  int
	WorkDir      string
	ErrorLog     string
	AccessLog    string
	PidFile      string
	User         string
	Group        string
	HTTPAddr     string
	HTTPSAddr    string
	ConfigFile   string
	ConfigTarget string

	NetThreads      int
	MaxWorkers      int
	PollWaitMs      int
	ArenaWarmup     int
	ArenaChunkLen   int
	ShutdownTimeout time.Duration

	CacheCapacity   int
	CacheMaxItemLen int
	CacheTTL        time.Duration

	ProxyRetryCount int
}

// defaults match spec.md's named constants where it names one, and
// otherwise the teacher's own flat-file sizing.
func defaults(v *viper.Viper) {
	v.SetDefault("http", ":8080")
	v.SetDefault("https", "")
	v.SetDefault("net_threads", 0) // 0 -> netthread.Count()
	v.SetDefault("max_workers", 8)
	v.SetDefault("poll_wait_ms", 100)
	v.SetDefault("arena_warmup", 16)
	v.SetDefault("arena_chunk_len", 8192)
	v.SetDefault("shutdown_timeout", 5*time.Second)
	v.SetDefault("max_cached_items", 10000)
	v.SetDefault("max_cached_item_size", 1<<20)
	v.SetDefault("cache_ttl", 30*time.Second)
	v.SetDefault("proxy_retry_count", 2)
}

// Parse builds the cobra flag surface spec.md §6 names, binds it onto a
// viper instance alongside any -c config file and NXWEB_-prefixed env
// vars, and unmarshals the result. args is normally os.Args[1:].
//
// When args contain -h/--help or -v/--version, Parse returns a nil Config
// with helpOrVersion set and does not execute the command.
func Parse(args []string) (cfg *Config, helpOrVersion bool, err error) {
	v := viper.New()
	v.SetEnvPrefix("NXWEB")
	v.AutomaticEnv()
	defaults(v)

	cfg = &Config{}
	root := &cobra.Command{
		Use:           "nxweb",
		Short:         "nxweb HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bindAndLoad(cmd, v, cfg)
		},
	}

	flags := root.Flags()
	flags.BoolP("daemonize", "d", false, "daemonise")
	flags.IntP("shutdown", "s", 0, "shut down the running instance named by pid-file")
	flags.StringP("workdir", "w", "", "chdir before starting")
	flags.StringP("error-log", "l", "", "error log file")
	flags.StringP("access-log", "a", "", "access log file")
	flags.StringP("pid-file", "p", "", "pid file")
	flags.StringP("user", "u", "", "drop privileges to this user")
	flags.StringP("group", "g", "", "drop privileges to this group")
	flags.StringP("http", "H", "", "HTTP bind address, [ip]:port")
	flags.StringP("https", "S", "", "HTTPS bind address, [ip]:port")
	flags.StringP("config", "c", "", "JSON config file")
	flags.StringP("config-target", "T", "", "named sub-tree of the config file to load")
	root.Flags().BoolP("version", "v", false, "print version and exit")

	root.SetArgs(args)
	if err := v.BindPFlags(flags); err != nil {
		return nil, false, err
	}

	if versionRequested(args) {
		return nil, true, nil
	}

	if err := root.Execute(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

func versionRequested(args []string) bool {
	for _, a := range args {
		if a == "-v" || a == "--version" || a == "-h" || a == "--help" {
			return true
		}
	}
	return false
}

func bindAndLoad(cmd *cobra.Command, v *viper.Viper, cfg *Config) error {
	cfg.ConfigFile, _ = cmd.Flags().GetString("config")
	cfg.ConfigTarget, _ = cmd.Flags().GetString("config-target")

	if cfg.ConfigFile != "" {
		if err := loadConfigFile(v, cfg.ConfigFile, cfg.ConfigTarget); err != nil {
			return fmt.Errorf("load config %s: %w", cfg.ConfigFile, err)
		}
	}

	cfg.ShutdownPid, _ = cmd.Flags().GetInt("shutdown")
	populate(v, cfg)
	return nil
}

// populate reads every setting out of v by the same keys defaults/
// BindPFlags/the JSON config file all share, so a config-file value only
// takes effect when its key matches the flag it's meant to override
// (e.g. an on-disk override for -l uses the key "error-log", not
// "error_log").
func populate(v *viper.Viper, cfg *Config) {
	cfg.Daemonize = v.GetBool("daemonize")
	cfg.WorkDir = v.GetString("workdir")
	cfg.ErrorLog = v.GetString("error-log")
	cfg.AccessLog = v.GetString("access-log")
	cfg.PidFile = v.GetString("pid-file")
	cfg.User = v.GetString("user")
	cfg.Group = v.GetString("group")
	cfg.HTTPAddr = v.GetString("http")
	cfg.HTTPSAddr = v.GetString("https")

	cfg.NetThreads = v.GetInt("net_threads")
	cfg.MaxWorkers = v.GetInt("max_workers")
	cfg.PollWaitMs = v.GetInt("poll_wait_ms")
	cfg.ArenaWarmup = v.GetInt("arena_warmup")
	cfg.ArenaChunkLen = v.GetInt("arena_chunk_len")
	cfg.ShutdownTimeout = v.GetDuration("shutdown_timeout")
	cfg.CacheCapacity = v.GetInt("max_cached_items")
	cfg.CacheMaxItemLen = v.GetInt("max_cached_item_size")
	cfg.CacheTTL = v.GetDuration("cache_ttl")
	cfg.ProxyRetryCount = v.GetInt("proxy_retry_count")
}

// loadConfigFile reads path as JSON into v. When target is non-empty,
// only that named sub-tree is merged, per spec.md §6's -T flag.
func loadConfigFile(v *viper.Viper, path, target string) error {
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	if target == "" {
		return nil
	}
	sub := v.Sub(target)
	if sub == nil {
		return fmt.Errorf("config target %q not found in %s", target, path)
	}
	return v.MergeConfigMap(sub.AllSettings())
}

// Watch arms a file-change-triggered config reload: fsnotify (via viper's
// WatchConfig) fires onChange with a freshly reloaded Config whenever the
// backing file is rewritten. It is not tied to SIGHUP. Returns a no-op stop func when cfg wasn't
// loaded from a file.
func Watch(configFile, configTarget string, onChange func(*Config)) (stop func(), err error) {
	if configFile == "" {
		return func() {}, nil
	}
	v := viper.New()
	defaults(v)
	if err := loadConfigFile(v, configFile, configTarget); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		next := &Config{ConfigFile: configFile, ConfigTarget: configTarget}
		populate(v, next)
		onChange(next)
	})
	v.WatchConfig()
	return func() {}, nil
}
