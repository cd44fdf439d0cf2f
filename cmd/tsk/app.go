package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/auth"
	"github.com/mschirtzinger/tasksync/internal/config"
	"github.com/mschirtzinger/tasksync/internal/db"
	"github.com/mschirtzinger/tasksync/internal/netcheck"
	"github.com/mschirtzinger/tasksync/internal/remote"
	tsync "github.com/mschirtzinger/tasksync/internal/sync"
	"github.com/mschirtzinger/tasksync/internal/tasks"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

// app is everything a command needs, built explicitly per invocation.
type app struct {
	cfg      *config.Config
	store    *db.DB
	remote   remote.Store
	checker  netcheck.Checker
	engine   *tsync.Engine
	sessions *auth.FileStore
	svc      *tasks.Service
	logOut   io.Writer

	closers []func() error
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.remoteKind != "" {
		cfg.Remote.Kind = o.remoteKind
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// open loads config, opens the store and wires the sync engine.
func (o *rootOptions) open(ctx context.Context) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	logOut, closeLog := cfg.LogOutput()
	a.logOut = logOut
	a.closers = append(a.closers, closeLog)

	store, err := db.Open(cfg.DBPath())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	if err := store.InitSchema(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("%w: %w", tasks.ErrLocalStore, err)
	}

	a.remote = o.remote
	if a.remote == nil {
		a.remote = newRemote(cfg, a)
	}
	a.checker = newChecker(cfg, a.remote, o.offline)

	a.engine = tsync.New(store, a.remote, a.checker,
		tsync.WithLogger(config.NewLogger(logOut, "sync")),
		tsync.WithVerbose(o.verbose),
	)
	a.sessions = newSessionStore(cfg)
	a.svc = tasks.NewService(store, a.engine, a.sessions)
	return a, nil
}

// timeRounding trims durations in command output.
const timeRounding = time.Millisecond

func newSessionStore(cfg *config.Config) *auth.FileStore {
	return auth.NewFileStore(cfg.SessionPath())
}

func newRemote(cfg *config.Config, a *app) remote.Store {
	if cfg.Remote.Kind == config.RemoteMemory {
		return remote.NewMemory()
	}
	r := remote.NewRedis(remote.RedisConfig{
		Addr:        cfg.Remote.Addr,
		Password:    cfg.Remote.Password,
		DB:          cfg.Remote.DB,
		Prefix:      cfg.Remote.Prefix,
		DialTimeout: cfg.Remote.DialTimeout,
		RateLimit:   cfg.Remote.RateLimit,
		Burst:       cfg.Remote.Burst,
	})
	a.closers = append(a.closers, r.Close)
	return r
}

func newChecker(cfg *config.Config, rs remote.Store, offline bool) netcheck.Checker {
	if offline {
		return netcheck.NewStatic(false)
	}
	switch cfg.Netcheck.Mode {
	case config.NetOnline:
		return netcheck.NewStatic(true)
	case config.NetOffline:
		return netcheck.NewStatic(false)
	case config.NetDial:
		return netcheck.NewDialChecker(cfg.Netcheck.Addr, cfg.Netcheck.Timeout)
	default:
		return netcheck.NewPingChecker(rs, cfg.Netcheck.Timeout)
	}
}

// logger returns a component logger on the configured output.
func (a *app) logger(component string) *log.Logger {
	return config.NewLogger(a.logOut, component)
}

// Close waits for background pushes, then releases resources in reverse
// order.
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// pull runs the pre-read pull unless disabled, and warns on failure.
func (a *app) pull(cmd *cobra.Command, noSync bool) {
	if noSync {
		return
	}
	res := a.svc.Pull(cmd.Context())
	if res.Status == tsync.PullFailed {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Sync failed, showing local data: %v\n", ui.RenderWarn("⚠"), res.Err)
	}
}

// withApp opens the app for the duration of fn.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := o.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
