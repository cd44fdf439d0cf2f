// Package config loads tsk settings from config.toml, TSK_* environment
// variables and defaults, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the config file inside the home directory.
const FileName = "config.toml"

// EnvPrefix prefixes every environment override (TSK_REMOTE_ADDR, ...).
const EnvPrefix = "TSK"

// Remote kinds.
const (
	RemoteRedis  = "redis"
	RemoteMemory = "memory"
)

// Connectivity check modes.
const (
	NetPing    = "ping"
	NetDial    = "dial"
	NetOnline  = "online"
	NetOffline = "offline"
)

// ErrExists is returned by WriteDefault when the file is already there.
var ErrExists = errors.New("config file already exists")

// Config is the resolved configuration.
type Config struct {
	// Home is the directory holding config.toml, the database and the
	// session. It is not read from the file.
	Home string `mapstructure:"-"`

	DB       DBConfig       `mapstructure:"db"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Netcheck NetcheckConfig `mapstructure:"netcheck"`
	Log      LogConfig      `mapstructure:"log"`
	Serve    ServeConfig    `mapstructure:"serve"`
	Device   DeviceConfig   `mapstructure:"device"`
}

// DBConfig locates the local store.
type DBConfig struct {
	// Path is relative to Home unless absolute.
	Path string `mapstructure:"path"`
}

// RemoteConfig selects and tunes the remote document store.
type RemoteConfig struct {
	Kind        string        `mapstructure:"kind"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Prefix      string        `mapstructure:"prefix"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	Burst       int           `mapstructure:"burst"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// NetcheckConfig selects the connectivity check.
type NetcheckConfig struct {
	Mode    string        `mapstructure:"mode"`
	Addr    string        `mapstructure:"addr"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig routes log output. An empty File means stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ServeConfig tunes `tsk serve`.
type ServeConfig struct {
	Port int `mapstructure:"port"`
	// PullSchedule is a cron spec; empty disables scheduled pulls.
	PullSchedule string `mapstructure:"pull_schedule"`
}

// DeviceConfig identifies this installation.
type DeviceConfig struct {
	ID string `mapstructure:"id"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DB: DBConfig{Path: "tasks.db"},
		Remote: RemoteConfig{
			Kind:        RemoteRedis,
			Addr:        "localhost:6379",
			Prefix:      "tsk:",
			RateLimit:   20,
			Burst:       5,
			DialTimeout: 5 * time.Second,
		},
		Netcheck: NetcheckConfig{Mode: NetPing, Timeout: 2 * time.Second},
		Log:      LogConfig{MaxSizeMB: 10, MaxBackups: 3},
		Serve:    ServeConfig{Port: 8080, PullSchedule: "@every 1m"},
	}
}

// HomeDir resolves the tsk home: $TSK_HOME, then $XDG_CONFIG_HOME/tsk,
// then ~/.config/tsk.
func HomeDir() (string, error) {
	if dir := os.Getenv("TSK_HOME"); dir != "" {
		return dir, nil
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "tsk"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tsk"), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("db.path", d.DB.Path)
	v.SetDefault("remote.kind", d.Remote.Kind)
	v.SetDefault("remote.addr", d.Remote.Addr)
	v.SetDefault("remote.password", d.Remote.Password)
	v.SetDefault("remote.db", d.Remote.DB)
	v.SetDefault("remote.prefix", d.Remote.Prefix)
	v.SetDefault("remote.rate_limit", d.Remote.RateLimit)
	v.SetDefault("remote.burst", d.Remote.Burst)
	v.SetDefault("remote.dial_timeout", d.Remote.DialTimeout)
	v.SetDefault("netcheck.mode", d.Netcheck.Mode)
	v.SetDefault("netcheck.addr", d.Netcheck.Addr)
	v.SetDefault("netcheck.timeout", d.Netcheck.Timeout)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("serve.port", d.Serve.Port)
	v.SetDefault("serve.pull_schedule", d.Serve.PullSchedule)
	v.SetDefault("device.id", d.Device.ID)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration. If file is empty, config.toml in the
// home directory is used when present; a missing default file is not an
// error, a missing explicit file is.
func Load(file string) (*Config, error) {
	v := newViper()
	v.SetConfigType("toml")

	var home string
	if file != "" {
		v.SetConfigFile(file)
		home = filepath.Dir(file)
	} else {
		dir, err := HomeDir()
		if err != nil {
			return nil, err
		}
		home = dir
		v.SetConfigFile(filepath.Join(dir, FileName))
	}

	if err := v.ReadInConfig(); err != nil {
		if file != "" || !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Home = home

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Remote.Kind {
	case RemoteRedis, RemoteMemory:
	default:
		return fmt.Errorf("remote.kind must be %q or %q, got %q", RemoteRedis, RemoteMemory, c.Remote.Kind)
	}
	switch c.Netcheck.Mode {
	case NetPing, NetOnline, NetOffline:
	case NetDial:
		if c.Netcheck.Addr == "" {
			return fmt.Errorf("netcheck.addr is required when netcheck.mode is %q", NetDial)
		}
	default:
		return fmt.Errorf("netcheck.mode must be one of ping, dial, online, offline; got %q", c.Netcheck.Mode)
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("serve.port %d out of range", c.Serve.Port)
	}
	return nil
}

// DBPath returns the absolute database path.
func (c *Config) DBPath() string {
	if filepath.IsAbs(c.DB.Path) {
		return c.DB.Path
	}
	return filepath.Join(c.Home, c.DB.Path)
}

// SessionPath returns the session file path.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Home, "session.json")
}

// WriteDefault writes the default configuration with a fresh device id to
// dir/config.toml. It refuses to overwrite unless force is set.
func WriteDefault(dir string, force bool) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil && !force {
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	cfg := Default()
	cfg.Home = dir
	cfg.Device.ID = uuid.NewString()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(fileView(cfg)); err != nil {
		return nil, fmt.Errorf("failed to write config file: %w", err)
	}
	return &cfg, nil
}

// fileView renders durations as strings so the file reads naturally and
// viper decodes them back with its duration hook.
func fileView(cfg Config) map[string]any {
	return map[string]any{
		"db": map[string]any{"path": cfg.DB.Path},
		"remote": map[string]any{
			"kind":         cfg.Remote.Kind,
			"addr":         cfg.Remote.Addr,
			"db":           cfg.Remote.DB,
			"prefix":       cfg.Remote.Prefix,
			"rate_limit":   cfg.Remote.RateLimit,
			"burst":        cfg.Remote.Burst,
			"dial_timeout": cfg.Remote.DialTimeout.String(),
		},
		"netcheck": map[string]any{
			"mode":    cfg.Netcheck.Mode,
			"timeout": cfg.Netcheck.Timeout.String(),
		},
		"log": map[string]any{
			"max_size_mb": cfg.Log.MaxSizeMB,
			"max_backups": cfg.Log.MaxBackups,
		},
		"serve": map[string]any{
			"port":          cfg.Serve.Port,
			"pull_schedule": cfg.Serve.PullSchedule,
		},
		"device": map[string]any{"id": cfg.Device.ID},
	}
}

// LogOutput returns where component loggers write. With log.file set the
// output is a rotating file; the returned closer must be called on exit.
func (c *Config) LogOutput() (io.Writer, func() error) {
	if c.Log.File == "" {
		return os.Stderr, func() error { return nil }
	}

	path := c.Log.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.Home, path)
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		Compress:   true,
	}
	return lj, lj.Close
}

// NewLogger returns a component logger with a bracketed prefix, e.g.
// NewLogger(w, "sync") writes "[sync] ...".
func NewLogger(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags)
}
