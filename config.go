package tempuskv

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

/*
config.go defines Config and the functional-options pattern this package
uses for construction:

	db, err := Open(Config{Path: "./data"}, WithReaperInterval(5*time.Second))

Zero-valued optional fields fall back to their documented defaults
(applied by Config.defaults, and by Open for CleanupHook), so callers only
need to set Path, or InMemory, plus what they want to override.
*/

// Mode selects the engine's low_space/high_throughput tuning knob. It also
// governs how often, and with which discard ratio, the background task
// runs Badger value-log GC.
type Mode string

const (
	ModeLowSpace      Mode = "low_space"
	ModeHighThroughput Mode = "high_throughput"
)

// Config holds the recognized configuration options.
type Config struct {
	// Path is the directory for the engine's on-disk files. Required,
	// non-empty after trimming.
	Path string

	// CacheCapacity is the engine page-cache budget in bytes. Default 1 GiB.
	CacheCapacity int64

	// FlushIntervalMs is the periodic flush cadence setting. Default 3000.
	// It is recorded and reported by Db.Info; it is not passed to Badger.
	FlushIntervalMs int64

	// Mode selects low_space (default) or high_throughput engine tuning.
	Mode Mode

	// CleanupHook is invoked once with the opened Db at init; defaults to
	// StartReaper.
	CleanupHook func(*Db)

	// Logger receives structured log output; defaults to a no-op logger.
	Logger *zap.Logger

	// ReaperInterval is the tick cadence of the background reaper.
	ReaperInterval time.Duration
	// ReaperLimit bounds records processed per inner reaper iteration.
	ReaperLimit int
	// ReaperActiveThreshold is the active-handle count above which the
	// reaper sleeps between inner iterations.
	ReaperActiveThreshold int

	// MapLenEnabled turns on the optional O(1) length capability for maps,
	// at the cost of one extra counter write per insert/remove.
	MapLenEnabled bool

	// InMemory runs Badger without persisting to disk; useful for tests.
	InMemory bool

	// HotCacheEntries bounds the in-process read-through cache sitting in
	// front of flat-KV Get (0 disables it entirely).
	HotCacheEntries int
	// HotCacheTTL is the cache's own entry lifetime, independent of any
	// TTL set on the underlying key. Default 5s.
	HotCacheTTL time.Duration
}

// Option mutates a Config before Open constructs the Db.
type Option func(*Config)

func WithCacheCapacity(bytes int64) Option {
	return func(c *Config) { c.CacheCapacity = bytes }
}

func WithFlushInterval(ms int64) Option {
	return func(c *Config) { c.FlushIntervalMs = ms }
}

func WithMode(m Mode) Option {
	return func(c *Config) { c.Mode = m }
}

func WithCleanupHook(hook func(*Db)) Option {
	return func(c *Config) { c.CleanupHook = hook }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func WithReaperInterval(d time.Duration) Option {
	return func(c *Config) { c.ReaperInterval = d }
}

func WithReaperLimit(n int) Option {
	return func(c *Config) { c.ReaperLimit = n }
}

func WithReaperActiveThreshold(n int) Option {
	return func(c *Config) { c.ReaperActiveThreshold = n }
}

func WithMapLenEnabled(enabled bool) Option {
	return func(c *Config) { c.MapLenEnabled = enabled }
}

func WithInMemory(enabled bool) Option {
	return func(c *Config) { c.InMemory = enabled }
}

func WithHotCacheEntries(n int) Option {
	return func(c *Config) { c.HotCacheEntries = n }
}

func WithHotCacheTTL(d time.Duration) Option {
	return func(c *Config) { c.HotCacheTTL = d }
}

// defaults fills every zero-valued field with its documented default.
// Unlike a config where an unset interval disables the background work
// entirely, here the reaper always defaults to on.
func (c Config) defaults() Config {
	if c.CacheCapacity == 0 {
		c.CacheCapacity = 1 << 30 // 1 GiB
	}
	if c.FlushIntervalMs == 0 {
		c.FlushIntervalMs = 3000
	}
	if c.Mode == "" {
		c.Mode = ModeLowSpace
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.ReaperInterval == 0 {
		c.ReaperInterval = 10 * time.Second
	}
	if c.ReaperLimit == 0 {
		c.ReaperLimit = 200
	}
	if c.ReaperActiveThreshold == 0 {
		c.ReaperActiveThreshold = 50
	}
	if c.HotCacheTTL == 0 {
		c.HotCacheTTL = 5 * time.Second
	}
	return c
}

func (c Config) validate() error {
	if !c.InMemory && strings.TrimSpace(c.Path) == "" {
		return ErrConfig
	}
	return nil
}

// LoadConfig reads a YAML/env-backed configuration file into a Config
// using viper, as a convenience for callers who prefer file-based
// configuration over constructing Config{} and Options by hand. The
// returned Config still has its documented defaults applied by Open;
// LoadConfig only parses recognized keys.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TEMPUSKV")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Path:            v.GetString("path"),
		CacheCapacity:   v.GetInt64("cache_capacity"),
		FlushIntervalMs: v.GetInt64("flush_interval_ms"),
		Mode:            Mode(v.GetString("mode")),
		MapLenEnabled:   v.GetBool("map_len_enabled"),
		InMemory:        v.GetBool("in_memory"),
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeLowSpace
	}
	return cfg, nil
}
