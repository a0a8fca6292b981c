// Package config loads publog settings from publog.yaml and PUBLOG_*
// environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dfryer1193/publog/blog/listing"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "PUBLOG"
	FileName  = "publog"

	BackendFilesystem = "filesystem"
	BackendDatabase   = "database"
)

// Config is the resolved configuration.
type Config struct {
	ContentRoot  string
	RegistryPath string
	LogLevel     string

	Cache struct {
		Dir            string
		FileEnabled    bool
		MemoryEnabled  bool
		MemorySize     int
		LockStaleAfter time.Duration
		RedisURL       string
	}

	Storage struct {
		Backend string
	}

	Database struct {
		Path string
	}

	Jobs struct {
		Timeout time.Duration
	}

	Server struct {
		Port    int
		BaseURL string
	}
}

// Loader owns the viper instance a Config was read from, so a backend
// switch can be written back to the same file.
type Loader struct {
	mu sync.Mutex
	v  *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("content_root", "content")
	v.SetDefault("registry_path", "registry.yaml")
	v.SetDefault("log_level", "info")
	v.SetDefault("cache.dir", ".cache/listings")
	v.SetDefault("cache.file_enabled", true)
	v.SetDefault("cache.memory_enabled", true)
	v.SetDefault("cache.memory_size", listing.DefaultMemorySize)
	v.SetDefault("cache.lock_stale_after", listing.DefaultLockStaleAfter)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("storage.backend", BackendFilesystem)
	v.SetDefault("database.path", "publog.db")
	v.SetDefault("jobs.timeout", 10*time.Minute)
	v.SetDefault("server.port", 8080)
	v.SetDefault("site.base_url", "")
}

// NewLoader reads file if it is non-empty, otherwise looks for publog.yaml
// in the working directory. A missing default file is not an error.
func NewLoader(file string) (*Loader, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return &Loader{v: v}, nil
}

// Load returns the current configuration.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := l.v
	cfg := &Config{
		ContentRoot:  v.GetString("content_root"),
		RegistryPath: v.GetString("registry_path"),
		LogLevel:     v.GetString("log_level"),
	}
	cfg.Cache.Dir = v.GetString("cache.dir")
	cfg.Cache.FileEnabled = v.GetBool("cache.file_enabled")
	cfg.Cache.MemoryEnabled = v.GetBool("cache.memory_enabled")
	cfg.Cache.MemorySize = v.GetInt("cache.memory_size")
	cfg.Cache.LockStaleAfter = v.GetDuration("cache.lock_stale_after")
	cfg.Cache.RedisURL = v.GetString("cache.redis_url")
	cfg.Storage.Backend = v.GetString("storage.backend")
	cfg.Database.Path = v.GetString("database.path")
	cfg.Jobs.Timeout = v.GetDuration("jobs.timeout")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.BaseURL = v.GetString("site.base_url")

	switch cfg.Storage.Backend {
	case BackendFilesystem, BackendDatabase:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Cache.MemorySize <= 0 {
		return nil, fmt.Errorf("cache.memory_size must be positive, got %d", cfg.Cache.MemorySize)
	}
	return cfg, nil
}

// ListingConfig maps the cache settings onto the listing cache.
func (c *Config) ListingConfig() listing.Config {
	return listing.Config{
		Dir:            c.Cache.Dir,
		FileEnabled:    c.Cache.FileEnabled,
		MemoryEnabled:  c.Cache.MemoryEnabled,
		MemorySize:     c.Cache.MemorySize,
		LockStaleAfter: c.Cache.LockStaleAfter,
	}
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// SwitchBackend sets storage.backend and persists it. Without a config file
// in use, publog.yaml is created in the working directory.
func (l *Loader) SwitchBackend(ctx context.Context, backend string) error {
	if backend != BackendFilesystem && backend != BackendDatabase {
		return fmt.Errorf("unknown storage backend %q", backend)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.v.Set("storage.backend", backend)
	if file := l.v.ConfigFileUsed(); file != "" {
		return l.v.WriteConfigAs(file)
	}
	if err := l.v.SafeWriteConfigAs(FileName + ".yaml"); err != nil {
		if _, statErr := os.Stat(FileName + ".yaml"); statErr == nil {
			return l.v.WriteConfigAs(FileName + ".yaml")
		}
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
