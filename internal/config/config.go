// internal/config/config.go
package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"gitnot/internal/archive"
	"gitnot/internal/fingerprint"
	"gitnot/internal/fsys"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// FileName is the config file inside the storage directory.
const FileName = "config.json"

const envPrefix = "GITNOT"

// Defaults.
const (
	DefaultAlgorithm     = fingerprint.AlgorithmSHA256
	DefaultMinorCarry    = 0
	DefaultCompression   = archive.CompressionNone
	DefaultCompressLevel = 3
	DefaultCacheSize     = 256
	DefaultLogLevel      = "info"
	DefaultLogFile       = "logs/gitnot.log"
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
	DefaultDebounce      = 2 * time.Second
)

var DefaultIgnorePatterns = []string{"*.tmp", "*.bak"}

type Config struct {
	// Extensions restricts tracking to these file extensions. Empty tracks all files.
	Extensions     []string `mapstructure:"extensions"`
	IgnorePatterns []string `mapstructure:"ignore_patterns"`
	// Workers is the hashing pool size; 0 uses one per CPU.
	Workers int `mapstructure:"workers"`

	Hash struct {
		Algorithm string `mapstructure:"algorithm"`
	} `mapstructure:"hash"`

	Version struct {
		// MinorCarry rolls the minor number into the major one when it reaches
		// this value. 0 never carries.
		MinorCarry int `mapstructure:"minor_carry"`
	} `mapstructure:"version"`

	Archive struct {
		Compression string `mapstructure:"compression"`
		Level       int    `mapstructure:"level"`
		CacheSize   int    `mapstructure:"cache_size"`
	} `mapstructure:"archive"`

	Log struct {
		Level      string `mapstructure:"level"`
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
	} `mapstructure:"log"`

	Watch struct {
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"watch"`
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("extensions", []string{})
	v.SetDefault("ignore_patterns", DefaultIgnorePatterns)
	v.SetDefault("workers", 0)

	v.SetDefault("hash.algorithm", DefaultAlgorithm)
	v.SetDefault("version.minor_carry", DefaultMinorCarry)

	v.SetDefault("archive.compression", DefaultCompression)
	v.SetDefault("archive.level", DefaultCompressLevel)
	v.SetDefault("archive.cache_size", DefaultCacheSize)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", DefaultLogFile)
	v.SetDefault("log.max_size_mb", DefaultLogMaxSizeMB)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)

	v.SetDefault("watch.debounce", DefaultDebounce)
}

func newViper() *viper.Viper {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the configuration with no file and no environment overrides.
func Default() *Config {
	v := viper.New()
	applyDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config does not decode: %v", err))
	}
	return &cfg
}

// Load reads the config file at path through fs, layering GITNOT_* environment
// variables over it. A missing file is not an error; defaults are used.
func Load(fs fsys.FS, path string) (*Config, error) {
	v := newViper()

	data, err := fs.ReadFile(path)
	switch {
	case err == nil:
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	case fsys.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

var (
	ErrInvalidAlgorithm   = stderrors.New("hash.algorithm must be sha256 or blake3")
	ErrInvalidCompression = stderrors.New("archive.compression must be none or zstd")
	ErrInvalidWorkers     = stderrors.New("workers must be >= 0")
	ErrInvalidMinorCarry  = stderrors.New("version.minor_carry must be >= 0")
	ErrInvalidCacheSize   = stderrors.New("archive.cache_size must be > 0")
	ErrInvalidDebounce    = stderrors.New("watch.debounce must be > 0")
)

func (c *Config) Validate() error {
	if !fingerprint.ValidAlgorithm(c.Hash.Algorithm) {
		return ErrInvalidAlgorithm
	}
	if c.Archive.Compression != archive.CompressionNone && c.Archive.Compression != archive.CompressionZstd {
		return ErrInvalidCompression
	}
	if c.Workers < 0 {
		return ErrInvalidWorkers
	}
	if c.Version.MinorCarry < 0 {
		return ErrInvalidMinorCarry
	}
	if c.Archive.CacheSize <= 0 {
		return ErrInvalidCacheSize
	}
	if c.Watch.Debounce <= 0 {
		return ErrInvalidDebounce
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Save writes c as JSON to path.
func Save(fs fsys.FS, path string, c *Config) error {
	doc := map[string]any{
		"extensions":      nonNil(c.Extensions),
		"ignore_patterns": nonNil(c.IgnorePatterns),
		"workers":         c.Workers,
		"hash": map[string]any{
			"algorithm": c.Hash.Algorithm,
		},
		"version": map[string]any{
			"minor_carry": c.Version.MinorCarry,
		},
		"archive": map[string]any{
			"compression": c.Archive.Compression,
			"level":       c.Archive.Level,
			"cache_size":  c.Archive.CacheSize,
		},
		"log": map[string]any{
			"level":       c.Log.Level,
			"file":        c.Log.File,
			"max_size_mb": c.Log.MaxSizeMB,
			"max_backups": c.Log.MaxBackups,
		},
		"watch": map[string]any{
			"debounce": c.Watch.Debounce.String(),
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return fsys.WriteFileAtomic(fs, path, append(data, '\n'), 0o644)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
