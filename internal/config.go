package internal

import (
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mindforge/internal/diag"
	"github.com/starford/mindforge/internal/mcpserver"
	"github.com/starford/mindforge/internal/search"
	"github.com/starford/mindforge/internal/storage"
	"github.com/starford/mindforge/internal/transport"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Store       StoreConfig       `yaml:"store"`
	Limits      LimitsConfig      `yaml:"limits"`
	Search      SearchConfig      `yaml:"search"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	return c.Diagnostics.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// StoreConfig controls where the memory store lives and how it is locked.
type StoreConfig struct {
	// ProjectDir is checked for a store before walking up from the
	// working directory. Empty means the working directory.
	ProjectDir string        `yaml:"project_dir"`
	DirName    string        `yaml:"dir_name"`
	LockTTL    time.Duration `yaml:"lock_ttl"`
	MaxWalkUp  int           `yaml:"max_walk_up"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DirName, validation.Required),
		validation.Field(&c.LockTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxWalkUp, validation.Min(0), validation.Max(64)),
	)
}

// LimitsConfig bounds message and argument sizes.
type LimitsConfig struct {
	MaxMessageBytes int `yaml:"max_message_bytes"`
	MaxPayloadBytes int `yaml:"max_payload_bytes"`
	MaxFieldBytes   int `yaml:"max_field_bytes"`
}

// Validate validates the limits configuration.
func (c *LimitsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxMessageBytes, validation.Required, validation.Min(1024)),
		validation.Field(&c.MaxPayloadBytes, validation.Required, validation.Min(1), validation.Max(c.MaxMessageBytes)),
		validation.Field(&c.MaxFieldBytes, validation.Required, validation.Min(1), validation.Max(c.MaxPayloadBytes)),
	)
}

// SearchConfig tunes the search engine.
type SearchConfig struct {
	ChunkLines    int     `yaml:"chunk_lines"`
	ChunkOverlap  int     `yaml:"chunk_overlap"`
	MinChunkChars int     `yaml:"min_chunk_chars"`
	MinScore      float64 `yaml:"min_score"`
	DefaultLimit  int     `yaml:"default_limit"`
	MaxFileBytes  int64   `yaml:"max_file_bytes"`
	// Watch keeps the index warm by rebuilding it after store changes.
	Watch bool `yaml:"watch"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ChunkLines, validation.Required, validation.Min(2)),
		validation.Field(&c.ChunkOverlap, validation.Min(0), validation.Max(c.ChunkLines-1)),
		validation.Field(&c.MinChunkChars, validation.Min(0)),
		validation.Field(&c.MinScore, validation.Min(0.0).Exclusive()),
		validation.Field(&c.DefaultLimit, validation.Required, validation.Min(1), validation.Max(mcpserver.MaxSearchLimit)),
		validation.Field(&c.MaxFileBytes, validation.Required, validation.Min(int64(1))),
	)
}

// Options converts the configuration into engine options.
func (c *SearchConfig) Options() search.Options {
	return search.Options{
		Chunk: search.ChunkOptions{
			Lines:    c.ChunkLines,
			Overlap:  c.ChunkOverlap,
			MinChars: c.MinChunkChars,
		},
		MinScore:     c.MinScore,
		MaxFileBytes: c.MaxFileBytes,
	}
}

// DiagnosticsConfig controls the diagnostics file in the store root.
type DiagnosticsConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// Validate validates the diagnostics configuration.
func (c *DiagnosticsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1024))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Store: StoreConfig{
			DirName:   storage.DefaultDirName,
			LockTTL:   storage.DefaultLockTTL,
			MaxWalkUp: 10,
		},
		Limits: LimitsConfig{
			MaxMessageBytes: transport.DefaultMaxMessage,
			MaxPayloadBytes: mcpserver.DefaultMaxPayloadBytes,
			MaxFieldBytes:   mcpserver.DefaultMaxFieldBytes,
		},
		Search: SearchConfig{
			ChunkLines:    search.DefaultChunkOptions.Lines,
			ChunkOverlap:  search.DefaultChunkOptions.Overlap,
			MinChunkChars: search.DefaultChunkOptions.MinChars,
			MinScore:      search.DefaultMinScore,
			DefaultLimit:  10,
			MaxFileBytes:  search.DefaultMaxFileBytes,
		},
		Diagnostics: DiagnosticsConfig{
			MaxBytes: diag.DefaultMaxBytes,
		},
	}
}
