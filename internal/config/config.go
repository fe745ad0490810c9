// # internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"

	"reviewd/internal/analyzer"
)

// DefaultFile and ExampleFile are the discovery candidates, tried in order
// when no explicit path is given.
const (
	DefaultFile = "reviewd.toml"
	ExampleFile = "reviewd.example.toml"
)

type Config struct {
	Version  int      `toml:"version"`
	Server   Server   `toml:"server"`
	Limits   Limits   `toml:"limits"`
	Analysis Analysis `toml:"analysis"`
	Upload   Upload   `toml:"upload"`
	DB       Database `toml:"db"`
	Tracing  Tracing  `toml:"tracing"`
}

type Server struct {
	Address        string    `toml:"address"`
	CORSOrigins    []string  `toml:"cors_origins"`
	RequestTimeout Duration  `toml:"request_timeout"`
	RateLimit      RateLimit `toml:"rate_limit"`
}

// Duration wraps time.Duration so TOML files can write "15s" style values.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

type RateLimit struct {
	Enabled           *bool `toml:"enabled"`
	RequestsPerMinute int   `toml:"requests_per_minute"`
	Burst             int   `toml:"burst"`
}

// IsEnabled defaults to true when the block is absent.
func (r RateLimit) IsEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

type Limits struct {
	MaxSourceBytes int64 `toml:"max_source_bytes"`
}

type Analysis struct {
	FileLengthInfo int `toml:"file_length_info"`
	FileLengthWarn int `toml:"file_length_warn"`
	FuncLengthInfo int `toml:"func_length_info"`
	FuncLengthWarn int `toml:"func_length_warn"`
	MaxLoopDepth   int `toml:"max_loop_depth"`
}

type Upload struct {
	AllowedPatterns []string `toml:"allowed_patterns"`
}

// Matchers compiles the allowed filename patterns.
func (u Upload) Matchers() ([]glob.Glob, error) {
	matchers := make([]glob.Glob, 0, len(u.AllowedPatterns))
	for _, pattern := range u.AllowedPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("upload.allowed_patterns: invalid pattern %q: %w", pattern, err)
		}
		matchers = append(matchers, g)
	}
	return matchers, nil
}

type Database struct {
	Enabled       *bool  `toml:"enabled"`
	Path          string `toml:"path"`
	QueueCapacity int    `toml:"queue_capacity"`
}

// IsEnabled defaults to true when the block is absent.
func (d Database) IsEnabled() bool {
	if d.Enabled == nil {
		return true
	}
	return *d.Enabled
}

type Tracing struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

// Default returns the built-in configuration used when no config file
// exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validateVersion(&cfg); err != nil {
		return nil, err
	}
	if err := validateServer(&cfg); err != nil {
		return nil, err
	}
	if err := validateLimits(&cfg); err != nil {
		return nil, err
	}
	if err := validateAnalysis(&cfg); err != nil {
		return nil, err
	}
	if err := validateUpload(&cfg); err != nil {
		return nil, err
	}
	if err := validateDatabase(&cfg); err != nil {
		return nil, err
	}
	if err := validateTracing(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Discover returns the first config candidate that exists in the working
// directory.
func Discover() (string, bool) {
	for _, candidate := range []string{DefaultFile, ExampleFile} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Server.Address) == "" {
		cfg.Server.Address = ":8000"
	}
	if cfg.Server.RequestTimeout.Duration <= 0 {
		cfg.Server.RequestTimeout.Duration = 15 * time.Second
	}
	if cfg.Server.RateLimit.RequestsPerMinute <= 0 {
		cfg.Server.RateLimit.RequestsPerMinute = 120
	}
	if cfg.Server.RateLimit.Burst <= 0 {
		cfg.Server.RateLimit.Burst = 20
	}

	if cfg.Limits.MaxSourceBytes <= 0 {
		cfg.Limits.MaxSourceBytes = 1 << 20
	}

	def := analyzer.DefaultOptions()
	if cfg.Analysis.FileLengthInfo <= 0 {
		cfg.Analysis.FileLengthInfo = def.FileLengthInfo
	}
	if cfg.Analysis.FileLengthWarn <= 0 {
		cfg.Analysis.FileLengthWarn = def.FileLengthWarn
	}
	if cfg.Analysis.FuncLengthInfo <= 0 {
		cfg.Analysis.FuncLengthInfo = def.FuncLengthInfo
	}
	if cfg.Analysis.FuncLengthWarn <= 0 {
		cfg.Analysis.FuncLengthWarn = def.FuncLengthWarn
	}
	if cfg.Analysis.MaxLoopDepth <= 0 {
		cfg.Analysis.MaxLoopDepth = def.MaxLoopDepth
	}

	if len(cfg.Upload.AllowedPatterns) == 0 {
		cfg.Upload.AllowedPatterns = []string{"*.py"}
	}

	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "reviewd.db"
	}
	if cfg.DB.QueueCapacity <= 0 {
		cfg.DB.QueueCapacity = 256
	}

	if !cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
		cfg.Tracing.Endpoint = "localhost:4317"
	}
}

// AnalysisOptions maps the analysis block onto the engine's per-call
// options.
func (c *Config) AnalysisOptions() analyzer.Options {
	return analyzer.Options{
		FileLengthInfo: c.Analysis.FileLengthInfo,
		FileLengthWarn: c.Analysis.FileLengthWarn,
		FuncLengthInfo: c.Analysis.FuncLengthInfo,
		FuncLengthWarn: c.Analysis.FuncLengthWarn,
		MaxLoopDepth:   c.Analysis.MaxLoopDepth,
	}
}

func validateVersion(cfg *Config) error {
	if cfg.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", cfg.Version)
	}
	if cfg.Version > 1 {
		return fmt.Errorf("unsupported config version %d; only version 1 is supported", cfg.Version)
	}
	return nil
}

func validateServer(cfg *Config) error {
	if strings.TrimSpace(cfg.Server.Address) == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if cfg.Server.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if cfg.Server.RateLimit.IsEnabled() {
		if cfg.Server.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("server.rate_limit.requests_per_minute must be positive")
		}
		if cfg.Server.RateLimit.Burst <= 0 {
			return fmt.Errorf("server.rate_limit.burst must be positive")
		}
	}
	return nil
}

func validateLimits(cfg *Config) error {
	if cfg.Limits.MaxSourceBytes <= 0 {
		return fmt.Errorf("limits.max_source_bytes must be positive")
	}
	return nil
}

func validateAnalysis(cfg *Config) error {
	a := cfg.Analysis
	if a.FileLengthInfo <= 0 || a.FileLengthWarn <= 0 || a.FuncLengthInfo <= 0 || a.FuncLengthWarn <= 0 {
		return fmt.Errorf("analysis thresholds must be positive")
	}
	if a.FileLengthInfo >= a.FileLengthWarn {
		return fmt.Errorf("analysis.file_length_info (%d) must be below analysis.file_length_warn (%d)",
			a.FileLengthInfo, a.FileLengthWarn)
	}
	if a.FuncLengthInfo >= a.FuncLengthWarn {
		return fmt.Errorf("analysis.func_length_info (%d) must be below analysis.func_length_warn (%d)",
			a.FuncLengthInfo, a.FuncLengthWarn)
	}
	if a.MaxLoopDepth < 1 {
		return fmt.Errorf("analysis.max_loop_depth must be >= 1")
	}
	return nil
}

func validateUpload(cfg *Config) error {
	if len(cfg.Upload.AllowedPatterns) == 0 {
		return fmt.Errorf("upload.allowed_patterns must not be empty")
	}
	for _, pattern := range cfg.Upload.AllowedPatterns {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("upload.allowed_patterns must not include empty values")
		}
	}
	if _, err := cfg.Upload.Matchers(); err != nil {
		return err
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	if !cfg.DB.IsEnabled() {
		return nil
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	if cfg.DB.QueueCapacity <= 0 {
		return fmt.Errorf("db.queue_capacity must be positive")
	}
	return nil
}

func validateTracing(cfg *Config) error {
	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
		return fmt.Errorf("tracing.endpoint must not be empty when tracing.enabled=true")
	}
	return nil
}
