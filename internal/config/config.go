package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
)

// Config represents the generator configuration with validation.
type Config struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" json:"log_format"`

	// Seed feeds the single random source of a run.
	Seed      uint64 `mapstructure:"seed" yaml:"seed" json:"seed"`
	Workers   int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	MaxGroups int    `mapstructure:"max_groups" yaml:"max_groups" json:"max_groups"`

	Output  OutputConfig  `mapstructure:"output" yaml:"output" json:"output"`
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog" json:"catalog"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	Summary SummaryConfig `mapstructure:"summary" yaml:"summary" json:"summary"`
}

// OutputConfig says where trace files go.
type OutputConfig struct {
	Dir   string   `mapstructure:"dir" yaml:"dir" json:"dir"`
	Clean bool     `mapstructure:"clean" yaml:"clean" json:"clean"`
	S3    S3Config `mapstructure:"s3" yaml:"s3" json:"s3"`
}

// S3Config selects the S3 sink when Bucket is set.
type S3Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
	Region string `mapstructure:"region" yaml:"region" json:"region"`
}

// CatalogConfig locates the run catalog. An empty path disables it.
type CatalogConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// MetricsConfig locates the Prometheus textfile. An empty path disables it.
type MetricsConfig struct {
	File string `mapstructure:"file" yaml:"file" json:"file"`
}

// SummaryConfig locates the run summary. An empty path disables it.
type SummaryConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// UseS3 reports whether traces are uploaded instead of written locally.
func (o *OutputConfig) UseS3() bool {
	return o.S3.Bucket != ""
}

// Location describes the output target for logs and summaries.
func (o *OutputConfig) Location() string {
	if o.UseS3() {
		if o.S3.Prefix == "" {
			return "s3://" + o.S3.Bucket
		}
		return "s3://" + o.S3.Bucket + "/" + strings.Trim(o.S3.Prefix, "/")
	}
	return o.Dir
}

// DefaultConfig returns a configuration with the generator defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Seed:      1,
		Workers:   1,
		MaxGroups: 1000,
		Output: OutputConfig{
			Dir:   "rdma_result",
			Clean: true,
		},
	}
}

// SetDefaults registers default values with v.
func SetDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
	v.SetDefault("seed", defaults.Seed)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("max_groups", defaults.MaxGroups)

	v.SetDefault("output.dir", defaults.Output.Dir)
	v.SetDefault("output.clean", defaults.Output.Clean)
	v.SetDefault("output.s3.bucket", defaults.Output.S3.Bucket)
	v.SetDefault("output.s3.prefix", defaults.Output.S3.Prefix)
	v.SetDefault("output.s3.region", defaults.Output.S3.Region)

	v.SetDefault("catalog.path", defaults.Catalog.Path)
	v.SetDefault("metrics.file", defaults.Metrics.File)
	v.SetDefault("summary.path", defaults.Summary.Path)
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigError("Load", "failed to decode configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads a YAML configuration file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.NewConfigError("LoadFile", fmt.Sprintf("failed to read config file %s", path), err)
	}
	return Load(v)
}

// Validate performs validation of the configuration.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return errors.NewConfigError("Validate", fmt.Sprintf("invalid log_format: %s (must be text or json)", c.LogFormat), nil)
	}

	if c.Workers < 1 {
		return errors.NewConfigError("Validate", fmt.Sprintf("workers must be at least 1, got: %d", c.Workers), nil)
	}
	if c.MaxGroups < 1 {
		return errors.NewConfigError("Validate", fmt.Sprintf("max_groups must be at least 1, got: %d", c.MaxGroups), nil)
	}
	if c.Output.Dir == "" && !c.Output.UseS3() {
		return errors.NewConfigError("Validate", "output.dir is required unless output.s3.bucket is set", nil)
	}

	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.NewConfigError("ParseLevel",
		fmt.Sprintf("invalid log_level: %s (must be debug, info, warn, or error)", level), nil)
}

// NewLogger builds the run logger from the log settings.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
