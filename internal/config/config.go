package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/retry"
)

// Defaults for values the configuration may omit.
const (
	DefaultInput         = "data/transactions_data.csv"
	DefaultOutputDir     = "."
	DefaultPrefix        = "transactions"
	DefaultRunLog        = "logs/pipeline_log.txt"
	DefaultNaming        = "content"
	DefaultMaxBadRecords = 1_000_000
	DefaultTimeout       = 30 * time.Minute
)

// Config is the top-level pipeline configuration file.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// StorageConfig locates the bucket artifacts are published to.
type StorageConfig struct {
	Project         string `yaml:"project,omitempty"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// WarehouseConfig locates the destination table and its stage.
type WarehouseConfig struct {
	Project         string `yaml:"project"`
	Dataset         string `yaml:"dataset"`
	Table           string `yaml:"table"`
	Stage           string `yaml:"stage"`
	Location        string `yaml:"location,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`

	// MaxBadRecords is how many malformed rows a load job may skip.
	MaxBadRecords int64 `yaml:"max_bad_records,omitempty"`

	// RunsTable enables the run ledger when set.
	RunsTable string `yaml:"runs_table,omitempty"`
}

// PipelineConfig controls one run.
type PipelineConfig struct {
	Input           string        `yaml:"input,omitempty"`
	OutputDir       string        `yaml:"output_dir,omitempty"`
	Naming          string        `yaml:"naming,omitempty"`
	RunLog          string        `yaml:"run_log,omitempty"`
	StrictReconcile bool          `yaml:"strict_reconcile,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	Retry           RetryConfig   `yaml:"retry,omitempty"`
}

// RetryConfig mirrors retry.Policy.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts,omitempty"`
	Initial    time.Duration `yaml:"initial,omitempty"`
	Max        time.Duration `yaml:"max,omitempty"`
	Multiplier float64       `yaml:"multiplier,omitempty"`
}

// ConfigError is a fatal pre-flight failure: missing or unusable configuration.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "config"
	if e.Field != "" {
		msg += " " + e.Field
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads a YAML (or JSON) configuration file, loads a .env file from the
// working directory if one exists, applies TXLOAD_* overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &ConfigError{Reason: "loading .env", Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Reason: "reading " + path, Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration bytes without defaults or validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Reason: "parsing", Err: err}
	}
	return &cfg, nil
}

// ApplyEnv overrides file values with non-empty environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	str("TXLOAD_STORAGE_PROJECT", &c.Storage.Project)
	str("TXLOAD_STORAGE_BUCKET", &c.Storage.Bucket)
	str("TXLOAD_STORAGE_PREFIX", &c.Storage.Prefix)
	str("TXLOAD_STORAGE_CREDENTIALS_FILE", &c.Storage.CredentialsFile)

	str("TXLOAD_WAREHOUSE_PROJECT", &c.Warehouse.Project)
	str("TXLOAD_WAREHOUSE_DATASET", &c.Warehouse.Dataset)
	str("TXLOAD_WAREHOUSE_TABLE", &c.Warehouse.Table)
	str("TXLOAD_WAREHOUSE_STAGE", &c.Warehouse.Stage)
	str("TXLOAD_WAREHOUSE_LOCATION", &c.Warehouse.Location)
	str("TXLOAD_WAREHOUSE_CREDENTIALS_FILE", &c.Warehouse.CredentialsFile)
	str("TXLOAD_WAREHOUSE_RUNS_TABLE", &c.Warehouse.RunsTable)

	str("TXLOAD_INPUT", &c.Pipeline.Input)
	str("TXLOAD_OUTPUT_DIR", &c.Pipeline.OutputDir)
	str("TXLOAD_NAMING", &c.Pipeline.Naming)
	str("TXLOAD_RUN_LOG", &c.Pipeline.RunLog)

	if v := getenv("TXLOAD_STRICT_RECONCILE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Pipeline.StrictReconcile = b
		}
	}
}

// ApplyDefaults fills omitted optional values.
func (c *Config) ApplyDefaults() {
	if c.Storage.Prefix == "" {
		c.Storage.Prefix = DefaultPrefix
	}
	if c.Storage.Project == "" {
		c.Storage.Project = c.Warehouse.Project
	}
	if c.Warehouse.MaxBadRecords == 0 {
		c.Warehouse.MaxBadRecords = DefaultMaxBadRecords
	}
	if c.Pipeline.Input == "" {
		c.Pipeline.Input = DefaultInput
	}
	if c.Pipeline.OutputDir == "" {
		c.Pipeline.OutputDir = DefaultOutputDir
	}
	if c.Pipeline.Naming == "" {
		c.Pipeline.Naming = DefaultNaming
	}
	if c.Pipeline.RunLog == "" {
		c.Pipeline.RunLog = DefaultRunLog
	}
	if c.Pipeline.Timeout == 0 {
		c.Pipeline.Timeout = DefaultTimeout
	}

	r := &c.Pipeline.Retry
	if r.Attempts == 0 {
		r.Attempts = retry.DefaultPolicy.Attempts
	}
	if r.Initial == 0 {
		r.Initial = retry.DefaultPolicy.Initial
	}
	if r.Max == 0 {
		r.Max = retry.DefaultPolicy.Max
	}
	if r.Multiplier == 0 {
		r.Multiplier = retry.DefaultPolicy.Multiplier
	}
}

// Destination returns where artifacts are uploaded.
func (c *Config) Destination() domain.Destination {
	return domain.Destination{
		Bucket: c.Storage.Bucket,
		Prefix: c.Storage.Prefix,
	}
}

// Target returns the load target.
func (c *Config) Target() domain.LoadTarget {
	return domain.LoadTarget{
		Project:  c.Warehouse.Project,
		Dataset:  c.Warehouse.Dataset,
		Table:    c.Warehouse.Table,
		Stage:    c.Warehouse.Stage,
		Location: c.Warehouse.Location,
	}
}

// RetryPolicy returns the configured retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts:   c.Pipeline.Retry.Attempts,
		Initial:    c.Pipeline.Retry.Initial,
		Max:        c.Pipeline.Retry.Max,
		Multiplier: c.Pipeline.Retry.Multiplier,
	}
}

// String renders the configuration for logs without credential paths.
func (c *Config) String() string {
	return fmt.Sprintf("bucket=%s prefix=%s project=%s dataset=%s table=%s stage=%s location=%s",
		c.Storage.Bucket, c.Storage.Prefix,
		c.Warehouse.Project, c.Warehouse.Dataset, c.Warehouse.Table, c.Warehouse.Stage, c.Warehouse.Location)
}
