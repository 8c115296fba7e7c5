package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
storage:
  bucket: txn-exports
warehouse:
  project: finance-prod-1
  dataset: finance
  table: transactions
  stage: transactions_stage
  location: EU
pipeline:
  naming: date
  retry:
    attempts: 2
    initial: 250ms
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "txn-exports", cfg.Storage.Bucket)
	assert.Equal(t, DefaultPrefix, cfg.Storage.Prefix)
	assert.Equal(t, "finance-prod-1", cfg.Storage.Project, "storage project falls back to warehouse project")
	assert.Equal(t, "EU", cfg.Warehouse.Location)
	assert.Equal(t, int64(DefaultMaxBadRecords), cfg.Warehouse.MaxBadRecords)
	assert.Equal(t, "date", cfg.Pipeline.Naming)
	assert.Equal(t, DefaultInput, cfg.Pipeline.Input)
	assert.Equal(t, DefaultRunLog, cfg.Pipeline.RunLog)
	assert.Equal(t, 2, cfg.Pipeline.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.Retry.Initial)

	target := cfg.Target()
	assert.Equal(t, "finance", target.Dataset)
	assert.Equal(t, "transactions_stage", target.Stage)
	assert.Equal(t, "transactions/processed.csv", cfg.Destination().ObjectKey("processed.csv"))
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.json")
	body := `{"storage": {"bucket": "txn-exports"},
	  "warehouse": {"project": "finance-prod-1", "dataset": "finance", "table": "transactions", "stage": "stage_1"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "stage_1", cfg.Warehouse.Stage)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_Unparseable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unterminated"), 0o644))

	_, err := Load(path)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "parsing", cerr.Reason)
}

func TestApplyEnv(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	env := map[string]string{
		"TXLOAD_STORAGE_BUCKET":   "other-bucket",
		"TXLOAD_WAREHOUSE_TABLE":  "transactions_v2",
		"TXLOAD_STRICT_RECONCILE": "true",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "other-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "transactions_v2", cfg.Warehouse.Table)
	assert.Equal(t, "finance", cfg.Warehouse.Dataset)
	assert.True(t, cfg.Pipeline.StrictReconcile)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Parse([]byte(sampleYAML))
		require.NoError(t, err)
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing bucket", func(c *Config) { c.Storage.Bucket = "" }, "storage.bucket"},
		{"missing table", func(c *Config) { c.Warehouse.Table = "" }, "warehouse.table"},
		{"table injection", func(c *Config) { c.Warehouse.Table = "t; DROP TABLE x" }, "warehouse.table"},
		{"stage with quote", func(c *Config) { c.Warehouse.Stage = "st'age" }, "warehouse.stage"},
		{"dataset with dot", func(c *Config) { c.Warehouse.Dataset = "a.b" }, "warehouse.dataset"},
		{"project uppercase", func(c *Config) { c.Warehouse.Project = "Finance" }, "warehouse.project"},
		{"prefix traversal", func(c *Config) { c.Storage.Prefix = "a/../b" }, "storage.prefix"},
		{"unknown naming", func(c *Config) { c.Pipeline.Naming = "random" }, "pipeline.naming"},
		{"bad runs table", func(c *Config) { c.Warehouse.RunsTable = "runs-table" }, "warehouse.runs_table"},
		{"table too long", func(c *Config) { c.Warehouse.Table = strings.Repeat("t", 1025) }, "warehouse.table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantField, cerr.Field)
		})
	}
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("transactions_stage"))
	assert.False(t, ValidIdentifier("1abc"))
	assert.False(t, ValidIdentifier("a`b"))
	assert.False(t, ValidIdentifier(""))

	assert.True(t, ValidIdentifier("t"+strings.Repeat("x", 1023)), "1024 characters is the limit")
	assert.False(t, ValidIdentifier("t"+strings.Repeat("x", 1024)))
}
