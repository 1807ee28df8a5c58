package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adlake/adlake/pkg/warehouse"
)

func warehouseFixture() warehouse.Config {
	return warehouse.Config{
		Host:     "warehouse.internal",
		Database: "marketing",
		Schema:   "analytics",
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adlake.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPipeline(t *testing.T) {
	t.Setenv("ADLAKE_TEST_PASSWORD", "s3cret")

	path := writeConfig(t, `
warehouse:
  host: warehouse.internal
  database: marketing
  schema: analytics
  user: loader
  password: ${ADLAKE_TEST_PASSWORD}
logging:
  level: debug
tables:
  campaign_insights:
    primary_key: [campaign_id, date]
  campaign_totals:
    increment_key: [campaign_id]
    increment_columns: [clicks, cost]
  dim_campaigns:
    primary_key: [campaign_id]
    upsert: true
`)

	cfg, err := LoadPipeline(path)
	require.NoError(t, err)

	assert.Equal(t, "warehouse.internal", cfg.Warehouse.Host)
	assert.Equal(t, "s3cret", cfg.Warehouse.Password)
	// Default port applied during validation.
	assert.Equal(t, 5433, cfg.Warehouse.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Encoding)

	require.Len(t, cfg.Tables, 3)
	assert.Equal(t, []string{"campaign_id", "date"}, cfg.Tables["campaign_insights"].PrimaryKey)
	assert.True(t, cfg.Tables["dim_campaigns"].Upsert)
	assert.Equal(t, []string{"clicks", "cost"}, cfg.Tables["campaign_totals"].IncrementColumns)
}

func TestLoadPipeline_UnsetEnvVarBecomesEmpty(t *testing.T) {
	path := writeConfig(t, `
warehouse:
  host: warehouse.internal
  database: marketing
  schema: analytics
  password: ${ADLAKE_TEST_NO_SUCH_VAR}
`)

	cfg, err := LoadPipeline(path)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Warehouse.Password)
}

func TestLoadPipeline_MissingFile(t *testing.T) {
	_, err := LoadPipeline(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadPipeline_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "tables: [unbalanced")
	_, err := LoadPipeline(path)
	assert.Error(t, err)
}

func TestTableConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TableConfig
		wantErr bool
	}{
		{
			name: "plain append",
			cfg:  TableConfig{},
		},
		{
			name: "increment spec complete",
			cfg: TableConfig{
				IncrementKey:     []string{"campaign_id"},
				IncrementColumns: []string{"clicks"},
			},
		},
		{
			name:    "increment key without columns",
			cfg:     TableConfig{IncrementKey: []string{"campaign_id"}},
			wantErr: true,
		},
		{
			name:    "increment columns without key",
			cfg:     TableConfig{IncrementColumns: []string{"clicks"}},
			wantErr: true,
		},
		{
			name:    "upsert without primary key",
			cfg:     TableConfig{Upsert: true},
			wantErr: true,
		},
		{
			name:    "legacy merge without primary key",
			cfg:     TableConfig{Merge: true},
			wantErr: true,
		},
		{
			name:    "negative retention",
			cfg:     TableConfig{RetentionDays: -1},
			wantErr: true,
		},
		{
			name: "delete spec",
			cfg:  TableConfig{DeleteColumn: "date", RetentionDays: 90},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigValidate_BadTableIsNamed(t *testing.T) {
	cfg := &Config{
		Warehouse: warehouseFixture(),
		Tables: map[string]TableConfig{
			"broken": {Upsert: true},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table config")
}

func TestConfigValidate_MissingWarehouseFields(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())
}
