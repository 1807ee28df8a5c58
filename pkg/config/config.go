// Package config provides the configuration system for the loading
// engine. Pipelines declare the warehouse connection once and the load
// behavior per destination table; configuration files are YAML with
// ${ENV_VAR} substitution.
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/adlake/adlake/pkg/errors"
	"github.com/adlake/adlake/pkg/warehouse"
)

// Config is the root pipeline configuration.
type Config struct {
	// Warehouse holds the destination connection settings.
	Warehouse warehouse.Config `yaml:"warehouse" json:"warehouse"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Tables maps destination table names to their load configuration.
	Tables map[string]TableConfig `yaml:"tables" json:"tables"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level       string `yaml:"level" json:"level"`
	Encoding    string `yaml:"encoding" json:"encoding"`
	Development bool   `yaml:"development" json:"development"`
}

// TableConfig declares how one destination table is loaded.
// Historical configuration files set several mode keys redundantly;
// the loader resolves them with a fixed precedence, so every legacy
// key is preserved here.
type TableConfig struct {
	// PrimaryKey is the natural key: the column tuple uniquely
	// identifying a logical entity. Empty means full-row dedup.
	PrimaryKey []string `yaml:"primary_key" json:"primary_key"`

	// Upsert overwrites existing rows matching the natural key.
	Upsert bool `yaml:"upsert" json:"upsert"`

	// Update and Merge are legacy aliases for Upsert.
	Update bool `yaml:"update" json:"update"`
	Merge  bool `yaml:"merge" json:"merge"`

	// Replace truncates the table before loading the full batch.
	Replace bool `yaml:"replace" json:"replace"`

	// IncrementKey and IncrementColumns declare the increment spec:
	// which columns identify the entity and which numeric columns are
	// summed into existing rows instead of overwritten.
	IncrementKey     []string `yaml:"increment_key" json:"increment_key"`
	IncrementColumns []string `yaml:"increment_columns" json:"increment_columns"`

	// WindowColumn overrides the windowing column convention
	// (date, data, row_loaded_date) for exclusion scans.
	WindowColumn string `yaml:"window_column" json:"window_column"`

	// DeleteColumn and RetentionDays drive delete-mode pruning.
	DeleteColumn  string `yaml:"delete_column" json:"delete_column"`
	RetentionDays int    `yaml:"retention_days" json:"retention_days"`

	// StrictSchema makes a destination column missing from the batch a
	// validation error instead of silently filling it.
	StrictSchema bool `yaml:"strict_schema" json:"strict_schema"`
}

// Load reads a YAML configuration file, substituting ${VAR} references
// from the environment before parsing.
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path is controlled by the caller
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
	}

	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
	}
	return nil
}

// LoadPipeline reads and validates the root pipeline configuration.
func LoadPipeline(filePath string) (*Config, error) {
	var cfg Config
	if err := Load(filePath, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := c.Warehouse.Validate(); err != nil {
		return err
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}
	for name, table := range c.Tables {
		if err := table.Validate(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid table config").
				WithDetail("table", name)
		}
	}
	return nil
}

// Validate checks one table's load configuration.
func (t *TableConfig) Validate() error {
	if len(t.IncrementKey) > 0 && len(t.IncrementColumns) == 0 {
		return errors.New(errors.ErrorTypeConfig, "increment_key requires increment_columns")
	}
	if len(t.IncrementColumns) > 0 && len(t.IncrementKey) == 0 {
		return errors.New(errors.ErrorTypeConfig, "increment_columns requires increment_key")
	}
	if (t.Upsert || t.Update || t.Merge) && len(t.PrimaryKey) == 0 {
		return errors.New(errors.ErrorTypeConfig, "upsert requires a primary_key")
	}
	if t.RetentionDays < 0 {
		return errors.New(errors.ErrorTypeConfig, "retention_days must not be negative")
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
