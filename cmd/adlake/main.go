package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adlake/adlake/pkg/batch"
	"github.com/adlake/adlake/pkg/config"
	"github.com/adlake/adlake/pkg/errors"
	"github.com/adlake/adlake/pkg/loader"
	"github.com/adlake/adlake/pkg/logger"
	"github.com/adlake/adlake/pkg/warehouse"
)

var version = "0.3.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "adlake",
		Short: "adlake - incremental warehouse loader for marketing data",
		Long: `adlake loads transformed marketing-data batches into a columnar
analytical warehouse, reconciling each batch against what is already
stored: append-only, upsert, additive increment, full replace or
windowed delete, per destination table.`,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "adlake.yaml", "pipeline configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("adlake v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	loadCmd := &cobra.Command{
		Use:   "load <table> <batch.json>",
		Short: "Load a batch file into a destination table",
		Long: `Reads a JSON array of records and loads it into the named table
under the load mode resolved from the table's configuration.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), configPath, args[0], args[1])
		},
	}
	root.AddCommand(loadCmd)

	root.AddCommand(&cobra.Command{
		Use:   "prune <table>",
		Short: "Delete rows past the table's retention window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd.Context(), configPath, args[0])
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "tables",
		Short: "List configured destination tables and their load modes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(configPath)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, initializes logging and connects to the
// warehouse.
func setup(ctx context.Context, configPath string) (*config.Config, *warehouse.Client, error) {
	cfg, err := config.LoadPipeline(configPath)
	if err != nil {
		return nil, nil, err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Encoding,
		Development: cfg.Logging.Development,
	}); err != nil {
		return nil, nil, err
	}

	client, err := warehouse.Open(ctx, cfg.Warehouse)
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}

func runLoad(ctx context.Context, configPath, table, batchPath string) error {
	cfg, client, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer client.Close()
	defer func() { _ = logger.Sync() }()

	tableCfg, ok := cfg.Tables[table]
	if !ok {
		return errors.Newf(errors.ErrorTypeConfig, "table %q is not configured", table)
	}

	data, err := os.ReadFile(batchPath) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to read batch file")
	}
	b, err := batch.FromJSON(data)
	if err != nil {
		return err
	}

	start := time.Now()
	loaded, err := loader.New(client).Load(ctx, table, tableCfg, b)
	if err != nil {
		return err
	}

	logger.Get().Info("load finished",
		zap.String("table", table),
		zap.Int64("rows_loaded", loaded),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func runPrune(ctx context.Context, configPath, table string) error {
	cfg, client, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer client.Close()
	defer func() { _ = logger.Sync() }()

	tableCfg, ok := cfg.Tables[table]
	if !ok {
		return errors.Newf(errors.ErrorTypeConfig, "table %q is not configured", table)
	}
	if tableCfg.DeleteColumn == "" || tableCfg.RetentionDays <= 0 {
		return errors.Newf(errors.ErrorTypeConfig,
			"table %q has no delete_column/retention_days configured", table)
	}

	// Prune regardless of the table's resolved load mode.
	pruneCfg := config.TableConfig{
		DeleteColumn:  tableCfg.DeleteColumn,
		RetentionDays: tableCfg.RetentionDays,
	}
	_, err = loader.New(client).Load(ctx, table, pruneCfg, batch.New())
	return err
}

func runTables(configPath string) error {
	cfg, err := config.LoadPipeline(configPath)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.Tables))
	for name := range cfg.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tableCfg := cfg.Tables[name]
		fmt.Printf("%-40s %s\n", name, loader.ResolveMode(tableCfg))
	}
	return nil
}
