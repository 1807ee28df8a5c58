package loader

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/adlake/adlake/pkg/batch"
	"github.com/adlake/adlake/pkg/config"
	"github.com/adlake/adlake/pkg/errors"
	"github.com/adlake/adlake/pkg/logger"
	"github.com/adlake/adlake/pkg/metrics"
	"github.com/adlake/adlake/pkg/warehouse"
)

// Loader drives one load call end-to-end: schema read, deduplication,
// encode and atomic commit. It retains no state between calls beyond
// the warehouse connection, and a single Loader must not run concurrent
// loads of the same table; repeated loads of one table are serialized
// by the caller.
type Loader struct {
	conn   warehouse.Conn
	logger *zap.Logger
	now    func() time.Time
}

// Option customizes a Loader.
type Option func(*Loader)

// WithLogger overrides the default logger.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithClock overrides the time source used for default exclusion
// windows and retention thresholds.
func WithClock(now func() time.Time) Option {
	return func(ld *Loader) { ld.now = now }
}

// New creates a Loader over a warehouse connection.
func New(conn warehouse.Conn, opts ...Option) *Loader {
	l := &Loader{
		conn:   conn,
		logger: logger.Named("loader"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reconciles a batch against the destination table under the mode
// resolved from the table's configuration, and returns the number of
// rows committed. Either the full deduplicated batch is committed or
// none of it: every write-path failure rolls back, so a zero return
// with an error means the load is safe to retry in full.
func (l *Loader) Load(ctx context.Context, table string, cfg config.TableConfig, b *batch.Batch) (int64, error) {
	if b == nil {
		// Delete mode carries no batch; the other modes treat a nil
		// batch as empty.
		b = batch.New()
	}
	mode := ResolveMode(cfg)
	timer := metrics.NewTimer(table, mode.String())
	defer timer.Stop()

	log := l.logger.With(zap.String("table", table), zap.String("mode", mode.String()))

	var (
		loaded int64
		err    error
	)
	switch mode {
	case ModeAppend:
		loaded, err = l.loadAppend(ctx, table, cfg, b, log)
	case ModeUpsert:
		loaded, err = l.loadUpsert(ctx, table, cfg, b, log)
	case ModeIncrement:
		loaded, err = l.loadIncrement(ctx, table, cfg, b, log)
	case ModeReplace:
		loaded, err = l.loadReplace(ctx, table, cfg, b, log)
	case ModeDelete:
		loaded, err = l.loadDelete(ctx, table, cfg, log)
	}

	if err != nil {
		metrics.LoadErrors.WithLabelValues(table, mode.String(), string(errors.TypeOf(err))).Inc()
		log.Error("load failed; destination unchanged", zap.Error(err))
		return 0, err
	}

	metrics.RowsLoaded.WithLabelValues(table, mode.String()).Add(float64(loaded))
	log.Info("load committed",
		zap.Int64("rows_loaded", loaded),
		zap.Int("batch_rows", b.Len()))
	return loaded, nil
}

// prepare reads the catalog and aligns the batch to it.
func (l *Loader) prepare(ctx context.Context, table string, cfg config.TableConfig, b *batch.Batch) (*warehouse.TableSchema, *batch.Batch, error) {
	schema, err := l.conn.Schema(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	aligned, err := Align(b, schema, cfg.StrictSchema)
	if err != nil {
		return nil, nil, err
	}
	return schema, aligned, nil
}

// loadAppend inserts rows whose natural key is not represented yet;
// duplicates are skipped, never overwritten.
func (l *Loader) loadAppend(ctx context.Context, table string, cfg config.TableConfig, b *batch.Batch, log *zap.Logger) (int64, error) {
	schema, aligned, err := l.prepare(ctx, table, cfg, b)
	if err != nil {
		return 0, err
	}

	keyCols := cfg.PrimaryKey
	scanCols := keyCols
	if len(scanCols) == 0 {
		scanCols = schema.ColumnNames()
	}

	window := resolveWindow(aligned, schema, cfg.WindowColumn, l.now())
	exclusion := l.exclusionSet(ctx, table, scanCols, window)

	res := deduplicate(aligned, keyCols, exclusion)
	l.recordSkips(table, res)

	if res.batch.Len() == 0 {
		log.Info("nothing to load after deduplication",
			zap.Int("excluded", res.excluded),
			zap.Int("duplicates", res.duplicates),
			zap.Int("null_keys", res.nullKeys))
		return 0, nil
	}

	return l.commitCopy(ctx, table, schema.ColumnNames(), res.batch.Rows())
}

// loadUpsert deletes existing rows matching the batch's natural keys
// and inserts the full deduplicated batch, inside one transaction.
// Delete-then-insert is the chosen two-step: it reuses the bulk path
// for the write and is observably equivalent to update-then-insert
// while no concurrent writer interleaves.
func (l *Loader) loadUpsert(ctx context.Context, table string, cfg config.TableConfig, b *batch.Batch, log *zap.Logger) (int64, error) {
	schema, aligned, err := l.prepare(ctx, table, cfg, b)
	if err != nil {
		return 0, err
	}

	res := deduplicate(aligned, cfg.PrimaryKey, nil)
	l.recordSkips(table, res)
	if res.batch.Len() == 0 {
		return 0, nil
	}

	keys := tupleValues(res.batch, cfg.PrimaryKey)

	tx, err := l.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}

	deleted, err := tx.DeleteKeys(ctx, table, cfg.PrimaryKey, keys)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	loaded, err := tx.CopyFrom(ctx, table, schema.ColumnNames(), res.batch.Rows())
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}

	metrics.RowsDeleted.WithLabelValues(table, ModeUpsert.String()).Add(float64(deleted))
	log.Debug("upsert two-step complete",
		zap.Int64("overwritten", deleted),
		zap.Int64("inserted", loaded))
	return loaded, nil
}

// loadIncrement additively merges numeric metrics into existing rows.
// The batch is first collapsed to one cumulative row per entity; for
// entities already stored, their increment columns are read, summed
// with the batch values and updated in place; new entities are bulk
// inserted.
func (l *Loader) loadIncrement(ctx context.Context, table string, cfg config.TableConfig, b *batch.Batch, log *zap.Logger) (int64, error) {
	aggregated, err := Aggregate(b, cfg.IncrementKey, cfg.IncrementColumns)
	if err != nil {
		return 0, err
	}
	if collapsed := b.Len() - aggregated.Len(); collapsed > 0 {
		metrics.RowsSkipped.WithLabelValues(table, metrics.ReasonCollapsed).Add(float64(collapsed))
	}

	schema, aligned, err := l.prepare(ctx, table, cfg, aggregated)
	if err != nil {
		return 0, err
	}

	res := deduplicate(aligned, cfg.IncrementKey, nil)
	l.recordSkips(table, res)
	if res.batch.Len() == 0 {
		return 0, nil
	}

	keys := tupleValues(res.batch, cfg.IncrementKey)
	existing, err := l.conn.ExistingIncrements(ctx, table, cfg.IncrementKey, cfg.IncrementColumns, keys)
	if err != nil {
		return 0, err
	}

	pkIdx := columnIndexes(res.batch, cfg.IncrementKey)
	incIdx := columnIndexes(res.batch, cfg.IncrementColumns)

	var inserts []batch.Row
	type update struct {
		pkVals []interface{}
		sums   []float64
	}
	var updates []update

	for _, row := range res.batch.Rows() {
		key := batch.TupleKey(row, pkIdx)
		stored, ok := existing[key]
		if !ok {
			inserts = append(inserts, row)
			continue
		}
		sums := make([]float64, len(incIdx))
		for i, j := range incIdx {
			delta, _ := batch.ToFloat(row[j])
			sums[i] = stored[i] + delta
		}
		pkVals := make([]interface{}, len(pkIdx))
		for i, j := range pkIdx {
			pkVals[i] = row[j]
		}
		updates = append(updates, update{pkVals: pkVals, sums: sums})
	}

	tx, err := l.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}

	for _, u := range updates {
		if err := tx.ApplyIncrement(ctx, table, cfg.IncrementKey, u.pkVals, cfg.IncrementColumns, u.sums); err != nil {
			_ = tx.Rollback(ctx)
			return 0, err
		}
	}
	var inserted int64
	if len(inserts) > 0 {
		inserted, err = tx.CopyFrom(ctx, table, schema.ColumnNames(), inserts)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}

	log.Debug("increment merge complete",
		zap.Int("updated", len(updates)),
		zap.Int64("inserted", inserted))
	return inserted + int64(len(updates)), nil
}

// loadReplace truncates the destination and inserts the full aligned
// batch unconditionally; the table starts empty, so no dedup is needed.
func (l *Loader) loadReplace(ctx context.Context, table string, cfg config.TableConfig, b *batch.Batch, log *zap.Logger) (int64, error) {
	schema, aligned, err := l.prepare(ctx, table, cfg, b)
	if err != nil {
		return 0, err
	}

	tx, err := l.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	if err := tx.Truncate(ctx, table); err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	loaded, err := tx.CopyFrom(ctx, table, schema.ColumnNames(), aligned.Rows())
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	return loaded, nil
}

// loadDelete prunes rows by the configured delete column: everything
// older than the retention cutoff is deleted, the last retention_days
// of data survive. No insert occurs in this mode.
func (l *Loader) loadDelete(ctx context.Context, table string, cfg config.TableConfig, log *zap.Logger) (int64, error) {
	if cfg.DeleteColumn == "" || cfg.RetentionDays <= 0 {
		return 0, errors.New(errors.ErrorTypeConfig, "delete mode requires delete_column and retention_days")
	}
	cutoff := l.now().AddDate(0, 0, -cfg.RetentionDays)

	tx, err := l.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	deleted, err := tx.DeleteBefore(ctx, table, cfg.DeleteColumn, cutoff)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}

	metrics.RowsDeleted.WithLabelValues(table, ModeDelete.String()).Add(float64(deleted))
	log.Info("retention prune complete",
		zap.String("column", cfg.DeleteColumn),
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted))
	return 0, nil
}

// commitCopy bulk-loads rows inside one transaction.
func (l *Loader) commitCopy(ctx context.Context, table string, columns []string, rows []batch.Row) (int64, error) {
	tx, err := l.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	loaded, err := tx.CopyFrom(ctx, table, columns, rows)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	return loaded, nil
}

func (l *Loader) recordSkips(table string, res dedupeResult) {
	if res.excluded > 0 {
		metrics.RowsSkipped.WithLabelValues(table, metrics.ReasonExcluded).Add(float64(res.excluded))
	}
	if res.duplicates > 0 {
		metrics.RowsSkipped.WithLabelValues(table, metrics.ReasonDuplicate).Add(float64(res.duplicates))
	}
	if res.nullKeys > 0 {
		metrics.RowsSkipped.WithLabelValues(table, metrics.ReasonNullKey).Add(float64(res.nullKeys))
	}
}

// columnIndexes resolves column positions in a batch.
func columnIndexes(b *batch.Batch, cols []string) []int {
	idxs := make([]int, len(cols))
	for i, col := range cols {
		idxs[i] = b.ColumnIndex(col)
	}
	return idxs
}

// tupleValues extracts the key tuples of every row.
func tupleValues(b *batch.Batch, cols []string) [][]interface{} {
	idxs := columnIndexes(b, cols)
	keys := make([][]interface{}, 0, b.Len())
	for _, row := range b.Rows() {
		key := make([]interface{}, len(idxs))
		for i, j := range idxs {
			key[i] = row[j]
		}
		keys = append(keys, key)
	}
	return keys
}
