package loader

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/adlake/adlake/pkg/batch"
	"github.com/adlake/adlake/pkg/warehouse"
)

// windowColumns is the windowing column convention, in preference
// order. The first one present in both the batch and the destination
// scopes the existing-rows scan.
var windowColumns = []string{"date", "data", "row_loaded_date"}

// loadedDateColumn bounds the scan when the batch carries no windowing
// column but the destination tracks load dates.
const loadedDateColumn = "row_loaded_date"

// defaultLookbackDays bounds the default exclusion scan. Scanning the
// entire destination per load is unaffordable at warehouse scale;
// upstream extraction windows are themselves time-bounded, so older
// duplicates not being caught is an accepted trade.
const defaultLookbackDays = 200

// dedupeResult carries the batch surviving exclusion resolution plus
// accounting for observability.
type dedupeResult struct {
	batch      *batch.Batch
	nullKeys   int
	duplicates int
	excluded   int
}

// resolveWindow picks the date window for the exclusion scan. An
// explicit override column wins over the convention; when the batch
// carries no usable windowing column, the scan falls back to rows
// loaded within the lookback, and to an unscoped scan only when the
// destination has no load-date column either.
func resolveWindow(b *batch.Batch, schema *warehouse.TableSchema, override string, now time.Time) *warehouse.Window {
	candidates := windowColumns
	if override != "" {
		candidates = append([]string{override}, windowColumns...)
	}

	for _, col := range candidates {
		if !b.HasColumn(col) {
			continue
		}
		if _, ok := schema.Column(col); !ok {
			continue
		}
		if w := batchWindow(b, col); w != nil {
			return w
		}
	}

	if _, ok := schema.Column(loadedDateColumn); ok {
		return &warehouse.Window{
			Column: loadedDateColumn,
			Min:    now.AddDate(0, 0, -defaultLookbackDays),
			Max:    now,
		}
	}
	return nil
}

// batchWindow computes [min, max] of the batch's windowing column.
// Rows with unparsable dates are ignored; a column with no parsable
// value yields no window.
func batchWindow(b *batch.Batch, column string) *warehouse.Window {
	idx := b.ColumnIndex(column)
	var min, max time.Time
	found := false
	for r := 0; r < b.Len(); r++ {
		d, ok := batch.ParseDate(b.Row(r)[idx])
		if !ok {
			continue
		}
		if !found || d.Before(min) {
			min = d
		}
		if !found || d.After(max) {
			max = d
		}
		found = true
	}
	if !found {
		return nil
	}
	return &warehouse.Window{Column: column, Min: min, Max: max}
}

// deduplicate removes from the batch every row already represented
// downstream or within the batch itself:
//
//  1. rows with a NULL in any natural-key column are dropped — a null
//     key cannot be deduplicated or matched later;
//  2. rows whose key tuple is in the exclusion set are dropped
//     (anti-join);
//  3. remaining rows sharing a key tuple collapse to the first
//     occurrence, preserving at most one representation per key.
//
// When no natural key is declared, the full row is the key tuple.
func deduplicate(b *batch.Batch, keyCols []string, exclusion *warehouse.KeySet) dedupeResult {
	fullRow := len(keyCols) == 0
	if fullRow {
		keyCols = b.Columns()
	}

	idxs := make([]int, 0, len(keyCols))
	for _, col := range keyCols {
		if j := b.ColumnIndex(col); j >= 0 {
			idxs = append(idxs, j)
		}
	}

	res := dedupeResult{}
	seen := make(map[string]struct{}, b.Len())
	res.batch = b.Filter(func(row batch.Row) bool {
		if !fullRow {
			for _, i := range idxs {
				if batch.IsNull(row[i]) {
					res.nullKeys++
					return false
				}
			}
		}
		key := batch.TupleKey(row, idxs)
		if exclusion != nil && exclusion.Contains(key) {
			res.excluded++
			return false
		}
		if _, dup := seen[key]; dup {
			res.duplicates++
			return false
		}
		seen[key] = struct{}{}
		return true
	})
	return res
}

// exclusionSet computes the set of key tuples already stored, scoped by
// the window. A failed scan is treated as an empty set: the first load
// of a brand-new table must not be fatal.
func (l *Loader) exclusionSet(ctx context.Context, table string, keyCols []string, w *warehouse.Window) *warehouse.KeySet {
	set, err := l.conn.DistinctKeys(ctx, table, keyCols, w)
	if err != nil {
		l.logger.Warn("exclusion query failed; treating exclusion set as empty",
			zap.String("table", table),
			zap.Strings("key_columns", keyCols),
			zap.Error(err))
		return warehouse.NewKeySet(keyCols)
	}
	return set
}
