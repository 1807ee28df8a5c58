package loader

import (
	"github.com/adlake/adlake/pkg/batch"
	"github.com/adlake/adlake/pkg/errors"
)

// ratioSpec recomputes a derived metric from summed bases. Summing a
// ratio directly is meaningless; it must be rebuilt after the base
// counters are summed. A zero denominator yields 0, never NaN or an
// error.
type ratioSpec struct {
	numerator   []string // first present column wins
	denominator []string
	scale       float64
}

// derivedRatios maps the conventional marketing ratio columns to their
// base-counter formulas.
var derivedRatios = map[string]ratioSpec{
	"cpc": {numerator: []string{"cost", "spend"}, denominator: []string{"clicks"}, scale: 1},
	"cpm": {numerator: []string{"cost", "spend"}, denominator: []string{"impressions"}, scale: 1000},
	"ctr": {numerator: []string{"clicks"}, denominator: []string{"impressions"}, scale: 100},
}

// Aggregate collapses a time-series batch (one row per entity per date)
// into one cumulative row per entity: the metric columns are summed,
// every other non-key column is dropped.
//
// Before summing, duplicate rows are removed keeping the first
// occurrence: overlapping upstream queries (one for active entities,
// one for paused) can return the same entity twice, and summing those
// would double-count every metric. The duplicate key is the entity key
// plus the batch's date column when one exists, the exact full row
// otherwise.
//
// Aggregating an already-aggregated batch is a no-op.
func Aggregate(b *batch.Batch, entityCols, metricCols []string) (*batch.Batch, error) {
	entityIdx := make([]int, len(entityCols))
	for i, col := range entityCols {
		entityIdx[i] = b.ColumnIndex(col)
		if entityIdx[i] < 0 {
			return nil, errors.Newf(errors.ErrorTypeData, "entity column %q not in batch", col)
		}
	}
	metricIdx := make([]int, len(metricCols))
	for i, col := range metricCols {
		metricIdx[i] = b.ColumnIndex(col)
		if metricIdx[i] < 0 {
			return nil, errors.Newf(errors.ErrorTypeData, "metric column %q not in batch", col)
		}
	}

	deduped := b.DistinctOn(dedupColumns(b, entityCols))

	type entityAcc struct {
		key    batch.Row
		sums   []float64
		allInt []bool
	}
	order := make([]string, 0, deduped.Len())
	acc := make(map[string]*entityAcc, deduped.Len())

	for r := 0; r < deduped.Len(); r++ {
		row := deduped.Row(r)
		key := batch.TupleKey(row, entityIdx)
		a, ok := acc[key]
		if !ok {
			a = &entityAcc{
				key:    make(batch.Row, len(entityIdx)),
				sums:   make([]float64, len(metricIdx)),
				allInt: make([]bool, len(metricIdx)),
			}
			for i, j := range entityIdx {
				a.key[i] = row[j]
			}
			for i := range a.allInt {
				a.allInt[i] = true
			}
			acc[key] = a
			order = append(order, key)
		}
		for i, j := range metricIdx {
			cell := row[j]
			if batch.IsNull(cell) {
				continue
			}
			f, ok := batch.ToFloat(cell)
			if !ok {
				continue
			}
			a.sums[i] += f
			if _, isInt := batch.ToInt(cell); !isInt {
				a.allInt[i] = false
			}
		}
	}

	out := batch.New(append(append([]string{}, entityCols...), metricCols...)...)
	for _, key := range order {
		a := acc[key]
		row := make(batch.Row, 0, len(entityCols)+len(metricCols))
		row = append(row, a.key...)
		for i, sum := range a.sums {
			if a.allInt[i] {
				row = append(row, int64(sum))
			} else {
				row = append(row, sum)
			}
		}
		if err := out.Append(row); err != nil {
			return nil, err
		}
	}

	return recomputeRatios(out, metricCols), nil
}

// dedupColumns picks the pre-aggregation duplicate key: entity columns
// plus the time-series date column when the batch carries one.
func dedupColumns(b *batch.Batch, entityCols []string) []string {
	for _, col := range windowColumns {
		if b.HasColumn(col) {
			return append(append([]string{}, entityCols...), col)
		}
	}
	return b.Columns()
}

// recomputeRatios rebuilds derived ratio columns from the summed bases.
func recomputeRatios(b *batch.Batch, metricCols []string) *batch.Batch {
	for _, col := range metricCols {
		spec, ok := derivedRatios[col]
		if !ok {
			continue
		}
		numIdx := firstColumn(b, spec.numerator)
		denIdx := firstColumn(b, spec.denominator)
		if numIdx < 0 || denIdx < 0 {
			continue
		}

		scale := spec.scale
		b = b.WithColumn(col, func(row batch.Row) interface{} {
			num, _ := batch.ToFloat(row[numIdx])
			den, _ := batch.ToFloat(row[denIdx])
			if den == 0 {
				return float64(0)
			}
			return batch.Round2(num / den * scale)
		})
	}
	return b
}

func firstColumn(b *batch.Batch, candidates []string) int {
	for _, col := range candidates {
		if j := b.ColumnIndex(col); j >= 0 {
			return j
		}
	}
	return -1
}
