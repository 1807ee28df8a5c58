package loader

import (
	"github.com/shopspring/decimal"

	"github.com/adlake/adlake/pkg/batch"
	"github.com/adlake/adlake/pkg/errors"
	"github.com/adlake/adlake/pkg/warehouse"
)

// Align projects a batch onto the destination schema: exactly the
// destination's columns, in destination order, with cells coerced to
// the catalog types. Batch columns unknown to the destination are
// dropped.
//
// In lenient mode (the default), destination columns missing from the
// batch are filled: empty string for text columns, NULL for numeric and
// temporal columns, zero for integer counters. This keeps loads of
// optional columns from failing at the cost of silently emitting
// semantically empty values; strict mode turns a missing column into a
// validation error so upstream extraction bugs surface loudly.
func Align(b *batch.Batch, schema *warehouse.TableSchema, strict bool) (*batch.Batch, error) {
	if schema == nil || len(schema.Columns) == 0 {
		return nil, errors.New(errors.ErrorTypeSchema, "destination schema has no columns to align against")
	}

	src := make([]int, len(schema.Columns))
	for i, col := range schema.Columns {
		src[i] = b.ColumnIndex(col.Name)
		if src[i] < 0 && strict {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"batch is missing destination column %q", col.Name)
		}
	}

	// Float and decimal columns are rounded only when they carry at
	// least one non-null value.
	round := make([]bool, len(schema.Columns))
	for i, col := range schema.Columns {
		if col.Type != warehouse.TypeFloat && col.Type != warehouse.TypeDecimal {
			continue
		}
		if src[i] < 0 {
			continue
		}
		for r := 0; r < b.Len(); r++ {
			if !batch.IsNull(b.Row(r)[src[i]]) {
				round[i] = true
				break
			}
		}
	}

	aligned := batch.New(schema.ColumnNames()...)
	for r := 0; r < b.Len(); r++ {
		row := b.Row(r)
		nr := make(batch.Row, len(schema.Columns))
		for i, col := range schema.Columns {
			var cell interface{}
			if src[i] >= 0 {
				cell = row[src[i]]
			} else {
				cell = fillValue(col.Type)
			}
			nr[i] = coerce(cell, col.Type, round[i])
		}
		if err := aligned.Append(nr); err != nil {
			return nil, err
		}
	}
	return aligned, nil
}

// fillValue is the lenient default for a destination column absent from
// the batch.
func fillValue(t warehouse.LogicalType) interface{} {
	switch t {
	case warehouse.TypeString:
		return ""
	default:
		// Numeric and temporal columns start as NULL; integer
		// counters are zeroed by coercion below.
		return nil
	}
}

// coerce casts one cell to the destination column's logical type.
// Values that cannot be represented in the column type become NULL
// rather than failing the load.
func coerce(cell interface{}, t warehouse.LogicalType, round bool) interface{} {
	switch t {
	case warehouse.TypeInteger:
		if batch.IsNull(cell) {
			// Integer counters default to zero, not NULL.
			return int64(0)
		}
		if i, ok := batch.ToInt(cell); ok {
			return i
		}
		return nil

	case warehouse.TypeFloat:
		if batch.IsNull(cell) {
			return nil
		}
		f, ok := batch.ToFloat(cell)
		if !ok {
			return nil
		}
		if round {
			f = batch.Round2(f)
		}
		return f

	case warehouse.TypeDecimal:
		if batch.IsNull(cell) {
			return nil
		}
		f, ok := batch.ToFloat(cell)
		if !ok {
			return nil
		}
		d := decimal.NewFromFloat(f)
		if round {
			d = d.Round(2)
		}
		return d

	case warehouse.TypeDate, warehouse.TypeTimestamp:
		if batch.IsNull(cell) {
			return nil
		}
		if d, ok := batch.ParseDate(cell); ok {
			return d
		}
		return nil

	case warehouse.TypeBoolean:
		switch x := cell.(type) {
		case nil:
			return nil
		case bool:
			return x
		case string:
			switch x {
			case "true", "1":
				return true
			case "false", "0":
				return false
			}
			return nil
		default:
			if i, ok := batch.ToInt(cell); ok {
				return i != 0
			}
			return nil
		}

	default: // TypeString and unknowns
		if batch.IsNull(cell) {
			return nil
		}
		if s, ok := cell.(string); ok {
			return s
		}
		return batch.Format(cell)
	}
}
