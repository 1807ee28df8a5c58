// Package warehouse provides the columnar-warehouse client used by the
// loading engine: catalog reads, distinct-key scans and the delimited
// bulk-ingest protocol, implemented for the Vertica SQL dialect.
package warehouse

import (
	"context"
	"time"

	"github.com/adlake/adlake/pkg/batch"
)

// LogicalType classifies a destination column for alignment and
// encoding purposes.
type LogicalType int

const (
	TypeUnknown LogicalType = iota
	TypeString
	TypeInteger
	TypeFloat
	TypeDecimal
	TypeDate
	TypeTimestamp
	TypeBoolean
)

// String returns the type name.
func (t LogicalType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeDate:
		return "date"
	case TypeTimestamp:
		return "timestamp"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether the type stores numbers.
func (t LogicalType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat || t == TypeDecimal
}

// IsTemporal reports whether the type stores dates or timestamps.
func (t LogicalType) IsTemporal() bool {
	return t == TypeDate || t == TypeTimestamp
}

// Column is one destination column as declared in the catalog.
type Column struct {
	Name     string
	Type     LogicalType
	Nullable bool
}

// TableSchema is the ordered column set of one physical table. Column
// order is authoritative for bulk-load encoding.
type TableSchema struct {
	Table   string
	Columns []Column
}

// ColumnNames returns the ordered column names.
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by case-insensitive name.
func (s *TableSchema) Column(name string) (Column, bool) {
	name = batch.Canonical(name)
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Window restricts an existing-rows scan to a date range on one column.
type Window struct {
	Column string
	Min    time.Time
	Max    time.Time
}

// KeySet is the set of key tuples already present in a destination
// table. It lives for a single load call.
type KeySet struct {
	Columns []string
	keys    map[string]struct{}
}

// NewKeySet creates an empty key set over the given columns.
func NewKeySet(columns []string) *KeySet {
	return &KeySet{
		Columns: columns,
		keys:    make(map[string]struct{}),
	}
}

// Add records a key tuple from its formatted cell values. NULL cells
// arrive as batch.NullKeyMarker and pass through unchanged.
func (k *KeySet) Add(values []string) {
	normalized := make([]string, len(values))
	for i, v := range values {
		if v == batch.NullKeyMarker {
			normalized[i] = v
			continue
		}
		normalized[i] = batch.NormalizeKey(v)
	}
	k.keys[batch.TupleKeyValues(normalized)] = struct{}{}
}

// Contains reports whether the tuple key is in the set.
func (k *KeySet) Contains(key string) bool {
	_, ok := k.keys[key]
	return ok
}

// Len returns the number of distinct tuples.
func (k *KeySet) Len() int {
	return len(k.keys)
}

// Conn is the read-side contract the loader needs from a warehouse.
type Conn interface {
	// Schema returns the destination table's ordered column set from
	// the catalog. Fails with a catalog error when the table does not
	// exist. Called once per load; schemas change between deployments,
	// so results are never cached process-wide.
	Schema(ctx context.Context, table string) (*TableSchema, error)

	// DistinctKeys scans the distinct tuples of the given columns,
	// optionally windowed, and returns them as a KeySet.
	DistinctKeys(ctx context.Context, table string, columns []string, w *Window) (*KeySet, error)

	// ExistingIncrements reads the current values of the increment
	// columns for the given key tuples. The result maps tuple keys
	// (batch.TupleKeyValues over formatted primary-key cells) to the
	// stored increment column values; absent entities are simply not
	// in the map.
	ExistingIncrements(ctx context.Context, table string, pkCols, incCols []string, keys [][]interface{}) (map[string][]float64, error)

	// Begin opens the write-side transaction for one load call.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the write-side contract. Every mutation of a load call happens
// inside one Tx; Commit makes the whole batch visible atomically and
// Rollback leaves the destination untouched.
type Tx interface {
	// CopyFrom bulk-ingests rows into the table's explicit column
	// list using the delimited wire protocol and returns the number
	// of rows written.
	CopyFrom(ctx context.Context, table string, columns []string, rows []batch.Row) (int64, error)

	// Truncate empties the destination table.
	Truncate(ctx context.Context, table string) error

	// DeleteKeys removes rows whose key tuple matches any of the
	// given tuples.
	DeleteKeys(ctx context.Context, table string, keyCols []string, keys [][]interface{}) (int64, error)

	// DeleteBefore removes rows whose column value is older than the
	// cutoff, keeping everything on or after it.
	DeleteBefore(ctx context.Context, table string, column string, cutoff time.Time) (int64, error)

	// ApplyIncrement overwrites the increment columns of one entity
	// with the already-summed values.
	ApplyIncrement(ctx context.Context, table string, pkCols []string, pkVals []interface{}, incCols []string, sums []float64) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
