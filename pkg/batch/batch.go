// Package batch provides the rectangular record-batch model used by the
// loading engine. A Batch is an ordered collection of rows sharing one
// named column set, semantically a table slice. Column names are
// case-insensitive identifiers; cell values are one of string, int64,
// float64, decimal.Decimal, time.Time, bool or nil (SQL NULL).
package batch

import (
	"sort"

	"github.com/goccy/go-json"

	"github.com/adlake/adlake/pkg/errors"
)

// Row is a single record, positionally aligned with the batch columns.
type Row []interface{}

// Batch is an ordered, rectangular collection of records.
// It is immutable by convention: transformation methods return a new
// Batch and never mutate the receiver's rows in place.
type Batch struct {
	cols []string
	idx  map[string]int
	rows []Row
}

// New creates an empty batch with the given column set.
// Column names are canonicalized to lower case.
func New(columns ...string) *Batch {
	b := &Batch{
		cols: make([]string, 0, len(columns)),
		idx:  make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		name := Canonical(c)
		if _, dup := b.idx[name]; dup {
			continue
		}
		b.idx[name] = len(b.cols)
		b.cols = append(b.cols, name)
	}
	return b
}

// FromMaps builds a batch from generic records. The column set is the
// union of all record keys in sorted order; keys absent from a record
// become NULL cells, keeping the batch rectangular.
func FromMaps(records []map[string]interface{}) *Batch {
	seen := make(map[string]struct{})
	var cols []string
	for _, rec := range records {
		for k := range rec {
			name := Canonical(k)
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				cols = append(cols, name)
			}
		}
	}
	sort.Strings(cols)

	b := New(cols...)
	for _, rec := range records {
		row := make(Row, len(b.cols))
		for k, v := range rec {
			if i, ok := b.idx[Canonical(k)]; ok {
				row[i] = v
			}
		}
		b.rows = append(b.rows, row)
	}
	return b
}

// FromJSON decodes a JSON array of objects into a batch.
func FromJSON(data []byte) (*Batch, error) {
	var records []map[string]interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode batch JSON")
	}
	return FromMaps(records), nil
}

// Append adds a row to the batch. The row must match the column width.
func (b *Batch) Append(row Row) error {
	if len(row) != len(b.cols) {
		return errors.Newf(errors.ErrorTypeData,
			"row width %d does not match batch width %d", len(row), len(b.cols))
	}
	b.rows = append(b.rows, row)
	return nil
}

// Columns returns a copy of the ordered column names.
func (b *Batch) Columns() []string {
	out := make([]string, len(b.cols))
	copy(out, b.cols)
	return out
}

// HasColumn reports whether the batch contains the named column.
func (b *Batch) HasColumn(name string) bool {
	_, ok := b.idx[Canonical(name)]
	return ok
}

// ColumnIndex returns the position of the named column, or -1.
func (b *Batch) ColumnIndex(name string) int {
	if i, ok := b.idx[Canonical(name)]; ok {
		return i
	}
	return -1
}

// Len returns the number of rows.
func (b *Batch) Len() int {
	return len(b.rows)
}

// Width returns the number of columns.
func (b *Batch) Width() int {
	return len(b.cols)
}

// Row returns the i-th row. The returned slice is shared; callers must
// not mutate it.
func (b *Batch) Row(i int) Row {
	return b.rows[i]
}

// Rows returns the backing row slice for read-only iteration.
func (b *Batch) Rows() []Row {
	return b.rows
}

// Value returns the cell at (row, column name), or nil when the column
// is absent.
func (b *Batch) Value(row int, column string) interface{} {
	i := b.ColumnIndex(column)
	if i < 0 {
		return nil
	}
	return b.rows[row][i]
}

// empty returns a batch with the same column set and no rows.
func (b *Batch) empty() *Batch {
	nb := New(b.cols...)
	nb.rows = make([]Row, 0, len(b.rows))
	return nb
}

// Project returns a batch with exactly the given columns in the given
// order. Requested columns missing from the batch yield an error.
func (b *Batch) Project(columns []string) (*Batch, error) {
	src := make([]int, len(columns))
	for i, c := range columns {
		j := b.ColumnIndex(c)
		if j < 0 {
			return nil, errors.Newf(errors.ErrorTypeData, "column %q not in batch", Canonical(c))
		}
		src[i] = j
	}

	nb := New(columns...)
	nb.rows = make([]Row, 0, len(b.rows))
	for _, row := range b.rows {
		nr := make(Row, len(src))
		for i, j := range src {
			nr[i] = row[j]
		}
		nb.rows = append(nb.rows, nr)
	}
	return nb, nil
}

// WithColumn returns a batch extended with a new column whose cells are
// produced by fill. When the column already exists, fill rewrites it.
func (b *Batch) WithColumn(name string, fill func(Row) interface{}) *Batch {
	name = Canonical(name)
	if j, ok := b.idx[name]; ok {
		nb := b.empty()
		for _, row := range b.rows {
			nr := make(Row, len(row))
			copy(nr, row)
			nr[j] = fill(row)
			nb.rows = append(nb.rows, nr)
		}
		return nb
	}

	nb := New(append(b.Columns(), name)...)
	nb.rows = make([]Row, 0, len(b.rows))
	for _, row := range b.rows {
		nr := make(Row, len(row)+1)
		copy(nr, row)
		nr[len(row)] = fill(row)
		nb.rows = append(nb.rows, nr)
	}
	return nb
}

// Filter returns a batch containing only rows for which keep is true.
func (b *Batch) Filter(keep func(Row) bool) *Batch {
	nb := b.empty()
	for _, row := range b.rows {
		if keep(row) {
			nb.rows = append(nb.rows, row)
		}
	}
	return nb
}

// DropExactDuplicates collapses rows identical across all columns to a
// single occurrence, keeping the first.
func (b *Batch) DropExactDuplicates() *Batch {
	return b.DistinctOn(b.cols)
}

// DistinctOn keeps the first occurrence of each distinct tuple over the
// given columns. Columns absent from the batch are ignored.
func (b *Batch) DistinctOn(columns []string) *Batch {
	var idxs []int
	for _, c := range columns {
		if j := b.ColumnIndex(c); j >= 0 {
			idxs = append(idxs, j)
		}
	}
	if len(idxs) == 0 {
		return b
	}

	seen := make(map[string]struct{}, len(b.rows))
	nb := b.empty()
	for _, row := range b.rows {
		key := TupleKey(row, idxs)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		nb.rows = append(nb.rows, row)
	}
	return nb
}
