package batch

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical date format accepted from upstream
// extraction stages.
const DateLayout = "2006-01-02"

// TimestampLayout is the canonical timestamp format for encoded cells.
const TimestampLayout = "2006-01-02 15:04:05"

// tupleSep separates cell values inside a tuple key. The unit separator
// cannot appear in warehouse identifiers or extracted marketing data.
const tupleSep = "\x1f"

// NullKeyMarker stands in for NULL cells inside tuple keys, keeping
// NULL distinguishable from the empty string on both sides of an
// anti-join.
const NullKeyMarker = "\x00null"

// Canonical normalizes a column identifier: trimmed and lower-cased.
func Canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsNull reports whether a cell value denotes SQL NULL.
func IsNull(v interface{}) bool {
	return v == nil
}

// Format renders a cell value in its canonical text form. NULL renders
// as the empty string; the bulk encoder handles the NULL token itself.
func Format(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case decimal.Decimal:
		return x.String()
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(DateLayout)
		}
		return x.Format(TimestampLayout)
	default:
		return ""
	}
}

// KeyFormat renders a cell for use inside a tuple key: NULL becomes the
// marker, everything else the normalized canonical text.
func KeyFormat(v interface{}) string {
	if IsNull(v) {
		return NullKeyMarker
	}
	return NormalizeKey(Format(v))
}

// NormalizeKey reconciles differing text renderings of the same key
// value so batch-side and warehouse-side tuples compare equal: midnight
// timestamps reduce to plain dates and trailing decimal zeros are
// trimmed, so "2024-01-02 00:00:00" matches "2024-01-02" and "5.50"
// matches "5.5".
func NormalizeKey(s string) string {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format(DateLayout)
		}
		return s
	}
	if strings.Contains(s, ".") {
		trimmed := strings.TrimRight(strings.TrimRight(s, "0"), ".")
		if _, ok := ToFloat(trimmed); ok && trimmed != "" {
			return trimmed
		}
	}
	return s
}

// TupleKey builds a stable key for the row cells at the given column
// positions, usable as a map key for deduplication and anti-joins.
func TupleKey(row Row, idxs []int) string {
	var sb strings.Builder
	for n, i := range idxs {
		if n > 0 {
			sb.WriteString(tupleSep)
		}
		sb.WriteString(KeyFormat(row[i]))
	}
	return sb.String()
}

// TupleKeyValues builds a tuple key from already-formatted values, as
// returned by warehouse key scans.
func TupleKeyValues(values []string) string {
	return strings.Join(values, tupleSep)
}

// ToFloat coerces a numeric cell to float64.
func ToFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case decimal.Decimal:
		f, _ := x.Float64()
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToInt coerces an integer-like cell to int64. Float cells coerce only
// when they carry no fractional part.
func ToInt(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
		return 0, false
	case decimal.Decimal:
		if x.IsInteger() {
			return x.IntPart(), true
		}
		return 0, false
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// ParseDate parses a YYYY-MM-DD string cell to a date. Values that are
// already time.Time pass through.
func ParseDate(v interface{}) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range []string{DateLayout, TimestampLayout, time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// Round2 rounds a float cell to two decimal places using half-up
// semantics, matching warehouse NUMERIC(x, 2) storage.
func Round2(f float64) float64 {
	d := decimal.NewFromFloat(f).Round(2)
	out, _ := d.Float64()
	return out
}
