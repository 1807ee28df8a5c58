// Package loader implements the incremental warehouse-loading engine:
// it reconciles a freshly transformed batch against what already exists
// in a destination table under one of several consistency modes, with
// natural-key deduplication, schema-aligned type coercion and atomic
// bulk commits.
package loader

import (
	"github.com/adlake/adlake/pkg/config"
)

// Mode is the per-table reconciliation behavior. It is a closed sum
// type: the dispatcher matches it exhaustively, so a new mode is a
// compile-time-checked addition.
type Mode int

const (
	// ModeAppend inserts rows whose natural key is not yet stored;
	// duplicates are silently skipped, never overwritten. Default.
	ModeAppend Mode = iota
	// ModeUpsert fully overwrites existing rows matching the natural
	// key and inserts the rest.
	ModeUpsert
	// ModeIncrement additively merges numeric metrics into existing
	// rows; the only mode that mutates stored numeric state.
	ModeIncrement
	// ModeReplace truncates the destination, then inserts the full
	// batch unconditionally.
	ModeReplace
	// ModeDelete prunes rows by the windowing column; no insert.
	ModeDelete
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeAppend:
		return "append"
	case ModeUpsert:
		return "upsert"
	case ModeIncrement:
		return "increment"
	case ModeReplace:
		return "replace"
	case ModeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ResolveMode selects the load mode from per-table configuration.
// Historical configuration files set several mode keys redundantly, so
// the precedence is fixed and must not change:
// increment > upsert > replace > legacy update/merge aliases > delete >
// append with explicit primary key > append default.
func ResolveMode(cfg config.TableConfig) Mode {
	switch {
	case len(cfg.IncrementKey) > 0:
		return ModeIncrement
	case cfg.Upsert:
		return ModeUpsert
	case cfg.Replace:
		return ModeReplace
	case cfg.Update || cfg.Merge:
		return ModeUpsert
	case cfg.DeleteColumn != "" && cfg.RetentionDays > 0:
		return ModeDelete
	default:
		return ModeAppend
	}
}
