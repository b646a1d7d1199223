// Package upsert merges freshly extracted rows into a keyed table.
package upsert

import (
	"context"
	"fmt"

	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
	"github.com/tigerroll/carbonlake/pkg/lake/table"
)

// Strategy decides which row survives a key collision.
type Strategy int

const (
	// ExistingWins keeps the stored row.
	ExistingWins Strategy = iota
	// NewWins replaces the stored row with the incoming one.
	NewWins
)

func (s Strategy) String() string {
	if s == NewWins {
		return "new_wins"
	}
	return "existing_wins"
}

// ParseStrategy maps a config value to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "existing_wins":
		return ExistingWins, nil
	case "new_wins":
		return NewWins, nil
	}
	return ExistingWins, fmt.Errorf("upsert: unknown merge strategy %q", name)
}

// Store is the subset of table.Store the merger needs.
type Store interface {
	Exists(ctx context.Context, tablePath string) bool
	ReadAll(ctx context.Context, tablePath string) (*frame.Frame, error)
	Overwrite(ctx context.Context, tablePath string, f *frame.Frame, partitionBy []string) (table.CommitResult, error)
}

// Result reports what an Upsert did.
type Result struct {
	Existing   int
	Incoming   int
	Written    int
	Duplicates int
	Created    bool
	Skipped    bool
	Commit     table.CommitResult
}

// Inserted returns the number of rows that were not already stored.
func (r Result) Inserted() int {
	if r.Created {
		return r.Written
	}
	return r.Written - r.Existing
}

// Merger performs read-merge-overwrite upserts.
type Merger struct {
	store    Store
	strategy Strategy
}

// NewMerger returns a Merger over store.
func NewMerger(store Store, strategy Strategy) *Merger {
	return &Merger{store: store, strategy: strategy}
}

// Upsert merges newRows into the table at tablePath keyed by keyColumns.
//
// A missing table is created from newRows as given. Otherwise the stored
// snapshot and newRows are concatenated (in the order the strategy
// prescribes), deduplicated on the key keeping the first occurrence, and
// written back with a full overwrite. An empty newRows changes nothing.
func (m *Merger) Upsert(ctx context.Context, newRows *frame.Frame, tablePath string, keyColumns, partitionBy []string) (Result, error) {
	result := Result{Incoming: newRows.Len()}
	if newRows.Empty() {
		logger.Warnf("Upsert into '%s' skipped: no incoming rows.", tablePath)
		result.Skipped = true
		return result, nil
	}
	for _, k := range keyColumns {
		if !newRows.Has(k) {
			return result, fmt.Errorf("upsert %s: key column %q missing from incoming rows", tablePath, k)
		}
	}

	if !m.store.Exists(ctx, tablePath) {
		commit, err := m.store.Overwrite(ctx, tablePath, newRows, partitionBy)
		if err != nil {
			return result, fmt.Errorf("upsert %s: create table: %w", tablePath, err)
		}
		result.Created = true
		result.Written = newRows.Len()
		result.Commit = commit
		logger.Infof("Created table '%s' with %d rows.", tablePath, result.Written)
		return result, nil
	}

	existing, err := m.store.ReadAll(ctx, tablePath)
	if err != nil {
		return result, fmt.Errorf("upsert %s: read existing rows: %w", tablePath, err)
	}
	result.Existing = existing.Len()

	var combined *frame.Frame
	if m.strategy == NewWins {
		combined = frame.Concat(newRows, existing)
	} else {
		combined = frame.Concat(existing, newRows)
	}
	deduped, dropped := combined.DropDuplicates(keyColumns)
	result.Duplicates = dropped

	commit, err := m.store.Overwrite(ctx, tablePath, deduped, partitionBy)
	if err != nil {
		return result, fmt.Errorf("upsert %s: overwrite: %w", tablePath, err)
	}
	result.Written = deduped.Len()
	result.Commit = commit
	logger.Infof("Upserted into '%s' (%s): %d existing, %d incoming, %d duplicates discarded, %d rows written.",
		tablePath, m.strategy, result.Existing, result.Incoming, result.Duplicates, result.Written)
	return result, nil
}
