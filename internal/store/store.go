// Package store is the reference in-memory implementation of the storage
// contracts spec.md §6 names (SignalStore, ExecutionStore, AttributionStore,
// CalibrationStore, DriftStore): CRUD plus period-scoped rollups. Concrete
// persistence engines (time-series, vector, graph DBs) are out of scope
// (spec.md §1 Non-goals) — this package only satisfies the interfaces other
// components already depend on (pipeline.Recorder, resolution.PredictionStore)
// and gives them somewhere to land in a running instance.
//
// Every substore is mutex-protected and pull-based: nothing here runs its
// own goroutine. Retention pruning is driven by a caller-invoked Prune, the
// same shape as internal/risk.Checker's post-trade Monitor.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"predictioncore/internal/config"
)

// Period bounds a rollup query (spec.md §6: "period-scoped rollups").
type Period struct {
	Start, End time.Time
}

// Contains reports whether ts falls in [Start, End). A zero Period matches
// everything — callers that want "all time" just pass Period{}.
func (p Period) Contains(ts time.Time) bool {
	if !p.Start.IsZero() && ts.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && !ts.Before(p.End) {
		return false
	}
	return true
}

// Store aggregates every substore a running instance needs. Callers are
// expected to wire its substores directly into pipeline.New and
// resolution.New rather than going through Store itself — Store only exists
// to give cmd/core one object to construct, prune, and snapshot.
type Store struct {
	Signals      *SignalStore
	Executions   *ExecutionStore
	Attributions *AttributionStore
	Calibrations *CalibrationStore
	Drifts       *DriftStore
	Predictions  *PredictionStore

	cfg config.StoreConfig
	dir string // snapshot directory; empty disables Snapshot
}

// New builds every substore against a shared retention window. dir is
// where Snapshot writes crash-recovery files; pass "" to disable snapshotting.
func New(cfg config.StoreConfig, dir string) *Store {
	return &Store{
		Signals:      NewSignalStore(cfg),
		Executions:   NewExecutionStore(cfg),
		Attributions: NewAttributionStore(cfg),
		Calibrations: NewCalibrationStore(cfg),
		Drifts:       NewDriftStore(cfg),
		Predictions:  NewPredictionStore(),
		cfg:          cfg,
		dir:          dir,
	}
}

// Prune drops every substore's records older than the retention window
// (spec.md §6 storage is pull-based; nothing here ages out on its own).
func (s *Store) Prune(now time.Time) {
	s.Signals.Prune(now)
	s.Executions.Prune(now)
	s.Attributions.Prune(now)
	s.Calibrations.Prune(now)
	s.Drifts.Prune(now)
}

// Snapshot writes every substore's current records to its own JSON file
// under dir, concurrently, using the same atomic write-then-rename idiom as
// single-record position persistence (write to .tmp, then rename — never a
// partially-written file on disk). An empty dir is a no-op: this exists purely
// for crash recovery of the in-memory reference store, not as the
// persistence engine itself.
func (s *Store) Snapshot(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return writeJSON(s.dir, "signals.json", s.Signals.snapshot()) })
	g.Go(func() error { return writeJSON(s.dir, "executions.json", s.Executions.snapshot()) })
	g.Go(func() error { return writeJSON(s.dir, "attributions.json", s.Attributions.snapshot()) })
	g.Go(func() error { return writeJSON(s.dir, "calibrations.json", s.Calibrations.snapshot()) })
	g.Go(func() error { return writeJSON(s.dir, "drifts.json", s.Drifts.snapshot()) })
	return g.Wait()
}

// writeJSON is the teacher's atomic write-then-rename idiom
// (_examples/0xtitan6-polymarket-mm/internal/store/store.go), generalized
// from one position per file to one record slice per file.
func writeJSON(dir, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}
