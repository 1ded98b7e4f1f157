// Package stats keeps cumulative counters for upsert paths such as engagement
// writes. Counters are process-local and reset on restart.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// UpsertStats counts the outcome of find-or-create writes.
// Conflicts are inserts that lost a race to a concurrent writer and were
// retried as updates; they are counted in addition to the resulting update.
type UpsertStats struct {
	inserted  atomic.Int64
	updated   atomic.Int64
	conflicts atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Inserted  int64 `json:"inserted"`
	Updated   int64 `json:"updated"`
	Conflicts int64 `json:"conflicts"`
}

// NewUpsertStats creates zeroed counters.
func NewUpsertStats() *UpsertStats {
	return &UpsertStats{}
}

// RecordInsert counts a new row.
func (s *UpsertStats) RecordInsert() { s.inserted.Add(1) }

// RecordUpdate counts a write to an existing row.
func (s *UpsertStats) RecordUpdate() { s.updated.Add(1) }

// RecordConflict counts an insert that hit the unique constraint.
func (s *UpsertStats) RecordConflict() { s.conflicts.Add(1) }

// Inserted returns the total number of inserts.
func (s *UpsertStats) Inserted() int64 { return s.inserted.Load() }

// Updated returns the total number of updates.
func (s *UpsertStats) Updated() int64 { return s.updated.Load() }

// Conflicts returns the number of insert races that were retried.
func (s *UpsertStats) Conflicts() int64 { return s.conflicts.Load() }

// Total returns inserts plus updates.
func (s *UpsertStats) Total() int64 {
	return s.Inserted() + s.Updated()
}

// Snapshot copies the counters.
func (s *UpsertStats) Snapshot() Snapshot {
	return Snapshot{Inserted: s.Inserted(), Updated: s.Updated(), Conflicts: s.Conflicts()}
}

// Reset zeroes all counters.
func (s *UpsertStats) Reset() {
	s.inserted.Store(0)
	s.updated.Store(0)
	s.conflicts.Store(0)
}

func (s *UpsertStats) String() string {
	return fmt.Sprintf("inserted=%d updated=%d conflicts=%d total=%d", s.Inserted(), s.Updated(), s.Conflicts(), s.Total())
}

// LogSummary logs the counters at INFO level.
func (s *UpsertStats) LogSummary(logger *slog.Logger, entity string) {
	logger.Info("upsert statistics",
		"entity", entity,
		"inserted", s.Inserted(),
		"updated", s.Updated(),
		"conflicts", s.Conflicts(),
		"total", s.Total(),
	)
}
