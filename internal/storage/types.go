// Package storage persists completed orchestrator runs so the CLI's
// trend/compare surfaces can query history without holding every run in
// memory. Adapted from benchflow's sqlite.go/history.go, repointed from
// per-benchmark timing series to per-variant pass-rate/score series keyed
// by task-set hash. The core (A-I) never imports this package; only the
// CLI layer does.
package storage

import "time"

// Storage is the persistence contract history/trend commands depend on.
type Storage interface {
	Init() error
	Close() error
	SaveRun(run StoredRun) error
	LatestRun(taskSetHash string) (*StoredRun, error)
	RunsInRange(start, end time.Time) ([]StoredRun, error)
	History(variantID string, limit int) ([]ModelStatPoint, error)
	Cleanup(retentionDays int) error
}

// StoredRun is one completed run, keyed by its task-set hash so repeated
// runs of the same task set are directly comparable.
type StoredRun struct {
	ID              int64
	RunID           string
	TaskSetHash     string
	Timestamp       time.Time
	Duration        time.Duration
	OverallPassRate float64
	TotalTokens     int
	TotalCost       float64
	ModelStats      []ModelStatPoint
}

// ModelStatPoint is one variant's aggregate stats within a single run, the
// unit internal/analyzer's trend and anomaly detection operate over.
type ModelStatPoint struct {
	VariantID   string
	Timestamp   time.Time
	PassRate    float64
	AvgScore    float64
	AvgAttempts float64
	TotalTokens int
	TotalCost   float64
}
