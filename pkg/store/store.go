// Package store keeps a history of evaluation reports.
package store

import (
	"context"
	"errors"

	"github.com/user/cisaudit/pkg/engine"
)

// ErrNotFound is returned when no report matches the request.
var ErrNotFound = errors.New("report not found")

// Record summarizes one stored report.
type Record struct {
	ID          string                     `json:"id"`
	GeneratedAt string                     `json:"generatedAt"`
	Score       float64                    `json:"score"`
	Incomplete  bool                       `json:"incomplete"`
	Counts      map[engine.OutcomeKind]int `json:"counts"`
}

// Store persists reports. Implementations are safe for concurrent use.
type Store interface {
	SaveReport(ctx context.Context, report engine.Report) (Record, error)
	GetReport(ctx context.Context, id string) (Record, engine.Report, error)
	// LatestReports returns up to n full reports, newest first.
	LatestReports(ctx context.Context, n int) ([]Record, []engine.Report, error)
	ListReports(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
