// Package store archives analysis reports in an embedded libSQL database so
// earlier analyses can be listed, reopened and compared.
package store

import (
	"context"
	"time"
)

// Store defines the report archive contract.
// All implementations must be safe for concurrent use.
type Store interface {
	SaveReport(ctx context.Context, rec *Record) error
	GetReport(ctx context.Context, id string) (*Record, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]*Summary, error)
	DeleteReport(ctx context.Context, id string) error

	// Prune deletes reports created before the cutoff and returns how many
	// were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
