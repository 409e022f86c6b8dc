// Package store persists optimisation runs.
package store

import (
	"context"
	"errors"

	"taptimise/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// SaveRun inserts or replaces run. An empty ID is assigned and
	// CreatedAt is stamped on first save.
	SaveRun(ctx context.Context, run model.Run) (model.Run, error)
	GetRun(ctx context.Context, id string) (model.Run, error)
	// ListRuns pages newest first. cursor is the last ID of the previous
	// page; the returned cursor is empty on the final page.
	ListRuns(ctx context.Context, cursor string, limit int) ([]model.RunSummary, string, error)
	// FindByFingerprint returns the newest finished run with fingerprint fp.
	FindByFingerprint(ctx context.Context, fp string) (model.Run, error)
	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

const (
	defaultLimit = 100
	maxLimit     = 500
)

func clampLimit(n int) int {
	if n <= 0 || n > maxLimit {
		return defaultLimit
	}
	return n
}
