package ports

import (
	"context"
	"errors"
	"sort"

	"av1conv/internal/models"
)

// ErrStateNotFound is returned when a job id has no stored state.
var ErrStateNotFound = errors.New("job state not found")

// ListFilter narrows StateStore.List. Zero values mean no filter.
type ListFilter struct {
	Status models.Status
	// Limit <= 0 means no limit.
	Limit int
}

// StateStore persists JobState records (file, pebble, redis, postgres,
// sqlite).
type StateStore interface {
	Name() string

	Get(ctx context.Context, jobID string) (models.JobState, error)
	// Put inserts or replaces the state for s.JobID.
	Put(ctx context.Context, s models.JobState) error
	// List returns states ordered by created_at, newest first.
	List(ctx context.Context, f ListFilter) ([]models.JobState, error)
	Delete(ctx context.Context, jobID string) error

	Ping(ctx context.Context) error
	Close() error
}

// Apply filters by status, orders newest first and truncates to Limit.
// Backends that cannot query natively use it on their full scan.
func (f ListFilter) Apply(states []models.JobState) []models.JobState {
	out := states[:0:0]
	for _, s := range states {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
