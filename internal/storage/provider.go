package storage

import (
	"context"

	"av1conv/internal/ports"
)

// Provider is the object storage contract used across API, worker and
// janitor. It is an alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider

// StateStore is the job state contract, aliased for the same reason.
type StateStore = ports.StateStore

// Pinger is implemented by providers that can check their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}
