package pebblestate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"av1conv/internal/adapters/state/statetest"
	"av1conv/internal/models"
	"av1conv/internal/ports"
)

func TestContract(t *testing.T) {
	statetest.Run(t, func(t *testing.T) ports.StateStore {
		s, err := Open(filepath.Join(t.TempDir(), "pebble"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestReopenKeepsState(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble")
	ctx := context.Background()

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, models.JobState{JobID: "persist", Status: models.StatusCompleted, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.Get(ctx, "persist")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("got %+v", got)
	}
}
