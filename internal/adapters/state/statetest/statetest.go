// Package statetest holds the behaviour every ports.StateStore backend must
// share. Backend tests call Run with a constructor for a fresh, empty store.
package statetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"av1conv/internal/models"
	"av1conv/internal/ports"
)

func Run(t *testing.T, newStore func(t *testing.T) ports.StateStore) {
	t.Helper()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ports.ErrStateNotFound) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("put get roundtrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		created := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
		downloaded := created.Add(time.Hour)

		in := models.JobState{
			JobID:        "job-1",
			RequestID:    "client-9",
			Status:       models.StatusCompleted,
			Progress:     100,
			Message:      "Done",
			Format:       "mkv",
			Codec:        "h265",
			FilePath:     "jobs/job-1/output.mkv",
			FileName:     "output.mkv",
			CreatedAt:    created,
			UpdatedAt:    downloaded,
			Downloaded:   true,
			DownloadedAt: &downloaded,
		}
		if err := s.Put(ctx, in); err != nil {
			t.Fatal(err)
		}

		got, err := s.Get(ctx, "job-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.RequestID != "client-9" || got.Status != models.StatusCompleted || got.FilePath != in.FilePath {
			t.Errorf("got %+v", got)
		}
		if !got.CreatedAt.Equal(created) || got.DownloadedAt == nil || !got.DownloadedAt.Equal(downloaded) {
			t.Errorf("timestamps %v %v", got.CreatedAt, got.DownloadedAt)
		}
	})

	t.Run("put replaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		st := models.JobState{JobID: "job-2", Status: models.StatusQueued, CreatedAt: time.Now().UTC()}
		if err := s.Put(ctx, st); err != nil {
			t.Fatal(err)
		}
		st.Status = models.StatusEncoding
		st.Progress = 40
		if err := s.Put(ctx, st); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, "job-2")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != models.StatusEncoding || got.Progress != 40 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("list filter and order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			status := models.StatusCompleted
			if i%2 == 1 {
				status = models.StatusFailed
			}
			st := models.JobState{
				JobID:     fmt.Sprintf("job-%d", i),
				Status:    status,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if err := s.Put(ctx, st); err != nil {
				t.Fatal(err)
			}
		}

		all, err := s.List(ctx, ports.ListFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 5 || all[0].JobID != "job-4" || all[4].JobID != "job-0" {
			t.Errorf("all = %v", jobIDs(all))
		}

		failed, err := s.List(ctx, ports.ListFilter{Status: models.StatusFailed})
		if err != nil {
			t.Fatal(err)
		}
		if len(failed) != 2 || failed[0].JobID != "job-3" {
			t.Errorf("failed = %v", jobIDs(failed))
		}

		limited, err := s.List(ctx, ports.ListFilter{Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 2 || limited[1].JobID != "job-3" {
			t.Errorf("limited = %v", jobIDs(limited))
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, models.JobState{JobID: "job-x", Status: models.StatusFailed, CreatedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, "job-x"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Get(ctx, "job-x"); !errors.Is(err, ports.ErrStateNotFound) {
			t.Errorf("after delete: %v", err)
		}
		all, err := s.List(ctx, ports.ListFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 0 {
			t.Errorf("list after delete = %v", jobIDs(all))
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("ping: %v", err)
		}
		if s.Name() == "" {
			t.Error("empty name")
		}
	})
}

func jobIDs(states []models.JobState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.JobID
	}
	return out
}
