// Package filestate stores one JSON document per job in a directory.
package filestate

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

type Store struct {
	dir string
	mu  sync.RWMutex
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "filestate.new", "create state dir").WithField("dir", dir)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Name() string { return "file" }

func (s *Store) path(jobID string) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", errors.ValidationField("job_id", "invalid job id")
	}
	return filepath.Join(s.dir, jobID+".json"), nil
}

func (s *Store) Get(ctx context.Context, jobID string) (models.JobState, error) {
	p, err := s.path(jobID)
	if err != nil {
		return models.JobState{}, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(p)
	s.mu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.JobState{}, fmt.Errorf("%s: %w", jobID, ports.ErrStateNotFound)
		}
		return models.JobState{}, errors.Wrap(err, "filestate.get", "read state")
	}

	var st models.JobState
	if err := json.Unmarshal(data, &st); err != nil {
		return models.JobState{}, errors.Wrap(err, "filestate.get", "decode state").WithField("job_id", jobID)
	}
	return st, nil
}

func (s *Store) Put(ctx context.Context, st models.JobState) error {
	p, err := s.path(st.JobID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "filestate.put", "encode state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".state-*")
	if err != nil {
		return errors.Wrap(err, "filestate.put", "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "filestate.put", "write state")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "filestate.put", "close state")
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return errors.Wrap(err, "filestate.put", "rename state")
	}
	return nil
}

func (s *Store) List(ctx context.Context, f ports.ListFilter) ([]models.JobState, error) {
	s.mu.RLock()
	entries, err := os.ReadDir(s.dir)
	s.mu.RUnlock()
	if err != nil {
		return nil, errors.Wrap(err, "filestate.list", "read state dir")
	}

	var states []models.JobState
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		st, err := s.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			// Deleted concurrently or unreadable; skip rather than fail the listing.
			continue
		}
		states = append(states, st)
	}
	return f.Apply(states), nil
}

func (s *Store) Delete(ctx context.Context, jobID string) error {
	p, err := s.path(jobID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "filestate.delete", "remove state")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	st, err := os.Stat(s.dir)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "filestate.ping", "state dir unavailable")
	}
	if !st.IsDir() {
		return errors.New(errors.CodeUnavailable, "state dir is not a directory")
	}
	return nil
}

func (s *Store) Close() error { return nil }
