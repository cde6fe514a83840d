// Package pebblestate keeps job states in an embedded Pebble database.
package pebblestate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

const keyPrefix = "job:"

type Store struct {
	db *pebble.DB
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "pebblestate.open", "failed to open pebble db").WithField("dir", dir)
	}
	return &Store{db: db}, nil
}

func (s *Store) Name() string { return "pebble" }

func jobKey(jobID string) []byte {
	return []byte(keyPrefix + jobID)
}

func (s *Store) Get(ctx context.Context, jobID string) (models.JobState, error) {
	value, closer, err := s.db.Get(jobKey(jobID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.JobState{}, fmt.Errorf("%s: %w", jobID, ports.ErrStateNotFound)
		}
		return models.JobState{}, errors.Wrap(err, "pebblestate.get", "read state")
	}
	defer closer.Close()

	// value is only valid until closer.Close; Unmarshal copies what it needs.
	var st models.JobState
	if err := json.Unmarshal(value, &st); err != nil {
		return models.JobState{}, errors.Wrap(err, "pebblestate.get", "decode state").WithField("job_id", jobID)
	}
	return st, nil
}

func (s *Store) Put(ctx context.Context, st models.JobState) error {
	if st.JobID == "" {
		return errors.ValidationField("job_id", "job id is required")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "pebblestate.put", "encode state")
	}
	if err := s.db.Set(jobKey(st.JobID), data, pebble.Sync); err != nil {
		return errors.Wrap(err, "pebblestate.put", "write state")
	}
	return nil
}

func (s *Store) List(ctx context.Context, f ports.ListFilter) ([]models.JobState, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "\xff"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "pebblestate.list", "open iterator")
	}
	defer iter.Close()

	var states []models.JobState
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var st models.JobState
		if err := json.Unmarshal(iter.Value(), &st); err != nil {
			continue
		}
		states = append(states, st)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "pebblestate.list", "iterate states")
	}
	return f.Apply(states), nil
}

func (s *Store) Delete(ctx context.Context, jobID string) error {
	if err := s.db.Delete(jobKey(jobID), pebble.Sync); err != nil {
		return errors.Wrap(err, "pebblestate.delete", "delete state")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, closer, err := s.db.Get([]byte(keyPrefix))
	if err == nil {
		closer.Close()
		return nil
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return errors.WrapWithCode(err, errors.CodeUnavailable, "pebblestate.ping", "pebble unavailable")
}

func (s *Store) Close() error {
	return s.db.Close()
}
