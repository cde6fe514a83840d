// Package redisstate keeps job states in Redis: one JSON string per job
// plus a set of known job ids for listing.
package redisstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

const (
	DefaultPrefix = "av1conv:state:"
	idsSuffix     = "ids"
)

type Store struct {
	rdb    *redis.Client
	prefix string
}

// New uses rdb without taking ownership; Close leaves it open.
func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Name() string { return "redis" }

func (s *Store) key(jobID string) string { return s.prefix + jobID }

func (s *Store) idsKey() string { return s.prefix + idsSuffix }

// reserved reports ids whose key would collide with the id set.
func reserved(jobID string) bool { return jobID == "" || jobID == idsSuffix }

func (s *Store) Get(ctx context.Context, jobID string) (models.JobState, error) {
	if reserved(jobID) {
		return models.JobState{}, fmt.Errorf("%q: %w", jobID, ports.ErrStateNotFound)
	}
	data, err := s.rdb.Get(ctx, s.key(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.JobState{}, fmt.Errorf("%s: %w", jobID, ports.ErrStateNotFound)
		}
		return models.JobState{}, errors.WrapWithCode(err, errors.CodeUnavailable, "redisstate.get", "read state")
	}
	var st models.JobState
	if err := json.Unmarshal(data, &st); err != nil {
		return models.JobState{}, errors.Wrap(err, "redisstate.get", "decode state").WithField("job_id", jobID)
	}
	return st, nil
}

func (s *Store) Put(ctx context.Context, st models.JobState) error {
	if reserved(st.JobID) {
		return errors.ValidationField("job_id", "invalid job id")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "redisstate.put", "encode state")
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key(st.JobID), data, 0)
		p.SAdd(ctx, s.idsKey(), st.JobID)
		return nil
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "redisstate.put", "write state")
	}
	return nil
}

func (s *Store) List(ctx context.Context, f ports.ListFilter) ([]models.JobState, error) {
	ids, err := s.rdb.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "redisstate.list", "read ids")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "redisstate.list", "read states")
	}

	states := make([]models.JobState, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var st models.JobState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			continue
		}
		states = append(states, st)
	}
	return f.Apply(states), nil
}

func (s *Store) Delete(ctx context.Context, jobID string) error {
	if reserved(jobID) {
		return nil
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.key(jobID))
		p.SRem(ctx, s.idsKey(), jobID)
		return nil
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "redisstate.delete", "delete state")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "redisstate.ping", "redis unreachable")
	}
	return nil
}

func (s *Store) Close() error { return nil }
