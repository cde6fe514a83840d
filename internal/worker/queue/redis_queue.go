// Package queue carries conversion jobs from the API to workers over a
// Redis list.
package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
)

// Message is the queued payload.
type Message struct {
	JobID string                 `json:"job_id"`
	Job   models.VideoConvertJob `json:"job"`
}

type RedisQueue struct {
	rdb       *redis.Client
	queueName string
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

func (q *RedisQueue) Name() string { return q.queueName }

// Push appends a job to the queue (LPUSH; consumers BRPOP, so FIFO).
func (q *RedisQueue) Push(ctx context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "queue.push", "encode message")
	}
	if err := q.rdb.LPush(ctx, q.queueName, b).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.push", "enqueue failed").
			WithField("queue", q.queueName)
	}
	return nil
}

// Pop blocks up to timeout for the next message (BRPOP). It returns
// (nil, nil) when the wait times out.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.queueName).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeBadRequest, "queue.pop", "malformed message").
			WithField("payload", truncate(res[1], 200))
	}
	if msg.JobID == "" {
		return nil, errors.New(errors.CodeBadRequest, "message without job_id").
			WithField("payload", truncate(res[1], 200))
	}
	return &msg, nil
}

// Len returns the number of waiting messages.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.ping", "redis unreachable")
	}
	return nil
}

// Dispatch implements ports.Dispatcher for distributed mode.
func (q *RedisQueue) Dispatch(ctx context.Context, jobID string, job models.VideoConvertJob) error {
	return q.Push(ctx, Message{JobID: jobID, Job: job})
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
