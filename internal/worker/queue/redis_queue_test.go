package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

var _ ports.Dispatcher = (*RedisQueue)(nil)

// Requires a reachable Redis; set TEST_REDIS_ADDR to run.
func newTestQueue(t *testing.T) (*RedisQueue, *redis.Client) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	name := "av1conv-test:jobs:" + uuid.NewString()
	t.Cleanup(func() { rdb.Del(context.Background(), name) })
	return NewRedisQueue(rdb, name), rdb
}

func TestPushPopFIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		job := models.VideoConvertJob{}
		job.Request.Format = "webm"
		job.Source.URL = "https://example.com/" + id + ".mov"
		if err := q.Dispatch(ctx, id, job); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := q.Len(ctx); n != 2 {
		t.Fatalf("len = %d", n)
	}

	for _, want := range []string{"a", "b"} {
		msg, err := q.Pop(ctx, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if msg == nil || msg.JobID != want {
			t.Fatalf("msg = %+v, want %s", msg, want)
		}
		if msg.Job.Request.Format != "webm" || msg.Job.Source.URL != "https://example.com/"+want+".mov" {
			t.Errorf("job = %+v", msg.Job)
		}
	}
}

func TestPopTimeout(t *testing.T) {
	q, _ := newTestQueue(t)

	msg, err := q.Pop(context.Background(), time.Second)
	if err != nil || msg != nil {
		t.Fatalf("msg=%v err=%v", msg, err)
	}
}

func TestPopMalformed(t *testing.T) {
	q, rdb := newTestQueue(t)
	ctx := context.Background()

	rdb.LPush(ctx, q.Name(), "not json")
	if _, err := q.Pop(ctx, time.Second); !errors.IsCode(err, errors.CodeBadRequest) {
		t.Fatalf("err = %v", err)
	}

	rdb.LPush(ctx, q.Name(), `{"job":{}}`)
	if _, err := q.Pop(ctx, time.Second); !errors.IsCode(err, errors.CodeBadRequest) {
		t.Fatalf("err = %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if truncate("abcdef", 3) != "abc" || truncate("ab", 3) != "ab" {
		t.Error("truncate")
	}
}
