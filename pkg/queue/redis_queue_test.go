package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisJobQueueRequeueAndAckSuccess(t *testing.T) {
	q, ctx, msgID, jobID, bookID := newPendingQueueMessage(t)

	if err := q.requeueAndAck(ctx, msgID, jobID, bookID); err != nil {
		t.Fatalf("requeue and ack: %v", err)
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-2",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("read requeued message: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one requeued message, got %+v", streams)
	}
	got := streams[0].Messages[0]
	if got.Values["job_id"] != jobID || got.Values["book_id"] != bookID {
		t.Fatalf("unexpected requeued payload: %+v", got.Values)
	}
}

func TestRedisJobQueueRequeueAndAckFailureKeepsPendingMessage(t *testing.T) {
	q, ctx, msgID, jobID, bookID := newPendingQueueMessage(t)

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeueAndAck(canceledCtx, msgID, jobID, bookID); err == nil {
		t.Fatalf("expected requeueAndAck to fail on canceled context")
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("expected original message to remain pending, got %d", pending.Count)
	}

	streamLen, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if streamLen != 1 {
		t.Fatalf("expected no new message in stream on failure, got len=%d", streamLen)
	}
}

func newPendingQueueMessage(t *testing.T) (*RedisJobQueue, context.Context, string, string, string) {
	t.Helper()

	redisSrv := miniredis.RunT(t)
	q, err := NewRedisJobQueue(RedisQueueConfig{
		Addr:       redisSrv.Addr(),
		Stream:     "test:queue",
		Group:      "test-group",
		Consumer:   "consumer-1",
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	ctx := context.Background()
	job, err := q.Enqueue(ctx, "book-1", ReasonUpload)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-1",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one pending message, got %+v", streams)
	}

	msg := streams[0].Messages[0]
	return q, ctx, msg.ID, job.ID, job.BookID
}

func newTestQueue(t *testing.T, maxRetries int) *RedisJobQueue {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	q, err := NewRedisJobQueue(RedisQueueConfig{
		Client:     redis.NewClient(&redis.Options{Addr: redisSrv.Addr()}),
		Stream:     "test:books",
		Group:      "test-group",
		Consumer:   "worker",
		MaxRetries: maxRetries,
		Block:      20 * time.Millisecond,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return q
}

func waitForStatus(t *testing.T, q *RedisJobQueue, jobID, status string) Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, ok, err := q.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if ok && job.Status == status {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %q", jobID, status)
	return Job{}
}

func TestRedisJobQueueRunProcessesBacklog(t *testing.T) {
	q := newTestQueue(t, 3)

	// Enqueued before any consumer runs.
	job, err := q.Enqueue(context.Background(), "book-7", ReasonRegister)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != StatusQueued || job.MaxAttempts != 3 {
		t.Fatalf("unexpected enqueued job: %+v", job)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seen := make(chan Job, 1)
	done := make(chan error, 1)
	go func() {
		done <- q.Run(ctx, 2, func(_ context.Context, j Job) error {
			seen <- j
			return nil
		})
	}()

	select {
	case got := <-seen:
		if got.BookID != "book-7" || got.Attempts != 1 || got.FinalAttempt() {
			t.Fatalf("unexpected handled job: %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("handler was not called")
	}
	final := waitForStatus(t, q, job.ID, StatusDone)
	if final.Reason != ReasonRegister {
		t.Fatalf("reason = %q", final.Reason)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}

func TestRedisJobQueueRunFailsAfterMaxRetries(t *testing.T) {
	q := newTestQueue(t, 2)
	job, err := q.Enqueue(context.Background(), "book-9", ReasonReprocess)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var mu sync.Mutex
	var finals []bool
	go func() {
		_ = q.Run(ctx, 1, func(_ context.Context, j Job) error {
			mu.Lock()
			finals = append(finals, j.FinalAttempt())
			mu.Unlock()
			return errors.New("pdf unreadable")
		})
	}()

	failed := waitForStatus(t, q, job.ID, StatusFailed)
	cancel()
	if failed.Attempts != 2 || failed.ErrorMessage != "pdf unreadable" {
		t.Fatalf("unexpected failed job: %+v", failed)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(finals) != 2 || finals[0] || !finals[1] {
		t.Fatalf("final attempt flags = %v", finals)
	}
}

func TestRedisJobQueueValidation(t *testing.T) {
	if _, err := NewRedisJobQueue(RedisQueueConfig{}); err == nil {
		t.Fatalf("expected error without addr or client")
	}
	q := newTestQueue(t, 1)
	if _, err := q.Enqueue(context.Background(), "  ", ReasonUpload); err == nil {
		t.Fatalf("expected error for blank book id")
	}
	if _, ok, err := q.GetJob(context.Background(), "missing"); err != nil || ok {
		t.Fatalf("missing job: ok=%v err=%v", ok, err)
	}
}
