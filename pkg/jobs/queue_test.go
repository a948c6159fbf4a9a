package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed int32
	done := make(chan struct{}, 3)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Submit("noop", i))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&processed))
}

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var attempts int32
	done := make(chan Job, 1)
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		done <- job
		return nil
	}, QueueConfig{MaxRetries: 5, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Submit("flaky", nil))
	select {
	case job := <-done:
		assert.Equal(t, 2, job.Attempt)
		assert.NotEmpty(t, job.ID)
	case <-time.After(time.Second):
		t.Fatal("job never succeeded")
	}
}

func TestQueueReportsExhaustedJobs(t *testing.T) {
	exhausted := make(chan Job, 1)
	q := NewQueue("exhaust", func(ctx context.Context, job Job) error {
		return errors.New("permanent")
	}, QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond, OnExhausted: func(j Job, err error) {
		exhausted <- j
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Submit("doomed", "payload"))
	select {
	case job := <-exhausted:
		assert.Equal(t, 2, job.Attempt)
		assert.Equal(t, "payload", job.Payload)
	case <-time.After(time.Second):
		t.Fatal("exhaustion not reported")
	}
}

func TestQueueRejectsWhenNotRunning(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Submit("x", nil), ErrQueueStopped)

	q.Start(context.Background())
	q.Stop()
	assert.ErrorIs(t, q.Submit("x", nil), ErrQueueStopped)
}

func TestQueueSubmitFailsFastWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(release)

	require.NoError(t, q.Submit("slow", 1))
	<-started
	require.NoError(t, q.Submit("slow", 2))

	done := make(chan error, 1)
	go func() { done <- q.Submit("slow", 3) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("submit blocked on a full buffer")
	}
}
