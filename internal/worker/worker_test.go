package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsumeRunsJobsUntilCancelled(t *testing.T) {
	var runs, failures atomic.Int32
	w := New(10*time.Millisecond,
		Job{Name: "count", Run: func(context.Context) error {
			runs.Add(1)
			return nil
		}},
		Job{Name: "broken", Run: func(context.Context) error {
			failures.Add(1)
			return errors.New("boom")
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Consume(ctx)
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	assert.GreaterOrEqual(t, failures.Load(), int32(3), "a failing job does not stop the others")
}

func TestConsumeRunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	w := New(time.Hour, Job{Name: "once", Run: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Consume(ctx)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run at start")
	}
}

func TestJobsGetDeadline(t *testing.T) {
	got := make(chan bool, 1)
	w := New(50*time.Millisecond, Job{Name: "deadline", Run: func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		select {
		case got <- ok:
		default:
		}
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Consume(ctx)

	select {
	case ok := <-got:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
}
