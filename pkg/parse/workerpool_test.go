package parse

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsJobs(t *testing.T) {
	wp := NewWorkerPool(4, 8)
	ctx := context.Background()
	wp.Start(ctx)

	var count int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		err := wp.Submit(func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
			return nil
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	wg.Wait()
	wp.Close()

	if got := atomic.LoadInt64(&count); got != 100 {
		t.Errorf("ran %d jobs, want 100", got)
	}
}

func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	wp := NewWorkerPool(1, 1)
	wp.Start(context.Background())
	wp.Close()

	err := wp.Submit(func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("got %v, want ErrPoolClosed", err)
	}

	// Closing twice is a no-op.
	wp.Close()
}

func TestWorkerPoolSubmitCtxCancel(t *testing.T) {
	// One worker stuck on a slow job and a full queue: SubmitCtx must
	// return once the context is canceled instead of blocking.
	wp := NewWorkerPool(1, 1)
	wp.Start(context.Background())

	block := make(chan struct{})
	_ = wp.Submit(func(ctx context.Context) error {
		<-block
		return nil
	})
	_ = wp.Submit(func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- wp.SubmitCtx(ctx, func(ctx context.Context) error { return nil })
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SubmitCtx did not return after cancel")
	}

	close(block)
	wp.Close()
}

func TestWorkerPoolStopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	wp := NewWorkerPool(2, 4)
	wp.Start(ctx)
	cancel()

	// Workers have exited; Close must still return.
	done := make(chan struct{})
	go func() {
		wp.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close hung after context cancellation")
	}
}
