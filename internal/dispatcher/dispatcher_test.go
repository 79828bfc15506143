// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
	"github.com/jobtrackerhq/job-ingest/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(
		queue,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		worker.Config{},
		zap.NewNop(),
	)
	dispatch := New(queue, []*worker.Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &failingQueue{err: errors.New("broker unavailable")}
	dispatch := New(queue, nil)

	err := dispatch.Enqueue(context.Background(), ingest.RunRequest{SourceName: "remoteok"})
	if err == nil {
		t.Fatal("expected enqueue error")
	}
	if !errors.Is(err, queue.err) {
		t.Fatalf("expected wrapped queue error, got %v", err)
	}
	if want := fmt.Sprintf("queue enqueue: %v", queue.err); err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

// blockingQueue signals the first Dequeue call and then blocks until cancel.
type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(context.Context, ingest.RunRequest) error { return nil }

func (q *blockingQueue) Dequeue(ctx context.Context) (ingest.RunRequest, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ingest.RunRequest{}, ctx.Err()
}

type failingQueue struct {
	err error
}

func (q *failingQueue) Enqueue(context.Context, ingest.RunRequest) error { return q.err }

func (q *failingQueue) Dequeue(ctx context.Context) (ingest.RunRequest, error) {
	<-ctx.Done()
	return ingest.RunRequest{}, ctx.Err()
}
