package queue_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
	"github.com/jobtrackerhq/job-ingest/internal/queue"
)

func newTestQueue(t *testing.T) *queue.PubSubQueue {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	topic, err := client.CreateTopic(ctx, "run-requests")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "run-requests-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	return queue.NewPubSubQueueWithClient(client, topic, sub, zap.NewNop())
}

func TestPubSubQueueRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q := newTestQueue(t)
	defer q.Close()

	want := ingest.RunRequest{
		RunID:      "0190f8a2-5d7e-7000-8000-bbbbbbbbbbbb",
		SourceName: "remoteok",
		MaxRecords: 200,
		Attempt:    1,
	}
	require.NoError(t, q.Enqueue(ctx, want))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestPubSubQueueDequeueRespectsContext(t *testing.T) {
	q := newTestQueue(t)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
