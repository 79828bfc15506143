// Package queue provides run-request queue implementations beyond the
// in-memory one, currently Google Cloud Pub/Sub.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
)

// PubSubQueue implements ingest.Queue on Google Cloud Pub/Sub. Enqueue
// publishes to the topic; Dequeue pulls from the subscription. Both ends
// carry JSON-encoded run requests.
type PubSubQueue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	recvOnce sync.Once
	msgs     chan ingest.RunRequest
	recvErr  chan error
}

// NewPubSubQueue creates a Pub/Sub client and verifies the topic and
// subscription exist. It authenticates using Application Default
// Credentials.
func NewPubSubQueue(ctx context.Context, projectID, topicID, subscriptionID string, logger *zap.Logger) (*PubSubQueue, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		closeClient(client, logger)
		return nil, fmt.Errorf("check topic %q: %w", topicID, err)
	}
	if !ok {
		closeClient(client, logger)
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}

	sub := client.Subscription(subscriptionID)
	ok, err = sub.Exists(ctx)
	if err != nil {
		closeClient(client, logger)
		return nil, fmt.Errorf("check subscription %q: %w", subscriptionID, err)
	}
	if !ok {
		closeClient(client, logger)
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", subscriptionID, projectID)
	}

	return &PubSubQueue{
		client:  client,
		topic:   topic,
		sub:     sub,
		logger:  logger,
		msgs:    make(chan ingest.RunRequest),
		recvErr: make(chan error, 1),
	}, nil
}

// NewPubSubQueueWithClient wires an existing client, topic, and
// subscription. Used by tests running against pstest.
func NewPubSubQueueWithClient(client *pubsub.Client, topic *pubsub.Topic, sub *pubsub.Subscription, logger *zap.Logger) *PubSubQueue {
	return &PubSubQueue{
		client:  client,
		topic:   topic,
		sub:     sub,
		logger:  logger,
		msgs:    make(chan ingest.RunRequest),
		recvErr: make(chan error, 1),
	}
}

func closeClient(client *pubsub.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("failed to close pubsub client", zap.Error(err))
	}
}

// Enqueue publishes the request and waits for the server ack so callers
// know the work is durably queued.
func (q *PubSubQueue) Enqueue(ctx context.Context, req ingest.RunRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal run request: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"source": req.SourceName,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish run request: %w", err)
	}
	return nil
}

// Dequeue blocks until a run request arrives or the context finishes.
// The first call starts the background receive loop.
func (q *PubSubQueue) Dequeue(ctx context.Context) (ingest.RunRequest, error) {
	q.recvOnce.Do(func() {
		go q.receive(ctx)
	})
	select {
	case <-ctx.Done():
		return ingest.RunRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case err := <-q.recvErr:
		return ingest.RunRequest{}, fmt.Errorf("pubsub receive: %w", err)
	case req := <-q.msgs:
		return req, nil
	}
}

func (q *PubSubQueue) receive(ctx context.Context) {
	err := q.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var req ingest.RunRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			q.logger.Warn("dropping malformed run request",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			msg.Ack()
			return
		}
		select {
		case q.msgs <- req:
			msg.Ack()
		case <-ctx.Done():
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		select {
		case q.recvErr <- err:
		default:
		}
	}
}

// Close stops the topic's publisher and closes the client connection.
func (q *PubSubQueue) Close() error {
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
