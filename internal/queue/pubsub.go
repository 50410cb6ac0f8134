package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// PubSub carries seed queries over a Google Cloud Pub/Sub topic so the
// trending detector and the schedulers can run in separate processes.
type PubSub struct {
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	startOnce sync.Once
	out       chan content.SeedQuery
	stop      context.CancelFunc
}

// NewPubSub wraps an existing client. The topic and subscription must
// already exist.
func NewPubSub(client *pubsub.Client, topic, subscription string, logger *zap.Logger) *PubSub {
	return &PubSub{
		topic:  client.Topic(topic),
		sub:    client.Subscription(subscription),
		logger: logger,
		out:    make(chan content.SeedQuery, 64),
	}
}

// Enqueue publishes the seed and waits for the server acknowledgement.
func (p *PubSub) Enqueue(ctx context.Context, seed content.SeedQuery) error {
	data, err := json.Marshal(seed)
	if err != nil {
		return fmt.Errorf("marshal seed: %w", err)
	}
	if _, err := p.topic.Publish(ctx, &pubsub.Message{Data: data}).Get(ctx); err != nil {
		return fmt.Errorf("publish seed %q: %w", seed.Term, err)
	}
	return nil
}

// Dequeue returns the next seed. The first call starts the subscription
// receiver, which runs until Close.
func (p *PubSub) Dequeue(ctx context.Context) (content.SeedQuery, error) {
	p.startOnce.Do(p.startReceiver)

	select {
	case seed, ok := <-p.out:
		if !ok {
			return content.SeedQuery{}, fmt.Errorf("seed queue closed")
		}
		return seed, nil
	case <-ctx.Done():
		return content.SeedQuery{}, ctx.Err()
	}
}

func (p *PubSub) startReceiver() {
	recvCtx, cancel := context.WithCancel(context.Background())
	p.stop = cancel
	go func() {
		defer close(p.out)
		err := p.sub.Receive(recvCtx, func(ctx context.Context, msg *pubsub.Message) {
			var seed content.SeedQuery
			if err := json.Unmarshal(msg.Data, &seed); err != nil {
				p.logger.Warn("malformed seed message dropped", zap.Error(err))
				msg.Ack()
				return
			}
			select {
			case p.out <- seed:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
			}
		})
		if err != nil && recvCtx.Err() == nil {
			p.logger.Error("seed subscription receive failed", zap.Error(err))
		}
	}()
}

// Close stops the receiver and the topic publisher.
func (p *PubSub) Close() {
	if p.stop != nil {
		p.stop()
	}
	p.topic.Stop()
}
