package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/paytrack/internal/poller"
)

const defaultPublishTimeout = 10 * time.Second

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// PubSubNotifier publishes outcome events to a Pub/Sub topic. When ordered,
// each message is keyed by client scope.
type PubSubNotifier struct {
	pub     publisher
	ordered bool
	timeout time.Duration
}

// NewPubSubNotifier wraps a topic publisher.
func NewPubSubNotifier(p *gcppubsub.Publisher) (*PubSubNotifier, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return &PubSubNotifier{pub: &gcpPublisher{Publisher: p}, ordered: p.EnableMessageOrdering, timeout: defaultPublishTimeout}, nil
}

func (n *PubSubNotifier) Notify(ctx context.Context, outcome poller.Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_id":    outcome.EventID.String(),
			"event_type":  EventTypePollOutcome,
			"state":       outcome.State.String(),
			"order_id":    outcome.OrderID,
			"occurred_at": outcome.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}

	if n.ordered && outcome.ClientScope != "" {
		msg.OrderingKey = outcome.ClientScope
	}

	publishCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	result := n.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		// A failed ordered publish pauses its key until resumed.
		if msg.OrderingKey != "" {
			n.pub.ResumePublish(msg.OrderingKey)
		}
		return fmt.Errorf("publish outcome %s: %w", outcome.EventID, err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) ResumePublish(key string) {
	if p != nil && p.Publisher != nil {
		p.Publisher.ResumePublish(key)
	}
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
