package failures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const defaultPublishTimeout = 5 * time.Second

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// payload is the JSON body of a failure message.
type payload struct {
	Source     string         `json:"source"`
	Kind       string         `json:"kind"`
	CheckoutID string         `json:"checkout_id,omitempty"`
	EventID    string         `json:"event_id,omitempty"`
	Error      string         `json:"error"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// PubSubSink publishes failures to a topic consumed by the reconciliation tooling.
type PubSubSink struct {
	pub     publisher
	timeout time.Duration
}

// NewPubSubSink wraps a Pub/Sub publisher handle.
func NewPubSubSink(p *gcppubsub.Publisher) (*PubSubSink, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return &PubSubSink{pub: &gcpPublisher{Publisher: p}, timeout: defaultPublishTimeout}, nil
}

func (s *PubSubSink) Report(ctx context.Context, f InternalFailure) error {
	if s == nil || s.pub == nil {
		return nil
	}
	occurred := f.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	body, err := json.Marshal(payload{
		Source:     f.Source,
		Kind:       string(f.Kind),
		CheckoutID: f.CheckoutID,
		EventID:    f.EventID,
		Error:      f.Message(),
		Details:    f.Details,
		OccurredAt: occurred,
	})
	if err != nil {
		return fmt.Errorf("marshal failure payload: %w", err)
	}

	msg := &gcppubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"source":      f.Source,
			"kind":        string(f.Kind),
			"checkout_id": f.CheckoutID,
			"event_id":    f.EventID,
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result := s.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish failure event: %w", err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
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
