package sink

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/adaptivecrawl/webcrawler/internal/crawler"
)

// PubSubSink publishes one JSON message per PageResult, intended for
// downstream fan-out (indexing, alerting) rather than as the durable
// record of the crawl — pair it with one of the other sinks when that
// durability matters.
type PubSubSink struct {
	publisher *pubsub.Publisher
}

// NewPubSubSink wraps an already-constructed topic publisher.
func NewPubSubSink(publisher *pubsub.Publisher) (*PubSubSink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("pubsub publisher is required: %w", ErrUnconfigured)
	}
	return &PubSubSink{publisher: publisher}, nil
}

// Put marshals result to JSON and publishes it, blocking until the
// broker acknowledges receipt.
func (s *PubSubSink) Put(ctx context.Context, result crawler.PageResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal page result: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind": string(result.Kind),
		},
	}
	res := s.publisher.Publish(ctx, msg)
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish page result: %w", err)
	}
	return nil
}

// Close stops the underlying publisher.
func (s *PubSubSink) Close(context.Context) error {
	s.publisher.Stop()
	return nil
}
