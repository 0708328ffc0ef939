package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"

	"github.com/tinywideclouds/go-pushhub-service/pkg/delivery"
)

// PubsubPublisher publishes jobs to the delivery topic.
type PubsubPublisher struct {
	publisher *pubsub.Publisher
}

func NewPubsubPublisher(client *pubsub.Client, topicID string) *PubsubPublisher {
	return &PubsubPublisher{publisher: client.Publisher(topicID)}
}

func (p *PubsubPublisher) Publish(ctx context.Context, job delivery.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"platform": job.Platform.String(),
			"job_id":   job.ID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.ID, err)
	}
	return nil
}

// Stop flushes pending publishes.
func (p *PubsubPublisher) Stop() {
	p.publisher.Stop()
}
