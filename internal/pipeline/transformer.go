// Package pipeline contains the delivery stage of the relay: it consumes jobs
// from Pub/Sub and pushes them out through the platform dispatchers.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-pushhub-service/pkg/delivery"
)

// DeliveryJobTransformer unmarshals and validates a raw message payload into
// a delivery.Job. Malformed jobs are skipped so the StreamingService can
// handle the Nack/DLQ logic.
func DeliveryJobTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*delivery.Job, bool, error) {
	var job delivery.Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal delivery job from message %s: %w", msg.ID, err)
	}
	if err := job.Validate(); err != nil {
		return nil, true, fmt.Errorf("invalid delivery job in message %s: %w", msg.ID, err)
	}
	return &job, false, nil
}
