// Package relay is the self-hosted notification relay: it keeps the
// installation registry, queues deferred sends and hands due work to the
// delivery pipeline.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-pushhub-service/pkg/delivery"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// Publisher hands a job to the delivery pipeline.
type Publisher interface {
	Publish(ctx context.Context, job delivery.Job) error
}

// ScheduleQueue holds jobs until their delivery time.
type ScheduleQueue interface {
	Enqueue(ctx context.Context, job delivery.Job) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]delivery.Job, error)
}

// Relay implements push.Relay.
type Relay struct {
	store     delivery.InstallationStore
	queue     ScheduleQueue
	publisher Publisher
	newID     func() string
	logger    *slog.Logger
}

var _ push.Relay = (*Relay)(nil)

func New(store delivery.InstallationStore, queue ScheduleQueue, publisher Publisher, logger *slog.Logger) *Relay {
	return &Relay{
		store:     store,
		queue:     queue,
		publisher: publisher,
		newID:     uuid.NewString,
		logger:    logger.With("component", "Relay"),
	}
}

func (r *Relay) CreateOrUpdateInstallation(ctx context.Context, installation push.Installation) error {
	if installation.InstallationID == "" || installation.PushChannel == "" || !installation.Platform.Valid() {
		return fmt.Errorf("%w: incomplete installation", push.ErrValidation)
	}
	return r.store.Upsert(ctx, installation)
}

// ScheduleNotification queues n for delivery at deliverAt to every
// installation of n's platform carrying one of tags.
func (r *Relay) ScheduleNotification(ctx context.Context, n push.Notification, deliverAt time.Time, tags []string) error {
	if len(tags) == 0 {
		return fmt.Errorf("%w: at least one tag is required", push.ErrValidation)
	}
	job := delivery.Job{
		ID:        r.newID(),
		Platform:  n.Platform,
		Payload:   n.Body,
		Tags:      tags,
		DeliverAt: deliverAt.UTC(),
	}
	if err := job.Validate(); err != nil {
		return err
	}
	if err := r.queue.Enqueue(ctx, job); err != nil {
		return err
	}
	r.logger.Info("Notification scheduled", "job_id", job.ID, "platform", job.Platform.String(), "tags", tags, "deliver_at", job.DeliverAt)
	return nil
}

// SendNotification publishes n addressed to installationIDs. It returns once
// the publish is acknowledged.
func (r *Relay) SendNotification(ctx context.Context, n push.Notification, installationIDs []string) error {
	job := delivery.Job{
		ID:              r.newID(),
		Platform:        n.Platform,
		Payload:         n.Body,
		InstallationIDs: installationIDs,
	}
	if err := job.Validate(); err != nil {
		return err
	}
	if err := r.publisher.Publish(ctx, job); err != nil {
		return err
	}
	r.logger.Info("Notification published", "job_id", job.ID, "platform", job.Platform.String(), "targets", len(installationIDs))
	return nil
}

func (r *Relay) ListRegistrations(ctx context.Context, pageSize int) ([]push.Registration, error) {
	installations, err := r.store.List(ctx, pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]push.Registration, 0, len(installations))
	for _, i := range installations {
		out = append(out, push.Registration{Platform: i.Platform, Tags: i.Tags})
	}
	return out, nil
}
