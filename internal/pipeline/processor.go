package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-pushhub-service/pkg/delivery"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// NewProcessor resolves a job's targets, hands the channels to the platform's
// dispatcher and deletes installations whose channel the platform reports dead.
// A returned error Nacks the message for redelivery.
func NewProcessor(
	dispatchers map[push.Platform]delivery.Dispatcher,
	store delivery.InstallationStore,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[delivery.Job] {

	return func(ctx context.Context, original messagepipeline.Message, job *delivery.Job) error {
		procLogger := logger.With(
			"job_id", job.ID,
			"platform", job.Platform.String(),
			"pubsub_msg_id", original.ID,
		)

		dispatcher, ok := dispatchers[job.Platform]
		if !ok {
			// Not retryable: no redelivery will grow a dispatcher.
			procLogger.Error("No dispatcher configured for platform; dropping job")
			return nil
		}

		// 1. Resolve targets
		targets, err := resolveTargets(ctx, store, job)
		if err != nil {
			procLogger.Error("Failed to resolve delivery targets", "err", err)
			return err
		}

		channels := make([]string, 0, len(targets))
		owners := make(map[string][]string, len(targets))
		for _, t := range targets {
			if t.Platform != job.Platform {
				procLogger.Warn("Skipping installation registered on another platform",
					"installation_id", t.InstallationID,
					"registered_platform", t.Platform.String(),
				)
				continue
			}
			if _, seen := owners[t.PushChannel]; !seen {
				channels = append(channels, t.PushChannel)
			}
			owners[t.PushChannel] = append(owners[t.PushChannel], t.InstallationID)
		}

		if len(channels) == 0 {
			procLogger.Info("No installations matched; dropping job")
			return nil
		}

		// 2. Dispatch
		receipt, invalidTokens, err := dispatcher.Dispatch(ctx, channels, job.Payload)

		// 3. Self-healing
		if len(invalidTokens) > 0 {
			procLogger.Info("Cleaning up dead installations", "count", len(invalidTokens))
			for _, token := range invalidTokens {
				for _, id := range owners[token] {
					if err := store.Delete(ctx, id); err != nil {
						procLogger.Warn("Failed to delete installation", "installation_id", id, "err", err)
					}
				}
			}
		}

		if err != nil {
			procLogger.Error("Dispatch failed", "err", err)
			return err
		}
		procLogger.Info("Dispatched", "receipt", receipt, "targets", len(channels))
		return nil
	}
}

func resolveTargets(ctx context.Context, store delivery.InstallationStore, job *delivery.Job) ([]push.Installation, error) {
	if len(job.InstallationIDs) > 0 {
		return store.Get(ctx, job.InstallationIDs)
	}
	return store.ListByTags(ctx, job.Platform, job.Tags)
}
