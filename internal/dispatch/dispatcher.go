// Package dispatch fans notifications out to the relay, one call per
// eligible platform, and joins every outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tinywideclouds/go-pushhub-service/internal/audience"
	"github.com/tinywideclouds/go-pushhub-service/internal/payload"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// Outcome is the result of the relay call for one platform.
type Outcome struct {
	Platform push.Platform
	Tag      string
	Err      error
}

// Result aggregates a dispatch. Err is nil on success; otherwise it is the
// first failing outcome in platform order, or a cancellation.
type Result struct {
	Outcomes []Outcome
	Err      error
}

// Success reports whether every relay call succeeded.
func (r Result) Success() bool {
	return r.Err == nil
}

// ErrorMessage is the caller-facing failure text, empty on success.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Failed returns the outcomes that carry an error.
func (r Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

type Dispatcher struct {
	relay  push.Relay
	logger *slog.Logger
}

func NewDispatcher(relay push.Relay, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		relay:  relay,
		logger: logger.With("component", "Dispatcher"),
	}
}

// DispatchSchedule issues one schedule call per platform with a positive
// eligible count, concurrently, tagged with the platform's bucket tag.
// A failure on one platform never cancels the others.
func (d *Dispatcher) DispatchSchedule(
	ctx context.Context,
	payloads map[push.Platform]push.Notification,
	deliverAt time.Time,
	counts audience.Counts,
) Result {
	if err := ctx.Err(); err != nil {
		return Result{Err: cancelled(err)}
	}

	eligible := counts.Eligible()
	if len(eligible) == 0 {
		d.logger.Warn("No target platforms found for scheduling")
		return Result{Err: push.ErrNoEligibleAudience}
	}

	outcomes := make([]Outcome, len(eligible))
	var wg sync.WaitGroup
	for i, platform := range eligible {
		tag := platform.BucketTag()
		n, ok := payloads[platform]
		if !ok {
			outcomes[i] = Outcome{Platform: platform, Tag: tag, Err: fmt.Errorf("%w: no payload for %s", push.ErrValidation, platform)}
			continue
		}

		d.logger.Info("Scheduling notification", "platform", platform.String(), "tag", tag, "deliver_at", deliverAt)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := d.relay.ScheduleNotification(ctx, n, deliverAt, []string{tag})
			outcomes[i] = Outcome{Platform: platform, Tag: tag, Err: d.classify(ctx, err)}
		}(i)
	}
	wg.Wait()

	result := aggregate(ctx, outcomes)
	if result.Success() {
		d.logger.Info("Scheduled notification", "platforms", len(outcomes), "deliver_at", deliverAt)
	} else {
		for _, o := range result.Failed() {
			d.logger.Error("Schedule call failed", "platform", o.Platform.String(), "tag", o.Tag, "err", o.Err)
		}
	}
	return result
}

// DispatchImmediate sends message to one installation. The platform comes
// from the caller and is parsed before any relay call is made.
func (d *Dispatcher) DispatchImmediate(ctx context.Context, targetID, platformName, message string) Result {
	if strings.TrimSpace(targetID) == "" || strings.TrimSpace(message) == "" {
		return Result{Err: fmt.Errorf("%w: target and message are required", push.ErrValidation)}
	}

	platform, err := push.ParsePlatform(platformName)
	if err != nil {
		d.logger.Warn("Unsupported platform specified", "platform", platformName)
		return Result{Err: err}
	}

	n, err := payload.Build(platform, message, payload.Immediate)
	if err != nil {
		return Result{Err: err}
	}

	if err := ctx.Err(); err != nil {
		return Result{Err: cancelled(err)}
	}

	err = d.classify(ctx, d.relay.SendNotification(ctx, n, []string{targetID}))
	outcome := Outcome{Platform: platform, Err: err}
	if err != nil {
		d.logger.Error("Immediate send failed", "installation_id", targetID, "platform", platform.String(), "err", err)
		return Result{Outcomes: []Outcome{outcome}, Err: err}
	}

	d.logger.Info("Notification sent", "installation_id", targetID, "platform", platform.String())
	return Result{Outcomes: []Outcome{outcome}}
}

// classify turns a relay error into a relay fault, or a cancellation when the
// caller's context is done.
func (d *Dispatcher) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	// A relay-side timeout under a live caller context is a relay fault.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cancelled(ctxErr)
	}
	return push.RelayFault(err)
}

func aggregate(ctx context.Context, outcomes []Outcome) Result {
	result := Result{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Err != nil {
			result.Err = o.Err
			break
		}
	}
	if result.Err != nil && ctx.Err() != nil && !errors.Is(result.Err, push.ErrCancelled) {
		result.Err = cancelled(ctx.Err())
	}
	return result
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", push.ErrCancelled, err)
}
