// Package orchestrator exposes the programmatic surface a transport layer
// calls into: register, schedule, and send-immediate.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tinywideclouds/go-pushhub-service/internal/audience"
	"github.com/tinywideclouds/go-pushhub-service/internal/dispatch"
	"github.com/tinywideclouds/go-pushhub-service/internal/payload"
	"github.com/tinywideclouds/go-pushhub-service/internal/registry"
	"github.com/tinywideclouds/go-pushhub-service/internal/schedule"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// Service wires the registry, validator, builder, resolver and dispatcher
// around a single shared relay handle.
type Service struct {
	registry   *registry.Registry
	validator  *schedule.Validator
	resolver   *audience.Resolver
	dispatcher *dispatch.Dispatcher
	now        func() time.Time
	logger     *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the wall clock used for schedule validation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(relay push.Relay, zone *time.Location, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		registry:   registry.New(relay, logger),
		validator:  schedule.NewValidator(zone),
		resolver:   audience.NewResolver(relay, logger),
		dispatcher: dispatch.NewDispatcher(relay, logger),
		now:        time.Now,
		logger:     logger.With("component", "NotificationService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validator exposes the schedule validator so the HTTP layer can parse
// timestamps in the same reference zone.
func (s *Service) Validator() *schedule.Validator {
	return s.validator
}

// Register normalizes and forwards an installation.
func (s *Service) Register(ctx context.Context, raw push.DeviceInstallation) (push.Installation, error) {
	return s.registry.Register(ctx, raw)
}

// CreateOrUpdateInstallation reports success as a boolean; failures are logged.
func (s *Service) CreateOrUpdateInstallation(ctx context.Context, raw push.DeviceInstallation) bool {
	return s.registry.CreateOrUpdateInstallation(ctx, raw)
}

// Schedule validates the request, builds both platform payloads, resolves the
// "all" audience and fans out one schedule call per eligible platform.
func (s *Service) Schedule(ctx context.Context, req push.ScheduledNotificationRequest) (dispatch.Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return dispatch.Result{}, fmt.Errorf("%w: message is required", push.ErrValidation)
	}
	if req.ScheduledTime.IsZero() {
		return dispatch.Result{}, fmt.Errorf("%w: scheduledTime is required", push.ErrValidation)
	}

	deliverAt, err := s.validator.Validate(req.ScheduledTime, s.now().UTC())
	if err != nil {
		s.logger.Warn("Rejected schedule request", "device_token", req.DeviceToken, "err", err)
		return dispatch.Result{}, err
	}

	payloads, err := payload.BuildAll(req.Message, payload.Scheduled)
	if err != nil {
		return dispatch.Result{}, err
	}

	counts, err := s.resolver.Resolve(ctx, push.TagAll)
	if err != nil {
		if ctx.Err() != nil {
			return dispatch.Result{}, fmt.Errorf("%w: %w", push.ErrCancelled, ctx.Err())
		}
		return dispatch.Result{}, push.RelayFault(err)
	}

	s.logger.Info("Dispatching scheduled notification",
		"deliver_at", deliverAt,
		"apns", counts[push.PlatformAPNS],
		"fcmv1", counts[push.PlatformFCMV1],
	)
	result := s.dispatcher.DispatchSchedule(ctx, payloads, deliverAt, counts)
	return result, result.Err
}

// ScheduleNotification is the (success, message) form of Schedule.
func (s *Service) ScheduleNotification(ctx context.Context, req push.ScheduledNotificationRequest) (bool, string) {
	_, err := s.Schedule(ctx, req)
	if err != nil {
		return false, err.Error()
	}
	return true, ""
}

// SendImmediate delivers message to one installation on the given platform.
// An empty platform defaults to FCM v1.
func (s *Service) SendImmediate(ctx context.Context, installationID, platform, message string) (dispatch.Result, error) {
	if strings.TrimSpace(platform) == "" {
		platform = push.PlatformFCMV1.String()
	}
	result := s.dispatcher.DispatchImmediate(ctx, installationID, platform, message)
	return result, result.Err
}

// SendNotificationToInstallation is the (success, message) form of SendImmediate.
func (s *Service) SendNotificationToInstallation(ctx context.Context, installationID, platform, message string) (bool, string) {
	_, err := s.SendImmediate(ctx, installationID, platform, message)
	if err != nil {
		return false, err.Error()
	}
	return true, ""
}
