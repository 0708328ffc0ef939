package orchestrator_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tinywideclouds/go-pushhub-service/internal/orchestrator"
	"github.com/tinywideclouds/go-pushhub-service/internal/schedule"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

type scheduledCall struct {
	Notification push.Notification
	DeliverAt    time.Time
	Tags         []string
}

type sentCall struct {
	Notification push.Notification
	IDs          []string
}

// fakeRelay is an in-memory relay keyed by installation id.
type fakeRelay struct {
	mu            sync.Mutex
	installations map[string]push.Installation
	order         []string
	scheduled     []scheduledCall
	sent          []sentCall
	scheduleErr   map[push.Platform]error
	listErr       error
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		installations: make(map[string]push.Installation),
		scheduleErr:   make(map[push.Platform]error),
	}
}

func (f *fakeRelay) CreateOrUpdateInstallation(_ context.Context, i push.Installation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.installations[i.InstallationID]; !ok {
		f.order = append(f.order, i.InstallationID)
	}
	f.installations[i.InstallationID] = i
	return nil
}

func (f *fakeRelay) ScheduleNotification(_ context.Context, n push.Notification, at time.Time, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scheduleErr[n.Platform]; err != nil {
		return err
	}
	f.scheduled = append(f.scheduled, scheduledCall{Notification: n, DeliverAt: at, Tags: tags})
	return nil
}

func (f *fakeRelay) SendNotification(_ context.Context, n push.Notification, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCall{Notification: n, IDs: ids})
	return nil
}

func (f *fakeRelay) ListRegistrations(_ context.Context, pageSize int) ([]push.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []push.Registration
	for _, id := range f.order {
		if len(out) == pageSize {
			break
		}
		i := f.installations[id]
		out = append(out, push.Registration{Platform: i.Platform, Tags: i.Tags})
	}
	return out, nil
}

func newService(t *testing.T, relay push.Relay, now time.Time) *orchestrator.Service {
	t.Helper()
	zone, err := schedule.LoadReferenceZone()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return orchestrator.New(relay, zone, logger, orchestrator.WithClock(func() time.Time { return now }))
}

func TestService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.October, 19, 14, 0, 0, 0, time.UTC)
	relay := newFakeRelay()
	svc := newService(t, relay, now)

	ok := svc.CreateOrUpdateInstallation(ctx, push.DeviceInstallation{
		InstallationID: "dev-1",
		Platform:       "FCMV1",
		PushChannel:    "tok-1",
		Tags:           []string{},
	})
	require.True(t, ok)
	require.Contains(t, relay.installations, "dev-1")
	assert.Equal(t, []string{"all"}, relay.installations["dev-1"].Tags)
	assert.Equal(t, push.PlatformFCMV1, relay.installations["dev-1"].Platform)

	success, msg := svc.ScheduleNotification(ctx, push.ScheduledNotificationRequest{
		DeviceToken:   "tok-1",
		Message:       "Hi",
		ScheduledTime: now.Add(2 * time.Hour),
	})

	require.True(t, success, msg)
	assert.Empty(t, msg)
	require.Len(t, relay.scheduled, 1)
	call := relay.scheduled[0]
	assert.Equal(t, []string{"android"}, call.Tags)
	assert.Equal(t, now.Add(2*time.Hour), call.DeliverAt)
	assert.Contains(t, string(call.Notification.Body), `"body":"Hi"`)
	assert.Equal(t, "Hi", gjson.GetBytes(call.Notification.Body, "message.notification.body").String())
	assert.False(t, gjson.GetBytes(call.Notification.Body, "message.android").Exists())
}

func TestService_Schedule(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.January, 15, 17, 0, 0, 0, time.UTC)

	register := func(t *testing.T, svc *orchestrator.Service, id, platform string) {
		t.Helper()
		require.True(t, svc.CreateOrUpdateInstallation(ctx, push.DeviceInstallation{
			InstallationID: id, Platform: platform, PushChannel: "chan-" + id,
		}))
	}

	t.Run("Time in the past is rejected before any relay call", func(t *testing.T) {
		relay := newFakeRelay()
		svc := newService(t, relay, now)
		register(t, svc, "dev-1", "apns")

		_, err := svc.Schedule(ctx, push.ScheduledNotificationRequest{Message: "Hi", ScheduledTime: now})

		assert.ErrorIs(t, err, push.ErrTimeInPast)
		assert.Empty(t, relay.scheduled)
	})

	t.Run("Blank message is a validation error", func(t *testing.T) {
		relay := newFakeRelay()
		svc := newService(t, relay, now)

		success, msg := svc.ScheduleNotification(ctx, push.ScheduledNotificationRequest{Message: "  ", ScheduledTime: now.Add(time.Hour)})

		assert.False(t, success)
		assert.Contains(t, msg, "message is required")
	})

	t.Run("No registrations yields no eligible audience", func(t *testing.T) {
		relay := newFakeRelay()
		svc := newService(t, relay, now)

		_, err := svc.Schedule(ctx, push.ScheduledNotificationRequest{Message: "Hi", ScheduledTime: now.Add(time.Hour)})

		assert.ErrorIs(t, err, push.ErrNoEligibleAudience)
		assert.Empty(t, relay.scheduled)
	})

	t.Run("Both platforms use their scheduled payload variants", func(t *testing.T) {
		relay := newFakeRelay()
		svc := newService(t, relay, now)
		register(t, svc, "dev-1", "apns")
		register(t, svc, "dev-2", "fcmv1")

		res, err := svc.Schedule(ctx, push.ScheduledNotificationRequest{Message: "Hi", ScheduledTime: now.Add(time.Hour)})

		require.NoError(t, err)
		assert.Len(t, res.Outcomes, 2)
		require.Len(t, relay.scheduled, 2)
		for _, c := range relay.scheduled {
			switch c.Notification.Platform {
			case push.PlatformAPNS:
				assert.Equal(t, []string{"ios"}, c.Tags)
				assert.Equal(t, int64(1), gjson.GetBytes(c.Notification.Body, "aps.badge").Int())
				assert.Equal(t, "default", gjson.GetBytes(c.Notification.Body, "aps.sound").String())
			case push.PlatformFCMV1:
				assert.Equal(t, []string{"android"}, c.Tags)
			}
		}
	})

	t.Run("Zone-less time is interpreted in Eastern", func(t *testing.T) {
		relay := newFakeRelay()
		svc := newService(t, relay, now)
		register(t, svc, "dev-1", "fcmv1")

		// 12:30 EST is 17:30 UTC, 30 minutes after now.
		requested, err := svc.Validator().Parse("2026-01-15T12:30:00")
		require.NoError(t, err)
		_, err = svc.Schedule(ctx, push.ScheduledNotificationRequest{Message: "Hi", ScheduledTime: requested})

		require.NoError(t, err)
		require.Len(t, relay.scheduled, 1)
		assert.Equal(t, time.Date(2026, time.January, 15, 17, 30, 0, 0, time.UTC), relay.scheduled[0].DeliverAt)
	})

	t.Run("Relay listing failure is a relay fault", func(t *testing.T) {
		relay := newFakeRelay()
		relay.listErr = errors.New("hub unavailable")
		svc := newService(t, relay, now)

		_, err := svc.Schedule(ctx, push.ScheduledNotificationRequest{Message: "Hi", ScheduledTime: now.Add(time.Hour)})

		assert.ErrorIs(t, err, push.ErrRelayFault)
		assert.Contains(t, err.Error(), "hub unavailable")
	})

	t.Run("Relay schedule failure surfaces the relay message", func(t *testing.T) {
		relay := newFakeRelay()
		relay.scheduleErr[push.PlatformAPNS] = errors.New("apns certificate expired")
		svc := newService(t, relay, now)
		register(t, svc, "dev-1", "apns")

		success, msg := svc.ScheduleNotification(ctx, push.ScheduledNotificationRequest{Message: "Hi", ScheduledTime: now.Add(time.Hour)})

		assert.False(t, success)
		assert.Contains(t, msg, "apns certificate expired")
	})
}

func TestService_SendImmediate(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("Empty platform defaults to FCM v1", func(t *testing.T) {
		relay := newFakeRelay()
		svc := newService(t, relay, now)

		success, msg := svc.SendNotificationToInstallation(ctx, "dev-1", "", `say "hi"`)

		require.True(t, success, msg)
		require.Len(t, relay.sent, 1)
		assert.Equal(t, []string{"dev-1"}, relay.sent[0].IDs)
		assert.Equal(t, push.PlatformFCMV1, relay.sent[0].Notification.Platform)
		assert.Equal(t, `say "hi"`, gjson.GetBytes(relay.sent[0].Notification.Body, "message.notification.body").String())
		assert.Equal(t, "high", gjson.GetBytes(relay.sent[0].Notification.Body, "message.android.priority").String())
	})

	t.Run("Unknown platform fails without a relay call", func(t *testing.T) {
		relay := newFakeRelay()
		svc := newService(t, relay, now)

		_, err := svc.SendImmediate(ctx, "dev-1", "blackberry", "Hi")

		assert.ErrorIs(t, err, push.ErrUnsupportedPlatform)
		assert.Empty(t, relay.sent)
	})
}
