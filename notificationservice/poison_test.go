//go:build integration

package notificationservice_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/tinywideclouds/go-pushhub-service/internal/dispatch"
	"github.com/tinywideclouds/go-pushhub-service/internal/schedule"
	"github.com/tinywideclouds/go-pushhub-service/notificationservice"
	"github.com/tinywideclouds/go-pushhub-service/notificationservice/config"
	"github.com/tinywideclouds/go-pushhub-service/pkg/delivery"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// --- Mocks ---

// mockInstallationStore is needed to satisfy New(), even though it won't be
// called in a poison pill scenario (the transformer rejects the message first).
type mockInstallationStore struct {
	mock.Mock
}

func (m *mockInstallationStore) Upsert(ctx context.Context, installation push.Installation) error {
	return m.Called(ctx, installation).Error(0)
}

func (m *mockInstallationStore) Get(ctx context.Context, ids []string) ([]push.Installation, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]push.Installation), args.Error(1)
}

func (m *mockInstallationStore) ListByTags(ctx context.Context, platform push.Platform, tags []string) ([]push.Installation, error) {
	args := m.Called(ctx, platform, tags)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]push.Installation), args.Error(1)
}

func (m *mockInstallationStore) List(ctx context.Context, limit int) ([]push.Installation, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]push.Installation), args.Error(1)
}

func (m *mockInstallationStore) Delete(ctx context.Context, installationID string) error {
	return m.Called(ctx, installationID).Error(0)
}

// idleNotifications satisfies the HTTP surface; the API is not exercised here.
type idleNotifications struct{}

func (idleNotifications) Register(context.Context, push.DeviceInstallation) (push.Installation, error) {
	return push.Installation{}, nil
}

func (idleNotifications) Schedule(context.Context, push.ScheduledNotificationRequest) (dispatch.Result, error) {
	return dispatch.Result{}, nil
}

func (idleNotifications) SendImmediate(context.Context, string, string, string) (dispatch.Result, error) {
	return dispatch.Result{}, nil
}

// --- Test ---

func TestNotificationService_PoisonPill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	projectID := "test-project-dlq"

	// 1. Setup Pub/Sub Emulator
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = psClient.Close() })

	// 2. Arrange: Create main topic, DLQ topic, and subscriptions
	runID := uuid.NewString()
	mainTopicID := "push-main-" + runID
	dlqTopicID := "push-dlq-" + runID
	mainSubID := mainTopicID + "-sub"
	dlqSubID := dlqTopicID + "-sub"

	createPubsubResources(t, ctx, psClient, projectID, dlqTopicID, dlqSubID)
	dlqTopicName := fmt.Sprintf("projects/%s/topics/%s", projectID, dlqTopicID)

	mainTopicName := fmt.Sprintf("projects/%s/topics/%s", projectID, mainTopicID)
	_, err = psClient.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: mainTopicName})
	require.NoError(t, err)

	mainSubName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, mainSubID)
	mainSub := &pubsubpb.Subscription{
		Name:  mainSubName,
		Topic: mainTopicName,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlqTopicName,
			MaxDeliveryAttempts: 5,
		},
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	}
	_, err = psClient.SubscriptionAdminClient.CreateSubscription(ctx, mainSub)
	require.NoError(t, err)

	// 3. Arrange: Create service with dependencies
	fcmDispatcher := newMockDispatcher(-1)
	store := new(mockInstallationStore)

	consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(mainSubID)
	consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
	require.NoError(t, err)

	zone, err := schedule.LoadReferenceZone()
	require.NoError(t, err)

	cfg := &config.Config{
		ProjectID:          projectID,
		ListenAddr:         ":0",
		SubscriptionID:     mainSubID,
		NumPipelineWorkers: 2,
	}

	notificationService, err := notificationservice.New(cfg, notificationservice.Dependencies{
		Consumer:      consumer,
		Dispatchers:   map[push.Platform]delivery.Dispatcher{push.PlatformFCMV1: fcmDispatcher},
		Store:         store,
		Notifications: idleNotifications{},
		ParseTime:     schedule.NewValidator(zone).Parse,
	}, logger)
	require.NoError(t, err)

	// 4. Act: Start the service and publish a poison pill message
	serviceCtx, serviceCancel := context.WithCancel(ctx)
	defer serviceCancel()
	go func() {
		if err := notificationService.Start(serviceCtx); err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("service.Start() returned an error: %v", err)
		}
	}()
	t.Cleanup(func() { _ = notificationService.Shutdown(context.Background()) })

	// Malformed JSON fails in the transformer.
	poisonPayload := []byte(`{"this is not valid json"`)
	result := psClient.Publisher(mainTopicID).Publish(ctx, &pubsub.Message{Data: poisonPayload})
	_, err = result.Get(ctx)
	require.NoError(t, err)
	t.Log("Published poison pill message.")

	// 5. Assert: the message arrives on the DLQ subscription
	dlqSub := psClient.Subscriber(dlqSubID)
	var wg sync.WaitGroup
	wg.Add(1)
	var receivedMsg *pubsub.Message

	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
		err := dlqSub.Receive(cctx, func(ctx context.Context, msg *pubsub.Message) {
			msg.Ack()
			receivedMsg = msg
			cancel()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("DLQ Receive returned an unexpected error: %v", err)
		}
	}()

	wg.Wait()
	require.NotNil(t, receivedMsg, "Did not receive message on the DLQ subscription")
	assert.Equal(t, poisonPayload, receivedMsg.Data)

	// 6. Negative Assertion: nothing was dispatched or looked up
	assert.Equal(t, 0, fcmDispatcher.GetCallCount(), "Dispatcher should not be called for a poison pill message")
	store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "ListByTags", mock.Anything, mock.Anything, mock.Anything)
}
