package apns_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/tinywideclouds/go-pushhub-service/internal/payload"
	"github.com/tinywideclouds/go-pushhub-service/internal/platform/apns"
)

type MockAPNSClient struct {
	mock.Mock
}

func (m *MockAPNSClient) PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apns2.Response), args.Error(1)
}

func TestDispatch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	body, err := payload.APNS("Hello iOS", true)
	require.NoError(t, err)

	t.Run("Happy Path - raw payload is pushed to the topic", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := apns.NewDispatcherWithClient(mockClient, "com.test.app", logger)

		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			raw, ok := n.Payload.([]byte)
			return ok && n.DeviceToken == "token-1" && n.Topic == "com.test.app" &&
				gjson.GetBytes(raw, "aps.alert").String() == "Hello iOS"
		})).Return(&apns2.Response{StatusCode: http.StatusOK}, nil)

		receipt, invalid, err := dispatcher.Dispatch(ctx, []string{"token-1"}, body)

		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Contains(t, receipt, "success:1")
		mockClient.AssertExpectations(t)
	})

	t.Run("Self-Healing - Bad Device Token", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := apns.NewDispatcherWithClient(mockClient, "com.test.app", logger)

		mockClient.On("PushWithContext", mock.Anything, mock.Anything).Return(&apns2.Response{
			StatusCode: http.StatusBadRequest,
			Reason:     apns2.ReasonBadDeviceToken,
		}, nil)

		_, invalid, err := dispatcher.Dispatch(ctx, []string{"bad-token"}, body)

		require.NoError(t, err)
		assert.Equal(t, []string{"bad-token"}, invalid)
	})

	t.Run("Partial transport failure is retryable and keeps dead tokens", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := apns.NewDispatcherWithClient(mockClient, "com.test.app", logger)

		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "token-1"
		})).Return(nil, errors.New("connection refused"))
		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "token-2"
		})).Return(&apns2.Response{StatusCode: http.StatusOK}, nil)
		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "dead-token"
		})).Return(&apns2.Response{StatusCode: http.StatusGone, Reason: apns2.ReasonUnregistered}, nil)

		receipt, invalid, err := dispatcher.Dispatch(ctx, []string{"token-1", "token-2", "dead-token"}, body)

		assert.ErrorContains(t, err, "transport failed for 1 of 3 tokens")
		assert.Empty(t, receipt)
		assert.Equal(t, []string{"dead-token"}, invalid)
	})

	t.Run("Total transport failure is retryable", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := apns.NewDispatcherWithClient(mockClient, "com.test.app", logger)

		mockClient.On("PushWithContext", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		_, _, err := dispatcher.Dispatch(ctx, []string{"token-1"}, body)

		assert.ErrorContains(t, err, "transport failed")
	})

	t.Run("Cancelled context stops the loop", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := apns.NewDispatcherWithClient(mockClient, "com.test.app", logger)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, _, err := dispatcher.Dispatch(cctx, []string{"token-1"}, body)

		assert.ErrorIs(t, err, context.Canceled)
		mockClient.AssertNotCalled(t, "PushWithContext", mock.Anything, mock.Anything)
	})
}
