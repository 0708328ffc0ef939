// Package client is the caller-side SDK for the notification service: it
// registers the device, caches its registration and schedules or sends
// notifications through the HTTP API with bounded retries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// ErrNotRegistered is returned when an operation needs a cached device token
// and there is none.
var ErrNotRegistered = errors.New("device not registered, register the device first")

// maxErrorBody caps how much of a failed response is kept.
const maxErrorBody = 64 << 10

// DeviceInstallationProvider supplies the device's current push identity.
type DeviceInstallationProvider interface {
	// Token is the current platform push token, or "" if not yet issued.
	Token() string
	NotificationsSupported() bool
	DeviceInstallation(tags ...string) (push.DeviceInstallation, error)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	device     DeviceInstallationProvider
	store      SecureStore
	retry      RetryPolicy
	policy     SchedulePolicy
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(cl *Client) { cl.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// New builds a Client. zone is the reference zone scheduled wall-clock times
// are read in.
func New(
	baseURL, apiKey string,
	device DeviceInstallationProvider,
	store SecureStore,
	zone *time.Location,
	logger *slog.Logger,
	opts ...Option,
) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		device:     device,
		store:      store,
		retry:      DefaultRetryPolicy,
		policy:     NewSchedulePolicy(zone),
		now:        time.Now,
		logger:     logger.With("component", "NotificationClient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterDevice upserts this device's installation. The token and tags are
// cached only after the service acknowledges the registration.
func (c *Client) RegisterDevice(ctx context.Context, tags ...string) error {
	if !c.device.NotificationsSupported() {
		return fmt.Errorf("%w: push notifications are not supported on this device", push.ErrUnsupportedPlatform)
	}
	installation, err := c.device.DeviceInstallation(tags...)
	if err != nil {
		return fmt.Errorf("failed to read device installation: %w", err)
	}

	err = WithRetry(ctx, func(ctx context.Context) error {
		return c.send(ctx, http.MethodPut, push.BasePath+"/installations", installation)
	}, c.retry)
	if err != nil {
		return err
	}

	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	if err := c.store.Set(CachedDeviceTokenKey, installation.PushChannel); err != nil {
		return fmt.Errorf("failed to cache device token: %w", err)
	}
	if err := c.store.Set(CachedTagsKey, string(encodedTags)); err != nil {
		return fmt.Errorf("failed to cache tags: %w", err)
	}
	c.logger.Info("Device registered", "installation_id", installation.InstallationID, "tags", tags)
	return nil
}

// RefreshRegistration re-registers with the cached tags when the platform has
// rotated the device token. It is a no-op unless the cached token, cached tags
// and current token are all present and the token has changed.
func (c *Client) RefreshRegistration(ctx context.Context) error {
	cachedToken, err := c.store.Get(CachedDeviceTokenKey)
	if err != nil {
		return fmt.Errorf("failed to read cached device token: %w", err)
	}
	serializedTags, err := c.store.Get(CachedTagsKey)
	if err != nil {
		return fmt.Errorf("failed to read cached tags: %w", err)
	}
	current := c.device.Token()

	if strings.TrimSpace(cachedToken) == "" ||
		strings.TrimSpace(serializedTags) == "" ||
		strings.TrimSpace(current) == "" ||
		cachedToken == current {
		return nil
	}

	var tags []string
	if err := json.Unmarshal([]byte(serializedTags), &tags); err != nil {
		return fmt.Errorf("failed to decode cached tags: %w", err)
	}
	c.logger.Info("Device token changed, refreshing registration")
	return c.RegisterDevice(ctx, tags...)
}

// ScheduleNotification asks for message to be delivered at wallClock, read
// in the reference zone. The request carries a true UTC instant.
func (c *Client) ScheduleNotification(ctx context.Context, message string, wallClock time.Time) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: notification message cannot be empty", push.ErrValidation)
	}

	cachedToken, err := c.store.Get(CachedDeviceTokenKey)
	if err != nil {
		return fmt.Errorf("failed to read cached device token: %w", err)
	}
	if strings.TrimSpace(cachedToken) == "" {
		return ErrNotRegistered
	}

	instant, err := c.policy.DeliveryInstant(wallClock, c.now().UTC())
	if err != nil {
		return err
	}

	req := push.ScheduleRequest{
		DeviceToken:   cachedToken,
		Message:       message,
		ScheduledTime: instant.Format(time.RFC3339),
	}
	return WithRetry(ctx, func(ctx context.Context) error {
		c.logger.Debug("Sending schedule request", "scheduled_time", req.ScheduledTime)
		return c.send(ctx, http.MethodPost, push.BasePath+"/schedule", req)
	}, c.retry)
}

// SendImmediateNotification pushes message to this device now. It makes a
// single attempt so a slow success is never delivered twice.
func (c *Client) SendImmediateNotification(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: notification message cannot be empty", push.ErrValidation)
	}
	installation, err := c.device.DeviceInstallation()
	if err != nil {
		return fmt.Errorf("failed to read device installation: %w", err)
	}
	return c.send(ctx, http.MethodPost, push.BasePath+"/send-immediate", push.SendImmediateRequest{
		DeviceToken: installation.InstallationID,
		Message:     message,
		Platform:    installation.Platform,
	})
}

// RegisterAndSchedule registers the device and, once the service has
// acknowledged it, schedules message.
func (c *Client) RegisterAndSchedule(ctx context.Context, message string, wallClock time.Time, tags ...string) error {
	if err := c.RegisterDevice(ctx, tags...); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	return c.ScheduleNotification(ctx, message, wallClock)
}

func (c *Client) send(ctx context.Context, method, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: failed to encode request: %w", push.ErrValidation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: failed to build request: %w", push.ErrValidation, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(push.APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", push.ErrCancelled, ctxErr)
		}
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("Request failed", "method", method, "path", path, "status", resp.StatusCode)
		return &TransportError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
