// Package fcm delivers prebuilt FCM v1 payloads through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-pushhub-service/internal/payload"
)

// maxBatch is the Firebase limit on tokens per multicast.
const maxBatch = 500

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger
}

func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// Dispatch sends body, an FCM v1 {"message":{...}} envelope, to every token.
// Tokens FCM reports as unregistered or malformed come back as invalid.
// A transport failure or any retryable per-token failure is returned as an
// error so the job is redelivered.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, body []byte) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	template, err := payload.DecodeFCM(body)
	if err != nil {
		d.logger.Error("Dropping undecodable FCM payload", "err", err)
		return "skipped: invalid_payload", nil, nil
	}

	var invalidTokens []string
	successCount, retryableErrors := 0, 0

	for start := 0; start < len(tokens); start += maxBatch {
		end := min(start+maxBatch, len(tokens))
		batch := tokens[start:end]

		msg := &messaging.MulticastMessage{
			Tokens:       batch,
			Data:         template.Data,
			Notification: template.Notification,
			Android:      template.Android,
			Webpush:      template.Webpush,
			APNS:         template.APNS,
			FCMOptions:   template.FCMOptions,
		}

		br, err := d.client.SendEachForMulticast(ctx, msg)
		if err != nil {
			if messaging.IsInvalidArgument(err) {
				d.logger.Error("FCM rejected batch as InvalidArgument (dropping)", "err", err)
				continue
			}
			return "", invalidTokens, fmt.Errorf("fcm transport failed: %w", err)
		}

		successCount += br.SuccessCount
		if br.FailureCount == 0 {
			continue
		}
		for idx, resp := range br.Responses {
			if resp.Success {
				continue
			}
			if messaging.IsInvalidArgument(resp.Error) || messaging.IsRegistrationTokenNotRegistered(resp.Error) {
				invalidTokens = append(invalidTokens, batch[idx])
				continue
			}
			retryableErrors++
		}
	}

	if retryableErrors > 0 {
		return "", invalidTokens, fmt.Errorf("batch had %d retryable errors", retryableErrors)
	}

	receipt := fmt.Sprintf("success:%d invalid:%d", successCount, len(invalidTokens))
	return receipt, invalidTokens, nil
}
