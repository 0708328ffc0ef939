// Package payload builds platform-specific notification bodies from a plain
// text message.
//
// Call sites pick a Variant:
//   - Scheduled: APNs rich (alert, badge 1, default sound), FCM normal priority.
//   - Immediate: APNs minimal (alert only), FCM with android.priority "high".
package payload

import (
	"encoding/json"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"github.com/sideshow/apns2/payload"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// Variant selects the flavour of payload for a call site.
type Variant int

const (
	Scheduled Variant = iota
	Immediate
)

const (
	androidPriorityHigh = "high"
	apnsDefaultSound    = "default"
)

// fcmEnvelope is the FCM HTTP v1 request body shape.
type fcmEnvelope struct {
	Message *messaging.Message `json:"message"`
}

// Build produces the notification for platform. The message is JSON encoded,
// never interpolated, so quotes and control characters are always escaped.
func Build(platform push.Platform, message string, variant Variant) (push.Notification, error) {
	var (
		body []byte
		err  error
	)
	switch platform {
	case push.PlatformAPNS:
		body, err = APNS(message, variant == Scheduled)
	case push.PlatformFCMV1:
		body, err = FCM(message, variant == Immediate)
	default:
		return push.Notification{}, fmt.Errorf("%w: %s", push.ErrUnsupportedPlatform, platform)
	}
	if err != nil {
		return push.Notification{}, err
	}
	return push.Notification{Platform: platform, Body: body}, nil
}

// BuildAll builds one notification per platform.
func BuildAll(message string, variant Variant) (map[push.Platform]push.Notification, error) {
	out := make(map[push.Platform]push.Notification, len(push.Platforms))
	for _, p := range push.Platforms {
		n, err := Build(p, message, variant)
		if err != nil {
			return nil, err
		}
		out[p] = n
	}
	return out, nil
}

// APNS returns {"aps":{"alert":message}}, plus badge and sound when rich.
func APNS(message string, rich bool) ([]byte, error) {
	p := payload.NewPayload().Alert(message)
	if rich {
		p.Badge(1).Sound(apnsDefaultSound)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal apns payload: %w", err)
	}
	return b, nil
}

// FCM returns {"message":{"notification":{"body":message}}}, plus
// android.priority "high" when highPriority.
func FCM(message string, highPriority bool) ([]byte, error) {
	msg := &messaging.Message{
		Notification: &messaging.Notification{Body: message},
	}
	if highPriority {
		msg.Android = &messaging.AndroidConfig{Priority: androidPriorityHigh}
	}
	b, err := json.Marshal(fcmEnvelope{Message: msg})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fcm payload: %w", err)
	}
	return b, nil
}

// DecodeFCM reads an FCM v1 envelope back into a messaging.Message.
func DecodeFCM(body []byte) (*messaging.Message, error) {
	var env fcmEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fcm payload: %w", err)
	}
	if env.Message == nil {
		return nil, fmt.Errorf("fcm payload has no message")
	}
	return env.Message, nil
}
