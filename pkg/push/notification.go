package push

import "encoding/json"

// Notification is a platform-specific payload ready for the relay.
// Body is the exact JSON document the platform expects (an FCM v1 message
// envelope or an APNs aps dictionary).
type Notification struct {
	Platform Platform        `json:"platform"`
	Body     json.RawMessage `json:"body"`
}
