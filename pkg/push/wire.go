package push

// BasePath is the prefix every notification route is mounted under.
const BasePath = "/api/notifications"

// APIKeyHeader carries the shared secret on every request.
const APIKeyHeader = "apikey"

// ScheduleRequest is the body of POST /schedule. ScheduledTime without an
// offset is read as Eastern wall-clock time.
type ScheduleRequest struct {
	DeviceToken   string `json:"deviceToken"`
	Message       string `json:"message"`
	ScheduledTime string `json:"scheduledTime"`
}

// SendImmediateRequest is the body of POST /send-immediate. Platform defaults
// to fcmv1.
type SendImmediateRequest struct {
	DeviceToken string `json:"deviceToken"`
	Message     string `json:"message"`
	Platform    string `json:"platform,omitempty"`
}
