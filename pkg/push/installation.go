package push

import "time"

// Well-known audience tags.
const (
	TagAll     = "all"
	TagIOS     = "ios"
	TagAndroid = "android"
)

// DeviceInstallation is the raw installation record as supplied by a caller.
// Platform is still a free-form string here; see registry.Normalize.
type DeviceInstallation struct {
	InstallationID string   `json:"installationId"`
	Platform       string   `json:"platform"`
	PushChannel    string   `json:"pushChannel"`
	Tags           []string `json:"tags,omitempty"`
}

// Installation is a validated installation, ready to be forwarded to the relay.
type Installation struct {
	InstallationID string   `json:"installationId"`
	Platform       Platform `json:"platform"`
	PushChannel    string   `json:"pushChannel"`
	Tags           []string `json:"tags"`
}

// HasTag reports whether the installation carries tag.
func (i Installation) HasTag(tag string) bool {
	return containsTag(i.Tags, tag)
}

// Registration is the relay's view of one registered installation, as
// returned by Relay.ListRegistrations.
type Registration struct {
	Platform Platform
	Tags     []string
}

// HasTag reports whether the registration carries tag.
func (r Registration) HasTag(tag string) bool {
	return containsTag(r.Tags, tag)
}

// ScheduledNotificationRequest asks for message to be delivered at ScheduledTime.
// DeviceToken only identifies the caller; it does not narrow the audience.
type ScheduledNotificationRequest struct {
	DeviceToken   string
	Message       string
	ScheduledTime time.Time
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
