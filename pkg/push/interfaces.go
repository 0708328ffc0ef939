package push

import (
	"context"
	"time"
)

// ListPageSize is the single page of registrations the audience resolver reads.
// Audiences larger than this are undercounted.
const ListPageSize = 100

// Relay is the capability surface of the notification relay that talks to
// APNs and FCM. Implementations must be safe for concurrent use.
type Relay interface {
	// CreateOrUpdateInstallation upserts the installation keyed by its id.
	CreateOrUpdateInstallation(ctx context.Context, installation Installation) error

	// ScheduleNotification delivers n at deliverAt to every installation of
	// n.Platform carrying any of tags.
	ScheduleNotification(ctx context.Context, n Notification, deliverAt time.Time, tags []string) error

	// SendNotification delivers n immediately to the given installation ids.
	SendNotification(ctx context.Context, n Notification, installationIDs []string) error

	// ListRegistrations returns at most pageSize registrations.
	ListRegistrations(ctx context.Context, pageSize int) ([]Registration, error)
}
