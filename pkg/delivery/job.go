package delivery

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// Job is one unit of delivery work: a prebuilt payload for a single platform
// addressed either to explicit installation ids or to tag buckets.
type Job struct {
	ID              string          `json:"id"`
	Platform        push.Platform   `json:"platform"`
	Payload         json.RawMessage `json:"payload"`
	InstallationIDs []string        `json:"installationIds,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	DeliverAt       time.Time       `json:"deliverAt,omitzero"`
}

// Validate checks that the job can be routed.
func (j Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("%w: job id is required", push.ErrValidation)
	}
	if !j.Platform.Valid() {
		return fmt.Errorf("%w: job %s has no platform", push.ErrUnsupportedPlatform, j.ID)
	}
	if len(j.Payload) == 0 {
		return fmt.Errorf("%w: job %s has no payload", push.ErrValidation, j.ID)
	}
	if len(j.InstallationIDs) == 0 && len(j.Tags) == 0 {
		return fmt.Errorf("%w: job %s has no target", push.ErrValidation, j.ID)
	}
	return nil
}

// Notification returns the payload as a push.Notification.
func (j Job) Notification() push.Notification {
	return push.Notification{Platform: j.Platform, Body: j.Payload}
}
