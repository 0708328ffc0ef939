package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// naiveLayouts are accepted for timestamps that carry no zone information.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Validator enforces that requested delivery times lie strictly in the future.
type Validator struct {
	zone *time.Location
}

func NewValidator(zone *time.Location) *Validator {
	return &Validator{zone: zone}
}

// Zone is the reference zone used for zone-less timestamps.
func (v *Validator) Zone() *time.Location {
	return v.zone
}

// Validate returns requested as a UTC delivery instant, or push.ErrTimeInPast
// when it is not strictly after now as observed in the reference zone.
func (v *Validator) Validate(requested, nowUTC time.Time) (time.Time, error) {
	nowInZone := nowUTC.In(v.zone)
	if !requested.After(nowInZone) {
		return time.Time{}, fmt.Errorf("%w: requested %s, now %s",
			push.ErrTimeInPast,
			requested.In(v.zone).Format(time.RFC3339),
			nowInZone.Format(time.RFC3339),
		)
	}
	return requested.UTC(), nil
}

// Parse reads a caller-supplied timestamp. Values with an explicit offset are
// taken as absolute instants; zone-less values are wall-clock times in the
// reference zone.
func (v *Validator) Parse(raw string) (time.Time, error) {
	return ParseRequestedTime(raw, v.zone)
}

// ParseRequestedTime is Validator.Parse with an explicit zone.
func ParseRequestedTime(raw string, zone *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: scheduledTime is required", push.ErrValidation)
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, zone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: scheduledTime %q is not a recognised timestamp", push.ErrValidation, raw)
}
