package client

import (
	"fmt"
	"time"

	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

const (
	// DefaultBuffer is added to a requested time after conversion.
	DefaultBuffer = 60 * time.Second
	// DefaultMinLead is how far ahead of now the buffered instant must be.
	DefaultMinLead = 30 * time.Second
)

// SchedulePolicy is the stricter check applied on the device before a
// schedule request is sent.
type SchedulePolicy struct {
	Zone    *time.Location
	Buffer  time.Duration
	MinLead time.Duration
}

func NewSchedulePolicy(zone *time.Location) SchedulePolicy {
	return SchedulePolicy{Zone: zone, Buffer: DefaultBuffer, MinLead: DefaultMinLead}
}

// DeliveryInstant reads the wall-clock fields of wallClock in the policy's
// zone, converts to UTC and adds the buffer. It fails with push.ErrTimeTooSoon
// unless the result is more than MinLead after nowUTC.
func (p SchedulePolicy) DeliveryInstant(wallClock, nowUTC time.Time) (time.Time, error) {
	local := time.Date(wallClock.Year(), wallClock.Month(), wallClock.Day(),
		wallClock.Hour(), wallClock.Minute(), wallClock.Second(), wallClock.Nanosecond(), p.Zone)
	instant := local.UTC().Add(p.Buffer)
	if !instant.After(nowUTC.Add(p.MinLead)) {
		return time.Time{}, fmt.Errorf("%w: %s UTC", push.ErrTimeTooSoon, instant.Format("2006-01-02 15:04:05"))
	}
	return instant, nil
}
