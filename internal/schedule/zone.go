// Package schedule validates requested delivery times against the reference
// time zone and converts them into absolute UTC instants.
package schedule

import (
	"errors"
	"fmt"
	"time"

	// Embedded zone database so the reference zone resolves on hosts
	// without /usr/share/zoneinfo (Windows, distroless images).
	_ "time/tzdata"
)

// DefaultZoneIDs are tried in order when resolving the Eastern reference zone.
var DefaultZoneIDs = []string{"America/New_York", "US/Eastern", "EST5EDT"}

// LoadReferenceZone resolves the first loadable zone id. A failure here is a
// configuration error and should stop the process.
func LoadReferenceZone(ids ...string) (*time.Location, error) {
	if len(ids) == 0 {
		ids = DefaultZoneIDs
	}
	var errs []error
	for _, id := range ids {
		if id == "" {
			continue
		}
		loc, err := time.LoadLocation(id)
		if err == nil {
			return loc, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("could not resolve reference time zone from %v: %w", ids, errors.Join(errs...))
}
