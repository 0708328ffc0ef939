// Package audience counts eligible registrations per platform so that the
// dispatcher never targets an empty audience.
package audience

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// Counts holds the number of eligible registrations per platform.
// A platform absent from the map has zero eligible registrations.
type Counts map[push.Platform]int

// Eligible returns the platforms with a positive count, in push.Platforms order.
func (c Counts) Eligible() []push.Platform {
	var out []push.Platform
	for _, p := range push.Platforms {
		if c[p] > 0 {
			out = append(out, p)
		}
	}
	return out
}

// Total is the sum of all counts.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Resolver queries the relay for current registrations.
type Resolver struct {
	relay    push.Relay
	pageSize int
	logger   *slog.Logger
}

func NewResolver(relay push.Relay, logger *slog.Logger) *Resolver {
	return &Resolver{
		relay:    relay,
		pageSize: push.ListPageSize,
		logger:   logger.With("component", "AudienceResolver"),
	}
}

// Resolve reads one page of registrations and counts those carrying tag.
// Only the first page is read: audiences above the page size are undercounted.
func (r *Resolver) Resolve(ctx context.Context, tag string) (Counts, error) {
	registrations, err := r.relay.ListRegistrations(ctx, r.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}

	counts := Counts{}
	for _, p := range push.Platforms {
		counts[p] = 0
	}
	for _, reg := range registrations {
		if !reg.Platform.Valid() || !reg.HasTag(tag) {
			continue
		}
		counts[reg.Platform]++
	}

	if len(registrations) >= r.pageSize {
		r.logger.Warn("Registration listing hit the page size; counts may be low", "page_size", r.pageSize)
	}
	r.logger.Info("Registrations found",
		"tag", tag,
		"ios", counts[push.PlatformAPNS],
		"android", counts[push.PlatformFCMV1],
	)
	return counts, nil
}
