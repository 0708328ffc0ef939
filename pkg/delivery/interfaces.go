// Package delivery holds the contracts shared by the self-hosted relay, its
// storage layer and the platform dispatchers.
package delivery

import (
	"context"

	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// Dispatcher sends a prebuilt platform payload to a batch of push channels.
// invalidTokens lists channels the platform reported as permanently dead.
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, body []byte) (receipt string, invalidTokens []string, err error)
}

// InstallationStore is the system of record for installations.
type InstallationStore interface {
	// Upsert creates or overwrites the installation keyed by its id.
	Upsert(ctx context.Context, installation push.Installation) error
	// Get returns the installations that exist among ids; unknown ids are skipped.
	Get(ctx context.Context, ids []string) ([]push.Installation, error)
	// ListByTags returns the installations of platform carrying any of tags.
	ListByTags(ctx context.Context, platform push.Platform, tags []string) ([]push.Installation, error)
	// List returns at most limit installations.
	List(ctx context.Context, limit int) ([]push.Installation, error)
	// Delete removes an installation. Deleting a missing id is not an error.
	Delete(ctx context.Context, installationID string) error
}
