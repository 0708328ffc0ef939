// Package registry normalizes device installations and forwards them to the relay.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// Normalize validates a raw installation and applies the tag-defaulting policy.
// It never touches the relay.
func Normalize(raw push.DeviceInstallation) (push.Installation, error) {
	var missing []string
	if strings.TrimSpace(raw.InstallationID) == "" {
		missing = append(missing, "installationId")
	}
	if strings.TrimSpace(raw.Platform) == "" {
		missing = append(missing, "platform")
	}
	if strings.TrimSpace(raw.PushChannel) == "" {
		missing = append(missing, "pushChannel")
	}
	if len(missing) > 0 {
		return push.Installation{}, fmt.Errorf("%w: missing %s", push.ErrValidation, strings.Join(missing, ", "))
	}

	platform, err := push.ParsePlatform(raw.Platform)
	if err != nil {
		return push.Installation{}, err
	}

	return push.Installation{
		InstallationID: raw.InstallationID,
		Platform:       platform,
		PushChannel:    raw.PushChannel,
		Tags:           normalizeTags(raw.Tags),
	}, nil
}

// normalizeTags copies tags verbatim, dropping blanks and exact duplicates.
// An empty result becomes the singleton {"all"}.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return []string{push.TagAll}
	}
	return out
}

// Registry shapes installations and hands them to the relay, which is the
// system of record.
type Registry struct {
	relay  push.Relay
	logger *slog.Logger
}

func New(relay push.Relay, logger *slog.Logger) *Registry {
	return &Registry{
		relay:  relay,
		logger: logger.With("component", "InstallationRegistry"),
	}
}

// Register normalizes raw and forwards it. Validation failures are returned
// unwrapped; relay failures are wrapped with push.ErrRelayFault.
func (r *Registry) Register(ctx context.Context, raw push.DeviceInstallation) (push.Installation, error) {
	r.logger.Info("Starting installation upsert", "installation_id", raw.InstallationID)

	installation, err := Normalize(raw)
	if err != nil {
		r.logger.Warn("Invalid device installation data received",
			"installation_id", raw.InstallationID,
			"platform", raw.Platform,
			"err", err,
		)
		return push.Installation{}, err
	}

	if err := r.relay.CreateOrUpdateInstallation(ctx, installation); err != nil {
		if ctx.Err() != nil {
			return push.Installation{}, fmt.Errorf("%w: %w", push.ErrCancelled, ctx.Err())
		}
		r.logger.Error("Relay rejected installation upsert",
			"installation_id", installation.InstallationID,
			"err", err,
		)
		return push.Installation{}, push.RelayFault(err)
	}

	r.logger.Info("Installation created or updated",
		"installation_id", installation.InstallationID,
		"platform", installation.Platform.String(),
		"tags", strings.Join(installation.Tags, ", "),
	)
	return installation, nil
}

// CreateOrUpdateInstallation is the boolean form of Register: any failure is
// logged and reported as false, never raised.
func (r *Registry) CreateOrUpdateInstallation(ctx context.Context, raw push.DeviceInstallation) bool {
	_, err := r.Register(ctx, raw)
	if err != nil && !errors.Is(err, push.ErrRelayFault) && !push.IsClientError(err) {
		r.logger.Warn("Installation upsert aborted", "installation_id", raw.InstallationID, "err", err)
	}
	return err == nil
}
