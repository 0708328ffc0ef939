package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-pushhub-service/pkg/delivery"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// CacheClient defines the subset of Redis commands the decorator needs.
type CacheClient interface {
	// Get returns the value or an error if not found.
	Get(ctx context.Context, key string, dest any) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Del removes the keys.
	Del(ctx context.Context, keys ...string) error
}

// CachedInstallationStore is a decorator that adds read-aside caching of
// installations by id to any delivery.InstallationStore.
type CachedInstallationStore struct {
	realStore delivery.InstallationStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedInstallationStore(realStore delivery.InstallationStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedInstallationStore {
	return &CachedInstallationStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedInstallationStore"),
	}
}

// --- READ PATHS ---

// Get serves each id from the cache and loads the misses from the real
// store in a single call.
func (s *CachedInstallationStore) Get(ctx context.Context, ids []string) ([]push.Installation, error) {
	out := make([]push.Installation, 0, len(ids))
	var misses []string
	for _, id := range ids {
		var cached push.Installation
		if err := s.cache.Get(ctx, s.cacheKey(id), &cached); err == nil {
			out = append(out, cached)
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fresh, err := s.realStore.Get(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, installation := range fresh {
		// Caching is an optimization; a Redis failure still serves from the store.
		_ = s.cache.Set(ctx, s.cacheKey(installation.InstallationID), installation, s.ttl)
		out = append(out, installation)
	}
	return out, nil
}

// ListByTags and List always read the store; tag queries span many keys.
func (s *CachedInstallationStore) ListByTags(ctx context.Context, platform push.Platform, tags []string) ([]push.Installation, error) {
	return s.realStore.ListByTags(ctx, platform, tags)
}

func (s *CachedInstallationStore) List(ctx context.Context, limit int) ([]push.Installation, error) {
	return s.realStore.List(ctx, limit)
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedInstallationStore) Upsert(ctx context.Context, installation push.Installation) error {
	if err := s.realStore.Upsert(ctx, installation); err != nil {
		return err
	}
	s.invalidate(ctx, installation.InstallationID)
	return nil
}

// Delete clears the cache after the store write so a dead channel stops
// receiving sends immediately.
func (s *CachedInstallationStore) Delete(ctx context.Context, installationID string) error {
	if err := s.realStore.Delete(ctx, installationID); err != nil {
		return err
	}
	s.invalidate(ctx, installationID)
	return nil
}

// --- Helpers ---

// invalidate never fails the write: the store already holds the new state,
// and a stale entry expires with the TTL.
func (s *CachedInstallationStore) invalidate(ctx context.Context, installationID string) {
	if err := s.cache.Del(ctx, s.cacheKey(installationID)); err != nil {
		s.logger.Error("Failed to invalidate cached installation", "installation_id", installationID, "err", err)
	}
}

func (s *CachedInstallationStore) cacheKey(installationID string) string {
	return fmt.Sprintf("pushhub:installation:%s", installationID)
}
