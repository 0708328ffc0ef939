package client_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-pushhub-service/pkg/client"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

func TestSchedulePolicy_DeliveryInstant(t *testing.T) {
	zone, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	policy := client.NewSchedulePolicy(zone)
	now := time.Date(2026, time.March, 10, 13, 0, 0, 0, time.UTC) // 09:00 Eastern

	t.Run("Converts to UTC and adds the buffer", func(t *testing.T) {
		wall := time.Date(2026, time.March, 10, 11, 0, 0, 0, time.UTC) // location ignored
		got, err := policy.DeliveryInstant(wall, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, time.March, 10, 15, 1, 0, 0, time.UTC), got)
	})

	t.Run("Past wall clock is too soon", func(t *testing.T) {
		wall := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
		_, err := policy.DeliveryInstant(wall, now)
		assert.ErrorIs(t, err, push.ErrTimeTooSoon)
	})

	t.Run("Buffer alone does not clear the minimum lead", func(t *testing.T) {
		// now-40s +60s buffer = now+20s, inside the 30s lead.
		wall := now.Add(-40 * time.Second).In(zone)
		_, err := policy.DeliveryInstant(wall, now)
		assert.ErrorIs(t, err, push.ErrTimeTooSoon)
	})

	t.Run("Just past the minimum lead passes", func(t *testing.T) {
		wall := now.Add(-29 * time.Second).In(zone)
		got, err := policy.DeliveryInstant(wall, now)
		require.NoError(t, err)
		assert.Equal(t, now.Add(31*time.Second), got)
	})
}
