package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsReader_GetInfo(t *testing.T) {
	reader := NewAnalyticsReader(testDB.Pool)
	ctx := context.Background()

	t.Run("success - returns current click count", func(t *testing.T) {
		testDB.Cleanup(ctx)

		id := insertLink(t, "info1", "https://example.com/info", nil)
		testDB.Pool.Exec(ctx, "UPDATE links SET click_count = 7 WHERE id = $1", id)

		info, err := reader.GetInfo(ctx, "info1")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/info", info.OriginalURL)
		assert.Equal(t, int64(7), info.ClickCount)
		assert.False(t, info.CreatedAt.IsZero())
	})

	t.Run("success - expired links are still readable", func(t *testing.T) {
		testDB.Cleanup(ctx)

		past := time.Now().Add(-time.Hour)
		insertLink(t, "old", "https://example.com/old", &past)

		_, err := reader.GetInfo(ctx, "old")
		assert.NoError(t, err)
	})

	t.Run("error - not found", func(t *testing.T) {
		testDB.Cleanup(ctx)

		_, err := reader.GetInfo(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAnalyticsReader_GetAnalytics(t *testing.T) {
	reader := NewAnalyticsReader(testDB.Pool)
	ctx := context.Background()

	t.Run("success - most recent first, capped at limit", func(t *testing.T) {
		testDB.Cleanup(ctx)

		id := insertLink(t, "stats", "https://example.com/stats", nil)
		testDB.Pool.Exec(ctx, "UPDATE links SET click_count = 9 WHERE id = $1", id)

		base := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
		for i := 0; i < 7; i++ {
			_, err := testDB.Pool.Exec(ctx,
				"INSERT INTO click_events (link_id, ip, occurred_at) VALUES ($1, $2, $3)",
				id, fmt.Sprintf("10.0.0.%d", i), base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, err)
		}

		analytics, err := reader.GetAnalytics(ctx, "stats", 5)
		require.NoError(t, err)

		assert.Equal(t, int64(9), analytics.TotalClicks)
		require.Len(t, analytics.RecentClicks, 5)
		assert.Equal(t, "10.0.0.6", analytics.RecentClicks[0].IP)
		assert.Equal(t, "10.0.0.2", analytics.RecentClicks[4].IP)
		for i := 1; i < len(analytics.RecentClicks); i++ {
			assert.True(t, analytics.RecentClicks[i-1].Time.After(analytics.RecentClicks[i].Time))
		}
	})

	t.Run("success - equal timestamps fall back to insertion order", func(t *testing.T) {
		testDB.Cleanup(ctx)

		id := insertLink(t, "ties", "https://example.com/ties", nil)
		at := time.Now().UTC().Truncate(time.Second)
		for _, ip := range []string{"first", "second", "third"} {
			_, err := testDB.Pool.Exec(ctx,
				"INSERT INTO click_events (link_id, ip, occurred_at) VALUES ($1, $2, $3)", id, ip, at)
			require.NoError(t, err)
		}

		analytics, err := reader.GetAnalytics(ctx, "ties", 5)
		require.NoError(t, err)
		require.Len(t, analytics.RecentClicks, 3)
		assert.Equal(t, "third", analytics.RecentClicks[0].IP)
		assert.Equal(t, "second", analytics.RecentClicks[1].IP)
		assert.Equal(t, "first", analytics.RecentClicks[2].IP)
	})

	t.Run("success - no clicks yields empty list", func(t *testing.T) {
		testDB.Cleanup(ctx)

		insertLink(t, "quiet", "https://example.com/quiet", nil)

		analytics, err := reader.GetAnalytics(ctx, "quiet", 5)
		require.NoError(t, err)
		assert.Equal(t, int64(0), analytics.TotalClicks)
		assert.NotNil(t, analytics.RecentClicks)
		assert.Empty(t, analytics.RecentClicks)
	})

	t.Run("error - not found", func(t *testing.T) {
		testDB.Cleanup(ctx)

		_, err := reader.GetAnalytics(ctx, "missing", 5)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
