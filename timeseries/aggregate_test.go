package timeseries

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-ingest/models"
	"catalog-ingest/store"
)

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }

func seedSnapshot(t *testing.T, st store.Store, s *models.RawSnapshot) {
	t.Helper()
	require.NoError(t, st.Set(context.Background(), models.CollectionSnapshots, s.DocID(), s.Doc(), false))
}

func fixedAggregator(st store.Store, now time.Time) *Aggregator {
	a := NewAggregator(st)
	a.now = func() time.Time { return now }
	return a
}

func TestAggregateReduction(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	seedSnapshot(t, st, &models.RawSnapshot{
		ItemID:         "RJ1",
		Timestamp:      day.Add(9 * time.Hour),
		RegionalPrices: models.RegionalPrices{"JP": 1320, "US": 9.99},
		DiscountRate:   0,
		CampaignID:     intPtr(241),
		RankDay:        intPtr(20),
		SalesCount:     intPtr(100),
		RatingAverage:  floatPtr(4.2),
	})
	seedSnapshot(t, st, &models.RawSnapshot{
		ItemID:         "RJ1",
		Timestamp:      day.Add(12 * time.Hour),
		RegionalPrices: models.RegionalPrices{"JP": 990},
		DiscountRate:   25,
		CampaignID:     intPtr(241),
		RankDay:        intPtr(15),
		SalesCount:     intPtr(120),
		RatingAverage:  floatPtr(4.5),
	})
	seedSnapshot(t, st, &models.RawSnapshot{
		ItemID:         "RJ1",
		Timestamp:      day.Add(18 * time.Hour),
		RegionalPrices: models.RegionalPrices{"JP": 1100},
		DiscountRate:   10,
		CampaignID:     intPtr(352),
		RankDay:        intPtr(18),
	})
	// Another item on the same day must not leak in.
	seedSnapshot(t, st, &models.RawSnapshot{
		ItemID:         "RJ2",
		Timestamp:      day.Add(10 * time.Hour),
		RegionalPrices: models.RegionalPrices{"JP": 1},
	})

	a := fixedAggregator(st, day.Add(23*time.Hour))
	require.NoError(t, a.Aggregate(ctx, "RJ1", "2026-08-30"))

	doc, err := st.Get(ctx, models.CollectionDailyAggregates, "RJ1_2026-08-30")
	require.NoError(t, err)

	prices, ok := doc["lowestPrices"].(map[string]float64)
	require.True(t, ok)
	assert.Equal(t, 990.0, prices["JP"], "lowest positive JP price")
	assert.Equal(t, 9.99, prices["US"], "single US observation carries over")

	assert.Equal(t, 25, doc["maxDiscountRate"])
	assert.Equal(t, []int{241, 352}, doc["activeCampaignIds"], "campaign ids deduplicated and sorted")
	assert.Equal(t, 15, doc["bestRankDay"], "best rank is the minimum")
	assert.Equal(t, 120, doc["maxSalesCount"])
	assert.Equal(t, 4.5, doc["maxRatingAverage"])
	assert.Equal(t, 3, doc["dataPointCount"])
	assert.Equal(t, "09:00:00", doc["firstCaptureTime"])
	assert.Equal(t, "18:00:00", doc["lastCaptureTime"])
}

func TestAggregateOmitsUnobservedCurrency(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	seedSnapshot(t, st, &models.RawSnapshot{
		ItemID:         "RJ1",
		Timestamp:      day.Add(time.Hour),
		RegionalPrices: models.RegionalPrices{"JP": 500},
	})

	a := fixedAggregator(st, day)
	require.NoError(t, a.Aggregate(ctx, "RJ1", "2026-08-30"))

	doc, err := st.Get(ctx, models.CollectionDailyAggregates, "RJ1_2026-08-30")
	require.NoError(t, err)
	prices, _ := doc["lowestPrices"].(map[string]float64)
	assert.NotContains(t, prices, "US", "currency without observations must be absent, not zero")
}

func TestAggregateNothingToDo(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	a := NewAggregator(st)
	require.NoError(t, a.Aggregate(ctx, "RJ1", "2026-08-30"))

	_, err := st.Get(ctx, models.CollectionDailyAggregates, "RJ1_2026-08-30")
	assert.ErrorIs(t, err, store.ErrNotFound, "no snapshots must write no aggregate")
}

func TestAggregateIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	seedSnapshot(t, st, &models.RawSnapshot{
		ItemID:         "RJ1",
		Timestamp:      day.Add(time.Hour),
		RegionalPrices: models.RegionalPrices{"JP": 500},
		DiscountRate:   10,
	})

	a := fixedAggregator(st, day)
	require.NoError(t, a.Aggregate(ctx, "RJ1", "2026-08-30"))
	first, err := st.Get(ctx, models.CollectionDailyAggregates, "RJ1_2026-08-30")
	require.NoError(t, err)

	require.NoError(t, a.Aggregate(ctx, "RJ1", "2026-08-30"))
	second, err := st.Get(ctx, models.CollectionDailyAggregates, "RJ1_2026-08-30")
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-running over the same inputs must not change the aggregate")
}

func TestRunWindow(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)

	// Two items today, one yesterday, one outside the window.
	seedSnapshot(t, st, &models.RawSnapshot{
		ItemID: "RJ1", Timestamp: now.Add(-time.Hour),
		RegionalPrices: models.RegionalPrices{"JP": 100},
	})
	seedSnapshot(t, st, &models.RawSnapshot{
		ItemID: "RJ2", Timestamp: now.Add(-2 * time.Hour),
		RegionalPrices: models.RegionalPrices{"JP": 200},
	})
	seedSnapshot(t, st, &models.RawSnapshot{
		ItemID: "RJ1", Timestamp: now.AddDate(0, 0, -1),
		RegionalPrices: models.RegionalPrices{"JP": 300},
	})
	seedSnapshot(t, st, &models.RawSnapshot{
		ItemID: "RJ1", Timestamp: now.AddDate(0, 0, -10),
		RegionalPrices: models.RegionalPrices{"JP": 400},
	})

	a := fixedAggregator(st, now)
	written, err := a.RunWindow(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	for _, id := range []string{"RJ1_2026-08-30", "RJ2_2026-08-30", "RJ1_2026-08-29"} {
		_, err := st.Get(ctx, models.CollectionDailyAggregates, id)
		assert.NoError(t, err, id)
	}
	_, err = st.Get(ctx, models.CollectionDailyAggregates, "RJ1_2026-08-20")
	assert.ErrorIs(t, err, store.ErrNotFound, "out-of-window day must not be aggregated")
}
