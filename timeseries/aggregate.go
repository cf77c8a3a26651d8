// Package timeseries rolls raw market snapshots up into daily
// aggregates and enforces the raw retention window.
package timeseries

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"catalog-ingest/models"
	"catalog-ingest/store"
)

// Aggregator computes one daily aggregate per (item, date) pair from
// the raw snapshots of that day. Re-running over the same inputs is
// idempotent: the aggregate id is deterministic and the write merges.
type Aggregator struct {
	store store.Store
	now   func() time.Time
}

// NewAggregator returns an aggregator over st.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st, now: time.Now}
}

// Aggregate rolls up the snapshots for one item on one date. A pair
// with no snapshots writes nothing.
func (a *Aggregator) Aggregate(ctx context.Context, itemID, date string) error {
	docs, err := a.store.Query(ctx, models.CollectionSnapshots, store.Query{
		Filters: []store.Filter{
			{Field: "itemId", Op: store.OpEqual, Value: itemID},
			{Field: "date", Op: store.OpEqual, Value: date},
		},
	})
	if err != nil {
		return fmt.Errorf("query snapshots for %s on %s: %w", itemID, date, err)
	}
	if len(docs) == 0 {
		slog.Info("no snapshots to aggregate",
			slog.String("item", itemID),
			slog.String("date", date),
		)
		return nil
	}

	snaps := make([]*models.RawSnapshot, 0, len(docs))
	for _, doc := range docs {
		snap, err := models.SnapshotFromDoc(doc.Data)
		if err != nil {
			slog.Warn("skipping unreadable snapshot",
				slog.String("id", doc.ID),
				slog.Any("error", err),
			)
			continue
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		return fmt.Errorf("no readable snapshots for %s on %s", itemID, date)
	}

	agg := reduce(itemID, date, snaps)
	agg.UpdatedAt = a.now()
	if err := a.store.Set(ctx, models.CollectionDailyAggregates, agg.DocID(), agg.Doc(), true); err != nil {
		return fmt.Errorf("write aggregate %s: %w", agg.DocID(), err)
	}
	return nil
}

// RunWindow aggregates every (item, date) pair that has snapshots
// within the trailing window of days, today included. Pairs are
// processed sequentially; per-pair failures are logged and counted but
// do not stop the sweep. It returns the number of aggregates written.
func (a *Aggregator) RunWindow(ctx context.Context, days int) (int, error) {
	written := 0
	failed := 0
	today := a.now().UTC()

	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		items, err := a.itemsOn(ctx, date)
		if err != nil {
			return written, err
		}
		for _, itemID := range items {
			if err := ctx.Err(); err != nil {
				return written, err
			}
			if err := a.Aggregate(ctx, itemID, date); err != nil {
				failed++
				slog.Error("aggregate failed",
					slog.String("item", itemID),
					slog.String("date", date),
					slog.Any("error", err),
				)
				continue
			}
			written++
		}
	}

	slog.Info("aggregation sweep finished",
		slog.Int("days", days),
		slog.Int("written", written),
		slog.Int("failed", failed),
	)
	return written, nil
}

func (a *Aggregator) itemsOn(ctx context.Context, date string) ([]string, error) {
	docs, err := a.store.Query(ctx, models.CollectionSnapshots, store.Query{
		Filters: []store.Filter{{Field: "date", Op: store.OpEqual, Value: date}},
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshot items for %s: %w", date, err)
	}

	seen := make(map[string]struct{})
	var items []string
	for _, doc := range docs {
		itemID, _ := doc.Data["itemId"].(string)
		if itemID == "" {
			continue
		}
		if _, dup := seen[itemID]; dup {
			continue
		}
		seen[itemID] = struct{}{}
		items = append(items, itemID)
	}
	sort.Strings(items)
	return items, nil
}

// reduce folds a day's snapshots into the aggregate. Price minima only
// consider positive observations; ranks take the best (lowest) value;
// everything else takes the maximum seen.
func reduce(itemID, date string, snaps []*models.RawSnapshot) *models.DailyAggregate {
	agg := &models.DailyAggregate{
		ItemID:         itemID,
		Date:           date,
		LowestPrices:   make(map[string]float64),
		DataPointCount: len(snaps),
	}

	campaigns := make(map[int]struct{})
	times := make([]string, 0, len(snaps))

	for _, s := range snaps {
		for currency, price := range s.RegionalPrices {
			if price <= 0 {
				continue
			}
			if current, ok := agg.LowestPrices[currency]; !ok || price < current {
				agg.LowestPrices[currency] = price
			}
		}

		if s.DiscountRate > agg.MaxDiscountRate {
			agg.MaxDiscountRate = s.DiscountRate
		}
		if s.CampaignID != nil {
			campaigns[*s.CampaignID] = struct{}{}
		}

		takeMax(&agg.MaxSalesCount, s.SalesCount)
		takeMax(&agg.MaxWishlistCount, s.WishlistCount)
		takeMax(&agg.MaxRatingCount, s.RatingCount)
		takeMaxFloat(&agg.MaxRatingAverage, s.RatingAverage)
		takeMin(&agg.BestRankDay, s.RankDay)
		takeMin(&agg.BestRankWeek, s.RankWeek)
		takeMin(&agg.BestRankMonth, s.RankMonth)

		times = append(times, s.TimeOfDay())
	}

	for id := range campaigns {
		agg.ActiveCampaignIDs = append(agg.ActiveCampaignIDs, id)
	}
	sort.Ints(agg.ActiveCampaignIDs)

	sort.Strings(times)
	if len(times) > 0 {
		agg.FirstCaptureTime = times[0]
		agg.LastCaptureTime = times[len(times)-1]
	}
	return agg
}

func takeMax(dst **int, v *int) {
	if v == nil {
		return
	}
	if *dst == nil || *v > **dst {
		val := *v
		*dst = &val
	}
}

func takeMin(dst **int, v *int) {
	if v == nil {
		return
	}
	if *dst == nil || *v < **dst {
		val := *v
		*dst = &val
	}
}

func takeMaxFloat(dst **float64, v *float64) {
	if v == nil {
		return
	}
	if *dst == nil || *v > **dst {
		val := *v
		*dst = &val
	}
}
