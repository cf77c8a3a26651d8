package models

import (
	"fmt"
	"strings"
	"time"
)

// Currencies lists the regional price slots captured per snapshot.
var Currencies = []string{"JP", "US", "EU", "CN", "TW", "KR"}

// RegionalPrices maps a currency slot to the observed price. A zero or
// missing entry means the price was not observed in that region.
type RegionalPrices map[string]float64

// RawSnapshot is one immutable point-in-time capture of a product's
// market state. Pointer fields are nil when the upstream payload did
// not carry the value.
type RawSnapshot struct {
	ItemID         string
	Timestamp      time.Time
	RegionalPrices RegionalPrices
	DiscountRate   int
	CampaignID     *int
	SalesCount     *int
	WishlistCount  *int
	RankDay        *int
	RankWeek       *int
	RankMonth      *int
	RatingAverage  *float64
	RatingCount    *int
}

// Date returns the snapshot's UTC calendar date as YYYY-MM-DD.
func (s *RawSnapshot) Date() string {
	return s.Timestamp.UTC().Format("2006-01-02")
}

// TimeOfDay returns the snapshot's UTC wall-clock time as HH:MM:SS.
func (s *RawSnapshot) TimeOfDay() string {
	return s.Timestamp.UTC().Format("15:04:05")
}

// DocID returns the deterministic document id for this capture so a
// re-run within the same second overwrites rather than duplicates.
func (s *RawSnapshot) DocID() string {
	clock := strings.ReplaceAll(s.TimeOfDay(), ":", "-")
	return fmt.Sprintf("%s_%s_%s", s.ItemID, s.Date(), clock)
}

// Validate reports whether the snapshot is persistable.
func (s *RawSnapshot) Validate() error {
	if s.ItemID == "" {
		return fmt.Errorf("snapshot missing item id")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("snapshot for %s missing timestamp", s.ItemID)
	}
	if s.DiscountRate < 0 || s.DiscountRate > 100 {
		return fmt.Errorf("snapshot for %s has discount rate %d outside 0-100", s.ItemID, s.DiscountRate)
	}
	return nil
}

// Doc renders the snapshot as a store document.
func (s *RawSnapshot) Doc() map[string]any {
	doc := map[string]any{
		"itemId":       s.ItemID,
		"timestamp":    s.Timestamp,
		"date":         s.Date(),
		"time":         s.TimeOfDay(),
		"discountRate": s.DiscountRate,
	}
	if len(s.RegionalPrices) > 0 {
		prices := make(map[string]float64, len(s.RegionalPrices))
		for c, p := range s.RegionalPrices {
			prices[c] = p
		}
		doc["regionalPrices"] = prices
	}
	putInt(doc, "campaignId", s.CampaignID)
	putInt(doc, "salesCount", s.SalesCount)
	putInt(doc, "wishlistCount", s.WishlistCount)
	putInt(doc, "rankDay", s.RankDay)
	putInt(doc, "rankWeek", s.RankWeek)
	putInt(doc, "rankMonth", s.RankMonth)
	if s.RatingAverage != nil {
		doc["ratingAverage"] = *s.RatingAverage
	}
	putInt(doc, "ratingCount", s.RatingCount)
	return doc
}

// SnapshotFromDoc reconstructs a snapshot from its stored document.
func SnapshotFromDoc(doc map[string]any) (*RawSnapshot, error) {
	s := &RawSnapshot{
		ItemID:         docString(doc, "itemId"),
		RegionalPrices: docFloatMap(doc, "regionalPrices"),
		CampaignID:     docIntPtr(doc, "campaignId"),
		SalesCount:     docIntPtr(doc, "salesCount"),
		WishlistCount:  docIntPtr(doc, "wishlistCount"),
		RankDay:        docIntPtr(doc, "rankDay"),
		RankWeek:       docIntPtr(doc, "rankWeek"),
		RankMonth:      docIntPtr(doc, "rankMonth"),
		RatingAverage:  docFloatPtr(doc, "ratingAverage"),
		RatingCount:    docIntPtr(doc, "ratingCount"),
	}
	if n, ok := docInt(doc, "discountRate"); ok {
		s.DiscountRate = n
	}
	ts, ok := docTime(doc, "timestamp")
	if !ok {
		return nil, fmt.Errorf("snapshot document missing timestamp")
	}
	s.Timestamp = ts
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// DailyAggregate is the per-item daily rollup of raw snapshots.
// LowestPrices carries only currencies that had at least one positive
// observation that day.
type DailyAggregate struct {
	ItemID            string
	Date              string
	LowestPrices      map[string]float64
	MaxDiscountRate   int
	ActiveCampaignIDs []int
	MaxSalesCount     *int
	MaxWishlistCount  *int
	BestRankDay       *int
	BestRankWeek      *int
	BestRankMonth     *int
	MaxRatingAverage  *float64
	MaxRatingCount    *int
	DataPointCount    int
	FirstCaptureTime  string
	LastCaptureTime   string
	UpdatedAt         time.Time
}

// DocID returns the deterministic document id for the (item, date)
// pair, making the rollup idempotent.
func (a *DailyAggregate) DocID() string {
	return fmt.Sprintf("%s_%s", a.ItemID, a.Date)
}

// Doc renders the aggregate as a store document.
func (a *DailyAggregate) Doc() map[string]any {
	doc := map[string]any{
		"itemId":          a.ItemID,
		"date":            a.Date,
		"maxDiscountRate": a.MaxDiscountRate,
		"dataPointCount":  a.DataPointCount,
		"updatedAt":       a.UpdatedAt,
	}
	if len(a.LowestPrices) > 0 {
		prices := make(map[string]float64, len(a.LowestPrices))
		for c, p := range a.LowestPrices {
			prices[c] = p
		}
		doc["lowestPrices"] = prices
	}
	if len(a.ActiveCampaignIDs) > 0 {
		doc["activeCampaignIds"] = append([]int(nil), a.ActiveCampaignIDs...)
	}
	putInt(doc, "maxSalesCount", a.MaxSalesCount)
	putInt(doc, "maxWishlistCount", a.MaxWishlistCount)
	putInt(doc, "bestRankDay", a.BestRankDay)
	putInt(doc, "bestRankWeek", a.BestRankWeek)
	putInt(doc, "bestRankMonth", a.BestRankMonth)
	if a.MaxRatingAverage != nil {
		doc["maxRatingAverage"] = *a.MaxRatingAverage
	}
	putInt(doc, "maxRatingCount", a.MaxRatingCount)
	if a.FirstCaptureTime != "" {
		doc["firstCaptureTime"] = a.FirstCaptureTime
	}
	if a.LastCaptureTime != "" {
		doc["lastCaptureTime"] = a.LastCaptureTime
	}
	return doc
}

func putInt(doc map[string]any, key string, v *int) {
	if v != nil {
		doc[key] = *v
	}
}
