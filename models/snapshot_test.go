package models

import (
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func TestSnapshotDocID(t *testing.T) {
	s := &RawSnapshot{
		ItemID:    "RJ01234567",
		Timestamp: time.Date(2026, 8, 30, 14, 45, 3, 0, time.UTC),
	}
	if got := s.DocID(); got != "RJ01234567_2026-08-30_14-45-03" {
		t.Fatalf("DocID = %q", got)
	}
}

func TestSnapshotDocRoundTrip(t *testing.T) {
	avg := 4.5
	s := &RawSnapshot{
		ItemID:         "RJ111",
		Timestamp:      time.Date(2026, 8, 30, 1, 2, 3, 0, time.UTC),
		RegionalPrices: RegionalPrices{"JP": 1320, "US": 9.99},
		DiscountRate:   25,
		CampaignID:     intPtr(241),
		RankDay:        intPtr(15),
		RatingAverage:  &avg,
	}

	got, err := SnapshotFromDoc(s.Doc())
	if err != nil {
		t.Fatalf("SnapshotFromDoc: %v", err)
	}
	if got.ItemID != s.ItemID || !got.Timestamp.Equal(s.Timestamp) {
		t.Fatalf("identity fields mismatch: %+v", got)
	}
	if got.RegionalPrices["JP"] != 1320 || got.RegionalPrices["US"] != 9.99 {
		t.Fatalf("prices mismatch: %v", got.RegionalPrices)
	}
	if got.DiscountRate != 25 || got.CampaignID == nil || *got.CampaignID != 241 {
		t.Fatalf("discount/campaign mismatch: %+v", got)
	}
	if got.RankDay == nil || *got.RankDay != 15 {
		t.Fatalf("rank mismatch: %+v", got)
	}
	if got.RatingAverage == nil || *got.RatingAverage != 4.5 {
		t.Fatalf("rating mismatch: %+v", got)
	}
	if got.SalesCount != nil || got.WishlistCount != nil {
		t.Fatalf("absent fields should stay nil: %+v", got)
	}
}

func TestSnapshotValidate(t *testing.T) {
	valid := &RawSnapshot{ItemID: "RJ1", Timestamp: time.Now()}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}

	tests := []struct {
		name string
		snap RawSnapshot
	}{
		{"missing id", RawSnapshot{Timestamp: time.Now()}},
		{"missing timestamp", RawSnapshot{ItemID: "RJ1"}},
		{"discount over 100", RawSnapshot{ItemID: "RJ1", Timestamp: time.Now(), DiscountRate: 101}},
		{"negative discount", RawSnapshot{ItemID: "RJ1", Timestamp: time.Now(), DiscountRate: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.snap.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestAggregateDocOmitsEmpty(t *testing.T) {
	a := &DailyAggregate{
		ItemID:         "RJ1",
		Date:           "2026-08-30",
		DataPointCount: 2,
		UpdatedAt:      time.Now(),
	}
	doc := a.Doc()
	if _, ok := doc["lowestPrices"]; ok {
		t.Fatal("empty lowestPrices should be omitted")
	}
	if _, ok := doc["activeCampaignIds"]; ok {
		t.Fatal("empty campaign list should be omitted")
	}
	if _, ok := doc["bestRankDay"]; ok {
		t.Fatal("nil rank should be omitted")
	}
	if a.DocID() != "RJ1_2026-08-30" {
		t.Fatalf("DocID = %q", a.DocID())
	}
}

func TestCheckpointDocRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	c := &Checkpoint{
		IsInProgress:  true,
		ResumeToken:   "page-4",
		LastError:     "quota exceeded",
		LastFetchedAt: now,
	}
	got := CheckpointFromDoc(c.Doc())
	if !got.IsInProgress || got.ResumeToken != "page-4" || got.LastError != "quota exceeded" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.LastFetchedAt.Equal(now) {
		t.Fatalf("lastFetchedAt = %v", got.LastFetchedAt)
	}
	if !got.LastSuccessfulCompleteFetch.IsZero() {
		t.Fatalf("unset completion time should stay zero")
	}
}

func TestCheckpointFromEmptyDoc(t *testing.T) {
	got := CheckpointFromDoc(map[string]any{})
	if got.IsInProgress || got.ResumeToken != "" || got.LastError != "" {
		t.Fatalf("empty doc should yield zero checkpoint: %+v", got)
	}
}
