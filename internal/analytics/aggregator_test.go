package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/pebly/pebly/internal/models"
)

func seedClicks(t *testing.T, database *sql.DB, clicks []models.Click) {
	t.Helper()
	ctx := context.Background()
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if _, err := models.InsertClicksTx(ctx, tx, clicks); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func bucketMap(t *testing.T, agg *Aggregator, code, dimension string) map[string]int64 {
	t.Helper()
	buckets, err := agg.Aggregates(context.Background(), code, dimension, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		out[b.Key] = b.Count
	}
	return out
}

func TestRebuild_MatchesIncremental(t *testing.T) {
	database := testDB(t)
	agg := NewAggregator(database)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var clicks []models.Click
	for i := range 10 {
		clicks = append(clicks, models.Click{
			EventID:    fmt.Sprintf("ev-%03d", i),
			Code:       "abc1234",
			ClickedAt:  at.Add(time.Duration(i) * 13 * time.Hour),
			Country:    []string{"DE", "US", "US"}[i%3],
			DeviceType: []string{"desktop", "mobile"}[i%2],
			SessionID:  fmt.Sprintf("s-%d", i%4),
			IsBot:      i == 9,
		})
	}

	// Maintain rollups incrementally, the way a flush does.
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	inserted, err := models.InsertClicksTx(ctx, tx, clicks)
	if err != nil {
		t.Fatal(err)
	}
	if err := agg.ApplyTx(ctx, tx, inserted); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	incremental := map[string]map[string]int64{}
	for _, dim := range []string{models.DimDay, models.DimCountry, models.DimDevice} {
		incremental[dim] = bucketMap(t, agg, "abc1234", dim)
	}

	if err := agg.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}

	for _, dim := range []string{models.DimDay, models.DimCountry, models.DimDevice} {
		rebuilt := bucketMap(t, agg, "abc1234", dim)
		if len(rebuilt) != len(incremental[dim]) {
			t.Fatalf("%s: rebuilt %d buckets, incremental had %d", dim, len(rebuilt), len(incremental[dim]))
		}
		for bucket, count := range incremental[dim] {
			if rebuilt[bucket] != count {
				t.Errorf("%s[%s] = %d after rebuild, want %d", dim, bucket, rebuilt[bucket], count)
			}
		}
	}

	// Nine human clicks total; the bot click must not appear anywhere.
	var total int64
	for _, count := range bucketMap(t, agg, "abc1234", models.DimCountry) {
		total += count
	}
	if total != 9 {
		t.Fatalf("country bucket sum = %d, want 9", total)
	}
}

func TestAggregates_RangedBypassesRollups(t *testing.T) {
	database := testDB(t)
	agg := NewAggregator(database)
	now := time.Now().UTC()

	seedClicks(t, database, []models.Click{
		{EventID: "old-1", Code: "abc1234", ClickedAt: now.AddDate(0, 0, -10), Country: "US", DeviceType: "desktop", SessionID: "a"},
		{EventID: "new-1", Code: "abc1234", ClickedAt: now.Add(-time.Hour), Country: "US", DeviceType: "desktop", SessionID: "b"},
	})

	// Rollups deliberately left empty: a bounded range must not consult them.
	buckets, err := agg.Aggregates(context.Background(), "abc1234", models.DimCountry, now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]int64{}
	for _, b := range buckets {
		got[b.Key] = b.Count
	}
	if got["US"] != 1 {
		t.Fatalf("US in last 7 days = %d, want 1", got["US"])
	}
}

func TestTotals_CountsHumansAndVisitors(t *testing.T) {
	database := testDB(t)
	agg := NewAggregator(database)
	now := time.Now().UTC()

	seedClicks(t, database, []models.Click{
		{EventID: "t-1", Code: "abc1234", ClickedAt: now, SessionID: "a"},
		{EventID: "t-2", Code: "abc1234", ClickedAt: now, SessionID: "a"},
		{EventID: "t-3", Code: "abc1234", ClickedAt: now, SessionID: "b", IsBot: true},
	})

	totals, err := agg.Totals(context.Background(), "abc1234", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if totals.RawClicks != 3 {
		t.Errorf("raw = %d, want 3", totals.RawClicks)
	}
	if totals.HumanClicks != 2 {
		t.Errorf("human = %d, want 2", totals.HumanClicks)
	}
	if totals.UniqueVisitors != 1 {
		t.Errorf("unique = %d, want 1", totals.UniqueVisitors)
	}
}
