package analytics

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/pebly/pebly/internal/db"
	"github.com/pebly/pebly/internal/geo"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func clickCount(t *testing.T, database *sql.DB) int {
	t.Helper()
	var n int
	if err := database.QueryRow("SELECT COUNT(*) FROM clicks").Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func rollupCount(t *testing.T, database *sql.DB) int {
	t.Helper()
	var n int
	if err := database.QueryRow("SELECT COUNT(*) FROM rollups").Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestCollector_FlushOnShutdown(t *testing.T) {
	database := testDB(t)
	geoReader, _ := geo.Open("")
	c := NewCollector(database, geoReader, nil, 1000, time.Hour)

	for i := range 5 {
		c.Push(ClickIntent{Code: "abc1234", Time: time.Now(), IP: fmt.Sprintf("203.0.113.%d", i)})
	}
	c.Shutdown()

	if n := clickCount(t, database); n != 5 {
		t.Fatalf("count = %d, want 5", n)
	}
}

func TestCollector_PushNonBlockingWhenFull(t *testing.T) {
	database := testDB(t)
	geoReader, _ := geo.Open("")
	c := NewCollector(database, geoReader, nil, 1, time.Hour)

	// Push 5 events — only 1 should fit, rest silently dropped, must not block
	for i := range 5 {
		c.Push(ClickIntent{Code: "abc1234", Time: time.Now(), IP: fmt.Sprintf("203.0.113.%d", i)})
	}
	c.Shutdown()

	if n := clickCount(t, database); n > 1 {
		t.Fatalf("count = %d, want at most 1", n)
	}
}

func TestCollector_FlushOnTicker(t *testing.T) {
	database := testDB(t)
	geoReader, _ := geo.Open("")
	c := NewCollector(database, geoReader, nil, 1000, 50*time.Millisecond)

	for i := range 3 {
		c.Push(ClickIntent{Code: "abc1234", Time: time.Now(), IP: fmt.Sprintf("203.0.113.%d", i)})
	}

	// Wait for at least one tick to flush
	time.Sleep(200 * time.Millisecond)

	n := clickCount(t, database)
	if n == 0 {
		t.Fatal("expected clicks to be flushed by ticker, got 0")
	}
	c.Shutdown()
}

func TestCollector_RedeliverySameIntentOnce(t *testing.T) {
	database := testDB(t)
	geoReader, _ := geo.Open("")
	c := NewCollector(database, geoReader, nil, 1000, time.Hour)

	intent := ClickIntent{
		Code:      "abc1234",
		Time:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		IP:        "203.0.113.9",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
	c.Push(intent)
	c.Push(intent)
	c.Shutdown()

	if n := clickCount(t, database); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	// The duplicate must not double-count the rollups either.
	var dayCount int
	err := database.QueryRow(
		`SELECT count FROM rollups WHERE code = 'abc1234' AND dimension = 'day' AND bucket = '2026-03-01'`,
	).Scan(&dayCount)
	if err != nil {
		t.Fatal(err)
	}
	if dayCount != 1 {
		t.Fatalf("day rollup = %d, want 1", dayCount)
	}
}

func TestCollector_BotsStayOutOfRollups(t *testing.T) {
	database := testDB(t)
	geoReader, _ := geo.Open("")
	c := NewCollector(database, geoReader, nil, 1000, time.Hour)

	c.Push(ClickIntent{
		Code:      "abc1234",
		Time:      time.Now(),
		IP:        "203.0.113.1",
		UserAgent: "curl/8.4.0",
	})
	c.Shutdown()

	var isBot bool
	if err := database.QueryRow("SELECT is_bot FROM clicks LIMIT 1").Scan(&isBot); err != nil {
		t.Fatal(err)
	}
	if !isBot {
		t.Error("expected curl click to be flagged as bot")
	}
	if n := rollupCount(t, database); n != 0 {
		t.Fatalf("rollups = %d, want 0 for bot-only traffic", n)
	}
}

func TestCollector_EnrichesUserAgent(t *testing.T) {
	database := testDB(t)
	geoReader, _ := geo.Open("")
	c := NewCollector(database, geoReader, nil, 1000, time.Hour)

	c.Push(ClickIntent{
		Code:      "abc1234",
		Time:      time.Now(),
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	})
	c.Shutdown()

	var browser, deviceType string
	err := database.QueryRow("SELECT browser, device_type FROM clicks LIMIT 1").Scan(&browser, &deviceType)
	if err != nil {
		t.Fatal(err)
	}
	if browser != "Chrome" {
		t.Errorf("browser = %q, want %q", browser, "Chrome")
	}
	if deviceType != "desktop" {
		t.Errorf("device_type = %q, want %q", deviceType, "desktop")
	}
}

func TestCollector_EnrichesRefererDomain(t *testing.T) {
	database := testDB(t)
	geoReader, _ := geo.Open("")
	c := NewCollector(database, geoReader, nil, 1000, time.Hour)

	c.Push(ClickIntent{
		Code:    "abc1234",
		Time:    time.Now(),
		Referer: "https://news.ycombinator.com/item?id=1",
	})
	c.Shutdown()

	var refererDomain string
	err := database.QueryRow("SELECT referer_domain FROM clicks LIMIT 1").Scan(&refererDomain)
	if err != nil {
		t.Fatal(err)
	}
	if refererDomain != "news.ycombinator.com" {
		t.Errorf("referer_domain = %q, want %q", refererDomain, "news.ycombinator.com")
	}
}

func TestCollector_SessionFallback(t *testing.T) {
	database := testDB(t)
	geoReader, _ := geo.Open("")
	c := NewCollector(database, geoReader, nil, 1000, time.Hour)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.Push(ClickIntent{Code: "abc1234", Time: at, IP: "203.0.113.1", UserAgent: "Mozilla/5.0"})
	c.Push(ClickIntent{Code: "abc1234", Time: at.Add(time.Minute), IP: "203.0.113.1", UserAgent: "Mozilla/5.0"})
	c.Push(ClickIntent{Code: "abc1234", Time: at.Add(2 * time.Minute), IP: "203.0.113.2", UserAgent: "Mozilla/5.0"})
	c.Shutdown()

	var sessions int
	err := database.QueryRow("SELECT COUNT(DISTINCT session_id) FROM clicks").Scan(&sessions)
	if err != nil {
		t.Fatal(err)
	}
	// Same IP+UA on the same day collapses to one visitor.
	if sessions != 2 {
		t.Fatalf("distinct sessions = %d, want 2", sessions)
	}
}

func TestEventID_Deterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := ClickIntent{Code: "abc", Time: at, IP: "1.2.3.4", UserAgent: "x"}
	b := ClickIntent{Code: "abc", Time: at, IP: "1.2.3.4", UserAgent: "x"}
	if a.EventID() != b.EventID() {
		t.Error("identical intents must share an event id")
	}
	c := ClickIntent{Code: "abc", Time: at, IP: "1.2.3.5", UserAgent: "x"}
	if a.EventID() == c.EventID() {
		t.Error("different intents must not share an event id")
	}
}
