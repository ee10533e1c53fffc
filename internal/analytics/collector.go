package analytics

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mssola/useragent"

	"github.com/pebly/pebly/internal/geo"
	"github.com/pebly/pebly/internal/ipcheck"
	"github.com/pebly/pebly/internal/models"
)

// ClickIntent is the raw signal that a redirect happened, captured on the hot
// path before any enrichment. It only ever lives in the in-process queue.
type ClickIntent struct {
	Code      string
	Time      time.Time
	IP        string
	UserAgent string
	Referer   string
	SessionID string
}

// EventID is derived from the intent content alone, so redelivering the same
// intent produces the same id and the clicks table's unique index absorbs the
// duplicate write.
func (in ClickIntent) EventID() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%s", in.Code, in.Time.UnixNano(), in.IP, in.UserAgent)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Collector is the click ingestion queue plus its enrichment worker: a bounded
// channel drained by one background goroutine that parses, geo-locates and
// bot-classifies intents, then writes click events and rollups in batches.
type Collector struct {
	ch       chan ClickIntent
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	db       *sql.DB
	geo      *geo.Reader
	ips      *ipcheck.Checker
	agg      *Aggregator
}

// NewCollector starts the enrichment worker. checker may be nil, in which case
// bot classification falls back to User-Agent heuristics only.
func NewCollector(db *sql.DB, geoReader *geo.Reader, checker *ipcheck.Checker, bufferSize int, flushInterval time.Duration) *Collector {
	c := &Collector{
		ch:   make(chan ClickIntent, bufferSize),
		stop: make(chan struct{}),
		done: make(chan struct{}),
		db:   db,
		geo:  geoReader,
		ips:  checker,
		agg:  NewAggregator(db),
	}
	go c.run(flushInterval)
	return c
}

// Aggregator exposes the collector's rollup maintainer for read queries.
func (c *Collector) Aggregator() *Aggregator {
	return c.agg
}

// Push enqueues an intent without blocking. When the buffer is saturated the
// intent is dropped: redirect latency outranks analytics completeness, and
// enforcement counting already happened in the link store.
func (c *Collector) Push(intent ClickIntent) {
	select {
	case c.ch <- intent:
	default:
		// buffer full, drop event
	}
}

// Shutdown flushes remaining intents and returns. Safe to call more than
// once.
func (c *Collector) Shutdown() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Collector) run(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var batch []ClickIntent
	for {
		select {
		case intent := <-c.ch:
			batch = append(batch, intent)
		default:
			goto done
		}
	}
done:
	if len(batch) == 0 {
		return
	}

	clicks := make([]models.Click, 0, len(batch))
	for _, intent := range batch {
		clicks = append(clicks, c.Enrich(intent))
	}

	ctx := context.Background()
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("analytics: begin tx: %v", err)
		return
	}
	defer tx.Rollback()

	inserted, err := models.InsertClicksTx(ctx, tx, clicks)
	if err != nil {
		log.Printf("analytics: flush error: %v", err)
		return
	}
	if err := c.agg.ApplyTx(ctx, tx, inserted); err != nil {
		log.Printf("analytics: rollup error: %v", err)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("analytics: commit: %v", err)
		return
	}
	log.Printf("analytics: flushed %d clicks (%d new)", len(clicks), len(inserted))
}

// Enrich turns an intent into a durable click event. Every lookup here is
// best-effort: a failed geo resolution or an unparseable User-Agent leaves
// optional fields empty rather than dropping the event.
func (c *Collector) Enrich(intent ClickIntent) models.Click {
	ua := useragent.New(intent.UserAgent)
	browserName, browserVersion := ua.Browser()

	var refererDomain string
	if intent.Referer != "" {
		if u, err := url.Parse(intent.Referer); err == nil {
			refererDomain = u.Host
		}
	}

	isBot := IsBot(intent.UserAgent)
	if !isBot && c.ips != nil && c.ips.IsBlocked(intent.IP) {
		isBot = true
	}

	geoResult := c.geo.Lookup(intent.IP)

	sessionID := intent.SessionID
	if sessionID == "" {
		sessionID = visitorHash(intent.IP, intent.UserAgent, intent.Time)
	}

	return models.Click{
		EventID:        intent.EventID(),
		Code:           intent.Code,
		ClickedAt:      intent.Time,
		IP:             intent.IP,
		UserAgent:      intent.UserAgent,
		Referer:        intent.Referer,
		RefererDomain:  refererDomain,
		Country:        geoResult.Country,
		City:           geoResult.City,
		Region:         geoResult.Region,
		Browser:        browserName,
		BrowserVersion: browserVersion,
		OS:             ua.OS(),
		DeviceType:     deviceType(ua, intent.UserAgent),
		IsBot:          isBot,
		SessionID:      sessionID,
	}
}

func deviceType(ua *useragent.UserAgent, raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case raw == "":
		return "unknown"
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		return "tablet"
	case ua.Mobile():
		return "mobile"
	default:
		return "desktop"
	}
}

// visitorHash identifies a visitor for unique-count dedup when no session
// cookie came with the request: same IP and User-Agent on the same UTC day
// collapse to one visitor, and the day component keeps the hash from being a
// long-lived tracker.
func visitorHash(ip, ua string, at time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", ip, ua, at.UTC().Format("2006-01-02"))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
