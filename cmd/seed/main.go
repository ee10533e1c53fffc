// Seeds a demo database: a handful of links exercising every access rule,
// plus six weeks of synthetic click history and rebuilt rollups.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pebly/pebly/internal/analytics"
	"github.com/pebly/pebly/internal/db"
	"github.com/pebly/pebly/internal/models"
)

type seedLink struct {
	code     string
	dest     string
	password string
	// days until expiry; 0 = never
	expireDays int
	maxClicks  int64
	oneTime    bool
	// weight controls relative click volume (higher = more clicks)
	weight float64
}

var links = []seedLink{
	{code: "docs", dest: "https://example.com/docs", weight: 5.0},
	{code: "blog", dest: "https://example.com/blog", weight: 4.0},
	{code: "launch", dest: "https://example.com/launch", weight: 4.5},
	{code: "promo", dest: "https://example.com/promo", expireDays: 14, weight: 3.0},
	{code: "beta", dest: "https://example.com/beta-signup", maxClicks: 5000, weight: 2.5},
	{code: "secret", dest: "https://example.com/secret-report", password: "letmein", weight: 1.0},
	{code: "ticket", dest: "https://example.com/claim-ticket", oneTime: true, maxClicks: 1, weight: 0},
	{code: "webinar", dest: "https://example.com/webinar", expireDays: 7, maxClicks: 10000, weight: 2.0},
}

var referrers = []struct {
	domain string
	weight float64
}{
	{"google.com", 30},
	{"", 20}, // direct traffic
	{"github.com", 15},
	{"twitter.com", 8},
	{"reddit.com", 7},
	{"news.ycombinator.com", 5},
	{"linkedin.com", 4},
	{"t.co", 1},
}

var countries = []struct {
	country string
	weight  float64
}{
	{"US", 25},
	{"IN", 20},
	{"DE", 8},
	{"GB", 7},
	{"BR", 6},
	{"FR", 5},
	{"CA", 4},
	{"AU", 3},
	{"JP", 3},
	{"NL", 2},
}

var browsers = []struct {
	name    string
	version string
	weight  float64
}{
	{"Chrome", "120", 45},
	{"Firefox", "121", 15},
	{"Safari", "17", 12},
	{"Edge", "120", 8},
}

var deviceTypes = []struct {
	name   string
	weight float64
}{
	{"desktop", 65},
	{"mobile", 30},
	{"tablet", 5},
}

func main() {
	dbPath := os.Getenv("PEBLY_DB_PATH")
	if dbPath == "" {
		dbPath = "./pebly.db"
	}

	database, err := db.Open(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	rng := rand.New(rand.NewSource(42)) // deterministic seed
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -42)

	fmt.Println("Seeding links...")

	for _, sl := range links {
		link := models.Link{
			Code:        sl.code,
			Destination: sl.dest,
			MaxClicks:   sl.maxClicks,
			IsOneTime:   sl.oneTime,
		}
		if sl.password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(sl.password), bcrypt.DefaultCost)
			if err != nil {
				log.Fatalf("hash password: %v", err)
			}
			link.PasswordHash = string(hash)
		}
		if sl.expireDays > 0 {
			t := now.Add(time.Duration(sl.expireDays) * 24 * time.Hour)
			link.ExpiresAt = &t
		}
		if err := models.CreateLinkIfAbsent(ctx, database, &link); err != nil {
			log.Fatalf("create link %q: %v", sl.code, err)
		}
		fmt.Printf("  /%s → %s\n", sl.code, sl.dest)
	}

	fmt.Println("\nGenerating clicks...")

	pickReferrer := weightedPicker(rng, referrers, func(r struct {
		domain string
		weight float64
	}) (string, float64) {
		return r.domain, r.weight
	})
	pickCountry := weightedPicker(rng, countries, func(c struct {
		country string
		weight  float64
	}) (string, float64) {
		return c.country, c.weight
	})
	pickDevice := weightedPicker(rng, deviceTypes, func(d struct {
		name   string
		weight float64
	}) (string, float64) {
		return d.name, d.weight
	})

	totalClicks := 0
	eventSeq := 0

	for _, sl := range links {
		if sl.weight == 0 {
			continue
		}
		var clicks []models.Click
		for day := start; day.Before(now); day = day.Add(24 * time.Hour) {
			// ±40% daily variance, weekend dip
			perDay := sl.weight * 8 * (0.6 + rng.Float64()*0.8)
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				perDay *= 0.4
			}
			for range int(perDay) {
				b := browsers[rng.Intn(len(browsers))]
				at := day.Add(time.Duration(rng.Intn(24*3600)) * time.Second)
				isBot := rng.Float64() < 0.05
				ref := pickReferrer()
				var referer string
				if ref != "" {
					referer = "https://" + ref + "/"
				}
				eventSeq++
				click := models.Click{
					EventID:        fmt.Sprintf("seed-%08d", eventSeq),
					Code:           sl.code,
					ClickedAt:      at,
					IP:             fmt.Sprintf("203.0.113.%d", rng.Intn(255)),
					Referer:        referer,
					RefererDomain:  ref,
					Country:        pickCountry(),
					Browser:        b.name,
					BrowserVersion: b.version,
					OS:             "Linux",
					DeviceType:     pickDevice(),
					IsBot:          isBot,
					SessionID:      fmt.Sprintf("sess-%05d", rng.Intn(4000)),
				}
				if isBot {
					click.UserAgent = "curl/8.4.0"
				} else {
					click.UserAgent = b.name + "/" + b.version
				}
				clicks = append(clicks, click)
			}
		}

		tx, err := database.BeginTx(ctx, nil)
		if err != nil {
			log.Fatalf("begin tx: %v", err)
		}
		inserted, err := models.InsertClicksTx(ctx, tx, clicks)
		if err != nil {
			log.Fatalf("insert clicks for %q: %v", sl.code, err)
		}
		if err := tx.Commit(); err != nil {
			log.Fatalf("commit clicks for %q: %v", sl.code, err)
		}

		// Keep the enforcement counter consistent with the history.
		if _, err := database.Exec(`UPDATE links SET click_count = ? WHERE code = ?`, len(inserted), sl.code); err != nil {
			log.Fatalf("set click_count for %q: %v", sl.code, err)
		}

		totalClicks += len(inserted)
		fmt.Printf("  /%s: %d clicks\n", sl.code, len(inserted))
	}

	fmt.Println("\nRebuilding rollups...")
	if err := analytics.NewAggregator(database).Rebuild(ctx); err != nil {
		log.Fatalf("rebuild rollups: %v", err)
	}

	fmt.Printf("\nDone: %d links, %d clicks → %s\n", len(links), totalClicks, dbPath)
}

func weightedPicker[T any](rng *rand.Rand, items []T, get func(T) (string, float64)) func() string {
	var total float64
	for _, it := range items {
		_, w := get(it)
		total += w
	}
	return func() string {
		v := rng.Float64() * total
		for _, it := range items {
			s, w := get(it)
			v -= w
			if v <= 0 {
				return s
			}
		}
		s, _ := get(items[len(items)-1])
		return s
	}
}
