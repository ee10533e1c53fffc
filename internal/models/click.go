package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Click is the durable, enriched record of a single redirect. Rows are
// append-only; EventID dedupes at-least-once redelivery from the ingestion
// queue.
type Click struct {
	ID             int64
	EventID        string
	Code           string
	ClickedAt      time.Time
	IP             string
	UserAgent      string
	Referer        string
	RefererDomain  string
	Country        string
	City           string
	Region         string
	Browser        string
	BrowserVersion string
	OS             string
	DeviceType     string
	IsBot          bool
	SessionID      string
}

// InsertClicksTx writes a batch of clicks inside the given transaction,
// skipping rows whose event_id is already present. It returns the clicks that
// were actually inserted so rollups count each event exactly once.
func InsertClicksTx(ctx context.Context, tx *sql.Tx, clicks []Click) ([]Click, error) {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO clicks (event_id, code, clicked_at, ip, user_agent, referer, referer_domain, country, city, region, browser, browser_version, os, device_type, is_bot, session_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := make([]Click, 0, len(clicks))
	for _, c := range clicks {
		res, err := stmt.ExecContext(ctx,
			c.EventID, c.Code, c.ClickedAt.UTC(), c.IP, c.UserAgent, c.Referer, c.RefererDomain,
			c.Country, c.City, c.Region,
			c.Browser, c.BrowserVersion, c.OS, c.DeviceType,
			boolToInt(c.IsBot), c.SessionID,
		)
		if err != nil {
			return nil, fmt.Errorf("insert click: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, c)
		}
	}
	return inserted, nil
}
