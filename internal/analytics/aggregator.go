package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pebly/pebly/internal/models"
)

// Aggregator maintains query-friendly rollup buckets over the click events.
// Buckets are a derived cache: Rebuild recomputes them from the raw events at
// any time, and ranged queries bypass them entirely.
type Aggregator struct {
	db *sql.DB
}

func NewAggregator(db *sql.DB) *Aggregator {
	return &Aggregator{db: db}
}

// ApplyTx folds freshly inserted click events into the rollups, inside the
// same transaction as the event insert so the two can never diverge. Bot
// events are skipped; they stay visible in raw totals only.
func (a *Aggregator) ApplyTx(ctx context.Context, tx *sql.Tx, clicks []models.Click) error {
	for _, c := range clicks {
		if c.IsBot {
			continue
		}
		day := c.ClickedAt.UTC().Format("2006-01-02")
		if err := models.UpsertRollupTx(ctx, tx, c.Code, models.DimDay, day, 1); err != nil {
			return err
		}
		if c.Country != "" {
			if err := models.UpsertRollupTx(ctx, tx, c.Code, models.DimCountry, c.Country, 1); err != nil {
				return err
			}
		}
		if c.DeviceType != "" {
			if err := models.UpsertRollupTx(ctx, tx, c.Code, models.DimDevice, c.DeviceType, 1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Aggregates answers "clicks by dimension for this code". The zero since
// value means all time and is served from the precomputed buckets; a bounded
// range is computed from the raw events instead, which the (code, clicked_at)
// index keeps cheap.
func (a *Aggregator) Aggregates(ctx context.Context, code, dimension string, since time.Time) ([]models.Bucket, error) {
	if since.IsZero() {
		return models.RollupBuckets(ctx, a.db, code, dimension)
	}
	return models.AggregateFromClicks(ctx, a.db, code, dimension, since)
}

// Totals reports raw, human and unique-visitor counts for a code.
func (a *Aggregator) Totals(ctx context.Context, code string, since time.Time) (models.Totals, error) {
	return models.ClickTotals(ctx, a.db, code, since)
}

// Rebuild discards every rollup bucket and recomputes them from the raw click
// events in one transaction. Readers either see the old buckets or the new
// ones, never a half-built state.
func (a *Aggregator) Rebuild(ctx context.Context) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rollups`); err != nil {
		return fmt.Errorf("clear rollups: %w", err)
	}

	stmts := []string{
		`INSERT INTO rollups (code, dimension, bucket, count)
		 SELECT code, 'day', date(clicked_at), COUNT(*) FROM clicks
		 WHERE is_bot = 0 GROUP BY code, date(clicked_at)`,
		`INSERT INTO rollups (code, dimension, bucket, count)
		 SELECT code, 'country', country, COUNT(*) FROM clicks
		 WHERE is_bot = 0 AND country != '' GROUP BY code, country`,
		`INSERT INTO rollups (code, dimension, bucket, count)
		 SELECT code, 'device', device_type, COUNT(*) FROM clicks
		 WHERE is_bot = 0 AND device_type != '' GROUP BY code, device_type`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("recompute rollups: %w", err)
		}
	}

	return tx.Commit()
}
