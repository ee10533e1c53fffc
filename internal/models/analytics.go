package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Rollup dimensions. Bucket keys are the country ISO code, the device type,
// or the UTC day (YYYY-MM-DD).
const (
	DimCountry = "country"
	DimDevice  = "device"
	DimDay     = "day"
)

type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type Totals struct {
	RawClicks      int64 `json:"raw_clicks"`
	HumanClicks    int64 `json:"human_clicks"`
	UniqueVisitors int64 `json:"unique_visitors"`
}

func dimensionColumn(dimension string) (string, error) {
	switch dimension {
	case DimCountry:
		return "country", nil
	case DimDevice:
		return "device_type", nil
	case DimDay:
		return "date(clicked_at)", nil
	default:
		return "", fmt.Errorf("unknown dimension %q", dimension)
	}
}

// UpsertRollupTx adds delta to one rollup bucket inside the given transaction.
func UpsertRollupTx(ctx context.Context, tx *sql.Tx, code, dimension, bucket string, delta int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO rollups (code, dimension, bucket, count) VALUES (?, ?, ?, ?)
		 ON CONFLICT(code, dimension, bucket) DO UPDATE SET count = count + excluded.count`,
		code, dimension, bucket, delta,
	)
	if err != nil {
		return fmt.Errorf("upsert rollup: %w", err)
	}
	return nil
}

// RollupBuckets reads the precomputed all-time buckets for one dimension.
func RollupBuckets(ctx context.Context, db *sql.DB, code, dimension string) ([]Bucket, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT bucket, count FROM rollups WHERE code = ? AND dimension = ? ORDER BY count DESC, bucket`,
		code, dimension,
	)
	if err != nil {
		return nil, wrapStoreErr("rollup buckets", err)
	}
	defer rows.Close()
	return collectBuckets(rows)
}

// AggregateFromClicks computes the same buckets straight from the raw click
// events, bot events excluded. It backs ranged queries and the rollup rebuild;
// rollups are only ever a cache of this.
func AggregateFromClicks(ctx context.Context, db *sql.DB, code, dimension string, since time.Time) ([]Bucket, error) {
	col, err := dimensionColumn(dimension)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`SELECT %s, COUNT(*) FROM clicks WHERE code = ? AND is_bot = 0 AND %s != '' AND clicked_at >= ? GROUP BY %s ORDER BY COUNT(*) DESC, %s`,
		col, col, col, col,
	)
	rows, err := db.QueryContext(ctx, query, code, since.UTC())
	if err != nil {
		return nil, wrapStoreErr("aggregate clicks", err)
	}
	defer rows.Close()
	return collectBuckets(rows)
}

// ClickTotals reports raw clicks (bots included), human clicks and unique
// visitors (distinct sessions, bots excluded) since the given instant.
func ClickTotals(ctx context.Context, db *sql.DB, code string, since time.Time) (Totals, error) {
	var t Totals
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN is_bot = 0 THEN 1 ELSE 0 END), 0),
		        COUNT(DISTINCT CASE WHEN is_bot = 0 AND session_id != '' THEN session_id END)
		 FROM clicks WHERE code = ? AND clicked_at >= ?`,
		code, since.UTC(),
	).Scan(&t.RawClicks, &t.HumanClicks, &t.UniqueVisitors)
	if err != nil {
		return Totals{}, wrapStoreErr("click totals", err)
	}
	return t, nil
}

// ClearRollups drops every precomputed bucket, either for one code or for all
// codes when code is empty.
func ClearRollups(ctx context.Context, db *sql.DB, code string) error {
	var err error
	if code == "" {
		_, err = db.ExecContext(ctx, `DELETE FROM rollups`)
	} else {
		_, err = db.ExecContext(ctx, `DELETE FROM rollups WHERE code = ?`, code)
	}
	if err != nil {
		return wrapStoreErr("clear rollups", err)
	}
	return nil
}

// CodesWithClicks lists every code that has at least one click event.
func CodesWithClicks(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT code FROM clicks`)
	if err != nil {
		return nil, wrapStoreErr("codes with clicks", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func collectBuckets(rows *sql.Rows) ([]Bucket, error) {
	var buckets []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
