package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type LinkStatus string

const (
	StatusActive    LinkStatus = "active"
	StatusExpired   LinkStatus = "expired"
	StatusExhausted LinkStatus = "exhausted"
	StatusDisabled  LinkStatus = "disabled"
)

type Link struct {
	ID           int64      `json:"id"`
	Code         string     `json:"code"`
	ShortURL     string     `json:"short_url"`
	Destination  string     `json:"destination"`
	PasswordHash string     `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	MaxClicks    int64      `json:"max_clicks"`
	IsOneTime    bool       `json:"is_one_time"`
	ClickCount   int64      `json:"click_count"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (l *Link) FillShortURL(base string) {
	l.ShortURL = strings.TrimSuffix(base, "/") + "/" + l.Code
}

func (l *Link) HasPassword() bool {
	return l.PasswordHash != ""
}

// Status derives the link state at the given instant. It is a read-side
// convenience only; redirect decisions go through TryConsumeClick.
func (l *Link) Status(now time.Time) LinkStatus {
	switch {
	case !l.IsActive:
		return StatusDisabled
	case l.ExpiresAt != nil && !now.Before(*l.ExpiresAt):
		return StatusExpired
	case l.MaxClicks > 0 && l.ClickCount >= l.MaxClicks:
		return StatusExhausted
	default:
		return StatusActive
	}
}

type DenyReason string

const (
	DenyExpired   DenyReason = "expired"
	DenyExhausted DenyReason = "exhausted"
	DenyDisabled  DenyReason = "disabled"
	DenyNotFound  DenyReason = "not_found"
)

// ConsumeResult is the outcome of one TryConsumeClick call.
type ConsumeResult struct {
	Allowed  bool
	NewCount int64
	Reason   DenyReason
}

// CreateLinkIfAbsent inserts the link as a single atomic create-if-absent.
// A code held by any existing record, soft-deleted included, fails with
// ErrAliasTaken; there is never a separate exists check for racers to slip
// between.
func CreateLinkIfAbsent(ctx context.Context, db *sql.DB, l *Link) error {
	var expires any
	if l.ExpiresAt != nil {
		expires = l.ExpiresAt.UTC()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO links (code, destination, password_hash, expires_at, max_clicks, is_one_time) VALUES (?, ?, ?, ?, ?, ?)`,
		l.Code, l.Destination, l.PasswordHash, expires, l.MaxClicks, boolToInt(l.IsOneTime),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAliasTaken
		}
		return wrapStoreErr("insert link", err)
	}
	id, _ := res.LastInsertId()
	l.ID = id

	// Re-read to get timestamps
	fresh, err := GetLinkByCode(ctx, db, l.Code)
	if err != nil {
		return err
	}
	*l = *fresh
	return nil
}

func GetLinkByCode(ctx context.Context, db *sql.DB, code string) (*Link, error) {
	l := &Link{}
	row := db.QueryRowContext(ctx,
		`SELECT id, code, destination, password_hash, expires_at, max_clicks, is_one_time, click_count, is_active, created_at, updated_at
		 FROM links WHERE code = ? AND deleted_at IS NULL`, code)
	if err := scanLink(row, l); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapStoreErr("get link", err)
	}
	return l, nil
}

// TryConsumeClick is the single atomic gate on the redirect path. The
// conditional UPDATE evaluates expiry, the click cap and the active flag and
// increments click_count only when the link is currently redirectable, all in
// one statement, so concurrent callers can never push click_count past
// max_clicks. A zero-row update is classified with a follow-up read.
func TryConsumeClick(ctx context.Context, db *sql.DB, code string, now time.Time) (ConsumeResult, error) {
	row := db.QueryRowContext(ctx,
		`UPDATE links SET click_count = click_count + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE code = ? AND deleted_at IS NULL AND is_active = 1
		   AND (expires_at IS NULL OR expires_at > ?)
		   AND (max_clicks = 0 OR click_count < max_clicks)
		 RETURNING click_count`, code, now.UTC())

	var n int64
	err := row.Scan(&n)
	if err == nil {
		return ConsumeResult{Allowed: true, NewCount: n}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ConsumeResult{}, wrapStoreErr("consume click", err)
	}

	// Not redirectable right now; figure out why.
	l, err := GetLinkByCode(ctx, db, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ConsumeResult{Reason: DenyNotFound}, nil
		}
		return ConsumeResult{}, err
	}
	switch l.Status(now) {
	case StatusDisabled:
		return ConsumeResult{Reason: DenyDisabled}, nil
	case StatusExpired:
		return ConsumeResult{Reason: DenyExpired}, nil
	default:
		// The update can only have missed an ACTIVE link if another request
		// consumed the last click between the two statements.
		return ConsumeResult{Reason: DenyExhausted}, nil
	}
}

func ListLinks(ctx context.Context, db *sql.DB, limit, offset int, search string) ([]Link, int, error) {
	var args []any
	where := "deleted_at IS NULL"
	if search != "" {
		where += " AND (code LIKE ? OR destination LIKE ?)"
		s := "%" + search + "%"
		args = append(args, s, s)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM links WHERE " + where
	if err := db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, wrapStoreErr("count links", err)
	}

	query := `SELECT id, code, destination, password_hash, expires_at, max_clicks, is_one_time, click_count, is_active, created_at, updated_at
		FROM links WHERE ` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, wrapStoreErr("list links", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		if err := scanLinkRow(rows, &l); err != nil {
			return nil, 0, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, total, rows.Err()
}

// UpdateLink persists owner edits: destination, password, expiry, cap and the
// active flag. code and click_count are immutable here.
func UpdateLink(ctx context.Context, db *sql.DB, l *Link) error {
	var expires any
	if l.ExpiresAt != nil {
		expires = l.ExpiresAt.UTC()
	}
	res, err := db.ExecContext(ctx,
		`UPDATE links SET destination = ?, password_hash = ?, expires_at = ?, max_clicks = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE code = ? AND deleted_at IS NULL`,
		l.Destination, l.PasswordHash, expires, l.MaxClicks, boolToInt(l.IsActive), l.Code,
	)
	if err != nil {
		return wrapStoreErr("update link", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	fresh, err := GetLinkByCode(ctx, db, l.Code)
	if err != nil {
		return err
	}
	*l = *fresh
	return nil
}

// SoftDeleteLink tombstones the record. The code stays reserved and resolves
// as NotFound from then on.
func SoftDeleteLink(ctx context.Context, db *sql.DB, code string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE links SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE code = ? AND deleted_at IS NULL`,
		code,
	)
	if err != nil {
		return wrapStoreErr("soft delete link", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanLink(row *sql.Row, l *Link) error {
	var active, oneTime int
	var expires sql.NullTime
	if err := row.Scan(&l.ID, &l.Code, &l.Destination, &l.PasswordHash, &expires, &l.MaxClicks, &oneTime, &l.ClickCount, &active, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return err
	}
	l.IsActive = active == 1
	l.IsOneTime = oneTime == 1
	if expires.Valid {
		t := expires.Time
		l.ExpiresAt = &t
	}
	return nil
}

func scanLinkRow(rows *sql.Rows, l *Link) error {
	var active, oneTime int
	var expires sql.NullTime
	if err := rows.Scan(&l.ID, &l.Code, &l.Destination, &l.PasswordHash, &expires, &l.MaxClicks, &oneTime, &l.ClickCount, &active, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return err
	}
	l.IsActive = active == 1
	l.IsOneTime = oneTime == 1
	if expires.Valid {
		t := expires.Time
		l.ExpiresAt = &t
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func wrapStoreErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
