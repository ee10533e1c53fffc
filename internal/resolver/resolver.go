// Package resolver implements the redirect decision for a short code: look
// the link up, gate on its password, consume one click atomically, and emit a
// click intent once the redirect is committed.
package resolver

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pebly/pebly/internal/analytics"
	"github.com/pebly/pebly/internal/cache"
	"github.com/pebly/pebly/internal/models"
)

type Outcome string

const (
	OutcomeRedirect          Outcome = "redirect"
	OutcomePasswordRequired  Outcome = "password_required"
	OutcomePasswordIncorrect Outcome = "password_incorrect"
	OutcomeDenied            Outcome = "denied"
	OutcomeNotFound          Outcome = "not_found"
)

// Resolution is the terminal state of one resolve attempt. Reason is set only
// for OutcomeDenied; Destination and NewCount only for OutcomeRedirect.
type Resolution struct {
	Outcome     Outcome
	Destination string
	Reason      models.DenyReason
	NewCount    int64
}

// Request carries one inbound resolve attempt. The password and click
// metadata come straight off the HTTP request; Resolve never reads the
// network itself.
type Request struct {
	Code      string
	Password  string
	IP        string
	UserAgent string
	Referer   string
	SessionID string
}

type Resolver struct {
	DB        *sql.DB
	Cache     *cache.LinkCache
	Collector *analytics.Collector

	// Timeout bounds each store call so a slow datastore cannot stall the
	// redirect path. On expiry Resolve fails closed with models.ErrUnavailable.
	Timeout time.Duration

	// Now is overridable for expiry-boundary tests.
	Now func() time.Time
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout > 0 {
		return context.WithTimeout(ctx, r.Timeout)
	}
	return context.WithCancel(ctx)
}

// Resolve runs the per-request state machine. It is safe to re-enter with the
// same code: no click is counted until the atomic consume succeeds, so a
// client retry can never double-spend a one-time link, and the password gate
// is re-enterable by design.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	link, found := r.Cache.Get(req.Code)
	if !found {
		var err error
		link, err = models.GetLinkByCode(ctx, r.DB, req.Code)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return Resolution{Outcome: OutcomeNotFound}, nil
			}
			return Resolution{}, err
		}
		r.Cache.Set(req.Code, link)
	}

	if link.HasPassword() {
		if req.Password == "" {
			return Resolution{Outcome: OutcomePasswordRequired}, nil
		}
		if bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(req.Password)) != nil {
			return Resolution{Outcome: OutcomePasswordIncorrect}, nil
		}
	}

	now := r.now()
	result, err := models.TryConsumeClick(ctx, r.DB, req.Code, now)
	if err != nil {
		return Resolution{}, err
	}
	if !result.Allowed {
		if result.Reason == models.DenyNotFound {
			// Deleted since it was cached.
			r.Cache.Invalidate(req.Code)
			return Resolution{Outcome: OutcomeNotFound}, nil
		}
		return Resolution{Outcome: OutcomeDenied, Reason: result.Reason}, nil
	}

	// The click is already durably counted; analytics capture is best-effort
	// and never blocks the response.
	if r.Collector != nil {
		r.Collector.Push(analytics.ClickIntent{
			Code:      req.Code,
			Time:      now.UTC(),
			IP:        req.IP,
			UserAgent: req.UserAgent,
			Referer:   req.Referer,
			SessionID: req.SessionID,
		})
	}

	return Resolution{
		Outcome:     OutcomeRedirect,
		Destination: link.Destination,
		NewCount:    result.NewCount,
	}, nil
}
