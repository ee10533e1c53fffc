// Package code generates and validates short codes.
package code

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/pebly/pebly/internal/models"
)

const charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var maxIdx = big.NewInt(int64(len(charset)))

var (
	// ErrInvalidAlias means the custom alias violates charset, length or
	// reserved-word constraints.
	ErrInvalidAlias = errors.New("invalid alias")

	// ErrCodeSpaceExhausted means random generation kept colliding past the
	// retry budget. That signals the code length needs widening, not a
	// transient condition worth looping on.
	ErrCodeSpaceExhausted = errors.New("code space exhausted")
)

var aliasRe = regexp.MustCompile(`^[A-Za-z0-9_-]{3,64}$`)

// Path segments the router owns; none of them may become a short code.
var reserved = map[string]bool{
	"api":     true,
	"admin":   true,
	"health":  true,
	"static":  true,
	"assets":  true,
	"unlock":  true,
	"login":   true,
	"logout":  true,
	"metrics": true,
}

// Generate returns a random Base62 string of the given length.
func Generate(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, maxIdx)
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}
	return string(b), nil
}

// ValidateAlias checks a user-chosen alias against charset, length and
// reserved words.
func ValidateAlias(alias string) error {
	if !aliasRe.MatchString(alias) {
		return fmt.Errorf("%w: must be 3-64 chars of [A-Za-z0-9_-]", ErrInvalidAlias)
	}
	if reserved[alias] {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidAlias, alias)
	}
	return nil
}

// Allocate inserts the link under a guaranteed-unique code. With a custom
// alias the single create-if-absent either wins or fails with
// models.ErrAliasTaken. Without one it draws random codes of the configured
// length, retrying the atomic insert up to maxAttempts times before giving up
// with ErrCodeSpaceExhausted.
func Allocate(ctx context.Context, db *sql.DB, l *models.Link, alias string, length, maxAttempts int) error {
	if alias != "" {
		if err := ValidateAlias(alias); err != nil {
			return err
		}
		l.Code = alias
		return models.CreateLinkIfAbsent(ctx, db, l)
	}

	for range maxAttempts {
		candidate, err := Generate(length)
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		l.Code = candidate
		err = models.CreateLinkIfAbsent(ctx, db, l)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrAliasTaken) {
			return err
		}
	}
	return fmt.Errorf("%w: %d attempts at length %d", ErrCodeSpaceExhausted, maxAttempts, length)
}
