// Package token issues and validates the short-lived credentials that bind a
// websocket connection to a user authenticated elsewhere.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultTTL is the lifetime of an issued token.
	DefaultTTL = 24 * time.Hour

	tokenBytes = 32
)

// ErrStorage marks a failure of the backing store. It is never returned for a
// token that merely fails validation.
var ErrStorage = errors.New("token storage failure")

var ErrInvalidUser = errors.New("user id must be positive")

// Record is the persisted form of a token, keyed by the token value.
type Record struct {
	UserID    int64 `json:"user_id"`
	CreatedAt int64 `json:"created_at"`
	ExpiresAt int64 `json:"expires_at"`
}

// Expired reports whether the record is past its expiry. The expiry second itself is still valid.
func (r Record) Expired(now time.Time) bool {
	return now.Unix() > r.ExpiresAt
}

// Store is the token store contract. Validation failures are reported as false,
// storage failures as errors wrapping ErrStorage.
type Store interface {
	Issue(ctx context.Context, userID int64) (string, error)
	Validate(ctx context.Context, token string, userID int64) (bool, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, userID int64) error
	LookupOwner(ctx context.Context, token string) (int64, bool, error)
	SweepExpired(ctx context.Context) (int, error)
}

type options struct {
	ttl time.Duration
	now func() time.Time
}

type Option func(*options)

func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func newOptions(opts []Option) options {
	o := options{ttl: DefaultTTL, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) record(userID int64) Record {
	now := o.now()
	return Record{
		UserID:    userID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(o.ttl).Unix(),
	}
}

// Generate returns a hex encoded 256-bit random token.
func Generate() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("token %s: %w: %w", op, ErrStorage, err)
}
