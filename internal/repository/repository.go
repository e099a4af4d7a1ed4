// Package repository stores chat messages and serves them back in pages.
package repository

import (
	"context"

	"github.com/fathimasithara01/chat-relay/internal/domain"
)

// Repository is the message store used by the relay and the HTTP handlers.
// Paginate normalizes page and perPage itself and returns newest messages first.
type Repository interface {
	Insert(ctx context.Context, user, msg string, ts int64) (int64, error)
	Paginate(ctx context.Context, page, perPage int) (domain.Page, error)
}
