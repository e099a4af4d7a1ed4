package events

import (
	"context"
	"errors"

	"github.com/fathimasithara01/chat-relay/internal/domain"
)

// Multi fans one event out to several publishers. Every publisher is tried;
// the errors are joined.
type Multi []Publisher

// Combine returns the cheapest Publisher covering ps.
func Combine(ps ...Publisher) Publisher {
	switch len(ps) {
	case 0:
		return Nop{}
	case 1:
		return ps[0]
	default:
		return Multi(ps)
	}
}

func (m Multi) PublishMessageSent(ctx context.Context, msg domain.Message) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishMessageSent(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
