package server

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// retry runs op with exponential backoff until it succeeds, maxElapsed has
// passed or ctx is done. The last error of op is returned.
func retry(ctx context.Context, maxElapsed time.Duration, log *zap.Logger, dependency string, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = maxElapsed

	return backoff.RetryNotify(func() error {
		return op(ctx)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Warn("dependency not ready",
			zap.String("dependency", dependency),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	})
}
