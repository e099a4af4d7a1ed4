package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIPRateLimiterHandler(t *testing.T) {
	l := NewIPRateLimiter(1, 2, zap.NewNop())
	app := fiber.New()
	app.Post("/", l.Handler(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestIPRateLimiterPrune(t *testing.T) {
	l := NewIPRateLimiter(60, 1, zap.NewNop())
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))

	now = now.Add(visitorIdle + time.Second)
	assert.True(t, l.allow("10.0.0.2"))

	assert.Equal(t, 1, l.Prune())
	assert.Len(t, l.visitors, 1)
}
