package domain

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		name                  string
		page, perPage         int
		wantPage, wantPerPage int
	}{
		{"defaults", 0, 0, 1, DefaultPerPage},
		{"negative", -3, -1, 1, DefaultPerPage},
		{"passthrough", 2, 25, 2, 25},
		{"capped", 1, 1000, 1, MaxPerPage},
		{"huge page", math.MaxInt64, 2, MaxPage, 2},
		{"min int", math.MinInt64, math.MinInt64, 1, DefaultPerPage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, n := NormalizePage(tc.page, tc.perPage)
			assert.Equal(t, tc.wantPage, p)
			assert.Equal(t, tc.wantPerPage, n)
		})
	}
}

func TestNewPagination(t *testing.T) {
	empty := NewPagination(1, 10, 0)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNext)
	assert.False(t, empty.HasPrev)

	first := NewPagination(1, 10, 25)
	assert.Equal(t, 3, first.TotalPages)
	assert.True(t, first.HasNext)
	assert.False(t, first.HasPrev)

	middle := NewPagination(2, 10, 25)
	assert.True(t, middle.HasNext)
	assert.True(t, middle.HasPrev)

	last := NewPagination(3, 10, 25)
	assert.False(t, last.HasNext)
	assert.True(t, last.HasPrev)

	assert.Equal(t, int64(20), Offset(3, 10))
}

func TestOffsetNeverNegative(t *testing.T) {
	assert.Equal(t, int64(MaxPage-1)*2, Offset(math.MaxInt64, 2))
	assert.Equal(t, int64(MaxPage-1)*MaxPerPage, Offset(math.MaxInt64, math.MaxInt64))
	assert.Equal(t, int64(0), Offset(math.MinInt64, 2))
	assert.Equal(t, int64(0), Offset(1, math.MinInt64))
}

func TestValidateMessage(t *testing.T) {
	assert.NoError(t, ValidateMessage("alice", "hi"))
	assert.NoError(t, ValidateMessage("alice", strings.Repeat("é", MaxMessageLength)))

	err := ValidateMessage("  ", "hi")
	assert.True(t, errors.Is(err, ErrInvalidUsername))

	err = ValidateMessage(strings.Repeat("u", MaxUsernameLength+1), "hi")
	assert.True(t, errors.Is(err, ErrInvalidUsername))

	err = ValidateMessage("alice", "")
	assert.True(t, errors.Is(err, ErrInvalidMessage))

	err = ValidateMessage("alice", strings.Repeat("x", MaxMessageLength+1))
	assert.True(t, errors.Is(err, ErrInvalidMessage))
}
