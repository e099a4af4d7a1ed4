package domain

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
	// MaxPage keeps Offset within int64 for every accepted perPage.
	MaxPage = math.MaxInt32

	MaxMessageLength  = 500
	MaxUsernameLength = 255
)

// Message is a persisted chat line. Time is seconds since epoch, assigned by the server.
type Message struct {
	ID   int64  `json:"id" bson:"_id"`
	User string `json:"user" bson:"user"`
	Msg  string `json:"msg" bson:"msg"`
	Time int64  `json:"time" bson:"time"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// Page is one slice of the message history, newest first.
type Page struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// NormalizePage clamps caller supplied paging parameters into the accepted range.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

func NewPagination(page, perPage int, total int64) Pagination {
	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Offset returns how many newest messages precede the given page. The
// arguments are normalized first, so the result is never negative.
func Offset(page, perPage int) int64 {
	page, perPage = NormalizePage(page, perPage)
	return int64(page-1) * int64(perPage)
}

// ValidateMessage applies the posting rules shared by every ingress path.
func ValidateMessage(username, body string) error {
	u := strings.TrimSpace(username)
	if u == "" || utf8.RuneCountInString(u) > MaxUsernameLength {
		return fmt.Errorf("%w: username must be 1-%d characters", ErrInvalidUsername, MaxUsernameLength)
	}
	m := strings.TrimSpace(body)
	if m == "" || utf8.RuneCountInString(m) > MaxMessageLength {
		return fmt.Errorf("%w: message must be 1-%d characters", ErrInvalidMessage, MaxMessageLength)
	}
	return nil
}
