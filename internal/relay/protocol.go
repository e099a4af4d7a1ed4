package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fathimasithara01/chat-relay/internal/domain"
)

const (
	actionGetMessages = "getMessages"
	actionSendMessage = "sendMessage"

	ActionMessages   = "messages"
	ActionNewMessage = "newMessage"
)

var (
	ErrMalformed     = errors.New("malformed frame")
	ErrMissingAction = errors.New("missing action")
	ErrUnknownAction = errors.New("unknown action")
	ErrMissingField  = errors.New("missing field")
)

// Request is a decoded inbound frame, either GetMessages or SendMessage.
type Request interface {
	request()
}

type GetMessages struct {
	Page    int
	PerPage int
}

type SendMessage struct {
	Username string
	Message  string
}

func (GetMessages) request() {}
func (SendMessage) request() {}

type inbound struct {
	Action   *string         `json:"action"`
	Page     json.RawMessage `json:"page"`
	PerPage  json.RawMessage `json:"perPage"`
	Username *string         `json:"username"`
	Message  *string         `json:"message"`
}

// Decode parses one text frame. Anything it rejects is meant to be dropped silently.
func Decode(payload []byte) (Request, error) {
	var in inbound
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if in.Action == nil || *in.Action == "" {
		return nil, ErrMissingAction
	}

	switch *in.Action {
	case actionGetMessages:
		return GetMessages{
			Page:    pageParam(in.Page, 1),
			PerPage: pageParam(in.PerPage, domain.DefaultPerPage),
		}, nil
	case actionSendMessage:
		if in.Username == nil {
			return nil, fmt.Errorf("%w: username", ErrMissingField)
		}
		if in.Message == nil {
			return nil, fmt.Errorf("%w: message", ErrMissingField)
		}
		return SendMessage{Username: *in.Username, Message: *in.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, *in.Action)
	}
}

// pageParam reads a paging field leniently. Numbers and numeric strings are
// truncated to an int and saturated; anything else yields def.
func pageParam(raw json.RawMessage, def int) int {
	if len(raw) == 0 {
		return def
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}

	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return def
		}
		f = n
	default:
		return def
	}

	switch {
	case math.IsNaN(f):
		return def
	case f >= domain.MaxPage:
		return domain.MaxPage
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int(f)
}

// Frame is the outbound envelope.
type Frame struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
}

type NewMessage struct {
	User      string `json:"user"`
	Msg       string `json:"msg"`
	Timestamp int64  `json:"timestamp"`
}

func discardReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrMissingAction):
		return "missing_action"
	case errors.Is(err, ErrUnknownAction):
		return "unknown_action"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, domain.ErrInvalidMessage), errors.Is(err, domain.ErrInvalidUsername):
		return "invalid"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	default:
		return "other"
	}
}
