package repository

import (
	"context"
	"sync"

	"github.com/fathimasithara01/chat-relay/internal/domain"
)

// Memory keeps messages in process. Ids start at 1 and increase with every insert.
type Memory struct {
	mu     sync.RWMutex
	msgs   []domain.Message
	nextID int64
}

func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

func (m *Memory) Insert(_ context.Context, user, msg string, ts int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.msgs = append(m.msgs, domain.Message{ID: id, User: user, Msg: msg, Time: ts})
	return id, nil
}

func (m *Memory) Paginate(_ context.Context, page, perPage int) (domain.Page, error) {
	page, perPage = domain.NormalizePage(page, perPage)

	m.mu.RLock()
	defer m.mu.RUnlock()

	total := int64(len(m.msgs))
	out := make([]domain.Message, 0, perPage)
	if skip := domain.Offset(page, perPage); skip < total {
		// msgs is in insertion order; walk it backwards for newest first
		for i := total - 1 - skip; i >= 0 && len(out) < perPage; i-- {
			out = append(out, m.msgs[i])
		}
	}
	return domain.Page{
		Messages:   out,
		Pagination: domain.NewPagination(page, perPage, total),
	}, nil
}

// Len is the number of stored messages.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.msgs)
}
