package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// MemoryStore keeps tokens in a map behind a mutex. When opened with a path,
// every mutation is written to a JSON snapshot before it becomes visible.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	path    string
	opts    options
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		opts:    newOptions(opts),
	}
}

// OpenFileStore loads the snapshot at path, or starts empty if the file does not exist yet.
func OpenFileStore(path string, opts ...Option) (*MemoryStore, error) {
	s := NewMemoryStore(opts...)
	s.path = path

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, storageErr("open", err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.records); err != nil {
		return nil, storageErr("open", fmt.Errorf("decode %s: %w", path, err))
	}
	if s.records == nil {
		s.records = make(map[string]Record)
	}
	return s, nil
}

func (s *MemoryStore) Issue(_ context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", ErrInvalidUser
	}
	tok, err := Generate()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clone()
	for k, r := range next {
		if r.UserID == userID {
			delete(next, k)
		}
	}
	next[tok] = s.opts.record(userID)
	if err := s.commit(next); err != nil {
		return "", storageErr("issue", err)
	}
	return tok, nil
}

func (s *MemoryStore) Validate(_ context.Context, token string, userID int64) (bool, error) {
	if token == "" || userID <= 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[token]
	if !ok || rec.UserID != userID {
		return false, nil
	}
	if rec.Expired(s.opts.now()) {
		next := s.clone()
		delete(next, token)
		if err := s.commit(next); err != nil {
			return false, storageErr("validate", err)
		}
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[token]; !ok {
		return nil
	}
	next := s.clone()
	delete(next, token)
	if err := s.commit(next); err != nil {
		return storageErr("revoke", err)
	}
	return nil
}

func (s *MemoryStore) RevokeAll(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clone()
	for k, r := range next {
		if r.UserID == userID {
			delete(next, k)
		}
	}
	if len(next) == len(s.records) {
		return nil
	}
	if err := s.commit(next); err != nil {
		return storageErr("revoke all", err)
	}
	return nil
}

func (s *MemoryStore) LookupOwner(_ context.Context, token string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[token]
	if !ok {
		return 0, false, nil
	}
	return rec.UserID, true, nil
}

func (s *MemoryStore) SweepExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	next := s.clone()
	for k, r := range next {
		if r.Expired(now) {
			delete(next, k)
		}
	}
	removed := len(s.records) - len(next)
	if removed == 0 {
		return 0, nil
	}
	if err := s.commit(next); err != nil {
		return 0, storageErr("sweep", err)
	}
	return removed, nil
}

// Len returns the number of stored records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) clone() map[string]Record {
	next := make(map[string]Record, len(s.records)+1)
	for k, v := range s.records {
		next[k] = v
	}
	return next
}

// commit persists next and swaps it in. On error the current view is left untouched.
func (s *MemoryStore) commit(next map[string]Record) error {
	if s.path != "" {
		if err := writeSnapshot(s.path, next); err != nil {
			return err
		}
	}
	s.records = next
	return nil
}

func writeSnapshot(path string, records map[string]Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
