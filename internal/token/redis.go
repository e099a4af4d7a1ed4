package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

var errTxContention = errors.New("too much contention on user key")

// RedisStore shares tokens between relay processes. Each token lives under its
// own key; a per-user set indexes the tokens a user owns.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	opts   options
}

func NewRedisStore(rdb redis.UniversalClient, prefix string, opts ...Option) *RedisStore {
	if prefix == "" {
		prefix = "chat"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, opts: newOptions(opts)}
}

func (s *RedisStore) tokenKey(token string) string {
	return s.prefix + ":token:" + token
}

func (s *RedisStore) userKey(userID int64) string {
	return fmt.Sprintf("%s:user:%d", s.prefix, userID)
}

func (s *RedisStore) Issue(ctx context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", ErrInvalidUser
	}
	tok, err := Generate()
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(s.opts.record(userID))
	if err != nil {
		return "", err
	}

	userKey := s.userKey(userID)
	err = s.watch(ctx, func(tx *redis.Tx) error {
		old, err := tx.SMembers(ctx, userKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, o := range old {
				p.Del(ctx, s.tokenKey(o))
			}
			p.Del(ctx, userKey)
			// redis drops the key a little after the record expires; the expiry check itself is ours
			p.Set(ctx, s.tokenKey(tok), raw, s.opts.ttl+time.Second)
			p.SAdd(ctx, userKey, tok)
			return nil
		})
		return err
	}, userKey)
	if err != nil {
		return "", storageErr("issue", err)
	}
	return tok, nil
}

func (s *RedisStore) Validate(ctx context.Context, token string, userID int64) (bool, error) {
	if token == "" || userID <= 0 {
		return false, nil
	}
	rec, ok, err := s.get(ctx, token)
	if err != nil {
		return false, storageErr("validate", err)
	}
	if !ok || rec.UserID != userID {
		return false, nil
	}
	if rec.Expired(s.opts.now()) {
		if err := s.remove(ctx, token, rec.UserID); err != nil {
			return false, storageErr("validate", err)
		}
		return false, nil
	}
	return true, nil
}

func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	rec, ok, err := s.get(ctx, token)
	if err != nil {
		return storageErr("revoke", err)
	}
	if !ok {
		return nil
	}
	if err := s.remove(ctx, token, rec.UserID); err != nil {
		return storageErr("revoke", err)
	}
	return nil
}

func (s *RedisStore) RevokeAll(ctx context.Context, userID int64) error {
	userKey := s.userKey(userID)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		toks, err := tx.SMembers(ctx, userKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, t := range toks {
				p.Del(ctx, s.tokenKey(t))
			}
			p.Del(ctx, userKey)
			return nil
		})
		return err
	}, userKey)
	if err != nil {
		return storageErr("revoke all", err)
	}
	return nil
}

func (s *RedisStore) LookupOwner(ctx context.Context, token string) (int64, bool, error) {
	rec, ok, err := s.get(ctx, token)
	if err != nil {
		return 0, false, storageErr("lookup", err)
	}
	if !ok {
		return 0, false, nil
	}
	return rec.UserID, true, nil
}

func (s *RedisStore) SweepExpired(ctx context.Context) (int, error) {
	now := s.opts.now()
	keyPrefix := s.prefix + ":token:"
	removed := 0

	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		token := strings.TrimPrefix(iter.Val(), keyPrefix)
		rec, ok, err := s.get(ctx, token)
		if err != nil {
			return removed, storageErr("sweep", err)
		}
		if !ok || !rec.Expired(now) {
			continue
		}
		if err := s.remove(ctx, token, rec.UserID); err != nil {
			return removed, storageErr("sweep", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, storageErr("sweep", err)
	}
	return removed, nil
}

func (s *RedisStore) get(ctx context.Context, token string) (Record, bool, error) {
	var rec Record
	if token == "" {
		return rec, false, nil
	}
	raw, err := s.rdb.Get(ctx, s.tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, false, fmt.Errorf("decode record: %w", err)
	}
	return rec, true, nil
}

func (s *RedisStore) remove(ctx context.Context, token string, userID int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.tokenKey(token))
		p.SRem(ctx, s.userKey(userID), token)
		return nil
	})
	return err
}

// watch runs fn under WATCH on keys, retrying when another writer got there first.
func (s *RedisStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errTxContention
}
