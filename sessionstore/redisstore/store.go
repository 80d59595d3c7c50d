// Package redisstore keeps login sessions in redis, encoded with msgpack and
// expiring with the session.
package redisstore

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	accounts "github.com/prophet-studio/go-accounts"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	DefaultKeyPrefix = "accounts:session:"
	defaultTimeout   = 2 * time.Second
)

type Store struct {
	rdb     redis.UniversalClient
	prefix  string
	timeout time.Duration
	now     accounts.Clock
}

var (
	_ accounts.SessionStore             = (*Store)(nil)
	_ accounts.OrganizationSessionStore = (*Store)(nil)
)

type Option func(*Store)

func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func WithClock(now accounts.Clock) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		rdb:     rdb,
		prefix:  DefaultKeyPrefix,
		timeout: defaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Connect parses a redis URL and pings the server
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to parse redis url")
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to ping redis").
			WithMetadata(map[string]any{"addr": opts.Addr})
	}

	return rdb, nil
}

func (s *Store) key(key uuid.UUID) string {
	return s.prefix + key.String()
}

// TTL is the time left before the session expires, zero when it has
func (s *Store) TTL(session *accounts.Session) time.Duration {
	if session.ExpiresAt.IsZero() {
		return 0
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl < 0 {
		return 0
	}
	return ttl
}

func (s *Store) Save(ctx context.Context, session *accounts.Session) error {
	if session == nil || session.Key == uuid.Nil {
		return errors.New("session key is required", errors.CategoryBadInput)
	}

	ttl := s.TTL(session)
	if ttl == 0 && !session.ExpiresAt.IsZero() {
		return s.Delete(ctx, session.Key)
	}

	payload, err := Encode(session)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.rdb.Set(ctx, s.key(session.Key), payload, ttl).Err()
}

func (s *Store) Get(ctx context.Context, key uuid.UUID) (*accounts.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"key": key.String()})
		}
		return nil, err
	}

	return Decode(payload)
}

func (s *Store) Delete(ctx context.Context, key uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.rdb.Del(ctx, s.key(key)).Err()
}

// ClearOrganization scans the stored sessions and unbinds the ones pointing
// at orgID, keeping their remaining TTL
func (s *Store) ClearOrganization(ctx context.Context, orgID uuid.UUID) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		payload, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return errors.Wrap(err, errors.CategoryOperation, "failed to read session")
		}

		session, err := Decode(payload)
		if err != nil {
			return err
		}
		if session.OrganizationID == nil || *session.OrganizationID != orgID {
			continue
		}

		session.OrganizationID = nil
		if payload, err = Encode(session); err != nil {
			return err
		}
		if err := s.rdb.Set(ctx, key, payload, redis.KeepTTL).Err(); err != nil {
			return errors.Wrap(err, errors.CategoryOperation, "failed to update session")
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to scan sessions")
	}
	return nil
}

// Encode serializes a session for storage
func Encode(session *accounts.Session) ([]byte, error) {
	payload, err := msgpack.Marshal(session)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to encode session")
	}
	return payload, nil
}

// Decode reads a session written by Encode
func Decode(payload []byte) (*accounts.Session, error) {
	session := &accounts.Session{}
	if err := msgpack.Unmarshal(payload, session); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to decode session")
	}
	return session, nil
}
