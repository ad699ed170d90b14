// Package session keeps server-side login sessions in Redis.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionIDBytes = 32

var errSessionIDCollision = errors.New("session id collision")

// Record is the value stored under a session id.
type Record struct {
	ID        string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create stores a new session for userID and returns its id.
func (s *Store) Create(ctx context.Context, userID string) (string, error) {
	sessionID, err := s.create(ctx, userID)
	if errors.Is(err, errSessionIDCollision) {
		sessionID, err = s.create(ctx, userID)
	}
	return sessionID, err
}

func (s *Store) create(ctx context.Context, userID string) (string, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(Record{UserID: userID, CreatedAt: s.now().UTC()})
	if err != nil {
		return "", err
	}

	indexKey := s.userKey(userID)
	var setCmd *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setCmd = pipe.SetNX(ctx, s.sessionKey(sessionID), payload, s.ttl)
		pipe.SAdd(ctx, indexKey, sessionID)
		pipe.Expire(ctx, indexKey, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	if !setCmd.Val() {
		if err := s.client.SRem(ctx, indexKey, sessionID).Err(); err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
		return "", errSessionIDCollision
	}
	return sessionID, nil
}

// Get returns the session record or nil when the session is absent or expired.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, nil
	}

	payload, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	record := &Record{}
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	record.ID = sessionID
	return record, nil
}

// Destroy removes a session. Destroying an absent session is not an error.
func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	record, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(sessionID))
		pipe.SRem(ctx, s.userKey(record.UserID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// DestroyAllForUser removes every session of userID and returns how many were live.
func (s *Store) DestroyAllForUser(ctx context.Context, userID string) (int, error) {
	indexKey := s.userKey(userID)
	sessionIDs, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list user sessions: %w", err)
	}
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		keys = append(keys, s.sessionKey(sessionID))
	}

	var delCmd *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		delCmd = pipe.Del(ctx, keys...)
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("destroy user sessions: %w", err)
	}
	return int(delCmd.Val()), nil
}

// Ping checks that the backing store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

func newSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
