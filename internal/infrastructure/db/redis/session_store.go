package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abneribeiro/apits/internal/core/domain"
)

// Key format:
//
//	session:<sha256(token)>      JSON record, expires with the token
//	user_sessions:<user_id>      set of the digests owned by the user
const (
	sessionPrefix     = "session:"
	userSessionPrefix = "user_sessions:"
	scanBatch         = 100
)

// rotateScript deletes the old record and stores the new one only when the
// delete removed something. Returns 1 on success, 0 when the old token was gone.
var rotateScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then
  return 0
end
redis.call('SREM', KEYS[2], ARGV[1])
redis.call('SET', KEYS[3], ARGV[2], 'PX', ARGV[3])
redis.call('SADD', KEYS[2], ARGV[4])
return 1
`)

// revokeUserScript deletes every record listed in the user's index together
// with the index, in one step. ARGV[1] is the record key prefix.
var revokeUserScript = redis.NewScript(`
local removed = 0
for _, h in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  removed = removed + redis.call('DEL', ARGV[1] .. h)
end
redis.call('DEL', KEYS[1])
return removed
`)

type sessionRecord struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionStore keeps refresh-token records in Redis with a per-user index.
type SessionStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client, now: time.Now}
}

func sessionKey(hash string) string { return sessionPrefix + hash }

func userSessionsKey(userID string) string { return userSessionPrefix + userID }

// encode returns the record payload and its remaining lifetime.
func (s *SessionStore) encode(rt domain.RefreshToken) ([]byte, time.Duration, error) {
	created := rt.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	ttl := rt.ExpiresAt.Sub(s.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	payload, err := json.Marshal(sessionRecord{UserID: rt.UserID, ExpiresAt: rt.ExpiresAt.UTC(), CreatedAt: created.UTC()})
	if err != nil {
		return nil, 0, fmt.Errorf("encode session: %w", err)
	}
	return payload, ttl, nil
}

func (s *SessionStore) Create(ctx context.Context, rt domain.RefreshToken) error {
	payload, ttl, err := s.encode(rt)
	if err != nil {
		return err
	}
	hash := domain.HashToken(rt.Token)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(hash), payload, ttl)
		pipe.SAdd(ctx, userSessionsKey(rt.UserID), hash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *SessionStore) Find(ctx context.Context, token string) (*domain.RefreshToken, error) {
	rec, err := s.load(ctx, domain.HashToken(token))
	if err != nil {
		return nil, err
	}
	return &domain.RefreshToken{Token: token, UserID: rec.UserID, ExpiresAt: rec.ExpiresAt, CreatedAt: rec.CreatedAt}, nil
}

func (s *SessionStore) load(ctx context.Context, hash string) (*sessionRecord, error) {
	raw, err := s.client.Get(ctx, sessionKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.E(domain.KindInvalidToken, "invalid refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) (bool, error) {
	hash := domain.HashToken(token)
	rec, err := s.load(ctx, hash)
	if errors.Is(err, domain.ErrInvalidToken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var del *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, sessionKey(hash))
		pipe.SRem(ctx, userSessionsKey(rec.UserID), hash)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return del.Val() > 0, nil
}

// DeleteByUser runs as a script so no Create or Rotate for the user can land
// between listing the index and clearing it.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	n, err := revokeUserScript.Run(ctx, s.client, []string{userSessionsKey(userID)}, sessionPrefix).Int64()
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return n, nil
}

func (s *SessionStore) Rotate(ctx context.Context, oldToken string, next domain.RefreshToken) error {
	payload, ttl, err := s.encode(next)
	if err != nil {
		return err
	}
	oldHash := domain.HashToken(oldToken)
	newHash := domain.HashToken(next.Token)

	keys := []string{sessionKey(oldHash), userSessionsKey(next.UserID), sessionKey(newHash)}
	res, err := rotateScript.Run(ctx, s.client, keys, oldHash, payload, ttl.Milliseconds(), newHash).Int()
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	if res == 0 {
		return domain.E(domain.KindInvalidToken, "invalid refresh token")
	}
	return nil
}

// DeleteExpired prunes index entries whose records Redis already expired.
// Records themselves carry a TTL, so now is not consulted.
func (s *SessionStore) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	var pruned int64
	iter := s.client.Scan(ctx, 0, userSessionPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		n, err := s.pruneIndex(ctx, iter.Val())
		if err != nil {
			return pruned, err
		}
		pruned += n
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("scan user sessions: %w", err)
	}
	return pruned, nil
}

func (s *SessionStore) pruneIndex(ctx context.Context, index string) (int64, error) {
	hashes, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", index, err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	checks := make([]*redis.IntCmd, len(hashes))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, h := range hashes {
			checks[i] = pipe.Exists(ctx, sessionKey(h))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("check %s: %w", index, err)
	}

	var dangling []any
	for i, c := range checks {
		if c.Val() == 0 {
			dangling = append(dangling, hashes[i])
		}
	}
	if len(dangling) == 0 {
		return 0, nil
	}
	n, err := s.client.SRem(ctx, index, dangling...).Result()
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", strings.TrimPrefix(index, userSessionPrefix), err)
	}
	return n, nil
}
