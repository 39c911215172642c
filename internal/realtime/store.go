package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mesto/internal/models"
)

// Grant is what a consumed admission token entitles the holder to.
type Grant struct {
	UserID   string           `json:"user_id"`
	VenueID  string           `json:"venue_id,omitempty"`
	Role     models.ActorRole `json:"role"`
	IssuedAt time.Time        `json:"issued_at"`
}

// TokenStore holds single-use admission grants for staff connections.
// Putting a new grant for a user invalidates the user's previous token, and
// taking a grant consumes it.
type TokenStore interface {
	Put(ctx context.Context, userID, tokenID string, grant *Grant) error
	Take(ctx context.Context, tokenID string) (*Grant, error)
}

type RedisTokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTokenStore(client *redis.Client, ttl time.Duration) *RedisTokenStore {
	return &RedisTokenStore{client: client, ttl: ttl}
}

func (r *RedisTokenStore) Put(ctx context.Context, userID, tokenID string, grant *Grant) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	userKey := fmt.Sprintf("ws_user:%s", userID)
	if prev, err := r.client.Get(ctx, userKey).Result(); err == nil && prev != "" {
		r.client.Del(ctx, fmt.Sprintf("ws_token:%s", prev))
	}

	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal grant: %w", err)
	}
	if err := r.client.Set(ctx, fmt.Sprintf("ws_token:%s", tokenID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store grant: %w", err)
	}
	if err := r.client.Set(ctx, userKey, tokenID, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token index: %w", err)
	}
	return nil
}

func (r *RedisTokenStore) Take(ctx context.Context, tokenID string) (*Grant, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	val, err := r.client.GetDel(ctx, fmt.Sprintf("ws_token:%s", tokenID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take grant: %w", err)
	}

	var grant Grant
	if err := json.Unmarshal([]byte(val), &grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant: %w", err)
	}
	return &grant, nil
}

type memoryEntry struct {
	grant     *Grant
	expiresAt time.Time
}

type MemoryTokenStore struct {
	tokens     sync.Map
	userTokens sync.Map
	ttl        time.Duration
}

func NewMemoryTokenStore(ttl time.Duration) *MemoryTokenStore {
	return &MemoryTokenStore{ttl: ttl}
}

func (m *MemoryTokenStore) Put(_ context.Context, userID, tokenID string, grant *Grant) error {
	if prev, ok := m.userTokens.Load(userID); ok {
		m.tokens.Delete(prev.(string))
	}
	m.tokens.Store(tokenID, &memoryEntry{grant: grant, expiresAt: time.Now().Add(m.ttl)})
	m.userTokens.Store(userID, tokenID)
	m.sweep()
	return nil
}

// sweep drops expired tokens that were minted but never presented, so the
// store stays bounded by the set of users with a live token.
func (m *MemoryTokenStore) sweep() {
	now := time.Now()
	m.tokens.Range(func(key, val any) bool {
		if now.After(val.(*memoryEntry).expiresAt) {
			m.tokens.Delete(key)
		}
		return true
	})
}

func (m *MemoryTokenStore) Take(_ context.Context, tokenID string) (*Grant, error) {
	val, ok := m.tokens.LoadAndDelete(tokenID)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	return entry.grant, nil
}

// FailoverTokenStore prefers redis and falls back to process memory when it
// is down, probing the primary again after a minute.
type FailoverTokenStore struct {
	primary   TokenStore
	fallback  TokenStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverTokenStore(primary, fallback TokenStore, logger *zerolog.Logger) *FailoverTokenStore {
	return &FailoverTokenStore{primary: primary, fallback: fallback, logger: logger}
}

func (f *FailoverTokenStore) primaryUsable() bool {
	if !f.isDown.Load() {
		return true
	}
	if time.Since(time.Unix(f.lastCheck.Load(), 0)) > time.Minute {
		f.isDown.Store(false)
		return true
	}
	return false
}

func (f *FailoverTokenStore) markDown(err error) {
	f.logger.Error().Err(err).Msg("primary token store failed, falling back to memory")
	f.isDown.Store(true)
	f.lastCheck.Store(time.Now().Unix())
}

func (f *FailoverTokenStore) Put(ctx context.Context, userID, tokenID string, grant *Grant) error {
	if f.primaryUsable() {
		err := f.primary.Put(ctx, userID, tokenID, grant)
		if err == nil {
			return nil
		}
		f.markDown(err)
	}
	return f.fallback.Put(ctx, userID, tokenID, grant)
}

func (f *FailoverTokenStore) Take(ctx context.Context, tokenID string) (*Grant, error) {
	if f.primaryUsable() {
		grant, err := f.primary.Take(ctx, tokenID)
		if err == nil {
			if grant != nil {
				return grant, nil
			}
			// Primary up but token absent there; it may have been minted
			// while redis was down.
			return f.fallback.Take(ctx, tokenID)
		}
		f.markDown(err)
	}
	return f.fallback.Take(ctx, tokenID)
}
