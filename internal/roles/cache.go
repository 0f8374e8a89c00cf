package roles

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PrimarySlot holds the lookup for a principal without an active company.
const PrimarySlot = "primary"

// SlotFor names the cache slot of a company. uuid.Nil maps to PrimarySlot so
// a primary-company lookup never shares an entry with an explicit tenant.
func SlotFor(companyID uuid.UUID) string {
	if companyID == uuid.Nil {
		return PrimarySlot
	}
	return companyID.String()
}

// Cache stores resolved roles per user, one slot per company. Set must be
// visible atomically: readers see the previous value or the new one. Delete
// drops every slot of the user.
type Cache interface {
	Get(ctx context.Context, user, slot string) (Resolved, bool, error)
	Set(ctx context.Context, user, slot string, value Resolved) error
	Delete(ctx context.Context, user string) error
}

type memoryEntry struct {
	value     Resolved
	expiresAt time.Time
}

// MemoryCache is an in-process Cache. A zero ttl keeps entries until deleted.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache constructs a MemoryCache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: make(map[string]map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, user, slot string) (Resolved, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[user][slot]
	c.mu.RUnlock()
	if !ok {
		return Resolved{}, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if current, still := c.entries[user][slot]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries[user], slot)
		}
		c.mu.Unlock()
		return Resolved{}, false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, user, slot string, value Resolved) error {
	entry := memoryEntry{value: value}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	slots, ok := c.entries[user]
	if !ok {
		slots = make(map[string]memoryEntry)
		c.entries[user] = slots
	}
	slots[slot] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, user string) error {
	c.mu.Lock()
	delete(c.entries, user)
	c.mu.Unlock()
	return nil
}

const redisKeyPrefix = "worksite:role:"

// RedisCache shares resolved roles between server instances. Each user is
// one hash whose fields are slots; a field carries its own expiry because
// EXPIRE applies to the whole hash.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

type redisEntry struct {
	Resolved
	ExpiresAt int64 `json:"exp,omitempty"`
}

// NewRedisCache constructs a RedisCache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, now: time.Now}
}

func (c *RedisCache) Get(ctx context.Context, user, slot string) (Resolved, bool, error) {
	payload, err := c.client.HGet(ctx, redisKeyPrefix+user, slot).Bytes()
	if errors.Is(err, redis.Nil) {
		return Resolved{}, false, nil
	}
	if err != nil {
		return Resolved{}, false, err
	}
	var entry redisEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Resolved{}, false, err
	}
	if entry.ExpiresAt != 0 && c.now().Unix() >= entry.ExpiresAt {
		return Resolved{}, false, nil
	}
	return entry.Resolved, true, nil
}

func (c *RedisCache) Set(ctx context.Context, user, slot string, value Resolved) error {
	entry := redisEntry{Resolved: value}
	if c.ttl > 0 {
		entry.ExpiresAt = c.now().Add(c.ttl).Unix()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := redisKeyPrefix + user
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, slot, raw)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	return err
}

func (c *RedisCache) Delete(ctx context.Context, user string) error {
	err := c.client.Del(ctx, redisKeyPrefix+user).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
