package holds

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps per-organization hold lists. Implementations enforce the
// MaxPerOrg cap on write and filter expired holds on read.
type Store interface {
	Place(ctx context.Context, orgID string, h Hold) error
	Active(ctx context.Context, orgID string, now time.Time) ([]Hold, error)
}

// RedisStore keeps each org's holds in a sorted set scored by creation
// time, so the cap can evict the oldest entries with a single range
// removal. Expired members stay in the set until the cap trims them;
// Active filters them out at read time.
type RedisStore struct {
	rdb *redis.Client
	cap int64
	// keyTTL bounds how long an abandoned org key can linger.
	keyTTL time.Duration
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, cap: MaxPerOrg, keyTTL: 24 * time.Hour}
}

func (s *RedisStore) key(orgID string) string {
	return "holds:" + orgID
}

func (s *RedisStore) Place(ctx context.Context, orgID string, h Hold) error {
	member, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode hold: %w", err)
	}

	key := s.key(orgID)
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(h.CreatedAt.UnixMilli()),
		Member: string(member),
	})
	// Trim to the newest cap entries.
	pipe.ZRemRangeByRank(ctx, key, 0, -(s.cap + 1))
	pipe.Expire(ctx, key, s.keyTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Active(ctx context.Context, orgID string, now time.Time) ([]Hold, error) {
	members, err := s.rdb.ZRange(ctx, s.key(orgID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	holds := make([]Hold, 0, len(members))
	for _, m := range members {
		var h Hold
		if err := json.Unmarshal([]byte(m), &h); err != nil {
			// A corrupt member blocks nothing; skip it.
			continue
		}
		holds = append(holds, h)
	}
	return FilterActive(holds, now), nil
}

func RedisReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

// MemoryStore is the single-instance fallback used when Redis is not
// configured. Same cap and read-time expiry semantics as RedisStore.
type MemoryStore struct {
	mu    sync.Mutex
	byOrg map[string][]Hold
	cap   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byOrg: map[string][]Hold{}, cap: MaxPerOrg}
}

func (s *MemoryStore) Place(_ context.Context, orgID string, h Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.byOrg[orgID], h)
	if over := len(list) - s.cap; over > 0 {
		list = append([]Hold(nil), list[over:]...)
	}
	s.byOrg[orgID] = list
	return nil
}

func (s *MemoryStore) Active(_ context.Context, orgID string, now time.Time) ([]Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FilterActive(s.byOrg[orgID], now), nil
}
