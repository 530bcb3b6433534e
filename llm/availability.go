package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AvailabilityStore 缓存模型可用性探测结果。
// TTL 过期的条目视为不存在（未知），而不是"不可用"——
// 陈旧的否定结论比没有结论更危险。
type AvailabilityStore interface {
	// Get 返回缓存的可用性；过期或缺失时 ok 为 false
	Get(ctx context.Context, model string) (ModelAvailability, bool, error)

	// Set 写入可用性，ttl 后过期
	Set(ctx context.Context, avail ModelAvailability, ttl time.Duration) error

	// Delete 删除条目
	Delete(ctx context.Context, model string) error

	// Clear 清空全部条目（测试隔离用）
	Clear(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// 内存实现
// ---------------------------------------------------------------------------

type memoryAvailabilityEntry struct {
	avail     ModelAvailability
	expiresAt time.Time
}

type memoryAvailabilityStore struct {
	mu      sync.RWMutex
	entries map[string]memoryAvailabilityEntry
}

// NewMemoryAvailabilityStore 创建进程内可用性缓存。
func NewMemoryAvailabilityStore() AvailabilityStore {
	return &memoryAvailabilityStore{
		entries: make(map[string]memoryAvailabilityEntry),
	}
}

func (s *memoryAvailabilityStore) Get(_ context.Context, model string) (ModelAvailability, bool, error) {
	key := strings.ToLower(model)

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return ModelAvailability{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return ModelAvailability{}, false, nil
	}
	return entry.avail, true, nil
}

func (s *memoryAvailabilityStore) Set(_ context.Context, avail ModelAvailability, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("availability ttl must be positive, got %v", ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[strings.ToLower(avail.Model)] = memoryAvailabilityEntry{
		avail:     avail,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *memoryAvailabilityStore) Delete(_ context.Context, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, strings.ToLower(model))
	return nil
}

func (s *memoryAvailabilityStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryAvailabilityEntry)
	return nil
}

// ---------------------------------------------------------------------------
// Redis 实现
// ---------------------------------------------------------------------------

// redisAvailabilityStore 基于 Redis 的可用性缓存，
// 多副本部署时共享探测结果，减少对上游的重复探测。
type redisAvailabilityStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisAvailabilityStore 创建 Redis 可用性缓存。
func NewRedisAvailabilityStore(client *redis.Client, prefix string, logger *zap.Logger) AvailabilityStore {
	if prefix == "" {
		prefix = "modelgate:availability:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisAvailabilityStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *redisAvailabilityStore) key(model string) string {
	return s.prefix + strings.ToLower(model)
}

func (s *redisAvailabilityStore) Get(ctx context.Context, model string) (ModelAvailability, bool, error) {
	data, err := s.client.Get(ctx, s.key(model)).Bytes()
	if err == redis.Nil {
		return ModelAvailability{}, false, nil
	}
	if err != nil {
		return ModelAvailability{}, false, fmt.Errorf("availability get: %w", err)
	}

	var avail ModelAvailability
	if err := json.Unmarshal(data, &avail); err != nil {
		// 损坏的条目按缺失处理并清掉
		s.logger.Warn("丢弃损坏的可用性缓存条目",
			zap.String("model", model), zap.Error(err))
		_ = s.client.Del(ctx, s.key(model)).Err()
		return ModelAvailability{}, false, nil
	}
	return avail, true, nil
}

func (s *redisAvailabilityStore) Set(ctx context.Context, avail ModelAvailability, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("availability ttl must be positive, got %v", ttl)
	}
	data, err := json.Marshal(avail)
	if err != nil {
		return fmt.Errorf("availability marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(avail.Model), data, ttl).Err(); err != nil {
		return fmt.Errorf("availability set: %w", err)
	}
	return nil
}

func (s *redisAvailabilityStore) Delete(ctx context.Context, model string) error {
	return s.client.Del(ctx, s.key(model)).Err()
}

func (s *redisAvailabilityStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
