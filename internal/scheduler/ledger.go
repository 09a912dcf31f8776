package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/backmassage/autoencode/internal/config"
)

// Node states recorded in the ledger.
const (
	StatusSubmitted = "submitted"
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusFailed    = "failed"
)

// Ledger remembers which graphs were submitted so a redelivered event is
// not submitted twice, and records per-node status.
type Ledger interface {
	// Claim marks graphID as submitted. It reports false when another
	// submission already holds the claim.
	Claim(ctx context.Context, graphID string) (bool, error)
	// Release drops a claim after a failed submission.
	Release(ctx context.Context, graphID string) error
	SetStatus(ctx context.Context, graphID, nodeID, status string) error
	Statuses(ctx context.Context, graphID string) (map[string]string, error)
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	mu       sync.Mutex
	claimed  map[string]bool
	statuses map[string]map[string]string
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{claimed: map[string]bool{}, statuses: map[string]map[string]string{}}
}

func (m *MemoryLedger) Claim(_ context.Context, graphID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[graphID] {
		return false, nil
	}
	m.claimed[graphID] = true
	return true, nil
}

func (m *MemoryLedger) Release(_ context.Context, graphID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, graphID)
	delete(m.statuses, graphID)
	return nil
}

func (m *MemoryLedger) SetStatus(_ context.Context, graphID, nodeID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses[graphID] == nil {
		m.statuses[graphID] = map[string]string{}
	}
	m.statuses[graphID][nodeID] = status
	return nil
}

func (m *MemoryLedger) Statuses(_ context.Context, graphID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.statuses[graphID]))
	for k, v := range m.statuses[graphID] {
		out[k] = v
	}
	return out, nil
}

// RedisLedger keeps claims as SETNX keys and node statuses in one hash per
// graph, both expiring after TTL.
type RedisLedger struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLedger connects to cfg.Addr and pings it.
func NewRedisLedger(ctx context.Context, cfg config.Redis) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return &RedisLedger{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

func (r *RedisLedger) claimKey(graphID string) string {
	return fmt.Sprintf("%s:graph:%s:claim", r.prefix, graphID)
}

func (r *RedisLedger) statusKey(graphID string) string {
	return fmt.Sprintf("%s:graph:%s:nodes", r.prefix, graphID)
}

func (r *RedisLedger) Claim(ctx context.Context, graphID string) (bool, error) {
	return r.client.SetNX(ctx, r.claimKey(graphID), time.Now().Format(time.RFC3339), r.ttl).Result()
}

func (r *RedisLedger) Release(ctx context.Context, graphID string) error {
	return r.client.Del(ctx, r.claimKey(graphID), r.statusKey(graphID)).Err()
}

func (r *RedisLedger) SetStatus(ctx context.Context, graphID, nodeID, status string) error {
	key := r.statusKey(graphID)
	if err := r.client.HSet(ctx, key, nodeID, status).Err(); err != nil {
		return err
	}
	if r.ttl > 0 {
		return r.client.Expire(ctx, key, r.ttl).Err()
	}
	return nil
}

func (r *RedisLedger) Statuses(ctx context.Context, graphID string) (map[string]string, error) {
	return r.client.HGetAll(ctx, r.statusKey(graphID)).Result()
}

// Close closes the Redis client.
func (r *RedisLedger) Close() error { return r.client.Close() }
