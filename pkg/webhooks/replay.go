package webhooks

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultDeliveryHeader = "X-Webhook-Id"

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisReplayProtector remembers delivery ids for ttl across all replicas.
type RedisReplayProtector struct {
	client setNXer
	ttl    time.Duration
	header string
	prefix string
}

func NewRedisReplayProtector(client redis.UniversalClient, ttl time.Duration, header string) *RedisReplayProtector {
	return newRedisReplayProtector(client, ttl, header)
}

func newRedisReplayProtector(client setNXer, ttl time.Duration, header string) *RedisReplayProtector {
	if strings.TrimSpace(header) == "" {
		header = DefaultDeliveryHeader
	}
	return &RedisReplayProtector{client: client, ttl: ttl, header: header, prefix: "webhooks:delivery:"}
}

func (p *RedisReplayProtector) Check(ctx context.Context, r *http.Request, _ []byte) error {
	id := strings.TrimSpace(r.Header.Get(p.header))
	if id == "" {
		return ErrMissingID
	}
	fresh, err := p.client.SetNX(ctx, p.prefix+id, 1, p.ttl).Result()
	if err != nil {
		return err
	}
	if !fresh {
		return ErrReplayDetected
	}
	return nil
}

// MemoryReplayProtector is the single-process variant.
type MemoryReplayProtector struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	header string
	now    func() time.Time
}

func NewMemoryReplayProtector(ttl time.Duration, header string) *MemoryReplayProtector {
	if strings.TrimSpace(header) == "" {
		header = DefaultDeliveryHeader
	}
	return &MemoryReplayProtector{seen: make(map[string]time.Time), ttl: ttl, header: header, now: time.Now}
}

func (p *MemoryReplayProtector) Check(_ context.Context, r *http.Request, _ []byte) error {
	id := strings.TrimSpace(r.Header.Get(p.header))
	if id == "" {
		return ErrMissingID
	}
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	for k, exp := range p.seen {
		if !now.Before(exp) {
			delete(p.seen, k)
		}
	}
	if _, ok := p.seen[id]; ok {
		return ErrReplayDetected
	}
	p.seen[id] = now.Add(p.ttl)
	return nil
}
