package notify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper records that a notification key was sent and answers whether it
// was already sent within the TTL window.
type Deduper interface {
	// Seen marks key as sent and reports whether it had already been
	// marked within ttl. The check and the mark are one atomic step.
	Seen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryDeduper is a process-local TTL map. Suitable for a single-instance
// deployment; multi-instance sweeps should use the Redis backend.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Seen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if expires, ok := d.seen[key]; ok && now.Before(expires) {
		return true, nil
	}

	// opportunistic cleanup of expired entries
	for k, expires := range d.seen {
		if !now.Before(expires) {
			delete(d.seen, k)
		}
	}

	d.seen[key] = now.Add(ttl)
	return false, nil
}

// RedisDeduper implements Deduper over a shared Redis instance using
// SET NX with expiry, so concurrent sweep workers agree on who sent first.
type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	set, err := d.client.SetNX(ctx, "notify:dedup:"+key, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// DedupNotifier suppresses repeated reminder and warning sends for the
// same vault within the TTL window. Disclosure and beneficiary-change
// notifications always pass through: their duplication is governed by the
// state machine itself.
type DedupNotifier struct {
	next    Notifier
	deduper Deduper
	ttl     time.Duration
}

func NewDedupNotifier(next Notifier, deduper Deduper, ttl time.Duration) *DedupNotifier {
	return &DedupNotifier{next: next, deduper: deduper, ttl: ttl}
}

func (n *DedupNotifier) Notify(ctx context.Context, recipient string, kind Kind, payload map[string]string) error {
	if kind == KindReminder || kind == KindWarning {
		key := payload["vault_id"] + ":" + string(kind)
		seen, err := n.deduper.Seen(ctx, key, n.ttl)
		if err == nil && seen {
			return nil
		}
		// on dedup backend failure, fall through and send; a duplicate
		// reminder is acceptable, a silently dropped one is not
	}
	return n.next.Notify(ctx, recipient, kind, payload)
}
