package notification

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper records which sends already happened so a redelivered message does
// not mail the same recipient twice. Claim returns false when key is taken.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisDeduper claims keys with SET NX EX, shared across consumer replicas.
type RedisDeduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(client redis.UniversalClient, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: "clubpay:notify:", ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// MemoryDeduper is a bounded in-process TTL set. When full, the oldest claim
// is evicted first.
type MemoryDeduper struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
	order    *list.List
	entries  map[string]*list.Element
}

type memoryClaim struct {
	key     string
	expires time.Time
}

func NewMemoryDeduper(ttl time.Duration, capacity int) *MemoryDeduper {
	if capacity <= 0 {
		capacity = 100_000
	}
	return &MemoryDeduper{
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)
	if _, ok := d.entries[key]; ok {
		return false, nil
	}
	for d.order.Len() >= d.capacity {
		d.remove(d.order.Front())
	}
	d.entries[key] = d.order.PushBack(memoryClaim{key: key, expires: now.Add(d.ttl)})
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.entries[key]; ok {
		d.remove(el)
	}
	return nil
}

func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

// expire drops claims from the front while they are past their TTL. Claims
// are appended in time order with a fixed TTL, so the front expires first.
func (d *MemoryDeduper) expire(now time.Time) {
	for el := d.order.Front(); el != nil; el = d.order.Front() {
		if el.Value.(memoryClaim).expires.After(now) {
			return
		}
		d.remove(el)
	}
}

func (d *MemoryDeduper) remove(el *list.Element) {
	delete(d.entries, el.Value.(memoryClaim).key)
	d.order.Remove(el)
}
