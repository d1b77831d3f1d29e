package statscache

import (
	"container/list"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

const defaultSize = 4096

type entry struct {
	key       string
	data      []byte
	expiresAt time.Time
}

// Memory is a bounded LRU with per-entry TTL. Values are stored JSON-encoded
// so callers get the same copy semantics as the Redis backend.
type Memory struct {
	generations

	mu    sync.Mutex
	size  int
	ttl   time.Duration
	order *list.List
	items map[string]*list.Element
	now   func() time.Time
}

func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = defaultSize
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Memory{
		size:  size,
		ttl:   ttl,
		order: list.New(),
		items: make(map[string]*list.Element),
		now:   time.Now,
	}
}

func (c *Memory) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return false, nil
	}
	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.removeElement(el)
		c.mu.Unlock()
		return false, nil
	}
	c.order.MoveToFront(el)
	data := e.data
	c.mu.Unlock()

	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Memory) Set(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.data = data
		e.expiresAt = exp
		c.order.MoveToFront(el)
		return nil
	}
	c.items[key] = c.order.PushFront(&entry{key: key, data: data, expiresAt: exp})
	for c.order.Len() > c.size {
		c.removeElement(c.order.Back())
	}
	return nil
}

func (c *Memory) SetIfCurrent(ctx context.Context, key string, v any, gen uint64) (bool, error) {
	return c.setIf(key, gen, func() error { return c.Set(ctx, key, v) })
}

func (c *Memory) Invalidate(_ context.Context, keys ...string) error {
	c.bump(keys...)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if el, ok := c.items[k]; ok {
			c.removeElement(el)
		}
	}
	return nil
}

func (c *Memory) InvalidatePrefix(_ context.Context, prefix string) error {
	c.bumpAll()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, el := range c.items {
		if strings.HasPrefix(k, prefix) {
			c.removeElement(el)
		}
	}
	return nil
}

// Len reports the number of live and not yet reaped entries.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Memory) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
