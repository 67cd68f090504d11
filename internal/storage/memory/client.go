package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/storage"
)

const subscriberBuffer = 256

type item struct {
	val []byte
	exp time.Time
}

// Client — LiveStore в памяти процесса (для -dev/-memory без Redis и для тестов).
// Значения хранятся в JSON, как в Redis, чтобы поведение кеша совпадало.
type Client struct {
	mu     sync.RWMutex
	items  map[string]item
	tags   map[string]map[string]struct{}
	gens   map[string]int64
	subs   map[chan storage.Event]struct{}
	now    func() time.Time
	closed bool
}

func New() *Client {
	return &Client{
		items: make(map[string]item),
		tags:  make(map[string]map[string]struct{}),
		gens:  make(map[string]int64),
		subs:  make(map[chan storage.Event]struct{}),
		now:   time.Now,
	}
}

var _ storage.LiveStore = (*Client)(nil)

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for ch := range c.subs {
		close(ch)
	}
	c.subs = make(map[chan storage.Event]struct{})
	return nil
}

func (c *Client) GetCached(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.RLock()
	v, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || c.now().After(v.exp) {
		return false, nil
	}
	if err := json.Unmarshal(v.val, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Snapshot(ctx context.Context, topics ...string) (storage.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := make(storage.Snapshot, len(topics))
	for _, t := range topics {
		snap[t] = c.gens[t]
	}
	return snap, nil
}

func (c *Client) SetCached(ctx context.Context, key string, val any, ttl time.Duration, snap storage.Snapshot) (bool, error) {
	data, err := json.Marshal(val)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for t, gen := range snap {
		if c.gens[t] != gen {
			return false, nil
		}
	}
	c.items[key] = item{val: data, exp: c.now().Add(ttl)}
	for t := range snap {
		if _, ok := c.tags[t]; !ok {
			c.tags[t] = make(map[string]struct{})
		}
		c.tags[t][key] = struct{}{}
	}
	return true, nil
}

func (c *Client) Invalidate(ctx context.Context, ev storage.Event) error {
	c.mu.Lock()
	c.gens[ev.Topic]++
	for key := range c.tags[ev.Topic] {
		delete(c.items, key)
	}
	delete(c.tags, ev.Topic)
	subs := make([]chan storage.Event, 0, len(c.subs))
	for ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, ch := range subs {
		c.deliver(ch, ev)
	}
	return nil
}

func (c *Client) deliver(ch chan storage.Event, ev storage.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subs[ch]; !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		// Подписчик не успевает — событие теряется, клиент перечитает данные при следующем.
		logger.Errorf("live: subscriber buffer full, dropping event topic=%s", ev.Topic)
	}
}

func (c *Client) Subscribe(ctx context.Context) (<-chan storage.Event, error) {
	ch := make(chan storage.Event, subscriberBuffer)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, nil
	}
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}()
	return ch, nil
}
