package token

import (
	"container/list"
	"sync"

	"github.com/thejerf/abtime"
)

// DecodeCache is a bounded cache over Codec.Decode keyed by the encoded wire
// string. A cookie-carried token is decoded once per request; the cache makes
// the common path a map lookup. Expired entries are dropped on hit, least
// recently used entries when the bound is reached.
type DecodeCache struct {
	codec *Codec
	clock abtime.AbstractTime
	max   int

	mu    sync.Mutex
	order *list.List // front = most recent
	items map[string]*list.Element
}

type cacheEntry struct {
	encoded string
	token   *Token
}

func NewDecodeCache(codec *Codec, clock abtime.AbstractTime, max int) *DecodeCache {
	if max <= 0 {
		max = 5000
	}
	return &DecodeCache{
		codec: codec,
		clock: clock,
		max:   max,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Decode returns the cached token for the wire string, decoding and caching
// on miss. Expired tokens are still returned (the validator owns the expiry
// decision) but are not kept cached.
func (c *DecodeCache) Decode(encoded string) (*Token, error) {
	now := c.clock.Now()

	c.mu.Lock()
	if el, ok := c.items[encoded]; ok {
		t := el.Value.(*cacheEntry).token
		if t.ExpiredAt(now) {
			c.order.Remove(el)
			delete(c.items, encoded)
		} else {
			c.order.MoveToFront(el)
		}
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	t, err := c.codec.Decode(encoded)
	if err != nil {
		return nil, err
	}

	if !t.ExpiredAt(now) {
		c.mu.Lock()
		if _, ok := c.items[encoded]; !ok {
			c.items[encoded] = c.order.PushFront(&cacheEntry{encoded: encoded, token: t})
			for c.order.Len() > c.max {
				oldest := c.order.Back()
				c.order.Remove(oldest)
				delete(c.items, oldest.Value.(*cacheEntry).encoded)
			}
		}
		c.mu.Unlock()
	}
	return t, nil
}

// Len reports the number of cached entries.
func (c *DecodeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
