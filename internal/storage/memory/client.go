package memory

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int64
	reset time.Time
}

type marker struct {
	exp time.Time
}

// Client — процесс-локальная реализация WindowStore.
type Client struct {
	mu      sync.Mutex
	windows map[string]window
	markers map[string]marker

	now func() time.Time
}

func New() *Client {
	return &Client{
		windows: make(map[string]window),
		markers: make(map[string]marker),
		now:     time.Now,
	}
}

// NewWithClock — конструктор для тестов с управляемым временем.
func NewWithClock(now func() time.Time) *Client {
	c := New()
	c.now = now
	return c
}

func (c *Client) Close() error { return nil }

func (c *Client) Hit(ctx context.Context, key string, win time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	w, ok := c.windows[key]
	if !ok || now.After(w.reset) {
		w = window{count: 0, reset: now.Add(win)}
	}
	w.count++
	c.windows[key] = w
	c.pruneLocked(now)
	return w.count, w.reset, nil
}

func (c *Client) Peek(ctx context.Context, key string, win time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	w, ok := c.windows[key]
	if !ok || now.After(w.reset) {
		return 0, now.Add(win), nil
	}
	return w.count, w.reset, nil
}

func (c *Client) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if m, ok := c.markers[key]; ok && now.Before(m.exp) {
		return false, nil
	}
	c.markers[key] = marker{exp: now.Add(ttl)}
	return true, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markers, key)
	return nil
}

// pruneLocked чистит протухшие записи, чтобы карты не росли бесконечно.
// Вызывается под мьютексом попутно с Hit.
func (c *Client) pruneLocked(now time.Time) {
	if len(c.windows) < 4096 && len(c.markers) < 4096 {
		return
	}
	for k, w := range c.windows {
		if now.After(w.reset) {
			delete(c.windows, k)
		}
	}
	for k, m := range c.markers {
		if now.After(m.exp) {
			delete(c.markers, k)
		}
	}
}
