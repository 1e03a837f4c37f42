// Package ratelimit ограничивает частоту операций по ключу (обычно IP)
// поверх storage.WindowStore.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/agentchat/internal/storage"
)

// Info — итог проверки лимита, выставляется в заголовки ответа.
type Info struct {
	Allowed   bool
	Limit     int
	Remaining int64
	ResetAt   time.Time
}

// SetHeaders пишет X-RateLimit-* заголовки. При отказе дополнительно Retry-After.
func (i Info) SetHeaders(h http.Header, now time.Time) {
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", i.Limit))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", i.Remaining))
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", i.ResetAt.Unix()))
	if !i.Allowed {
		secs := int64(i.ResetAt.Sub(now).Seconds()) + 1
		if secs < 1 {
			secs = 1
		}
		h.Set("Retry-After", fmt.Sprintf("%d", secs))
	}
}

type Limiter struct {
	store storage.WindowStore
}

func New(store storage.WindowStore) *Limiter {
	return &Limiter{store: store}
}

// Allow регистрирует попытку в окне scope:key и сообщает, прошла ли она.
// Отказанные попытки тоже считаются (окно не сдвигается назад при долблении).
func (l *Limiter) Allow(ctx context.Context, scope, key string, limit int, window time.Duration) (Info, error) {
	n, resetAt, err := l.store.Hit(ctx, scope+":"+key, window)
	if err != nil {
		return Info{}, fmt.Errorf("ratelimit: %w", err)
	}
	remaining := int64(limit) - n
	if remaining < 0 {
		remaining = 0
	}
	return Info{
		Allowed:   n <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Status возвращает состояние окна без регистрации попытки.
func (l *Limiter) Status(ctx context.Context, scope, key string, limit int, window time.Duration) (Info, error) {
	n, resetAt, err := l.store.Peek(ctx, scope+":"+key, window)
	if err != nil {
		return Info{}, fmt.Errorf("ratelimit: %w", err)
	}
	remaining := int64(limit) - n
	if remaining < 0 {
		remaining = 0
	}
	return Info{
		Allowed:   n < int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
