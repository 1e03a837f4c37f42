package storage

import (
	"context"
	"time"
)

// WindowStore — счётчики окон для rate limit и дедупликация typing-сигналов.
// Реализации: redis.Client (общий между инстансами), memory.Client (по умолчанию).
type WindowStore interface {
	// Hit инкрементирует счётчик окна по ключу и возвращает значение после
	// инкремента и момент сброса окна.
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
	// Peek возвращает текущее значение счётчика без инкремента.
	Peek(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
	// SetIfAbsent ставит маркер с TTL, если его ещё нет. true — маркер поставлен.
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Delete снимает маркер до истечения TTL.
	Delete(ctx context.Context, key string) error
	Close() error
}
