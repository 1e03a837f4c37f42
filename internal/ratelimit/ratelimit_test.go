package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/agentchat/internal/storage/memory"
)

func TestAllowUntilLimit(t *testing.T) {
	l := New(memory.New())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := l.Allow(ctx, "test", "1.2.3.4", 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !info.Allowed {
			t.Fatalf("request %d rejected under the limit", i+1)
		}
		if want := int64(3 - i - 1); info.Remaining != want {
			t.Errorf("request %d: Remaining = %d, want %d", i+1, info.Remaining, want)
		}
	}

	info, err := l.Allow(ctx, "test", "1.2.3.4", 3, time.Minute)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if info.Allowed {
		t.Errorf("request over the limit must be rejected")
	}
	if info.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", info.Remaining)
	}
}

func TestScopesAndKeysIsolated(t *testing.T) {
	l := New(memory.New())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		l.Allow(ctx, "messages", "1.2.3.4", 2, time.Minute)
	}
	info, _ := l.Allow(ctx, "messages", "1.2.3.4", 2, time.Minute)
	if info.Allowed {
		t.Fatalf("limit for scope messages must be exhausted")
	}

	if info, _ := l.Allow(ctx, "rooms", "1.2.3.4", 2, time.Hour); !info.Allowed {
		t.Errorf("different scope must have its own window")
	}
	if info, _ := l.Allow(ctx, "messages", "5.6.7.8", 2, time.Minute); !info.Allowed {
		t.Errorf("different key must have its own window")
	}
}

func TestStatusDoesNotConsume(t *testing.T) {
	l := New(memory.New())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := l.Status(ctx, "test", "k", 2, time.Minute); err != nil {
			t.Fatalf("Status: %v", err)
		}
	}
	if info, _ := l.Allow(ctx, "test", "k", 2, time.Minute); !info.Allowed {
		t.Errorf("Status calls must not consume the limit")
	}
}

func TestSetHeaders(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	info := Info{Allowed: false, Limit: 60, Remaining: 0, ResetAt: now.Add(30 * time.Second)}

	h := http.Header{}
	info.SetHeaders(h, now)

	if got := h.Get("X-RateLimit-Limit"); got != "60" {
		t.Errorf("X-RateLimit-Limit = %q, want 60", got)
	}
	if got := h.Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
	if got := h.Get("X-RateLimit-Reset"); got == "" {
		t.Errorf("X-RateLimit-Reset must be set")
	}
	if got := h.Get("Retry-After"); got != "31" {
		t.Errorf("Retry-After = %q, want 31", got)
	}

	// разрешённый запрос не получает Retry-After
	h = http.Header{}
	Info{Allowed: true, Limit: 60, Remaining: 10, ResetAt: now.Add(time.Minute)}.SetHeaders(h, now)
	if got := h.Get("Retry-After"); got != "" {
		t.Errorf("allowed request must not carry Retry-After, got %q", got)
	}
}
