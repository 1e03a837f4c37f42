package memory

import (
	"context"
	"testing"
	"time"
)

func newTestClient() (*Client, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewWithClock(func() time.Time { return now })
	return c, &now
}

func TestHitCountsWithinWindow(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, _, err := c.Hit(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("Hit: %v", err)
		}
		if n != want {
			t.Errorf("Hit #%d = %d", want, n)
		}
	}
}

func TestWindowResets(t *testing.T) {
	c, now := newTestClient()
	ctx := context.Background()

	c.Hit(ctx, "k", time.Minute)
	c.Hit(ctx, "k", time.Minute)
	*now = now.Add(61 * time.Second)

	n, resetAt, err := c.Hit(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Hit: %v", err)
	}
	if n != 1 {
		t.Errorf("count after window reset = %d, want 1", n)
	}
	if want := now.Add(time.Minute); !resetAt.Equal(want) {
		t.Errorf("resetAt = %v, want %v", resetAt, want)
	}
}

func TestPeekDoesNotIncrement(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	c.Hit(ctx, "k", time.Minute)
	n, _, _ := c.Peek(ctx, "k", time.Minute)
	if n != 1 {
		t.Errorf("Peek = %d, want 1", n)
	}
	n, _, _ = c.Peek(ctx, "k", time.Minute)
	if n != 1 {
		t.Errorf("second Peek = %d, want 1 (must not increment)", n)
	}
	if n, _, _ := c.Peek(ctx, "other", time.Minute); n != 0 {
		t.Errorf("Peek unknown key = %d, want 0", n)
	}
}

func TestSetIfAbsent(t *testing.T) {
	c, now := newTestClient()
	ctx := context.Background()

	ok, _ := c.SetIfAbsent(ctx, "m", 2*time.Second)
	if !ok {
		t.Fatalf("first SetIfAbsent must succeed")
	}
	if ok, _ := c.SetIfAbsent(ctx, "m", 2*time.Second); ok {
		t.Fatalf("second SetIfAbsent within TTL must fail")
	}
	*now = now.Add(3 * time.Second)
	if ok, _ := c.SetIfAbsent(ctx, "m", 2*time.Second); !ok {
		t.Fatalf("SetIfAbsent after TTL must succeed")
	}
}

func TestDeleteClearsMarker(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	c.SetIfAbsent(ctx, "m", time.Minute)
	if err := c.Delete(ctx, "m"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := c.SetIfAbsent(ctx, "m", time.Minute); !ok {
		t.Fatalf("SetIfAbsent after Delete must succeed")
	}
}

func TestKeysIndependent(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	c.Hit(ctx, "a", time.Minute)
	n, _, _ := c.Hit(ctx, "b", time.Minute)
	if n != 1 {
		t.Errorf("key b count = %d, want 1", n)
	}
}
