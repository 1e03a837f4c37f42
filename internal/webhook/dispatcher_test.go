package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/model"
)

type fakeSource struct {
	hooks []model.Webhook
}

func (s *fakeSource) Matching(ctx context.Context, roomID, kind string) ([]model.Webhook, error) {
	return s.hooks, nil
}

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"kind":"message"}`)
	sig := Sign("secret", body)
	if len(sig) != 64 {
		t.Fatalf("signature length = %d, want 64 hex chars", len(sig))
	}
	if !VerifySignature("secret", body, "sha256="+sig) {
		t.Errorf("valid signature rejected")
	}
	if VerifySignature("other", body, "sha256="+sig) {
		t.Errorf("signature with wrong secret accepted")
	}
	if VerifySignature("secret", []byte("tampered"), "sha256="+sig) {
		t.Errorf("signature over different body accepted")
	}
}

func TestDispatcherDelivers(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotSig string
	received := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = body
		gotSig = r.Header.Get("X-Hub-Signature-256")
		mu.Unlock()
		received <- struct{}{}
	}))
	defer srv.Close()

	events := bus.New(8, 4)
	defer events.Close()

	src := &fakeSource{hooks: []model.Webhook{{
		ID:     "h1",
		URL:    srv.URL,
		Secret: "secret",
		Events: []string{"message"},
	}}}
	d := NewDispatcher(src, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	// даём диспетчеру подписаться до публикации
	time.Sleep(50 * time.Millisecond)

	events.Publish(bus.Event{
		Kind:   bus.KindMessage,
		RoomID: "room1",
		Seq:    1,
		Data:   []byte(`{"id":"m1"}`),
	})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatalf("webhook endpoint never called")
	}

	mu.Lock()
	defer mu.Unlock()
	if !VerifySignature("secret", gotBody, gotSig) {
		t.Errorf("delivered body signature does not verify")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("dispatcher did not stop on context cancel")
	}
}

func TestDispatcherSkipsServiceEvents(t *testing.T) {
	called := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called <- struct{}{}
	}))
	defer srv.Close()

	events := bus.New(8, 4)
	defer events.Close()

	src := &fakeSource{hooks: []model.Webhook{{ID: "h1", URL: srv.URL}}}
	d := NewDispatcher(src, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	events.Publish(bus.Event{Kind: bus.KindTyping, RoomID: "room1", Data: []byte(`{}`)})
	events.Publish(bus.Event{Kind: bus.KindHeartbeat, RoomID: "room1", Data: []byte(`{}`)})

	select {
	case <-called:
		t.Fatalf("typing/heartbeat events must not reach webhooks")
	case <-time.After(200 * time.Millisecond):
	}
}
