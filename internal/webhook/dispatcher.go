// Package webhook доставляет события комнат на внешние URL.
// Тело подписывается HMAC-SHA256 секретом хука (заголовок X-Hub-Signature-256).
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/model"
)

const (
	deliverTimeout = 5 * time.Second
	maxInFlight    = 8
)

// служебные события не уходят наружу
var skipKinds = map[bus.Kind]struct{}{
	bus.KindHeartbeat: {},
	bus.KindTyping:    {},
}

type payload struct {
	Kind   bus.Kind        `json:"kind"`
	RoomID string          `json:"room_id"`
	Data   json.RawMessage `json:"data"`
	SentAt time.Time       `json:"sent_at"`
}

// HookSource отдаёт хуки, подписанные на событие. Реализуется repository.WebhookRepository.
type HookSource interface {
	Matching(ctx context.Context, roomID, kind string) ([]model.Webhook, error)
}

type Dispatcher struct {
	repo   HookSource
	events *bus.Bus
	client *http.Client
	sem    chan struct{}
}

func NewDispatcher(repo HookSource, events *bus.Bus) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		events: events,
		client: &http.Client{Timeout: deliverTimeout},
		sem:    make(chan struct{}, maxInFlight),
	}
}

// Run слушает шину и разносит события по подписанным хукам.
// Блокируется до отмены ctx или закрытия шины.
func (d *Dispatcher) Run(ctx context.Context) {
	sub := d.events.Subscribe("")
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if _, skip := skipKinds[ev.Kind]; skip {
				continue
			}
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev bus.Event) {
	lookupCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	hooks, err := d.repo.Matching(lookupCtx, ev.RoomID, string(ev.Kind))
	cancel()
	if err != nil {
		logger.Errorf("webhook: lookup room=%s kind=%s: %v", ev.RoomID, ev.Kind, err)
		return
	}
	if len(hooks) == 0 {
		return
	}

	body, err := json.Marshal(payload{
		Kind:   ev.Kind,
		RoomID: ev.RoomID,
		Data:   ev.Data,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Errorf("webhook: marshal: %v", err)
		return
	}

	for _, h := range hooks {
		hook := h
		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		go func() {
			defer func() { <-d.sem }()
			d.deliver(ctx, hook, body)
		}()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, hook model.Webhook, body []byte) {
	reqCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		logger.Errorf("webhook %s: build request: %v", hook.ID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if hook.Secret != "" {
		req.Header.Set("X-Hub-Signature-256", "sha256="+Sign(hook.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		logger.Errorf("webhook %s -> %s: %v", hook.ID, hook.URL, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		logger.Errorf("webhook %s -> %s: status %d", hook.ID, hook.URL, resp.StatusCode)
		return
	}
	logger.Debugf("webhook %s delivered (%d bytes)", hook.ID, len(body))
}

// Sign возвращает hex(HMAC-SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature сверяет подпись входящего тела (для тестов и клиентов).
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte("sha256="+expected), []byte(signature))
}
