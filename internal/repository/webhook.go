package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WebhookRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{pool: pool}
}

const webhookColumns = `id, room_id, url, secret, events, created_at`

func scanWebhook(row pgx.Row) (*model.Webhook, error) {
	wh := &model.Webhook{}
	err := row.Scan(&wh.ID, &wh.RoomID, &wh.URL, &wh.Secret, &wh.Events, &wh.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return wh, err
}

func (r *WebhookRepository) Create(ctx context.Context, wh *model.Webhook) error {
	defer logger.DeferLogDuration("webhook.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhooks (id, room_id, url, secret, events, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		wh.ID, wh.RoomID, wh.URL, wh.Secret, wh.Events, wh.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("webhookRepo.Create: %w", err)
	}
	return nil
}

func (r *WebhookRepository) GetByID(ctx context.Context, id string) (*model.Webhook, error) {
	wh, err := scanWebhook(r.pool.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("webhookRepo.GetByID: %w", err)
	}
	return wh, err
}

// ListByRoom возвращает подписки одной комнаты.
func (r *WebhookRepository) ListByRoom(ctx context.Context, roomID string) ([]model.Webhook, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE room_id = $1 ORDER BY created_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("webhookRepo.ListByRoom query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Webhook, 0, 4)
	for rows.Next() {
		var wh model.Webhook
		if err := rows.Scan(&wh.ID, &wh.RoomID, &wh.URL, &wh.Secret, &wh.Events, &wh.CreatedAt); err != nil {
			return nil, fmt.Errorf("webhookRepo.ListByRoom scan: %w", err)
		}
		out = append(out, wh)
	}
	return out, rows.Err()
}

// Matching отбирает подписки комнаты, которым интересен данный вид события.
// Пустой список events означает подписку на всё.
// Matching отдаёт хуки комнаты, подписанные на событие. Пустой roomID
// означает событие без комнаты (профили), оно сверяется со всеми хуками.
func (r *WebhookRepository) Matching(ctx context.Context, roomID, kind string) ([]model.Webhook, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks
		 WHERE (room_id = $1 OR $1 = '') AND (cardinality(events) = 0 OR $2 = ANY(events))`,
		roomID, kind)
	if err != nil {
		return nil, fmt.Errorf("webhookRepo.Matching query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Webhook, 0, 4)
	for rows.Next() {
		var wh model.Webhook
		if err := rows.Scan(&wh.ID, &wh.RoomID, &wh.URL, &wh.Secret, &wh.Events, &wh.CreatedAt); err != nil {
			return nil, fmt.Errorf("webhookRepo.Matching scan: %w", err)
		}
		out = append(out, wh)
	}
	return out, rows.Err()
}

func (r *WebhookRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("webhookRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
