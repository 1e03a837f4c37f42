package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PinRepository struct {
	pool *pgxpool.Pool
}

func NewPinRepository(pool *pgxpool.Pool) *PinRepository {
	return &PinRepository{pool: pool}
}

// Pin закрепляет сообщение. Повторное закрепление — ErrConflict.
func (r *PinRepository) Pin(ctx context.Context, roomID, messageID, pinnedBy string) (*model.PinnedMessage, error) {
	defer logger.DeferLogDuration("pin.Pin", time.Now())()
	p := &model.PinnedMessage{RoomID: roomID, MessageID: messageID, PinnedBy: pinnedBy}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO pins (room_id, message_id, pinned_by, pinned_at)
		 VALUES ($1, $2, $3, now())
		 RETURNING pinned_at`,
		roomID, messageID, pinnedBy,
	).Scan(&p.PinnedAt)
	if isUniqueViolation(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("pinRepo.Pin: %w", err)
	}
	return p, nil
}

func (r *PinRepository) Unpin(ctx context.Context, messageID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pins WHERE message_id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("pinRepo.Unpin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByRoom возвращает закреплённые сообщения комнаты, новые закрепления первыми.
func (r *PinRepository) ListByRoom(ctx context.Context, roomID string) ([]model.PinnedMessage, error) {
	defer logger.DeferLogDuration("pin.ListByRoom", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT p.room_id, p.message_id, p.pinned_by, p.pinned_at, `+msgColumns+`
		 FROM pins p
		 JOIN messages m ON m.id = p.message_id
		 WHERE p.room_id = $1 AND NOT m.deleted
		 ORDER BY p.pinned_at DESC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("pinRepo.ListByRoom query: %w", err)
	}
	defer rows.Close()

	out := make([]model.PinnedMessage, 0, 8)
	for rows.Next() {
		var p model.PinnedMessage
		m := &model.Message{}
		if err := rows.Scan(&p.RoomID, &p.MessageID, &p.PinnedBy, &p.PinnedAt,
			&m.ID, &m.RoomID, &m.Seq, &m.Sender, &m.SenderType, &m.Content, &m.ReplyToID,
			&m.Metadata, &m.EditedAt, &m.Deleted, &m.CreatedAt, &m.Pinned); err != nil {
			return nil, fmt.Errorf("pinRepo.ListByRoom scan: %w", err)
		}
		p.Message = m
		out = append(out, p)
	}
	return out, rows.Err()
}

// IsPinned сообщает, закреплено ли сообщение.
func (r *PinRepository) IsPinned(ctx context.Context, messageID string) (bool, error) {
	var pinned bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pins WHERE message_id = $1)`, messageID).Scan(&pinned)
	if err != nil {
		return false, fmt.Errorf("pinRepo.IsPinned: %w", err)
	}
	return pinned, nil
}
