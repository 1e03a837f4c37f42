package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReactionRepository struct {
	pool *pgxpool.Pool
}

func NewReactionRepository(pool *pgxpool.Pool) *ReactionRepository {
	return &ReactionRepository{pool: pool}
}

// Add ставит реакцию. Повтор той же тройки (message, sender, emoji) — ErrConflict.
func (r *ReactionRepository) Add(ctx context.Context, messageID, sender, emoji string) error {
	defer logger.DeferLogDuration("reaction.Add", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO reactions (message_id, sender, emoji, created_at)
		 VALUES ($1, $2, $3, now())`,
		messageID, sender, emoji,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("reactionRepo.Add: %w", err)
	}
	return nil
}

func (r *ReactionRepository) Remove(ctx context.Context, messageID, sender, emoji string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM reactions WHERE message_id = $1 AND sender = $2 AND emoji = $3`,
		messageID, sender, emoji,
	)
	if err != nil {
		return fmt.Errorf("reactionRepo.Remove: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Toggle ставит реакцию, а если она уже стоит, снимает. Возвращает true, если поставлена.
func (r *ReactionRepository) Toggle(ctx context.Context, messageID, sender, emoji string) (bool, error) {
	err := r.Add(ctx, messageID, sender, emoji)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrConflict) {
		if rmErr := r.Remove(ctx, messageID, sender, emoji); rmErr != nil {
			return false, rmErr
		}
		return false, nil
	}
	return false, err
}

// Groups агрегирует реакции сообщения по emoji.
func (r *ReactionRepository) Groups(ctx context.Context, messageID string) ([]model.ReactionGroup, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT emoji, COUNT(*), array_agg(sender ORDER BY created_at)
		 FROM reactions WHERE message_id = $1
		 GROUP BY emoji ORDER BY MIN(created_at)`, messageID)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.Groups query: %w", err)
	}
	defer rows.Close()

	out := make([]model.ReactionGroup, 0, 4)
	for rows.Next() {
		var g model.ReactionGroup
		if err := rows.Scan(&g.Emoji, &g.Count, &g.Senders); err != nil {
			return nil, fmt.Errorf("reactionRepo.Groups scan: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListByRoom возвращает все реакции на живые сообщения комнаты.
func (r *ReactionRepository) ListByRoom(ctx context.Context, roomID string) ([]model.Reaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT re.message_id, re.sender, re.emoji, re.created_at
		 FROM reactions re
		 JOIN messages m ON m.id = re.message_id
		 WHERE m.room_id = $1 AND NOT m.deleted
		 ORDER BY re.created_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.ListByRoom query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Reaction, 0, 16)
	for rows.Next() {
		var re model.Reaction
		if err := rows.Scan(&re.MessageID, &re.Sender, &re.Emoji, &re.CreatedAt); err != nil {
			return nil, fmt.Errorf("reactionRepo.ListByRoom scan: %w", err)
		}
		out = append(out, re)
	}
	return out, rows.Err()
}

// GroupsForMessages агрегирует реакции пачки сообщений одним запросом.
func (r *ReactionRepository) GroupsForMessages(ctx context.Context, messageIDs []string) (map[string][]model.ReactionGroup, error) {
	if len(messageIDs) == 0 {
		return map[string][]model.ReactionGroup{}, nil
	}
	defer logger.DeferLogDuration("reaction.GroupsForMessages", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT message_id, emoji, COUNT(*), array_agg(sender ORDER BY created_at)
		 FROM reactions WHERE message_id = ANY($1)
		 GROUP BY message_id, emoji ORDER BY message_id, MIN(created_at)`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.GroupsForMessages query: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.ReactionGroup)
	for rows.Next() {
		var id string
		var g model.ReactionGroup
		if err := rows.Scan(&id, &g.Emoji, &g.Count, &g.Senders); err != nil {
			return nil, fmt.Errorf("reactionRepo.GroupsForMessages scan: %w", err)
		}
		out[id] = append(out[id], g)
	}
	return out, rows.Err()
}
