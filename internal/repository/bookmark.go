package repository

import (
	"context"
	"fmt"

	"github.com/agentchat/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookmarkRepository struct {
	pool *pgxpool.Pool
}

func NewBookmarkRepository(pool *pgxpool.Pool) *BookmarkRepository {
	return &BookmarkRepository{pool: pool}
}

// Add закрепляет комнату для имени. Повторный вызов безвреден.
func (r *BookmarkRepository) Add(ctx context.Context, name, roomID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO bookmarks (name, room_id) VALUES ($1, $2)
		 ON CONFLICT (name, room_id) DO NOTHING`,
		name, roomID,
	)
	if err != nil {
		return fmt.Errorf("bookmarkRepo.Add: %w", err)
	}
	return nil
}

func (r *BookmarkRepository) Remove(ctx context.Context, name, roomID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM bookmarks WHERE name = $1 AND room_id = $2`, name, roomID)
	if err != nil {
		return fmt.Errorf("bookmarkRepo.Remove: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List возвращает закладки имени вместе с комнатами.
func (r *BookmarkRepository) List(ctx context.Context, name string) ([]model.Bookmark, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT b.name, b.room_id, b.created_at, `+roomColumns+`
		 FROM bookmarks b
		 JOIN rooms r ON r.id = b.room_id
		 WHERE b.name = $1
		 ORDER BY r.name`, name)
	if err != nil {
		return nil, fmt.Errorf("bookmarkRepo.List query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Bookmark, 0, 8)
	for rows.Next() {
		var b model.Bookmark
		var room model.Room
		if err := rows.Scan(&b.Name, &b.RoomID, &b.CreatedAt,
			&room.ID, &room.Name, &room.Description, &room.CreatedBy, &room.Archived,
			&room.RetentionSeconds, &room.LastSeq, &room.CreatedAt, &room.UpdatedAt, &room.ArchivedAt,
			&room.AdminKeyHash, &room.MessageCount, &room.LastActivity); err != nil {
			return nil, fmt.Errorf("bookmarkRepo.List scan: %w", err)
		}
		b.Room = &room
		out = append(out, b)
	}
	return out, rows.Err()
}
