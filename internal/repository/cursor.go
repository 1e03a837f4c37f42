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

type CursorRepository struct {
	pool *pgxpool.Pool
}

func NewCursorRepository(pool *pgxpool.Pool) *CursorRepository {
	return &CursorRepository{pool: pool}
}

// Advance двигает позицию чтения вперёд. Откат назад молча игнорируется,
// возвращается актуальная позиция.
func (r *CursorRepository) Advance(ctx context.Context, roomID, name string, seq int64) (*model.ReadCursor, error) {
	defer logger.DeferLogDuration("cursor.Advance", time.Now())()
	c := &model.ReadCursor{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO read_cursors (room_id, name, last_read_seq, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (room_id, name) DO UPDATE
		   SET last_read_seq = GREATEST(read_cursors.last_read_seq, EXCLUDED.last_read_seq),
		       updated_at = now()
		 RETURNING room_id, name, last_read_seq, updated_at`,
		roomID, name, seq,
	).Scan(&c.RoomID, &c.Name, &c.LastReadSeq, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("cursorRepo.Advance: %w", err)
	}
	return c, nil
}

func (r *CursorRepository) Get(ctx context.Context, roomID, name string) (*model.ReadCursor, error) {
	c := &model.ReadCursor{}
	err := r.pool.QueryRow(ctx,
		`SELECT room_id, name, last_read_seq, updated_at
		 FROM read_cursors WHERE room_id = $1 AND name = $2`,
		roomID, name,
	).Scan(&c.RoomID, &c.Name, &c.LastReadSeq, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// отсутствие курсора означает "ничего не прочитано"
		return &model.ReadCursor{RoomID: roomID, Name: name, LastReadSeq: 0}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cursorRepo.Get: %w", err)
	}
	return c, nil
}

// ListByRoom возвращает курсоры всех читателей комнаты.
func (r *CursorRepository) ListByRoom(ctx context.Context, roomID string) ([]model.ReadCursor, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT room_id, name, last_read_seq, updated_at
		 FROM read_cursors WHERE room_id = $1 ORDER BY name`, roomID)
	if err != nil {
		return nil, fmt.Errorf("cursorRepo.ListByRoom query: %w", err)
	}
	defer rows.Close()

	out := make([]model.ReadCursor, 0, 8)
	for rows.Next() {
		var c model.ReadCursor
		if err := rows.Scan(&c.RoomID, &c.Name, &c.LastReadSeq, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("cursorRepo.ListByRoom scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Summary — непрочитанное по всем комнатам, где имя держит курсор или
// когда-либо писало. Непосещённые и дочитанные комнаты в сводку не попадают.
func (r *CursorRepository) Summary(ctx context.Context, name string) ([]model.UnreadEntry, error) {
	defer logger.DeferLogDuration("cursor.Summary", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, room_name, last_read_seq, unread FROM (
		   SELECT r.id, r.name AS room_name, COALESCE(rc.last_read_seq, 0) AS last_read_seq,
		          (SELECT COUNT(*) FROM messages m
		           WHERE m.room_id = r.id AND NOT m.deleted
		             AND m.seq > COALESCE(rc.last_read_seq, 0)) AS unread
		   FROM rooms r
		   LEFT JOIN read_cursors rc ON rc.room_id = r.id AND rc.name = $1
		   WHERE NOT r.archived
		     AND (rc.name IS NOT NULL
		          OR EXISTS (SELECT 1 FROM messages m WHERE m.room_id = r.id AND m.sender = $1))
		 ) t
		 WHERE unread > 0
		 ORDER BY room_name`, name)
	if err != nil {
		return nil, fmt.Errorf("cursorRepo.Summary query: %w", err)
	}
	defer rows.Close()

	out := make([]model.UnreadEntry, 0, 8)
	for rows.Next() {
		var e model.UnreadEntry
		if err := rows.Scan(&e.RoomID, &e.RoomName, &e.LastReadSeq, &e.UnreadCount); err != nil {
			return nil, fmt.Errorf("cursorRepo.Summary scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Unread считает живые сообщения комнаты с seq больше прочитанного.
func (r *CursorRepository) Unread(ctx context.Context, roomID, name string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages m
		 WHERE m.room_id = $1 AND NOT m.deleted
		   AND m.seq > COALESCE(
		     (SELECT last_read_seq FROM read_cursors WHERE room_id = $1 AND name = $2), 0)`,
		roomID, name,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("cursorRepo.Unread: %w", err)
	}
	return n, nil
}
