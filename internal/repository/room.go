package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

// roomColumns включает производные message_count и last_activity,
// чтобы каждая выборка комнаты сразу годилась для сайдбара.
const roomColumns = `r.id, r.name, r.description, r.created_by, r.archived, r.retention_seconds,
	r.last_seq, r.created_at, r.updated_at, r.archived_at, r.admin_key_hash,
	(SELECT COUNT(*) FROM messages m WHERE m.room_id = r.id AND NOT m.deleted),
	(SELECT MAX(m.created_at) FROM messages m WHERE m.room_id = r.id AND NOT m.deleted)`

func scanRoomFields(row pgx.Row, room *model.Room) error {
	return row.Scan(&room.ID, &room.Name, &room.Description, &room.CreatedBy, &room.Archived,
		&room.RetentionSeconds, &room.LastSeq, &room.CreatedAt, &room.UpdatedAt, &room.ArchivedAt,
		&room.AdminKeyHash, &room.MessageCount, &room.LastActivity)
}

func scanRoom(row pgx.Row) (*model.Room, error) {
	r := &model.Room{}
	err := scanRoomFields(row, r)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RoomRepository) Create(ctx context.Context, room *model.Room) error {
	defer logger.DeferLogDuration("room.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO rooms (id, name, description, created_by, archived, retention_seconds, last_seq, admin_key_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, false, $5, 0, $6, $7, $7)`,
		room.ID, room.Name, room.Description, room.CreatedBy, room.RetentionSeconds, room.AdminKeyHash, room.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("roomRepo.Create: %w", err)
	}
	return nil
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*model.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms r WHERE r.id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("roomRepo.GetByID: %w", err)
	}
	return room, err
}

func (r *RoomRepository) GetByName(ctx context.Context, name string) (*model.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms r WHERE r.name = $1
		 ORDER BY r.archived, r.created_at DESC LIMIT 1`, name))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("roomRepo.GetByName: %w", err)
	}
	return room, err
}

// List возвращает комнаты. includeArchived=false скрывает архивные.
func (r *RoomRepository) List(ctx context.Context, includeArchived bool) ([]model.Room, error) {
	defer logger.DeferLogDuration("room.List", time.Now())()
	q := `SELECT ` + roomColumns + ` FROM rooms r`
	if !includeArchived {
		q += ` WHERE NOT r.archived`
	}
	q += ` ORDER BY r.name`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.List query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Room, 0, 16)
	for rows.Next() {
		var room model.Room
		if err := scanRoomFields(rows, &room); err != nil {
			return nil, fmt.Errorf("roomRepo.List scan: %w", err)
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

type RoomUpdate struct {
	Description      *string
	Name             *string
	RetentionSeconds *int64
	ClearRetention   bool
}

func (r *RoomRepository) Update(ctx context.Context, id string, upd RoomUpdate) (*model.Room, error) {
	defer logger.DeferLogDuration("room.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE rooms SET
		   name        = COALESCE($2, name),
		   description = COALESCE($3, description),
		   retention_seconds = CASE WHEN $4 THEN NULL ELSE COALESCE($5, retention_seconds) END,
		   updated_at = now()
		 WHERE id = $1`,
		id, upd.Name, upd.Description, upd.ClearRetention, upd.RetentionSeconds,
	)
	if isUniqueViolation(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// SetAdminKeyHash используется бэкфиллом для комнат без ключа.
func (r *RoomRepository) SetAdminKeyHash(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE rooms SET admin_key_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("roomRepo.SetAdminKeyHash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWithoutAdminKey — комнаты, созданные до появления админ-ключей.
func (r *RoomRepository) ListWithoutAdminKey(ctx context.Context) ([]model.Room, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+roomColumns+` FROM rooms r WHERE r.admin_key_hash = '' ORDER BY r.name`)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.ListWithoutAdminKey query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Room, 0, 4)
	for rows.Next() {
		var room model.Room
		if err := scanRoomFields(rows, &room); err != nil {
			return nil, fmt.Errorf("roomRepo.ListWithoutAdminKey scan: %w", err)
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

func (r *RoomRepository) SetArchived(ctx context.Context, id string, archived bool) (*model.Room, error) {
	var q string
	if archived {
		q = `UPDATE rooms SET archived = true, archived_at = now(), updated_at = now() WHERE id = $1 AND NOT archived`
	} else {
		q = `UPDATE rooms SET archived = false, archived_at = NULL, updated_at = now() WHERE id = $1 AND archived`
	}
	tag, err := r.pool.Exec(ctx, q, id)
	if isUniqueViolation(err) {
		// имя уже занято живой комнатой, разархивировать нельзя
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.SetArchived: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// либо нет комнаты, либо она уже в нужном состоянии
		room, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if room.Archived == archived {
			return nil, ErrConflict
		}
		return room, nil
	}
	return r.GetByID(ctx, id)
}

// Delete удаляет комнату со всем содержимым (каскад по FK).
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("room.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("roomRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForSender — комнаты глазами конкретного имени: закладка, позиция
// чтения и счётчик непрочитанного одним запросом. Закладки сортируются
// первыми.
func (r *RoomRepository) ListForSender(ctx context.Context, name string, includeArchived bool) ([]model.RoomListEntry, error) {
	defer logger.DeferLogDuration("room.ListForSender", time.Now())()
	q := `SELECT ` + roomColumns + `,
	             (b.name IS NOT NULL),
	             COALESCE(rc.last_read_seq, 0),
	             (SELECT COUNT(*) FROM messages m
	              WHERE m.room_id = r.id AND NOT m.deleted AND m.seq > COALESCE(rc.last_read_seq, 0))
	      FROM rooms r
	      LEFT JOIN bookmarks b ON b.room_id = r.id AND b.name = $1
	      LEFT JOIN read_cursors rc ON rc.room_id = r.id AND rc.name = $1`
	if !includeArchived {
		q += ` WHERE NOT r.archived`
	}
	q += ` ORDER BY (b.name IS NOT NULL) DESC, r.name`
	rows, err := r.pool.Query(ctx, q, name)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.ListForSender query: %w", err)
	}
	defer rows.Close()

	out := make([]model.RoomListEntry, 0, 16)
	for rows.Next() {
		var e model.RoomListEntry
		room := &e.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.Description, &room.CreatedBy, &room.Archived,
			&room.RetentionSeconds, &room.LastSeq, &room.CreatedAt, &room.UpdatedAt, &room.ArchivedAt,
			&room.AdminKeyHash, &room.MessageCount, &room.LastActivity,
			&e.Bookmarked, &e.LastReadSeq, &e.UnreadCount); err != nil {
			return nil, fmt.Errorf("roomRepo.ListForSender scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *RoomRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("roomRepo.Count: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
