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

type FileRepository struct {
	pool *pgxpool.Pool
}

func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

const fileColumns = `id, room_id, message_id, filename, content_type, size_bytes, sha256, uploaded_by, created_at`

func scanFile(row pgx.Row) (*model.FileInfo, error) {
	f := &model.FileInfo{}
	err := row.Scan(&f.ID, &f.RoomID, &f.MessageID, &f.Filename, &f.ContentType,
		&f.SizeBytes, &f.SHA256, &f.UploadedBy, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *FileRepository) Create(ctx context.Context, f *model.FileInfo) error {
	defer logger.DeferLogDuration("file.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO files (id, room_id, message_id, filename, content_type, size_bytes, sha256, uploaded_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID, f.RoomID, f.MessageID, f.Filename, f.ContentType, f.SizeBytes, f.SHA256, f.UploadedBy, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("fileRepo.Create: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (*model.FileInfo, error) {
	f, err := scanFile(r.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("fileRepo.GetByID: %w", err)
	}
	return f, err
}

func (r *FileRepository) ListByRoom(ctx context.Context, roomID string, limit int) ([]model.FileInfo, error) {
	defer logger.DeferLogDuration("file.ListByRoom", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+fileColumns+` FROM files WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2`,
		roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("fileRepo.ListByRoom query: %w", err)
	}
	defer rows.Close()

	out := make([]model.FileInfo, 0, 16)
	for rows.Next() {
		var f model.FileInfo
		if err := rows.Scan(&f.ID, &f.RoomID, &f.MessageID, &f.Filename, &f.ContentType,
			&f.SizeBytes, &f.SHA256, &f.UploadedBy, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("fileRepo.ListByRoom scan: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetByMessage — вложение сообщения, если оно есть.
func (r *FileRepository) GetByMessage(ctx context.Context, messageID string) (*model.FileInfo, error) {
	f, err := scanFile(r.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE message_id = $1`, messageID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fileRepo.GetByMessage: %w", err)
	}
	return f, nil
}

// Delete убирает метаданные и возвращает sha256, чтобы вызывающий решил судьбу blob-а.
// Blob может разделяться несколькими записями, удалять его можно только когда ссылок не осталось.
func (r *FileRepository) Delete(ctx context.Context, id string) (sha string, orphaned bool, err error) {
	defer logger.DeferLogDuration("file.Delete", time.Now())()
	err = r.pool.QueryRow(ctx, `DELETE FROM files WHERE id = $1 RETURNING sha256`, id).Scan(&sha)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, ErrNotFound
	}
	if err != nil {
		return "", false, fmt.Errorf("fileRepo.Delete: %w", err)
	}
	var remaining int64
	if err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM files WHERE sha256 = $1`, sha).Scan(&remaining); err != nil {
		return sha, false, fmt.Errorf("fileRepo.Delete refs: %w", err)
	}
	return sha, remaining == 0, nil
}

func (r *FileRepository) TotalBytes(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM files`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("fileRepo.TotalBytes: %w", err)
	}
	return n, nil
}
