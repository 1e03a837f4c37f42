package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const msgColumns = `m.id, m.room_id, m.seq, m.sender, m.sender_type, m.content, m.reply_to_id, m.metadata,
	m.edited_at, m.deleted, m.created_at,
	EXISTS (SELECT 1 FROM pins p WHERE p.message_id = m.id)`

func scanMessage(row pgx.Row) (*model.Message, error) {
	m := &model.Message{}
	err := row.Scan(&m.ID, &m.RoomID, &m.Seq, &m.Sender, &m.SenderType, &m.Content, &m.ReplyToID,
		&m.Metadata, &m.EditedAt, &m.Deleted, &m.CreatedAt, &m.Pinned)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func scanMessages(rows pgx.Rows) ([]model.Message, error) {
	defer rows.Close()
	out := make([]model.Message, 0, 32)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.Seq, &m.Sender, &m.SenderType, &m.Content, &m.ReplyToID,
			&m.Metadata, &m.EditedAt, &m.Deleted, &m.CreatedAt, &m.Pinned); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const insertAttempts = 3

// Create вставляет сообщение, выдавая ему следующий seq комнаты без дыр.
// Счётчик rooms.last_seq обновляется в той же транзакции, блокировка строки
// сериализует писателей одной комнаты. После insertAttempts неудач возвращает
// ErrTransient, клиент может повторить запрос.
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	var lastErr error
	for attempt := 0; attempt < insertAttempts; attempt++ {
		err := r.createOnce(ctx, m)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return err
		}
		lastErr = err
		logger.Debugf("msg.Create попытка %d не прошла: %v", attempt+1, err)
	}
	return fmt.Errorf("msgRepo.Create: %w (%v)", ErrTransient, lastErr)
}

func (r *MessageRepository) createOnce(ctx context.Context, m *model.Message) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var seq int64
	err = tx.QueryRow(ctx,
		`UPDATE rooms SET last_seq = last_seq + 1, updated_at = now()
		 WHERE id = $1 AND NOT archived
		 RETURNING last_seq`, m.RoomID,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		// комнаты нет или она архивная, различает вызывающий
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("alloc seq: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, room_id, seq, sender, sender_type, content, reply_to_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.RoomID, seq, m.Sender, m.SenderType, m.Content, m.ReplyToID, m.Metadata, m.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.Seq = seq
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+msgColumns+` FROM messages m WHERE m.id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, err
}

// ListParams — выборка истории. SinceSeq=0 и BeforeSeq=0 отключают границы.
type ListParams struct {
	SinceSeq  int64
	BeforeSeq int64
	Limit     int
	Ascending bool
}

func (r *MessageRepository) List(ctx context.Context, roomID string, p ListParams) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.List", time.Now())()
	q := `SELECT ` + msgColumns + ` FROM messages m WHERE m.room_id = $1 AND NOT m.deleted`
	args := []any{roomID}
	if p.SinceSeq > 0 {
		args = append(args, p.SinceSeq)
		q += fmt.Sprintf(` AND m.seq > $%d`, len(args))
	}
	if p.BeforeSeq > 0 {
		args = append(args, p.BeforeSeq)
		q += fmt.Sprintf(` AND m.seq < $%d`, len(args))
	}
	if p.Ascending {
		q += ` ORDER BY m.seq ASC`
	} else {
		q += ` ORDER BY m.seq DESC`
	}
	args = append(args, p.Limit)
	q += fmt.Sprintf(` LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.List query: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.List scan: %w", err)
	}
	return msgs, nil
}

// ListRecent — свежие сообщения по всем комнатам для ленты активности.
func (r *MessageRepository) ListRecent(ctx context.Context, roomID, sender, senderType string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListRecent", time.Now())()
	q := `SELECT ` + msgColumns + ` FROM messages m WHERE NOT m.deleted`
	args := []any{}
	if roomID != "" {
		args = append(args, roomID)
		q += fmt.Sprintf(` AND m.room_id = $%d`, len(args))
	}
	if sender != "" {
		args = append(args, sender)
		q += fmt.Sprintf(` AND m.sender = $%d`, len(args))
	}
	if senderType != "" {
		args = append(args, senderType)
		q += fmt.Sprintf(` AND m.sender_type = $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY m.created_at DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListRecent query: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListRecent scan: %w", err)
	}
	return msgs, nil
}

// Edit меняет текст сообщения. Редактировать может только отправитель,
// удалённые сообщения не редактируются.
func (r *MessageRepository) Edit(ctx context.Context, id, sender, content string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.Edit", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET content = $3, edited_at = now()
		 WHERE id = $1 AND sender = $2 AND NOT deleted`,
		id, sender, content,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Edit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		m, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if m.Deleted {
			return nil, ErrNotFound
		}
		return nil, ErrForbidden
	}
	return r.GetByID(ctx, id)
}

// Delete помечает сообщение удалённым и очищает текст. Seq остаётся занятым,
// последующие выборки отвечают not_found, reply_to ссылки остаются висеть.
func (r *MessageRepository) Delete(ctx context.Context, id, sender string, force bool) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.Delete", time.Now())()
	q := `UPDATE messages SET deleted = true, content = '' WHERE id = $1 AND NOT deleted`
	args := []any{id}
	if !force {
		args = append(args, sender)
		q += ` AND sender = $2`
	}
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		m, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if m.Deleted {
			return nil, ErrNotFound
		}
		return nil, ErrForbidden
	}
	return r.GetByID(ctx, id)
}

// escapeLike гасит метасимволы LIKE, чтобы запрос "100%" искал буквально.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Search ищет по подстроке без учёта регистра в пределах комнаты или по всем комнатам.
func (r *MessageRepository) Search(ctx context.Context, roomID, query, sender string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.Search", time.Now())()
	q := `SELECT ` + msgColumns + ` FROM messages m WHERE NOT m.deleted AND m.content ILIKE '%' || $1 || '%' ESCAPE '\'`
	args := []any{escapeLike(query)}
	if roomID != "" {
		args = append(args, roomID)
		q += fmt.Sprintf(` AND m.room_id = $%d`, len(args))
	}
	if sender != "" {
		args = append(args, sender)
		q += fmt.Sprintf(` AND m.sender = $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY m.created_at DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Search query: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Search scan: %w", err)
	}
	return msgs, nil
}

// Replies возвращает прямые ответы на сообщение по порядку seq.
func (r *MessageRepository) Replies(ctx context.Context, messageID string) ([]model.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+msgColumns+` FROM messages m
		 WHERE m.reply_to_id = $1 AND NOT m.deleted
		 ORDER BY m.seq ASC`, messageID)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Replies query: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Replies scan: %w", err)
	}
	return msgs, nil
}

// Participants агрегирует всех, кто когда-либо писал в комнату.
// sender_type берётся из последнего сообщения участника.
func (r *MessageRepository) Participants(ctx context.Context, roomID string) ([]model.Participant, error) {
	defer logger.DeferLogDuration("msg.Participants", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT $1::text, m.sender,
		        (ARRAY_AGG(m.sender_type ORDER BY m.seq DESC))[1],
		        COUNT(*), MIN(m.created_at), MAX(m.created_at)
		 FROM messages m
		 WHERE m.room_id = $1 AND NOT m.deleted
		 GROUP BY m.sender
		 ORDER BY MAX(m.created_at) DESC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Participants query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Participant, 0, 16)
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.RoomID, &p.Name, &p.SenderType, &p.MessageCount, &p.FirstSeenAt, &p.LastActiveAt); err != nil {
			return nil, fmt.Errorf("msgRepo.Participants scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SweepExpired помечает удалёнными сообщения старше retention комнаты.
// Закреплённые сообщения retention не трогает. Возвращает затронутые id по комнатам.
func (r *MessageRepository) SweepExpired(ctx context.Context, now time.Time) (map[string][]string, error) {
	defer logger.DeferLogDuration("msg.SweepExpired", time.Now())()
	rows, err := r.pool.Query(ctx,
		`UPDATE messages m SET deleted = true, content = ''
		 FROM rooms r
		 WHERE m.room_id = r.id
		   AND r.retention_seconds IS NOT NULL
		   AND NOT m.deleted
		   AND m.created_at < $1 - make_interval(secs => r.retention_seconds)
		   AND NOT EXISTS (SELECT 1 FROM pins p WHERE p.message_id = m.id)
		 RETURNING m.room_id, m.id`, now)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.SweepExpired: %w", err)
	}
	defer rows.Close()

	swept := make(map[string][]string)
	for rows.Next() {
		var roomID, id string
		if err := rows.Scan(&roomID, &id); err != nil {
			return nil, fmt.Errorf("msgRepo.SweepExpired scan: %w", err)
		}
		swept[roomID] = append(swept[roomID], id)
	}
	return swept, rows.Err()
}

func (r *MessageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE NOT deleted`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.Count: %w", err)
	}
	return n, nil
}
