package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentchat/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// Upsert создаёт или обновляет профиль имени.
func (r *ProfileRepository) Upsert(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	out := &model.Profile{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO profiles (name, display_name, avatar_url, bio, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (name) DO UPDATE
		   SET display_name = EXCLUDED.display_name,
		       avatar_url   = EXCLUDED.avatar_url,
		       bio          = EXCLUDED.bio,
		       updated_at   = now()
		 RETURNING name, display_name, avatar_url, bio, updated_at`,
		p.Name, p.DisplayName, p.AvatarURL, p.Bio,
	).Scan(&out.Name, &out.DisplayName, &out.AvatarURL, &out.Bio, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("profileRepo.Upsert: %w", err)
	}
	return out, nil
}

func (r *ProfileRepository) Get(ctx context.Context, name string) (*model.Profile, error) {
	p := &model.Profile{}
	err := r.pool.QueryRow(ctx,
		`SELECT name, display_name, avatar_url, bio, updated_at FROM profiles WHERE name = $1`,
		name,
	).Scan(&p.Name, &p.DisplayName, &p.AvatarURL, &p.Bio, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profileRepo.Get: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) List(ctx context.Context) ([]model.Profile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, display_name, avatar_url, bio, updated_at FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("profileRepo.List query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Profile, 0, 16)
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.Name, &p.DisplayName, &p.AvatarURL, &p.Bio, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("profileRepo.List scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProfileRepository) Delete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM profiles WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("profileRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
