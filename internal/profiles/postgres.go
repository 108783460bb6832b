package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/models"
)

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const profileColumns = "id, email, role, username, full_name, avatar_url, created_at, updated_at"

// PostgresRepository implements Repository on the profiles table.
type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var (
		p    models.Profile
		role string
	)
	if err := row.Scan(&p.ID, &p.Email, &role, &p.Username, &p.FullName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	return &p, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	return p, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	row := r.db.QueryRow(ctx,
		"INSERT INTO profiles ("+profileColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8) "+
			"ON CONFLICT (id) DO NOTHING RETURNING "+profileColumns,
		p.ID, p.Email, string(p.Role), p.Username, p.FullName, p.AvatarURL, p.CreatedAt, p.UpdatedAt)
	created, err := scanProfile(row)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("insert profile %s: %w", p.ID, err)
	}
	// conflict: another caller provisioned the row first
	return r.Get(ctx, p.ID)
}

func (r *PostgresRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	tag, err := r.db.Exec(ctx, "UPDATE profiles SET role = $2, updated_at = $3 WHERE id = $1", id, string(role), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update role of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
