package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valtp/saas-platform/panel-service/internal/models"
)

// ProfileRepository covers profiles and user_roles.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// IncrementPanelCount bumps panel_creations_count, creating the profile row
// if the auth provider has not written one yet.
func (r *ProfileRepository) IncrementPanelCount(ctx context.Context, userID string) error {
	query := `
		INSERT INTO profiles (user_id, panel_creations_count)
		VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE SET
			panel_creations_count = profiles.panel_creations_count + 1
	`
	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("increment panel count: %w", err)
	}
	return nil
}

func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	query := `
		SELECT user_id, email, full_name, panel_creations_count, created_at
		FROM profiles
		WHERE user_id = $1
	`
	p := &models.Profile{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Email, &p.FullName, &p.PanelCreationsCount, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// GetRole returns the user's role; users without a row are free.
func (r *ProfileRepository) GetRole(ctx context.Context, userID string) (models.Role, error) {
	var role string
	err := r.pool.QueryRow(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RoleFree, nil
		}
		return "", fmt.Errorf("get role: %w", err)
	}
	return models.Role(role), nil
}

func (r *ProfileRepository) SetRole(ctx context.Context, userID string, role models.Role) error {
	query := `
		INSERT INTO user_roles (user_id, role)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			role = EXCLUDED.role,
			updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, userID, string(role)); err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}
