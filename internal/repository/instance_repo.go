package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valtp/saas-platform/panel-service/internal/models"
)

var ErrNotFound = errors.New("not found")

const instanceColumns = `
	id, name, domain, plta_key, pltc_key, server_type,
	location_id, egg_id, is_active, created_at, updated_at`

type InstanceRepository struct {
	pool *pgxpool.Pool
}

func NewInstanceRepository(pool *pgxpool.Pool) *InstanceRepository {
	return &InstanceRepository{pool: pool}
}

// GetByID retrieves a backing instance by id
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.BackingInstance, error) {
	query := `SELECT` + instanceColumns + `
		FROM pterodactyl_servers
		WHERE id::text = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// List retrieves all instances
func (r *InstanceRepository) List(ctx context.Context) ([]*models.BackingInstance, error) {
	query := `SELECT` + instanceColumns + `
		FROM pterodactyl_servers
		ORDER BY name
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// ListActive retrieves the instances currently offered to users
func (r *InstanceRepository) ListActive(ctx context.Context) ([]*models.BackingInstance, error) {
	query := `SELECT` + instanceColumns + `
		FROM pterodactyl_servers
		WHERE is_active = true
		ORDER BY name
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active instances: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *InstanceRepository) Create(ctx context.Context, inst *models.BackingInstance) error {
	query := `
		INSERT INTO pterodactyl_servers (
			id, name, domain, plta_key, pltc_key, server_type,
			location_id, egg_id, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		inst.ID, inst.Name, inst.Domain, inst.AppKey, inst.ClientKey, inst.Type,
		inst.LocationID, inst.EggID, inst.IsActive,
	).Scan(&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

func (r *InstanceRepository) Update(ctx context.Context, inst *models.BackingInstance) error {
	query := `
		UPDATE pterodactyl_servers SET
			name = $1,
			domain = $2,
			plta_key = $3,
			pltc_key = $4,
			server_type = $5,
			location_id = $6,
			egg_id = $7,
			is_active = $8,
			updated_at = NOW()
		WHERE id::text = $9
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		inst.Name, inst.Domain, inst.AppKey, inst.ClientKey, inst.Type,
		inst.LocationID, inst.EggID, inst.IsActive, inst.ID,
	).Scan(&inst.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update instance: %w", err)
	}
	return nil
}

// Delete removes the instance row. Panels keep their rows with server_id
// set to NULL by the foreign key.
func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pterodactyl_servers WHERE id::text = $1`, id)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *InstanceRepository) scanOne(row pgx.Row) (*models.BackingInstance, error) {
	inst := &models.BackingInstance{}
	err := row.Scan(
		&inst.ID, &inst.Name, &inst.Domain, &inst.AppKey, &inst.ClientKey, &inst.Type,
		&inst.LocationID, &inst.EggID, &inst.IsActive, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan instance: %w", err)
	}
	return inst, nil
}

func (r *InstanceRepository) scanMany(rows pgx.Rows) ([]*models.BackingInstance, error) {
	var results []*models.BackingInstance
	for rows.Next() {
		inst := &models.BackingInstance{}
		err := rows.Scan(
			&inst.ID, &inst.Name, &inst.Domain, &inst.AppKey, &inst.ClientKey, &inst.Type,
			&inst.LocationID, &inst.EggID, &inst.IsActive, &inst.CreatedAt, &inst.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan instance row: %w", err)
		}
		results = append(results, inst)
	}
	return results, rows.Err()
}
