package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valtp/saas-platform/panel-service/internal/models"
)

const panelColumns = `
	p.id, p.user_id, p.server_id, p.ptero_user_id, p.ptero_server_id,
	p.username, p.email, p.password_hash, p.login_url,
	p.ram, p.cpu, p.disk, p.is_active, p.created_at`

type PanelRepository struct {
	pool *pgxpool.Pool
}

func NewPanelRepository(pool *pgxpool.Pool) *PanelRepository {
	return &PanelRepository{pool: pool}
}

func (r *PanelRepository) Create(ctx context.Context, p *models.Panel) error {
	query := `
		INSERT INTO user_panels (
			id, user_id, server_id, ptero_user_id, ptero_server_id,
			username, email, password_hash, login_url,
			ram, cpu, disk, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		p.ID, p.UserID, p.ServerID, p.PteroUserID, p.PteroServerID,
		p.Username, p.Email, p.PasswordHash, p.LoginURL,
		p.RAM, p.CPU, p.Disk, p.IsActive,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert panel: %w", err)
	}
	return nil
}

// GetOwnedWithInstance loads a panel owned by userID together with its
// backing instance. Instance is nil when the instance row is gone.
func (r *PanelRepository) GetOwnedWithInstance(ctx context.Context, id, userID string) (*models.PanelWithInstance, error) {
	query := `SELECT` + panelColumns + `,
			s.id, s.name, s.domain, s.plta_key, s.pltc_key, s.server_type,
			s.location_id, s.egg_id, s.is_active, s.created_at, s.updated_at
		FROM user_panels p
		LEFT JOIN pterodactyl_servers s ON s.id = p.server_id
		WHERE p.id::text = $1 AND p.user_id = $2
	`

	pw := &models.PanelWithInstance{}
	var (
		instID, instName, instDomain, instAppKey, instClientKey, instType *string
		instLocation, instEgg                                             *int
		instActive                                                        *bool
		instCreated, instUpdated                                          *time.Time
	)
	p := &pw.Panel
	err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&p.ID, &p.UserID, &p.ServerID, &p.PteroUserID, &p.PteroServerID,
		&p.Username, &p.Email, &p.PasswordHash, &p.LoginURL,
		&p.RAM, &p.CPU, &p.Disk, &p.IsActive, &p.CreatedAt,
		&instID, &instName, &instDomain, &instAppKey, &instClientKey, &instType,
		&instLocation, &instEgg, &instActive, &instCreated, &instUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get panel with instance: %w", err)
	}

	if instID != nil {
		pw.Instance = &models.BackingInstance{
			ID:         *instID,
			Name:       deref(instName),
			Domain:     deref(instDomain),
			AppKey:     deref(instAppKey),
			ClientKey:  deref(instClientKey),
			Type:       models.InstanceType(deref(instType)),
			LocationID: derefInt(instLocation),
			EggID:      derefInt(instEgg),
			IsActive:   instActive != nil && *instActive,
		}
		if instCreated != nil {
			pw.Instance.CreatedAt = *instCreated
		}
		if instUpdated != nil {
			pw.Instance.UpdatedAt = *instUpdated
		}
	}
	return pw, nil
}

// CountByRemoteUser counts panels on instanceID that reference the remote
// user, excluding excludeID.
func (r *PanelRepository) CountByRemoteUser(ctx context.Context, instanceID string, pteroUserID int, excludeID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM user_panels
		WHERE server_id::text = $1 AND ptero_user_id = $2 AND id::text <> $3
	`
	var n int
	if err := r.pool.QueryRow(ctx, query, instanceID, pteroUserID, excludeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count panels by remote user: %w", err)
	}
	return n, nil
}

// Delete removes a panel owned by userID and reports the affected rows.
func (r *PanelRepository) Delete(ctx context.Context, id, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_panels WHERE id::text = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete panel: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByUser retrieves the panels of one user, newest first
func (r *PanelRepository) ListByUser(ctx context.Context, userID string) ([]*models.Panel, error) {
	query := `SELECT` + panelColumns + `
		FROM user_panels p
		WHERE p.user_id = $1
		ORDER BY p.created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query panels: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *PanelRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_panels WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count panels: %w", err)
	}
	return n, nil
}

// ListAll retrieves every panel, newest first
func (r *PanelRepository) ListAll(ctx context.Context) ([]*models.Panel, error) {
	query := `SELECT` + panelColumns + `
		FROM user_panels p
		ORDER BY p.created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all panels: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// RemoteUserIDs returns the distinct remote user ids referenced on an instance
func (r *PanelRepository) RemoteUserIDs(ctx context.Context, instanceID string) ([]int, error) {
	query := `
		SELECT DISTINCT ptero_user_id
		FROM user_panels
		WHERE server_id::text = $1 AND ptero_user_id IS NOT NULL
	`
	rows, err := r.pool.Query(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query remote user ids: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan remote user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PanelRepository) scanMany(rows pgx.Rows) ([]*models.Panel, error) {
	var results []*models.Panel
	for rows.Next() {
		p := &models.Panel{}
		err := rows.Scan(
			&p.ID, &p.UserID, &p.ServerID, &p.PteroUserID, &p.PteroServerID,
			&p.Username, &p.Email, &p.PasswordHash, &p.LoginURL,
			&p.RAM, &p.CPU, &p.Disk, &p.IsActive, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan panel row: %w", err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
