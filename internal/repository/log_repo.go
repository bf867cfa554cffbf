package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valtp/saas-platform/panel-service/internal/models"
)

type LogRepository struct {
	pool *pgxpool.Pool
}

func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

// Create writes a panel log entry
func (r *LogRepository) Create(ctx context.Context, entry *models.PanelLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO panel_logs (id, panel_id, user_id, instance_id, action, status, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		entry.ID, entry.PanelID, entry.UserID, entry.InstanceID,
		entry.Action, entry.Status, entry.Message, entry.Metadata,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert panel log: %w", err)
	}
	return nil
}

// ListByPanel retrieves the newest entries of a panel
func (r *LogRepository) ListByPanel(ctx context.Context, panelID string, limit int) ([]*models.PanelLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, panel_id, user_id, instance_id, action, status, message, metadata, created_at
		FROM panel_logs
		WHERE panel_id::text = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, panelID, limit)
	if err != nil {
		return nil, fmt.Errorf("query panel logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.PanelLog
	for rows.Next() {
		e := &models.PanelLog{}
		err := rows.Scan(
			&e.ID, &e.PanelID, &e.UserID, &e.InstanceID,
			&e.Action, &e.Status, &e.Message, &e.Metadata, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan panel log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
