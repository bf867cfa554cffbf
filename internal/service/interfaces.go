package service

import (
	"context"

	"github.com/valtp/saas-platform/panel-service/internal/client"
	"github.com/valtp/saas-platform/panel-service/internal/models"
)

// Store interfaces are satisfied by the pgx repositories and memstore.

type InstanceStore interface {
	GetByID(ctx context.Context, id string) (*models.BackingInstance, error)
	List(ctx context.Context) ([]*models.BackingInstance, error)
	ListActive(ctx context.Context) ([]*models.BackingInstance, error)
	Create(ctx context.Context, inst *models.BackingInstance) error
	Update(ctx context.Context, inst *models.BackingInstance) error
	Delete(ctx context.Context, id string) error
}

type PanelStore interface {
	Create(ctx context.Context, p *models.Panel) error
	GetOwnedWithInstance(ctx context.Context, id, userID string) (*models.PanelWithInstance, error)
	CountByRemoteUser(ctx context.Context, instanceID string, pteroUserID int, excludeID string) (int, error)
	Delete(ctx context.Context, id, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Panel, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	ListAll(ctx context.Context) ([]*models.Panel, error)
	RemoteUserIDs(ctx context.Context, instanceID string) ([]int, error)
}

type ProfileStore interface {
	IncrementPanelCount(ctx context.Context, userID string) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	GetRole(ctx context.Context, userID string) (models.Role, error)
	SetRole(ctx context.Context, userID string, role models.Role) error
}

type AuditLog interface {
	Create(ctx context.Context, entry *models.PanelLog) error
	ListByPanel(ctx context.Context, panelID string, limit int) ([]*models.PanelLog, error)
}

// RemoteFactory returns a Pterodactyl client bound to one backing instance.
type RemoteFactory interface {
	For(baseURL, apiKey string) client.API
}
