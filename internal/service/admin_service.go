package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/repository"
)

// AdminService manages backing instances, roles and the global panel list.
type AdminService struct {
	instances InstanceStore
	panels    PanelStore
	profiles  ProfileStore
	audit     AuditLog
	directory *Directory
	logger    *zap.Logger
}

func NewAdminService(instances InstanceStore, panels PanelStore, profiles ProfileStore, audit AuditLog, directory *Directory, logger *zap.Logger) *AdminService {
	return &AdminService{
		instances: instances,
		panels:    panels,
		profiles:  profiles,
		audit:     audit,
		directory: directory,
		logger:    logger,
	}
}

func (s *AdminService) ListInstances(ctx context.Context) ([]models.InstanceView, error) {
	instances, err := s.instances.List(ctx)
	if err != nil {
		s.logger.Error("list instances failed", zap.Error(err))
		return nil, newError(ErrPersistence, msgLoadFailed, err)
	}
	views := make([]models.InstanceView, 0, len(instances))
	for _, inst := range instances {
		views = append(views, inst.View())
	}
	return views, nil
}

// CreateInstance registers a backing instance. The application key is
// required; the client key is optional.
func (s *AdminService) CreateInstance(ctx context.Context, req *models.InstanceRequest) (*models.InstanceView, error) {
	inst := &models.BackingInstance{
		ID:        uuid.New().String(),
		AppKey:    strings.TrimSpace(req.AppKey),
		ClientKey: strings.TrimSpace(req.ClientKey),
		IsActive:  true,
	}
	if err := applyInstanceRequest(inst, req); err != nil {
		return nil, err
	}
	if inst.AppKey == "" {
		return nil, newError(ErrInvalidInput, msgInvalidInstance, errors.New("plta_key is required"))
	}

	if err := s.instances.Create(ctx, inst); err != nil {
		s.logger.Error("create instance failed", zap.Error(err))
		return nil, newError(ErrPersistence, msgInternal, err)
	}

	s.logger.Info("instance created", zap.String("instance_id", inst.ID), zap.String("domain", inst.Domain))
	view := inst.View()
	return &view, nil
}

// UpdateInstance edits an instance. Empty keys keep the stored values.
func (s *AdminService) UpdateInstance(ctx context.Context, id string, req *models.InstanceRequest) (*models.InstanceView, error) {
	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, s.instanceLoadError(id, err)
	}

	if err := applyInstanceRequest(inst, req); err != nil {
		return nil, err
	}
	if key := strings.TrimSpace(req.AppKey); key != "" {
		inst.AppKey = key
	}
	if key := strings.TrimSpace(req.ClientKey); key != "" {
		inst.ClientKey = key
	}

	if err := s.instances.Update(ctx, inst); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, msgServerNotFound, err)
		}
		s.logger.Error("update instance failed", zap.String("instance_id", id), zap.Error(err))
		return nil, newError(ErrPersistence, msgInternal, err)
	}
	s.directory.Invalidate(id)

	s.logger.Info("instance updated", zap.String("instance_id", id))
	view := inst.View()
	return &view, nil
}

// DeleteInstance removes the instance row only. Remote state is untouched
// and its panels remain with no instance.
func (s *AdminService) DeleteInstance(ctx context.Context, id string) error {
	if err := s.instances.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrNotFound, msgServerNotFound, err)
		}
		s.logger.Error("delete instance failed", zap.String("instance_id", id), zap.Error(err))
		return newError(ErrPersistence, msgInternal, err)
	}
	s.directory.Invalidate(id)
	s.logger.Info("instance deleted", zap.String("instance_id", id))
	return nil
}

func (s *AdminService) ListPanels(ctx context.Context) ([]*models.Panel, error) {
	panels, err := s.panels.ListAll(ctx)
	if err != nil {
		s.logger.Error("list all panels failed", zap.Error(err))
		return nil, newError(ErrPersistence, msgLoadFailed, err)
	}
	if panels == nil {
		panels = []*models.Panel{}
	}
	return panels, nil
}

// MaxPanelLogs caps one PanelLogs page.
const MaxPanelLogs = 500

// PanelLogs returns the newest audit entries of a panel.
func (s *AdminService) PanelLogs(ctx context.Context, panelID string, limit int) ([]*models.PanelLog, error) {
	if limit > MaxPanelLogs {
		limit = MaxPanelLogs
	}
	entries, err := s.audit.ListByPanel(ctx, panelID, limit)
	if err != nil {
		s.logger.Error("list panel logs failed", zap.String("panel_id", panelID), zap.Error(err))
		return nil, newError(ErrPersistence, msgLoadFailed, err)
	}
	if entries == nil {
		entries = []*models.PanelLog{}
	}
	return entries, nil
}

func (s *AdminService) SetRole(ctx context.Context, userID string, role models.Role) error {
	if strings.TrimSpace(userID) == "" || !role.Valid() {
		return newError(ErrInvalidInput, msgInvalidRole, nil)
	}
	if err := s.profiles.SetRole(ctx, userID, role); err != nil {
		s.logger.Error("set role failed", zap.String("user_id", userID), zap.Error(err))
		return newError(ErrPersistence, msgInternal, err)
	}
	s.logger.Info("role updated", zap.String("user_id", userID), zap.String("role", string(role)))
	return nil
}

func (s *AdminService) instanceLoadError(id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return newError(ErrNotFound, msgServerNotFound, err)
	}
	s.logger.Error("load instance failed", zap.String("instance_id", id), zap.Error(err))
	return newError(ErrPersistence, msgLoadFailed, err)
}

// applyInstanceRequest validates the non-key fields and copies them onto inst.
func applyInstanceRequest(inst *models.BackingInstance, req *models.InstanceRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return newError(ErrInvalidInput, msgInvalidInstance, errors.New("name is required"))
	}

	domain, err := normalizeDomain(req.Domain)
	if err != nil {
		return newError(ErrInvalidInput, msgInvalidInstance, err)
	}

	typ := req.Type
	if typ == "" {
		typ = models.InstanceTypePublic
	}
	if !typ.Valid() {
		return newError(ErrInvalidInput, msgInvalidInstance, errors.New("server_type must be public or private"))
	}
	if req.LocationID <= 0 || req.EggID <= 0 {
		return newError(ErrInvalidInput, msgInvalidInstance, errors.New("location_id and egg_id must be positive"))
	}

	inst.Name = name
	inst.Domain = domain
	inst.Type = typ
	inst.LocationID = req.LocationID
	inst.EggID = req.EggID
	if req.IsActive != nil {
		inst.IsActive = *req.IsActive
	}
	return nil
}

// normalizeDomain requires an absolute http(s) URL and strips trailing slashes.
func normalizeDomain(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.New("domain must be an absolute http(s) URL")
	}
	return strings.TrimRight(raw, "/"), nil
}
