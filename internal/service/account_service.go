package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/repository"
)

// AccountService answers the read-only user endpoints.
type AccountService struct {
	quota     *QuotaService
	instances InstanceStore
	panels    PanelStore
	profiles  ProfileStore
	logger    *zap.Logger
}

func NewAccountService(quota *QuotaService, instances InstanceStore, panels PanelStore, profiles ProfileStore, logger *zap.Logger) *AccountService {
	return &AccountService{
		quota:     quota,
		instances: instances,
		panels:    panels,
		profiles:  profiles,
		logger:    logger,
	}
}

// ListPanels returns the caller's panels without credentials.
func (s *AccountService) ListPanels(ctx context.Context, caller models.Caller) ([]*models.Panel, error) {
	if !caller.Authenticated() {
		return nil, newError(ErrUnauthorized, msgUnauthorized, nil)
	}
	panels, err := s.panels.ListByUser(ctx, caller.UserID)
	if err != nil {
		s.logger.Error("list panels failed", zap.String("user_id", caller.UserID), zap.Error(err))
		return nil, newError(ErrPersistence, msgLoadFailed, err)
	}
	if panels == nil {
		panels = []*models.Panel{}
	}
	return panels, nil
}

// OfferedInstances lists the active instances the caller's role may use.
func (s *AccountService) OfferedInstances(ctx context.Context, caller models.Caller) ([]models.InstanceView, error) {
	if !caller.Authenticated() {
		return nil, newError(ErrUnauthorized, msgUnauthorized, nil)
	}
	role, err := s.quota.Role(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	instances, err := s.instances.ListActive(ctx)
	if err != nil {
		s.logger.Error("list instances failed", zap.Error(err))
		return nil, newError(ErrPersistence, msgLoadFailed, err)
	}

	views := make([]models.InstanceView, 0, len(instances))
	for _, inst := range instances {
		if inst.Type == models.InstanceTypePrivate && !role.Premium() {
			continue
		}
		views = append(views, inst.View())
	}
	return views, nil
}

// Me summarizes the caller's role, usage and quota.
func (s *AccountService) Me(ctx context.Context, caller models.Caller) (*models.MeResponse, error) {
	if !caller.Authenticated() {
		return nil, newError(ErrUnauthorized, msgUnauthorized, nil)
	}
	role, err := s.quota.Role(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	count, err := s.panels.CountByUser(ctx, caller.UserID)
	if err != nil {
		s.logger.Error("count panels failed", zap.String("user_id", caller.UserID), zap.Error(err))
		return nil, newError(ErrPersistence, msgLoadFailed, err)
	}

	creations := 0
	profile, err := s.profiles.GetProfile(ctx, caller.UserID)
	switch {
	case err == nil:
		creations = profile.PanelCreationsCount
	case errors.Is(err, repository.ErrNotFound):
	default:
		s.logger.Warn("load profile failed", zap.String("user_id", caller.UserID), zap.Error(err))
	}

	return &models.MeResponse{
		UserID:              caller.UserID,
		Role:                role,
		PanelCount:          count,
		PanelCreationsCount: creations,
		Quota:               s.quota.Summary(role, count),
	}, nil
}
