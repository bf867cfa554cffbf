package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/config"
	"github.com/valtp/saas-platform/panel-service/internal/models"
)

// QuotaService is the role-based admission check in front of the
// Provisioner. Free users get a fixed panel size, a panel cap and public
// instances only. Premium users only have a panel cap; resellers and admins
// are unrestricted.
type QuotaService struct {
	cfg       config.QuotaConfig
	directory *Directory
	panels    PanelStore
	profiles  ProfileStore
	logger    *zap.Logger
}

func NewQuotaService(cfg config.QuotaConfig, directory *Directory, panels PanelStore, profiles ProfileStore, logger *zap.Logger) *QuotaService {
	return &QuotaService{
		cfg:       cfg,
		directory: directory,
		panels:    panels,
		profiles:  profiles,
		logger:    logger,
	}
}

// Role returns the caller's role, free when none is stored.
func (q *QuotaService) Role(ctx context.Context, userID string) (models.Role, error) {
	role, err := q.profiles.GetRole(ctx, userID)
	if err != nil {
		q.logger.Error("load role failed", zap.String("user_id", userID), zap.Error(err))
		return "", newError(ErrPersistence, msgLoadFailed, err)
	}
	if !role.Valid() {
		q.logger.Warn("unknown role, treating as free", zap.String("user_id", userID), zap.String("role", string(role)))
		return models.RoleFree, nil
	}
	return role, nil
}

// CheckCreate admits or rejects a create request for the caller.
func (q *QuotaService) CheckCreate(ctx context.Context, caller models.Caller, req *models.CreatePanelRequest) error {
	if !caller.Authenticated() {
		return newError(ErrUnauthorized, msgUnauthorized, nil)
	}
	if req.RAM < 0 || req.CPU < 0 || req.Disk < 0 {
		return newError(ErrInvalidInput, msgInvalidLimits, nil)
	}

	role, err := q.Role(ctx, caller.UserID)
	if err != nil {
		return err
	}

	inst, err := q.directory.Lookup(ctx, req.ServerID)
	if err != nil {
		return err
	}
	if !inst.IsActive {
		return newError(ErrNotFound, msgServerNotFound, nil)
	}
	if role.Premium() {
		if role == models.RolePremium && q.cfg.PremiumMaxPanels > 0 {
			return q.checkPanelCap(ctx, caller, q.cfg.PremiumMaxPanels)
		}
		return nil
	}

	if inst.Type == models.InstanceTypePrivate {
		return newError(ErrForbidden, msgPrivateServer, nil)
	}

	if q.cfg.FreeMaxPanels > 0 {
		if err := q.checkPanelCap(ctx, caller, q.cfg.FreeMaxPanels); err != nil {
			return err
		}
	}

	if req.RAM != q.cfg.FreeRAM || req.CPU != q.cfg.FreeCPU || req.Disk != q.cfg.FreeDisk {
		return newError(ErrForbidden, q.freeLimitsMessage(), nil)
	}
	return nil
}

func (q *QuotaService) checkPanelCap(ctx context.Context, caller models.Caller, limit int) error {
	count, err := q.panels.CountByUser(ctx, caller.UserID)
	if err != nil {
		q.logger.Error("count panels failed", zap.String("user_id", caller.UserID), zap.Error(err))
		return newError(ErrPersistence, msgLoadFailed, err)
	}
	if count >= limit {
		return newError(ErrForbidden, msgQuotaPanels, nil)
	}
	return nil
}

// Summary describes what role may still provision given its panel count.
func (q *QuotaService) Summary(role models.Role, panelCount int) models.QuotaSummary {
	if role.Premium() {
		limit := 0
		if role == models.RolePremium {
			limit = q.cfg.PremiumMaxPanels
		}
		return models.QuotaSummary{
			MaxPanels:       limit,
			AllowUnlimited:  true,
			AllowPrivate:    true,
			RemainingPanels: remainingPanels(limit, panelCount),
		}
	}

	return models.QuotaSummary{
		MaxPanels:       q.cfg.FreeMaxPanels,
		FixedRAM:        q.cfg.FreeRAM,
		FixedCPU:        q.cfg.FreeCPU,
		FixedDisk:       q.cfg.FreeDisk,
		RemainingPanels: remainingPanels(q.cfg.FreeMaxPanels, panelCount),
	}
}

// remainingPanels returns -1 when limit is 0 (unlimited).
func remainingPanels(limit, count int) int {
	if limit <= 0 {
		return -1
	}
	if count >= limit {
		return 0
	}
	return limit - count
}

func (q *QuotaService) freeLimitsMessage() string {
	return fmt.Sprintf("Akun gratis hanya dapat membuat panel %dMB RAM, %d%% CPU dan %dMB disk",
		q.cfg.FreeRAM, q.cfg.FreeCPU, q.cfg.FreeDisk)
}
