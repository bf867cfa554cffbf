package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/client"
	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/repository"
)

// Deprovisioner removes a panel's remote server, its remote user when no
// sibling panel still uses it, and finally the local row.
type Deprovisioner struct {
	panels  PanelStore
	remotes RemoteFactory
	audit   auditor
	logger  *zap.Logger
}

func NewDeprovisioner(panels PanelStore, audit AuditLog, remotes RemoteFactory, logger *zap.Logger) *Deprovisioner {
	return &Deprovisioner{
		panels:  panels,
		remotes: remotes,
		audit:   auditor{store: audit, logger: logger},
		logger:  logger,
	}
}

// Deprovision deletes the caller's panel. Remote failures are logged and
// skipped; only the local delete can fail the call.
func (d *Deprovisioner) Deprovision(ctx context.Context, caller models.Caller, panelID string) error {
	if !caller.Authenticated() {
		return newError(ErrUnauthorized, msgUnauthorized, nil)
	}
	if panelID == "" {
		return newError(ErrNotFound, msgPanelNotFound, nil)
	}

	panel, err := d.panels.GetOwnedWithInstance(ctx, panelID, caller.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrNotFound, msgPanelNotFound, err)
		}
		d.logger.Error("load panel failed", zap.String("panel_id", panelID), zap.Error(err))
		return newError(ErrPersistence, msgLoadFailed, err)
	}

	log := d.logger.With(
		zap.String("panel_id", panel.ID),
		zap.String("user_id", caller.UserID),
		zap.String("username", panel.Username))

	// Once remote deletes start, a disconnecting caller must not leave the
	// row pointing at a server that no longer exists. Remote calls are
	// bounded by the client timeout.
	detached := context.WithoutCancel(ctx)

	instanceID := ""
	if panel.Instance == nil {
		log.Warn("backing instance no longer exists, skipping remote cleanup")
	} else {
		instanceID = panel.Instance.ID
		d.cleanupRemote(detached, log, caller, panel)
	}

	persistCtx, cancel := context.WithTimeout(detached, persistTimeout)
	defer cancel()

	affected, err := d.panels.Delete(persistCtx, panel.ID, caller.UserID)
	if err != nil {
		log.Error("delete panel failed", zap.Error(err))
		return newError(ErrPersistence, msgDeletePanelFail, err)
	}
	if affected == 0 {
		log.Info("panel already deleted by a concurrent request")
	}

	panelRef := panel.ID
	d.audit.record(detached, &models.PanelLog{
		PanelID:    &panelRef,
		UserID:     caller.UserID,
		InstanceID: instanceID,
		Action:     models.ActionPanelDeleted,
		Status:     models.LogStatusOK,
		Message:    fmt.Sprintf("panel %s deleted", panel.Username),
	})

	log.Info("panel deprovisioned")
	return nil
}

func (d *Deprovisioner) cleanupRemote(ctx context.Context, log *zap.Logger, caller models.Caller, panel *models.PanelWithInstance) {
	remote := d.remotes.For(panel.Instance.Domain, panel.Instance.AppKey)

	if panel.PteroServerID != nil {
		serverID := *panel.PteroServerID
		d.deleteRemote(ctx, log, caller, panel, "server", serverID, func() error {
			return remote.DeleteServer(ctx, serverID)
		})
	}

	if panel.PteroUserID == nil {
		return
	}
	userID := *panel.PteroUserID

	siblings, err := d.panels.CountByRemoteUser(ctx, panel.Instance.ID, userID, panel.ID)
	if err != nil {
		log.Warn("count sibling panels failed, keeping remote user",
			zap.Int("ptero_user_id", userID),
			zap.Error(err))
		return
	}
	if siblings > 0 {
		log.Info("remote user still used by other panels",
			zap.Int("ptero_user_id", userID),
			zap.Int("siblings", siblings))
		return
	}

	d.deleteRemote(ctx, log, caller, panel, "user", userID, func() error {
		return remote.DeleteUser(ctx, userID)
	})
}

// deleteRemote runs one remote delete. A 404 counts as deleted.
func (d *Deprovisioner) deleteRemote(ctx context.Context, log *zap.Logger, caller models.Caller, panel *models.PanelWithInstance, kind string, id int, del func() error) {
	err := del()
	switch {
	case err == nil:
		log.Info("remote "+kind+" deleted", zap.Int("id", id))
	case client.IsNotFound(err):
		log.Info("remote "+kind+" already gone", zap.Int("id", id))
	default:
		log.Error("delete remote "+kind+" failed, continuing", zap.Int("id", id), zap.Error(err))
		panelRef := panel.ID
		d.audit.record(ctx, &models.PanelLog{
			PanelID:    &panelRef,
			UserID:     caller.UserID,
			InstanceID: panel.Instance.ID,
			Action:     models.ActionRemoteDeleteFailed,
			Status:     models.LogStatusFailed,
			Message:    err.Error(),
			Metadata:   map[string]interface{}{"kind": kind, "remote_id": id},
		})
	}
}
