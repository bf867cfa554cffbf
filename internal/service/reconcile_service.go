package service

import (
	"context"
	"errors"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/repository"
)

const maxUserPages = 1000

// Reconciler lists remote users that no panel references. These are left
// behind when provisioning fails after the user was created.
type Reconciler struct {
	instances InstanceStore
	panels    PanelStore
	remotes   RemoteFactory
	workers   int
	logger    *zap.Logger
}

func NewReconciler(instances InstanceStore, panels PanelStore, remotes RemoteFactory, workers int, logger *zap.Logger) *Reconciler {
	if workers < 1 {
		workers = 1
	}
	return &Reconciler{
		instances: instances,
		panels:    panels,
		remotes:   remotes,
		workers:   workers,
		logger:    logger,
	}
}

// OrphanedUsers reports the orphaned remote users of one instance.
func (r *Reconciler) OrphanedUsers(ctx context.Context, instanceID string) (*models.OrphanReport, error) {
	inst, err := r.instances.GetByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, msgServerNotFound, err)
		}
		return nil, newError(ErrPersistence, msgLoadFailed, err)
	}
	return r.report(ctx, inst)
}

// OrphanedUsersAll scans every active instance concurrently. A failing
// instance is reported with its error instead of aborting the scan.
func (r *Reconciler) OrphanedUsersAll(ctx context.Context) ([]models.OrphanReport, error) {
	instances, err := r.instances.ListActive(ctx)
	if err != nil {
		return nil, newError(ErrPersistence, msgLoadFailed, err)
	}
	if len(instances) == 0 {
		return []models.OrphanReport{}, nil
	}

	reports := make([]models.OrphanReport, len(instances))
	pool := pond.NewPool(min(r.workers, len(instances)))

	for i, inst := range instances {
		pool.Submit(func() {
			rep, err := r.report(ctx, inst)
			if err != nil {
				r.logger.Warn("reconcile instance failed",
					zap.String("instance_id", inst.ID),
					zap.Error(err))
				reports[i] = models.OrphanReport{
					InstanceID:   inst.ID,
					InstanceName: inst.Name,
					Orphans:      []models.OrphanUser{},
					Error:        err.Error(),
				}
				return
			}
			reports[i] = *rep
		})
	}
	pool.StopAndWait()

	return reports, nil
}

func (r *Reconciler) report(ctx context.Context, inst *models.BackingInstance) (*models.OrphanReport, error) {
	ids, err := r.panels.RemoteUserIDs(ctx, inst.ID)
	if err != nil {
		return nil, newError(ErrPersistence, msgLoadFailed, err)
	}
	referenced := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		referenced[id] = struct{}{}
	}

	remote := r.remotes.For(inst.Domain, inst.AppKey)
	rep := &models.OrphanReport{
		InstanceID:   inst.ID,
		InstanceName: inst.Name,
		Orphans:      []models.OrphanUser{},
	}

	for page := 1; page <= maxUserPages; page++ {
		result, err := remote.ListUsers(ctx, page)
		if err != nil {
			return nil, newError(ErrRemote, msgLoadFailed, err)
		}
		for _, u := range result.Users {
			rep.RemoteUsers++
			if u.RootAdmin {
				continue
			}
			if _, ok := referenced[u.ID]; ok {
				continue
			}
			rep.Orphans = append(rep.Orphans, models.OrphanUser{
				ID:        u.ID,
				Username:  u.Username,
				Email:     u.Email,
				CreatedAt: u.CreatedAt,
			})
		}
		if page >= result.Pagination.TotalPages {
			break
		}
	}

	r.logger.Info("instance reconciled",
		zap.String("instance_id", inst.ID),
		zap.Int("remote_users", rep.RemoteUsers),
		zap.Int("orphans", len(rep.Orphans)))
	return rep, nil
}
