package service

import (
	"context"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/repository"
)

// Directory resolves backing instance ids to connection facts so requests
// never carry hosts or keys. Lookups are cached for a short TTL; a zero TTL
// disables the cache.
type Directory struct {
	store  InstanceStore
	cache  *ttlcache.Cache[string, models.BackingInstance]
	logger *zap.Logger
}

func NewDirectory(store InstanceStore, ttl time.Duration, logger *zap.Logger) *Directory {
	d := &Directory{store: store, logger: logger}
	if ttl > 0 {
		d.cache = ttlcache.New[string, models.BackingInstance](
			ttlcache.WithTTL[string, models.BackingInstance](ttl),
			ttlcache.WithDisableTouchOnHit[string, models.BackingInstance](),
		)
		go d.cache.Start()
	}
	return d
}

// Lookup returns the backing instance with the given id, active or not.
func (d *Directory) Lookup(ctx context.Context, id string) (*models.BackingInstance, error) {
	if id == "" {
		return nil, newError(ErrNotFound, msgServerNotFound, nil)
	}

	if d.cache != nil {
		if item := d.cache.Get(id); item != nil {
			inst := item.Value()
			return &inst, nil
		}
	}

	inst, err := d.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, msgServerNotFound, err)
		}
		d.logger.Error("instance lookup failed", zap.String("instance_id", id), zap.Error(err))
		return nil, newError(ErrPersistence, msgLoadFailed, err)
	}

	if d.cache != nil {
		d.cache.Set(id, *inst, ttlcache.DefaultTTL)
	}
	return inst, nil
}

// Invalidate drops a cached entry after the instance row changed.
func (d *Directory) Invalidate(id string) {
	if d.cache != nil {
		d.cache.Delete(id)
	}
}

// Close stops the cache's expiry loop.
func (d *Directory) Close() {
	if d.cache != nil {
		d.cache.Stop()
	}
}
