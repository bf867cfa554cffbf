package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/repository/memstore"
)

func TestDirectoryLookup(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	inst := &models.BackingInstance{Name: "S1", Domain: "https://panel.example", AppKey: "ptla_x", Type: models.InstanceTypePublic, LocationID: 2, EggID: 5, IsActive: true}
	require.NoError(t, store.Instances().Create(ctx, inst))

	dir := NewDirectory(store.Instances(), 0, zaptest.NewLogger(t))

	got, err := dir.Lookup(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://panel.example", got.Domain)
	assert.Equal(t, "ptla_x", got.AppKey)
	assert.Equal(t, 5, got.EggID)
	assert.Equal(t, 2, got.LocationID)

	_, err = dir.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = dir.Lookup(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	store.FailOn(memstore.OpInstanceGet, errors.New("db down"))
	_, err = dir.Lookup(ctx, inst.ID)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestDirectoryCacheAndInvalidate(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	inst := &models.BackingInstance{Name: "S1", Domain: "https://old.example", AppKey: "ptla_x", Type: models.InstanceTypePublic, LocationID: 1, EggID: 1, IsActive: true}
	require.NoError(t, store.Instances().Create(ctx, inst))

	dir := NewDirectory(store.Instances(), time.Minute, zaptest.NewLogger(t))
	defer dir.Close()

	_, err := dir.Lookup(ctx, inst.ID)
	require.NoError(t, err)

	updated := *inst
	updated.Domain = "https://new.example"
	require.NoError(t, store.Instances().Update(ctx, &updated))

	got, err := dir.Lookup(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://old.example", got.Domain, "served from cache")

	dir.Invalidate(inst.ID)
	got, err = dir.Lookup(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example", got.Domain)
}
