package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/valtp/saas-platform/panel-service/internal/models"
)

func newAccount(f *fixture) *AccountService {
	return NewAccountService(newQuota(f), f.store.Instances(), f.store.Panels(), f.store.Profiles(), zaptest.NewLogger(f.t))
}

func TestAccountOfferedInstances(t *testing.T) {
	f := newFixture(t)
	f.addInstance("VIP", models.InstanceTypePrivate, true)
	f.addInstance("Old", models.InstanceTypePublic, false)
	acc := newAccount(f)

	views, err := acc.OfferedInstances(f.ctx, alice)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "S1", views[0].Name)
	assert.True(t, views[0].HasAppKey)

	require.NoError(t, f.store.Profiles().SetRole(f.ctx, bob.UserID, models.RoleReseller))
	views, err = acc.OfferedInstances(f.ctx, bob)
	require.NoError(t, err)
	assert.Len(t, views, 2)

	_, err = acc.OfferedInstances(f.ctx, models.Caller{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAccountListPanelsAndMe(t *testing.T) {
	f := newFixture(t)
	acc := newAccount(f)

	me, err := acc.Me(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, models.RoleFree, me.Role)
	assert.Equal(t, 0, me.PanelCount)
	assert.Equal(t, 0, me.PanelCreationsCount)
	assert.Equal(t, 1, me.Quota.RemainingPanels)

	f.mustProvision(alice, "bot-alpha")
	f.mustProvision(bob, "bot-beta")

	panels, err := acc.ListPanels(f.ctx, alice)
	require.NoError(t, err)
	require.Len(t, panels, 1)
	assert.Equal(t, "bot-alpha", panels[0].Username)
	assert.Empty(t, panels[0].Password)

	me, err = acc.Me(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, me.PanelCount)
	assert.Equal(t, 1, me.PanelCreationsCount)
	assert.Equal(t, 0, me.Quota.RemainingPanels)

	empty, err := acc.ListPanels(f.ctx, models.Caller{UserID: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
