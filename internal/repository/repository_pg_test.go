package repository

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/valtp/saas-platform/panel-service/internal/db"
	"github.com/valtp/saas-platform/panel-service/internal/models"
)

// openTestPool migrates a throwaway schema on the database at DATABASE_URL.
// Tests are skipped when it is unset.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := pgx.Identifier{"panel_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]}.Sanitize()

	admin, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := db.RunMigrations(ctx, pool, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotEmpty(t, applied)
	return pool
}

func testInstance(name string, active bool) *models.BackingInstance {
	return &models.BackingInstance{
		ID:         uuid.NewString(),
		Name:       name,
		Domain:     "https://" + strings.ToLower(name) + ".example.com",
		AppKey:     "ptla_" + name,
		ClientKey:  "ptlc_" + name,
		Type:       models.InstanceTypePublic,
		LocationID: 1,
		EggID:      15,
		IsActive:   active,
	}
}

func testPanel(userID, instanceID string, pteroUserID, pteroServerID int) *models.Panel {
	return &models.Panel{
		ID:            uuid.NewString(),
		UserID:        userID,
		ServerID:      &instanceID,
		PteroUserID:   &pteroUserID,
		PteroServerID: &pteroServerID,
		Username:      "bot-alpha",
		Email:         "bot-alpha@valtp.net",
		PasswordHash:  "$2a$10$hash",
		LoginURL:      "https://s1.example.com",
		RAM:           1024,
		CPU:           40,
		Disk:          1024,
		IsActive:      true,
	}
}

func TestPostgresInstances(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewInstanceRepository(pool)

	s1 := testInstance("S1", true)
	s2 := testInstance("S2", false)
	require.NoError(t, repo.Create(ctx, s1))
	require.NoError(t, repo.Create(ctx, s2))
	assert.False(t, s1.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, "ptla_S1", got.AppKey)
	assert.Equal(t, models.InstanceTypePublic, got.Type)

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound, "malformed ids are not found, not a cast error")
	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "S1", all[0].Name)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, s1.ID, active[0].ID)

	s2.IsActive = true
	s2.Type = models.InstanceTypePrivate
	require.NoError(t, repo.Update(ctx, s2))
	got, err = repo.GetByID(ctx, s2.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, models.InstanceTypePrivate, got.Type)

	missing := testInstance("S3", true)
	assert.ErrorIs(t, repo.Update(ctx, missing), ErrNotFound)

	require.NoError(t, repo.Delete(ctx, s2.ID))
	assert.ErrorIs(t, repo.Delete(ctx, s2.ID), ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "junk"), ErrNotFound)
}

func TestPostgresPanels(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	instances := NewInstanceRepository(pool)
	panels := NewPanelRepository(pool)

	s1 := testInstance("S1", true)
	s2 := testInstance("S2", true)
	require.NoError(t, instances.Create(ctx, s1))
	require.NoError(t, instances.Create(ctx, s2))

	a := testPanel("user-alice", s1.ID, 7, 100)
	b := testPanel("user-alice", s1.ID, 7, 101)
	other := testPanel("user-bob", s2.ID, 7, 200)
	for _, p := range []*models.Panel{a, b, other} {
		require.NoError(t, panels.Create(ctx, p))
	}

	pw, err := panels.GetOwnedWithInstance(ctx, a.ID, "user-alice")
	require.NoError(t, err)
	require.NotNil(t, pw.Instance)
	assert.Equal(t, s1.ID, pw.Instance.ID)
	assert.Equal(t, "ptla_S1", pw.Instance.AppKey)
	assert.Equal(t, 100, *pw.PteroServerID)
	assert.Equal(t, "$2a$10$hash", pw.PasswordHash)

	_, err = panels.GetOwnedWithInstance(ctx, a.ID, "user-bob")
	assert.ErrorIs(t, err, ErrNotFound, "owner scoped")
	_, err = panels.GetOwnedWithInstance(ctx, "not-a-uuid", "user-alice")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := panels.CountByRemoteUser(ctx, s1.ID, 7, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "sibling on the same instance only")

	ids, err := panels.RemoteUserIDs(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, ids)

	count, err := panels.CountByUser(ctx, "user-alice")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	mine, err := panels.ListByUser(ctx, "user-alice")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := panels.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	affected, err := panels.Delete(ctx, a.ID, "user-bob")
	require.NoError(t, err)
	assert.Zero(t, affected)
	affected, err = panels.Delete(ctx, "junk", "user-alice")
	require.NoError(t, err)
	assert.Zero(t, affected)
	affected, err = panels.Delete(ctx, a.ID, "user-alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
}

func TestPostgresInstanceDeleteKeepsPanels(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	instances := NewInstanceRepository(pool)
	panels := NewPanelRepository(pool)

	s1 := testInstance("S1", true)
	require.NoError(t, instances.Create(ctx, s1))
	p := testPanel("user-alice", s1.ID, 7, 100)
	require.NoError(t, panels.Create(ctx, p))

	require.NoError(t, instances.Delete(ctx, s1.ID))

	pw, err := panels.GetOwnedWithInstance(ctx, p.ID, "user-alice")
	require.NoError(t, err)
	assert.Nil(t, pw.ServerID, "ON DELETE SET NULL")
	assert.Nil(t, pw.Instance)
	require.NotNil(t, pw.PteroUserID)
	assert.Equal(t, 7, *pw.PteroUserID)
}

func TestPostgresProfiles(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewProfileRepository(pool)

	role, err := repo.GetRole(ctx, "user-alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleFree, role)

	require.NoError(t, repo.SetRole(ctx, "user-alice", models.RolePremium))
	require.NoError(t, repo.SetRole(ctx, "user-alice", models.RoleReseller))
	role, err = repo.GetRole(ctx, "user-alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleReseller, role)

	_, err = repo.GetProfile(ctx, "user-alice")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.IncrementPanelCount(ctx, "user-alice"))
	require.NoError(t, repo.IncrementPanelCount(ctx, "user-alice"))
	profile, err := repo.GetProfile(ctx, "user-alice")
	require.NoError(t, err)
	assert.Equal(t, 2, profile.PanelCreationsCount)
}

func TestPostgresLogs(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewLogRepository(pool)

	panelID := uuid.NewString()
	require.NoError(t, repo.Create(ctx, &models.PanelLog{
		UserID: "user-alice",
		Action: models.ActionProvisionStarted,
		Status: models.LogStatusOK,
	}))
	require.NoError(t, repo.Create(ctx, &models.PanelLog{
		PanelID:  &panelID,
		UserID:   "user-alice",
		Action:   models.ActionPanelCreated,
		Status:   models.LogStatusOK,
		Metadata: map[string]interface{}{"ptero_server_id": 100},
	}))
	require.NoError(t, repo.Create(ctx, &models.PanelLog{
		PanelID: &panelID,
		UserID:  "user-alice",
		Action:  models.ActionPanelDeleted,
		Status:  models.LogStatusOK,
	}))

	entries, err := repo.ListByPanel(ctx, panelID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	limited, err := repo.ListByPanel(ctx, panelID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	var created *models.PanelLog
	for _, e := range entries {
		if e.Action == models.ActionPanelCreated {
			created = e
		}
	}
	require.NotNil(t, created)
	assert.EqualValues(t, 100, created.Metadata["ptero_server_id"])

	none, err := repo.ListByPanel(ctx, "not-a-uuid", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
