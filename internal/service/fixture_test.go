package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/valtp/saas-platform/panel-service/internal/client"
	"github.com/valtp/saas-platform/panel-service/internal/client/pterotest"
	"github.com/valtp/saas-platform/panel-service/internal/config"
	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/repository/memstore"
)

const appKey = "ptla_fixture"

var (
	alice = models.Caller{UserID: "user-alice", Email: "alice@example.com"}
	bob   = models.Caller{UserID: "user-bob", Email: "bob@example.com"}
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memstore.Store
	fake    *pterotest.Server
	inst    *models.BackingInstance
	dir     *Directory
	remotes *client.Factory
	ptero   config.PterodactylConfig
	quota   config.QuotaConfig
	prov    *Provisioner
	deprov  *Deprovisioner
}

func pterodactylConfig() config.PterodactylConfig {
	return config.PterodactylConfig{
		Timeout:        2 * time.Second,
		EmailDomain:    "valtp.net",
		PasswordMode:   config.PasswordModeLegacy,
		PasswordSuffix: "2323",
		DockerImage:    "ghcr.io/parkervcp/yolks:nodejs_18",
		Startup:        "npm start",
		Environment: map[string]string{
			"INST":        "npm",
			"USER_UPLOAD": "0",
			"AUTO_UPDATE": "0",
			"CMD_RUN":     "npm start",
		},
		IO: 500,
	}
}

func newFixture(t *testing.T, mutate ...func(*config.PterodactylConfig)) *fixture {
	t.Helper()

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memstore.New(),
		fake:  pterotest.New(appKey),
		ptero: pterodactylConfig(),
		quota: config.QuotaConfig{FreeMaxPanels: 1, FreeRAM: 1024, FreeCPU: 40, FreeDisk: 1024},
	}
	t.Cleanup(f.fake.Close)
	for _, m := range mutate {
		m(&f.ptero)
	}

	f.inst = f.addInstance("S1", models.InstanceTypePublic, true)

	logger := zaptest.NewLogger(t)
	f.dir = NewDirectory(f.store.Instances(), 0, logger)
	f.remotes = client.NewFactory(client.Options{Timeout: f.ptero.Timeout, Logger: logger})
	f.prov = NewProvisioner(f.ptero, f.dir, f.store.Panels(), f.store.Profiles(), f.store.Logs(), f.remotes, logger)
	f.deprov = NewDeprovisioner(f.store.Panels(), f.store.Logs(), f.remotes, logger)
	return f
}

func (f *fixture) addInstance(name string, typ models.InstanceType, active bool) *models.BackingInstance {
	f.t.Helper()
	inst := &models.BackingInstance{
		Name:       name,
		Domain:     f.fake.URL,
		AppKey:     appKey,
		ClientKey:  "ptlc_fixture",
		Type:       typ,
		LocationID: 1,
		EggID:      15,
		IsActive:   active,
	}
	require.NoError(f.t, f.store.Instances().Create(f.ctx, inst))
	return inst
}

func (f *fixture) provision(caller models.Caller, username string, ram, cpu, disk int) (*models.Panel, error) {
	return f.prov.Provision(f.ctx, caller, &models.CreatePanelRequest{
		Username: username,
		ServerID: f.inst.ID,
		RAM:      ram,
		CPU:      cpu,
		Disk:     disk,
	})
}

func (f *fixture) mustProvision(caller models.Caller, username string) *models.Panel {
	f.t.Helper()
	p, err := f.provision(caller, username, 1024, 40, 1024)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) panelCount(caller models.Caller) int {
	f.t.Helper()
	n, err := f.store.Panels().CountByUser(f.ctx, caller.UserID)
	require.NoError(f.t, err)
	return n
}

func intPtr(i int) *int { return &i }
func strPtr(s string) *string { return &s }
