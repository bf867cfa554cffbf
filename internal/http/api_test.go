package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/client"
	"github.com/valtp/saas-platform/panel-service/internal/client/pterotest"
	"github.com/valtp/saas-platform/panel-service/internal/config"
	panelhttp "github.com/valtp/saas-platform/panel-service/internal/http"
	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/repository/memstore"
	"github.com/valtp/saas-platform/panel-service/internal/service"
)

const (
	jwtSecret = "test-secret-key-with-at-least-32-chars"
	appKey    = "ptla_suite"
)

type api struct {
	server *panelhttp.Server
	store  *memstore.Store
	fake   *pterotest.Server
	inst   *models.BackingInstance
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Mode: "test"},
		JWT:    config.JWTConfig{SecretKey: jwtSecret},
		Pterodactyl: config.PterodactylConfig{
			Timeout:        2 * time.Second,
			EmailDomain:    "valtp.net",
			PasswordMode:   config.PasswordModeLegacy,
			PasswordSuffix: "2323",
			DockerImage:    "ghcr.io/parkervcp/yolks:nodejs_18",
			Startup:        "npm start",
			IO:             500,
		},
		Quota:     config.QuotaConfig{FreeMaxPanels: 1, FreeRAM: 1024, FreeCPU: 40, FreeDisk: 1024},
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 100, CreatesPerHour: 100},
	}
}

func newAPI(mutate ...func(*config.Config)) *api {
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	logger := zap.NewNop()
	store := memstore.New()
	fake := pterotest.New(appKey)
	DeferCleanup(fake.Close)

	inst := &models.BackingInstance{
		Name:       "S1",
		Domain:     fake.URL,
		AppKey:     appKey,
		ClientKey:  "ptlc_suite",
		Type:       models.InstanceTypePublic,
		LocationID: 1,
		EggID:      15,
		IsActive:   true,
	}
	Expect(store.Instances().Create(context.Background(), inst)).To(Succeed())

	remotes := client.NewFactory(client.Options{Timeout: cfg.Pterodactyl.Timeout, Logger: logger})
	directory := service.NewDirectory(store.Instances(), 0, logger)
	quota := service.NewQuotaService(cfg.Quota, directory, store.Panels(), store.Profiles(), logger)

	server := panelhttp.NewServer(cfg, panelhttp.Services{
		Provisioner:   service.NewProvisioner(cfg.Pterodactyl, directory, store.Panels(), store.Profiles(), store.Logs(), remotes, logger),
		Deprovisioner: service.NewDeprovisioner(store.Panels(), store.Logs(), remotes, logger),
		Quota:         quota,
		Accounts:      service.NewAccountService(quota, store.Instances(), store.Panels(), store.Profiles(), logger),
		Admin:         service.NewAdminService(store.Instances(), store.Panels(), store.Profiles(), store.Logs(), directory, logger),
		Reconciler:    service.NewReconciler(store.Instances(), store.Panels(), remotes, 2, logger),
	}, logger)
	DeferCleanup(server.Close)

	return &api{server: server, store: store, fake: fake, inst: inst}
}

func token(claims jwt.MapClaims, method jwt.SigningMethod) string {
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(jwtSecret))
	Expect(err).NotTo(HaveOccurred())
	return signed
}

func userToken(userID string) string {
	return token(jwt.MapClaims{"sub": userID}, jwt.SigningMethodHS256)
}

func (a *api) do(method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
	return out
}

func (a *api) createBody(username string) map[string]interface{} {
	return map[string]interface{}{
		"username": username,
		"serverId": a.inst.ID,
		"ram":      1024,
		"cpu":      40,
		"disk":     1024,
	}
}

var _ = Describe("Panel API", func() {
	var (
		a     *api
		alice string
		bob   string
	)

	BeforeEach(func() {
		a = newAPI()
		alice = userToken("user-alice")
		bob = userToken("user-bob")
	})

	It("reports health without auth", func() {
		rec := a.do(http.MethodGet, "/health", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decode(rec)["status"]).To(Equal("ok"))
	})

	Context("authentication", func() {
		It("rejects requests without a token", func() {
			rec := a.do(http.MethodGet, "/api/v1/panels", "", nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(decode(rec)["success"]).To(BeFalse())
		})

		It("rejects tokens signed with another algorithm", func() {
			rec := a.do(http.MethodGet, "/api/v1/panels", token(jwt.MapClaims{"sub": "user-alice"}, jwt.SigningMethodHS384), nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects expired tokens", func() {
			expired := token(jwt.MapClaims{"sub": "user-alice", "exp": time.Now().Add(-time.Minute).Unix()}, jwt.SigningMethodHS256)
			rec := a.do(http.MethodGet, "/api/v1/panels", expired, nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("prefers the uid claim", func() {
			rec := a.do(http.MethodGet, "/api/v1/me", token(jwt.MapClaims{"uid": "user-uid", "sub": "user-sub"}, jwt.SigningMethodHS256), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["user_id"]).To(Equal("user-uid"))
		})
	})

	Context("provisioning", func() {
		It("creates a panel and returns its credentials once", func() {
			rec := a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("bot-alpha"))
			Expect(rec.Code).To(Equal(http.StatusCreated))

			body := decode(rec)
			Expect(body["success"]).To(BeTrue())
			Expect(body["message"]).To(Equal(service.PanelCreatedMessage))
			panel := body["panel"].(map[string]interface{})
			Expect(panel["username"]).To(Equal("bot-alpha"))
			Expect(panel["email"]).To(Equal("bot-alpha@valtp.net"))
			Expect(panel["password"]).To(Equal("bot-alpha2323"))
			Expect(panel["login_url"]).To(Equal(a.fake.URL))
			Expect(panel).NotTo(HaveKey("password_hash"))

			list := decode(a.do(http.MethodGet, "/api/v1/panels", alice, nil))
			panels := list["panels"].([]interface{})
			Expect(panels).To(HaveLen(1))
			Expect(panels[0]).NotTo(HaveKey("password"))
		})

		It("rejects a bad username", func() {
			rec := a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("bad name!"))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)["success"]).To(BeFalse())
			Expect(a.fake.UserCount()).To(BeZero())
		})

		It("rejects malformed JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/panels", bytes.NewBufferString("{"))
			req.Header.Set("Authorization", "Bearer "+alice)
			rec := httptest.NewRecorder()
			a.server.Handler().ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for an unknown instance", func() {
			body := a.createBody("bot-alpha")
			body["serverId"] = "missing"
			rec := a.do(http.MethodPost, "/api/v1/panels", alice, body)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("enforces the free quota", func() {
			Expect(a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("bot-alpha")).Code).To(Equal(http.StatusCreated))

			rec := a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("bot-beta"))
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(a.fake.UserCount()).To(Equal(1))
		})

		It("reports a username owned by someone else as a conflict", func() {
			a.fake.AddUser("someone-else", "bot-alpha@valtp.net")
			rec := a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("bot-alpha"))
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("maps upstream failures to 502", func() {
			a.fake.Fail(pterotest.OpCreateServer, http.StatusInternalServerError)
			rec := a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("bot-alpha"))
			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			Expect(rec.Body.String()).NotTo(ContainSubstring(appKey))
		})
	})

	Context("deprovisioning", func() {
		var panelID string

		BeforeEach(func() {
			rec := a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("bot-alpha"))
			Expect(rec.Code).To(Equal(http.StatusCreated))
			panelID = decode(rec)["panel"].(map[string]interface{})["id"].(string)
		})

		It("deletes once and then reports not found", func() {
			rec := a.do(http.MethodPost, "/api/v1/panels/delete", alice, map[string]string{"panelId": panelID})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["message"]).To(Equal(service.PanelDeletedMessage))
			Expect(a.fake.ServerCount()).To(BeZero())
			Expect(a.fake.UserCount()).To(BeZero())

			rec = a.do(http.MethodPost, "/api/v1/panels/delete", alice, map[string]string{"panelId": panelID})
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("hides panels of other users", func() {
			rec := a.do(http.MethodDelete, "/api/v1/panels/"+panelID, bob, nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(a.fake.ServerCount()).To(Equal(1))

			rec = a.do(http.MethodDelete, "/api/v1/panels/"+panelID, alice, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Context("account", func() {
		It("summarizes the caller", func() {
			body := decode(a.do(http.MethodGet, "/api/v1/me", alice, nil))
			Expect(body["role"]).To(Equal("free"))
			Expect(body["quota"].(map[string]interface{})["remaining_panels"]).To(BeNumerically("==", 1))
		})

		It("lists instances without keys", func() {
			rec := a.do(http.MethodGet, "/api/v1/instances", alice, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).NotTo(ContainSubstring(appKey))
			Expect(decode(rec)["instances"]).To(HaveLen(1))
		})
	})

	Context("admin", func() {
		It("requires the admin role", func() {
			rec := a.do(http.MethodGet, "/api/v1/admin/instances", alice, nil)
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("manages instances and roles", func() {
			Expect(a.store.Profiles().SetRole(context.Background(), "user-alice", models.RoleAdmin)).To(Succeed())

			rec := a.do(http.MethodPost, "/api/v1/admin/instances", alice, map[string]interface{}{
				"name":        "S2",
				"domain":      "https://s2.example.com/",
				"plta_key":    "ptla_s2",
				"server_type": "private",
				"location_id": 2,
				"egg_id":      15,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(rec.Body.String()).NotTo(ContainSubstring("ptla_s2"))
			instance := decode(rec)["instance"].(map[string]interface{})
			Expect(instance["domain"]).To(Equal("https://s2.example.com"))

			rec = a.do(http.MethodPut, "/api/v1/admin/users/user-bob/role", alice, map[string]string{"role": "premium"})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(a.do(http.MethodGet, "/api/v1/instances", bob, nil))["instances"]).To(HaveLen(2))

			rec = a.do(http.MethodPut, "/api/v1/admin/users/user-bob/role", alice, map[string]string{"role": "owner"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("lists orphaned remote users and panel logs", func() {
			Expect(a.store.Profiles().SetRole(context.Background(), "user-alice", models.RoleAdmin)).To(Succeed())
			a.fake.AddUser("leftover", "leftover@valtp.net")

			rec := a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("bot-alpha"))
			Expect(rec.Code).To(Equal(http.StatusCreated))
			panelID := decode(rec)["panel"].(map[string]interface{})["id"].(string)

			rec = a.do(http.MethodGet, "/api/v1/admin/instances/"+a.inst.ID+"/orphans", alice, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			report := decode(rec)["report"].(map[string]interface{})
			Expect(report["orphans"]).To(HaveLen(1))

			rec = a.do(http.MethodGet, "/api/v1/admin/panels/"+panelID+"/logs?limit=5", alice, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["logs"]).To(HaveLen(1))
		})
	})
})

var _ = Describe("Rate limiting", func() {
	It("throttles a user after the per-minute budget", func() {
		a := newAPI(func(cfg *config.Config) { cfg.RateLimit.RequestsPerMinute = 2 })
		alice := userToken("user-alice")

		Expect(a.do(http.MethodGet, "/api/v1/panels", alice, nil).Code).To(Equal(http.StatusOK))
		Expect(a.do(http.MethodGet, "/api/v1/panels", alice, nil).Code).To(Equal(http.StatusOK))

		rec := a.do(http.MethodGet, "/api/v1/panels", alice, nil)
		Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
		Expect(rec.Header().Get("Retry-After")).NotTo(BeEmpty())

		Expect(a.do(http.MethodGet, "/api/v1/panels", userToken("user-bob"), nil).Code).To(Equal(http.StatusOK))
	})

	It("limits panel creation separately", func() {
		a := newAPI(func(cfg *config.Config) { cfg.RateLimit.CreatesPerHour = 1 })
		alice := userToken("user-alice")

		Expect(a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("bot-alpha")).Code).To(Equal(http.StatusCreated))
		Expect(a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("bot-beta")).Code).To(Equal(http.StatusTooManyRequests))
	})

	It("does not charge rejected creates", func() {
		a := newAPI(func(cfg *config.Config) { cfg.RateLimit.CreatesPerHour = 1 })
		alice := userToken("user-alice")

		Expect(a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("no spaces!")).Code).To(Equal(http.StatusBadRequest))
		unknown := a.createBody("bot-alpha")
		unknown["serverId"] = "00000000-0000-0000-0000-000000000000"
		Expect(a.do(http.MethodPost, "/api/v1/panels", alice, unknown).Code).To(Equal(http.StatusNotFound))
		Expect(a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("bot-alpha")).Code).To(Equal(http.StatusCreated))

		rec := a.do(http.MethodPost, "/api/v1/panels", alice, a.createBody("bot-beta"))
		Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
		Expect(rec.Header().Get("Retry-After")).NotTo(BeEmpty())
	})
})
