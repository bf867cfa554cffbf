package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/config"
	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/service"
)

// Services are the dependencies of the HTTP API.
type Services struct {
	Provisioner   *service.Provisioner
	Deprovisioner *service.Deprovisioner
	Quota         *service.QuotaService
	Accounts      *service.AccountService
	Admin         *service.AdminService
	Reconciler    *service.Reconciler
}

type Server struct {
	router   *gin.Engine
	handler  *Handler
	admin    *AdminHandler
	cfg      *config.Config
	services Services
	logger   *zap.Logger

	userLimiter   *RateLimiter // requests per user per minute
	createLimiter *RateLimiter // panel creations per user per hour
}

func NewServer(cfg *config.Config, services Services, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))

	s := &Server{
		router:        router,
		handler:       NewHandler(services.Provisioner, services.Deprovisioner, services.Quota, services.Accounts, logger),
		admin:         NewAdminHandler(services.Admin, services.Reconciler, logger),
		cfg:           cfg,
		services:      services,
		logger:        logger,
		userLimiter:   NewRateLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute),
		createLimiter: NewRateLimiter(cfg.RateLimit.CreatesPerHour, time.Hour),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "panel-service",
		})
	})

	// User API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(s.userLimiter, s.logger))
	{
		user.GET("/panels", s.handler.ListPanels)
		user.POST("/panels", AdmissionRateLimitMiddleware(s.createLimiter, s.logger), s.handler.CreatePanel)
		user.POST("/panels/delete", s.handler.DeletePanel)
		user.DELETE("/panels/:id", s.handler.DeletePanelByID)

		user.GET("/instances", s.handler.ListInstances)
		user.GET("/me", s.handler.Me)
	}

	// Admin API - JWT plus the admin role
	admin := user.Group("/admin")
	admin.Use(RequireRole(s.services.Quota, models.RoleAdmin, s.logger))
	{
		admin.GET("/instances", s.admin.ListInstances)
		admin.POST("/instances", s.admin.CreateInstance)
		admin.PUT("/instances/:id", s.admin.UpdateInstance)
		admin.DELETE("/instances/:id", s.admin.DeleteInstance)
		admin.GET("/instances/:id/orphans", s.admin.Orphans)
		admin.GET("/orphans", s.admin.OrphansAll)

		admin.GET("/panels", s.admin.ListPanels)
		admin.GET("/panels/:id/logs", s.admin.PanelLogs)

		admin.PUT("/users/:user_id/role", s.admin.SetRole)
	}
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the rate limiters.
func (s *Server) Close() {
	s.userLimiter.Stop()
	s.createLimiter.Stop()
}
