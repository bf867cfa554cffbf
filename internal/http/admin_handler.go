package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/service"
)

const defaultLogLimit = 50

// AdminHandler serves /api/v1/admin. Every route requires the admin role.
type AdminHandler struct {
	admin      *service.AdminService
	reconciler *service.Reconciler
	logger     *zap.Logger
}

func NewAdminHandler(admin *service.AdminService, reconciler *service.Reconciler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		admin:      admin,
		reconciler: reconciler,
		logger:     logger,
	}
}

// ==================== Instances ====================

func (h *AdminHandler) ListInstances(c *gin.Context) {
	instances, err := h.admin.ListInstances(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "instances": instances})
}

func (h *AdminHandler) CreateInstance(c *gin.Context) {
	var req models.InstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, msgBadRequest)
		return
	}

	instance, err := h.admin.CreateInstance(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "instance": instance})
}

func (h *AdminHandler) UpdateInstance(c *gin.Context) {
	var req models.InstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, msgBadRequest)
		return
	}

	instance, err := h.admin.UpdateInstance(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "instance": instance})
}

func (h *AdminHandler) DeleteInstance(c *gin.Context) {
	if err := h.admin.DeleteInstance(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Orphans lists remote users of one instance that no panel references
func (h *AdminHandler) Orphans(c *gin.Context) {
	report, err := h.reconciler.OrphanedUsers(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

// OrphansAll scans every active instance
func (h *AdminHandler) OrphansAll(c *gin.Context) {
	reports, err := h.reconciler.OrphanedUsersAll(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reports": reports})
}

// ==================== Panels & Users ====================

func (h *AdminHandler) ListPanels(c *gin.Context) {
	panels, err := h.admin.ListPanels(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "panels": panels})
}

// PanelLogs returns the audit trail of a panel, newest first
func (h *AdminHandler) PanelLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLogLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLogLimit
	}

	logs, err := h.admin.PanelLogs(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "logs": logs})
}

func (h *AdminHandler) SetRole(c *gin.Context) {
	var req models.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, msgBadRequest)
		return
	}

	if err := h.admin.SetRole(c.Request.Context(), c.Param("user_id"), req.Role); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "role": req.Role})
}
