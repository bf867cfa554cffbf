package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/service"
)

const msgBadRequest = "Format request tidak valid"

type Handler struct {
	provisioner   *service.Provisioner
	deprovisioner *service.Deprovisioner
	quota         *service.QuotaService
	accounts      *service.AccountService
	logger        *zap.Logger
}

func NewHandler(provisioner *service.Provisioner, deprovisioner *service.Deprovisioner, quota *service.QuotaService, accounts *service.AccountService, logger *zap.Logger) *Handler {
	return &Handler{
		provisioner:   provisioner,
		deprovisioner: deprovisioner,
		quota:         quota,
		accounts:      accounts,
		logger:        logger,
	}
}

// ==================== Panel Handlers ====================

// CreatePanel checks the caller's quota and provisions a panel
func (h *Handler) CreatePanel(c *gin.Context) {
	var req models.CreatePanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, msgBadRequest)
		return
	}

	caller := callerFrom(c)
	if err := h.quota.CheckCreate(c.Request.Context(), caller, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	panel, err := h.provisioner.Provision(c.Request.Context(), caller, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, models.CreatePanelResponse{
		Success: true,
		Panel:   panel,
		Message: service.PanelCreatedMessage,
	})
}

// DeletePanel removes a panel named in the request body
func (h *Handler) DeletePanel(c *gin.Context) {
	var req models.DeletePanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, msgBadRequest)
		return
	}
	h.deletePanel(c, req.PanelID)
}

// DeletePanelByID removes the panel named in the path
func (h *Handler) DeletePanelByID(c *gin.Context) {
	h.deletePanel(c, c.Param("id"))
}

func (h *Handler) deletePanel(c *gin.Context, panelID string) {
	if err := h.deprovisioner.Deprovision(c.Request.Context(), callerFrom(c), panelID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.DeletePanelResponse{
		Success: true,
		Message: service.PanelDeletedMessage,
	})
}

// ListPanels returns the caller's panels
func (h *Handler) ListPanels(c *gin.Context) {
	panels, err := h.accounts.ListPanels(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "panels": panels})
}

// ==================== Account Handlers ====================

// ListInstances returns the instances offered to the caller
func (h *Handler) ListInstances(c *gin.Context) {
	instances, err := h.accounts.OfferedInstances(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "instances": instances})
}

func (h *Handler) Me(c *gin.Context) {
	me, err := h.accounts.Me(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, me)
}

// respondError renders err's user-facing message with the status of its kind.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	abort(c, status, service.UserMessage(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrProvisioningConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
