package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/models"
)

// auditor writes panel_logs entries. Failures are logged and never
// returned: the audit trail must not change the outcome of an operation.
type auditor struct {
	store  AuditLog
	logger *zap.Logger
}

func (a auditor) record(ctx context.Context, entry *models.PanelLog) {
	if a.store == nil {
		return
	}
	if err := a.store.Create(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.Warn("write panel log failed",
			zap.String("action", entry.Action),
			zap.String("user_id", entry.UserID),
			zap.Error(err))
	}
}
