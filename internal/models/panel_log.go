package models

import "time"

// Panel log actions
const (
	ActionProvisionStarted   = "provision_started"
	ActionRemoteUserCreated  = "remote_user_created"
	ActionRemoteUserReused   = "remote_user_reused"
	ActionRemoteServerFailed = "remote_server_failed"
	ActionPanelPersistFailed = "panel_persist_failed"
	ActionPanelCreated       = "panel_created"
	ActionRemoteDeleteFailed = "remote_delete_failed"
	ActionPanelDeleted       = "panel_deleted"
)

// Panel log statuses
const (
	LogStatusOK     = "ok"
	LogStatusFailed = "failed"
)

// PanelLog is a best-effort audit entry (panel_logs). PanelID is nil for
// entries written before the panel row exists.
type PanelLog struct {
	ID         string                 `json:"id"`
	PanelID    *string                `json:"panel_id"`
	UserID     string                 `json:"user_id"`
	InstanceID string                 `json:"instance_id,omitempty"`
	Action     string                 `json:"action"`
	Status     string                 `json:"status"`
	Message    string                 `json:"message,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}
