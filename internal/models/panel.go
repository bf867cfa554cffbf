package models

import "time"

// Panel is the local record of a provisioned account (user_panels).
type Panel struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ServerID      *string   `json:"server_id"` // backing instance; NULL once the instance row is gone
	PteroUserID   *int      `json:"ptero_user_id"`
	PteroServerID *int      `json:"ptero_server_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Password      string    `json:"password,omitempty"` // plaintext, populated only in the create response
	PasswordHash  string    `json:"-"`
	LoginURL      string    `json:"login_url"`
	RAM           int       `json:"ram"`
	CPU           int       `json:"cpu"`
	Disk          int       `json:"disk"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// PanelWithInstance is a panel joined with the connection facts of its
// backing instance. Instance is nil when the instance row no longer exists.
type PanelWithInstance struct {
	Panel
	Instance *BackingInstance
}

// Caller is the authenticated identity a request acts on behalf of.
type Caller struct {
	UserID string
	Email  string
}

func (c Caller) Authenticated() bool {
	return c.UserID != ""
}
