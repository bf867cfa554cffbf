package models

// ==================== User API DTOs ====================

// CreatePanelRequest is the Provisioner request body.
// Limits are in Pterodactyl units; 0 means unlimited.
type CreatePanelRequest struct {
	Username string `json:"username"`
	ServerID string `json:"serverId"`
	RAM      int    `json:"ram"`  // MB
	CPU      int    `json:"cpu"`  // percent
	Disk     int    `json:"disk"` // MB
}

// CreatePanelResponse is returned after a panel is provisioned
type CreatePanelResponse struct {
	Success bool   `json:"success"`
	Panel   *Panel `json:"panel"`
	Message string `json:"message"`
}

// DeletePanelRequest is the Deprovisioner request body
type DeletePanelRequest struct {
	PanelID string `json:"panelId"`
}

// DeletePanelResponse is returned after a panel is removed
type DeletePanelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is the failure envelope for every endpoint
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// QuotaSummary describes what the caller's role may provision
type QuotaSummary struct {
	MaxPanels       int  `json:"max_panels"` // 0 = unlimited
	FixedRAM        int  `json:"fixed_ram,omitempty"`
	FixedCPU        int  `json:"fixed_cpu,omitempty"`
	FixedDisk       int  `json:"fixed_disk,omitempty"`
	AllowUnlimited  bool `json:"allow_unlimited"`
	AllowPrivate    bool `json:"allow_private"`
	RemainingPanels int  `json:"remaining_panels"` // -1 = unlimited
}

// MeResponse is returned by GET /api/v1/me
type MeResponse struct {
	UserID              string       `json:"user_id"`
	Role                Role         `json:"role"`
	PanelCount          int          `json:"panel_count"`
	PanelCreationsCount int          `json:"panel_creations_count"`
	Quota               QuotaSummary `json:"quota"`
}

// ==================== Admin API DTOs ====================

// InstanceRequest creates or updates a backing instance. Keys are
// write-only: empty keys on update keep the stored values.
type InstanceRequest struct {
	Name       string       `json:"name" binding:"required"`
	Domain     string       `json:"domain" binding:"required"`
	AppKey     string       `json:"plta_key"`
	ClientKey  string       `json:"pltc_key"`
	Type       InstanceType `json:"server_type"`
	LocationID int          `json:"location_id"`
	EggID      int          `json:"egg_id"`
	IsActive   *bool        `json:"is_active"`
}

// UpdateRoleRequest changes a user's role
type UpdateRoleRequest struct {
	Role Role `json:"role" binding:"required"`
}

// OrphanUser is a remote user that no local panel references
type OrphanUser struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at,omitempty"`
}

// OrphanReport lists orphaned remote users of one backing instance
type OrphanReport struct {
	InstanceID   string       `json:"instance_id"`
	InstanceName string       `json:"instance_name"`
	RemoteUsers  int          `json:"remote_users"`
	Orphans      []OrphanUser `json:"orphans"`
	Error        string       `json:"error,omitempty"`
}
