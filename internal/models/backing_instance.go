package models

import "time"

// InstanceType controls which roles an instance is offered to.
type InstanceType string

const (
	InstanceTypePublic  InstanceType = "public"
	InstanceTypePrivate InstanceType = "private"
)

func (t InstanceType) Valid() bool {
	return t == InstanceTypePublic || t == InstanceTypePrivate
}

// BackingInstance is a registered Pterodactyl installation (pterodactyl_servers).
type BackingInstance struct {
	ID         string
	Name       string
	Domain     string // base URL, no trailing slash
	AppKey     string // plta_ key: user/server management
	ClientKey  string // pltc_ key: persisted, not used by provisioning
	Type       InstanceType
	LocationID int
	EggID      int
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// InstanceView is the key-less projection handed to API callers.
type InstanceView struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Domain       string       `json:"domain"`
	Type         InstanceType `json:"server_type"`
	LocationID   int          `json:"location_id"`
	EggID        int          `json:"egg_id"`
	IsActive     bool         `json:"is_active"`
	HasAppKey    bool         `json:"has_app_key"`
	HasClientKey bool         `json:"has_client_key"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (b *BackingInstance) View() InstanceView {
	return InstanceView{
		ID:           b.ID,
		Name:         b.Name,
		Domain:       b.Domain,
		Type:         b.Type,
		LocationID:   b.LocationID,
		EggID:        b.EggID,
		IsActive:     b.IsActive,
		HasAppKey:    b.AppKey != "",
		HasClientKey: b.ClientKey != "",
		CreatedAt:    b.CreatedAt,
	}
}
