package models

import "time"

// Role gates quotas and admin access (user_roles).
type Role string

const (
	RoleFree     Role = "free"
	RolePremium  Role = "premium"
	RoleReseller Role = "reseller"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleFree, RolePremium, RoleReseller, RoleAdmin:
		return true
	}
	return false
}

// Premium reports whether the role lifts the free-tier limits.
func (r Role) Premium() bool {
	return r == RolePremium || r == RoleReseller || r == RoleAdmin
}

// Profile mirrors the profiles table.
type Profile struct {
	UserID              string
	Email               string
	FullName            string
	PanelCreationsCount int
	CreatedAt           time.Time
}
