package client

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflict means the remote rejected a create because the username
	// or email is already taken.
	ErrConflict = errors.New("pterodactyl: resource already exists")
	// ErrRemoteNotFound is returned for 404 responses.
	ErrRemoteNotFound = errors.New("pterodactyl: resource not found")
	// ErrTransport covers network failures and timeouts: no response was
	// received, so the request may or may not have been applied.
	ErrTransport = errors.New("pterodactyl: transport failure")
)

// APIErrorDetail is one entry of a Pterodactyl error envelope:
// {"errors":[{"code":"ValidationException","status":"422","detail":"...","meta":{...}}]}
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
	Meta   struct {
		SourceField string `json:"source_field"`
		Rule        string `json:"rule"`
	} `json:"meta"`
}

// APIError is a non-success response from the Application API.
type APIError struct {
	StatusCode int
	Body       string
	Errors     []APIErrorDetail
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		details := make([]string, 0, len(e.Errors))
		for _, d := range e.Errors {
			details = append(details, d.Detail)
		}
		return fmt.Sprintf("pterodactyl returned status %d: %s", e.StatusCode, strings.Join(details, "; "))
	}
	return fmt.Sprintf("pterodactyl returned status %d", e.StatusCode)
}

// duplicate reports whether the response signals a uniqueness violation.
func (e *APIError) duplicate() bool {
	if e.StatusCode == 409 {
		return true
	}
	if e.StatusCode != 422 {
		return false
	}
	for _, d := range e.Errors {
		if d.Meta.Rule == "unique" || strings.Contains(strings.ToLower(d.Detail), "already been taken") {
			return true
		}
	}
	return false
}

// ==================== Users ====================

// CreateUserRequest is the body of POST /api/application/users
type CreateUserRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password,omitempty"`
}

// User is the attributes block of a user object
type User struct {
	ID         int     `json:"id"`
	ExternalID *string `json:"external_id"`
	UUID       string  `json:"uuid"`
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	RootAdmin  bool    `json:"root_admin"`
	CreatedAt  string  `json:"created_at"`
}

type userObject struct {
	Object     string `json:"object"`
	Attributes User   `json:"attributes"`
}

// Pagination is the meta.pagination block of list responses
type Pagination struct {
	Total       int `json:"total"`
	Count       int `json:"count"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

type userList struct {
	Object string       `json:"object"`
	Data   []userObject `json:"data"`
	Meta   struct {
		Pagination Pagination `json:"pagination"`
	} `json:"meta"`
}

// UserPage is one page of GET /api/application/users
type UserPage struct {
	Users      []User
	Pagination Pagination
}

// ==================== Servers ====================

// ServerLimits are the resource limits of a server. Zero means unlimited
// for memory, disk and cpu, so no field may be omitted.
type ServerLimits struct {
	Memory int `json:"memory"`
	Swap   int `json:"swap"`
	Disk   int `json:"disk"`
	IO     int `json:"io"`
	CPU    int `json:"cpu"`
}

type FeatureLimits struct {
	Databases   int `json:"databases"`
	Backups     int `json:"backups"`
	Allocations int `json:"allocations"`
}

// Allocation with a nil Default lets deploy pick a free allocation.
type Allocation struct {
	Default *int `json:"default"`
}

type Deploy struct {
	Locations   []int    `json:"locations"`
	DedicatedIP bool     `json:"dedicated_ip"`
	PortRange   []string `json:"port_range"`
}

// CreateServerRequest is the body of POST /api/application/servers
type CreateServerRequest struct {
	Name          string            `json:"name"`
	User          int               `json:"user"`
	Egg           int               `json:"egg"`
	DockerImage   string            `json:"docker_image"`
	Startup       string            `json:"startup"`
	Environment   map[string]string `json:"environment"`
	Limits        ServerLimits      `json:"limits"`
	FeatureLimits FeatureLimits     `json:"feature_limits"`
	Allocation    Allocation        `json:"allocation"`
	Deploy        Deploy            `json:"deploy"`
}

// Server is the attributes block of a server object
type Server struct {
	ID         int          `json:"id"`
	UUID       string       `json:"uuid"`
	Identifier string       `json:"identifier"`
	Name       string       `json:"name"`
	User       int          `json:"user"`
	Egg        int          `json:"egg"`
	Limits     ServerLimits `json:"limits"`
	CreatedAt  string       `json:"created_at"`
}

type serverObject struct {
	Object     string `json:"object"`
	Attributes Server `json:"attributes"`
}
