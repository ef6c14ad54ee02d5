package auth

import "time"

// User represents an artist account that distributes music through the
// platform. The internal ID never leaves the process; ExternalID is the only
// identifier embedded in tokens or returned to clients.
type User struct {
	ID           int64      `json:"-"`
	ExternalID   string     `json:"external_id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	ArtistName   string     `json:"artist_name,omitempty"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	LoginCount   int64      `json:"login_count"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Role represents admin roles
type Role string

const (
	// RoleSuperAdmin bypasses all permission checks.
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleSupport    Role = "support"
)

// Admin represents a staff account. Permissions holds the serialized
// capability set as stored; parse it with ParsePermissions before evaluating.
type Admin struct {
	ID           int64      `json:"-"`
	ExternalID   string     `json:"external_id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Permissions  string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	LoginCount   int64      `json:"login_count"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedBy    *int64     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// MasterUsername is the reserved username of the auto-provisioned
// escalation-path administrator.
const MasterUsername = "master"

// PublicUser is the client-facing projection of a User.
type PublicUser struct {
	ExternalID string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	ArtistName string `json:"artist_name,omitempty"`
	IsActive   bool   `json:"is_active"`
}

// PublicAdmin is the client-facing projection of an Admin.
type PublicAdmin struct {
	ExternalID string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	IsActive   bool   `json:"is_active"`
}

// Public returns the projection safe to embed in API responses.
func (u *User) Public() PublicUser {
	return PublicUser{
		ExternalID: u.ExternalID,
		Email:      u.Email,
		Name:       u.Name,
		ArtistName: u.ArtistName,
		IsActive:   u.IsActive,
	}
}

// Public returns the projection safe to embed in API responses.
func (a *Admin) Public() PublicAdmin {
	return PublicAdmin{
		ExternalID: a.ExternalID,
		Username:   a.Username,
		Email:      a.Email,
		Role:       a.Role,
		IsActive:   a.IsActive,
	}
}
