package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Action represents the category of audit record
type Action string

const (
	// Authentication actions
	ActionAuthRegister    Action = "auth.register"
	ActionAuthLogin       Action = "auth.login"
	ActionAuthLoginFailed Action = "auth.login_failed"
	ActionAuthLogout      Action = "auth.logout"
	ActionAuthRefresh     Action = "auth.refresh"

	// Admin actions
	ActionAdminLogin        Action = "admin.login"
	ActionAdminLoginFailed  Action = "admin.login_failed"
	ActionAdminMasterLogin  Action = "admin.master_login"
	ActionAdminMasterFailed Action = "admin.master_login_failed"
	ActionAdminUserList     Action = "admin.user_list"
	ActionAdminUserBan      Action = "admin.user_ban"

	// Generic request tracing
	ActionAPIAccess Action = "api_access"
)

// ActorType distinguishes who performed the action
type ActorType string

const (
	ActorUser      ActorType = "user"
	ActorAdmin     ActorType = "admin"
	ActorAnonymous ActorType = "anonymous"
)

// Record represents a single activity log entry
type Record struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`

	// Actor information
	ActorType ActorType `json:"actor_type"`
	ActorID   string    `json:"actor_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	// Additional details
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MetadataJSON serializes the metadata map for storage. A nil map
// serializes to an empty object so the column is never NULL.
func (r *Record) MetadataJSON() ([]byte, error) {
	if r.Metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Metadata)
}

// Filter narrows a record listing
type Filter struct {
	Action    Action
	ActorType ActorType
	ActorID   string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// Store persists activity records
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	List(ctx context.Context, filter Filter) ([]*Record, error)
	CountSince(ctx context.Context, action Action, since time.Time) (int64, error)
}
