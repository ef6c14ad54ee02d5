package auth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PermissionWildcard grants every capability when present in a set.
const PermissionWildcard = "*"

// Capability strings checked by admin routes.
const (
	PermUserView      = "user:view"
	PermUserBan       = "user:ban"
	PermDashboardView = "dashboard:view"
	PermTicketResolve = "ticket:resolve"
	PermUploadReview  = "upload:review"
)

// PermissionSet is a parsed set of capability strings.
type PermissionSet map[string]struct{}

// ParsePermissions decodes a stored permission value (a JSON array of
// strings). An empty or unparseable value fails with ErrMalformedPermissions;
// it is never treated as an implicit empty set.
func ParsePermissions(raw string) (PermissionSet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMalformedPermissions
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPermissions, err)
	}
	set := make(PermissionSet, len(list))
	for _, p := range list {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return set, nil
}

// Serialize encodes the set back to its stored representation.
func (s PermissionSet) Serialize() (string, error) {
	list := make([]string, 0, len(s))
	for p := range s {
		list = append(list, p)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Contains reports literal membership.
func (s PermissionSet) Contains(capability string) bool {
	_, ok := s[capability]
	return ok
}

// Authorize decides whether the admin may exercise the capability.
// Super admins and wildcard sets pass unconditionally; a parse failure of the
// stored set fails closed with ErrMalformedPermissions. Denials name the
// missing capability, which is safe to expose.
func Authorize(admin *Admin, capability string) error {
	if admin == nil {
		return ErrPermissionDenied
	}
	if admin.Role == RoleSuperAdmin {
		return nil
	}
	set, err := ParsePermissions(admin.Permissions)
	if err != nil {
		return err
	}
	if set.Contains(PermissionWildcard) {
		return nil
	}
	if set.Contains(capability) {
		return nil
	}
	return fmt.Errorf("%w: missing capability %q", ErrPermissionDenied, capability)
}
