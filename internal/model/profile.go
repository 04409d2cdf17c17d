package model

import "time"

// Collections that hold user state in the document store.  The users
// collection is the single source of truth for role and disabled status;
// roles is only a mirror kept for consumers that read by uid.
const (
	CollectionUsers = "users"
	CollectionRoles = "roles"
)

// Profile is the persisted per-identity role and status document stored at
// users/{uid}.  A missing profile means RoleViewer and not disabled.
//
// Fields:
//  UID         – identity provider uid, also the document id.
//  Email       – address the identity signs in with.
//  DisplayName – name shown in the user menu.
//  Role        – one of admin, contributor, viewer.
//  Disabled    – when true every gated request forces a sign-out.
//  CreatedBy   – uid of the administrator that provisioned the user (empty for self sign-in).
//  DeletedAt   – set by the administrative soft delete; hidden from listings when non-nil.
type Profile struct {
	UID         string     `json:"uid"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	Role        Role       `json:"role"`
	Disabled    bool       `json:"disabled"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// Profile document keys.
const (
	KeyEmail       = "email"
	KeyDisplayName = "displayName"
	KeyRole        = "role"
	KeyDisabled    = "disabled"
	KeyDeletedAt   = "deletedAt"
	KeyDeleted     = "deleted"
)

// ProfileFromData decodes a users/{uid} document body.  Unknown or missing
// roles decode as RoleViewer.
func ProfileFromData(uid string, data map[string]any, createdAt, updatedAt time.Time) Profile {
	p := Profile{UID: uid, CreatedAt: createdAt, UpdatedAt: updatedAt, Role: RoleViewer}
	if data == nil {
		return p
	}
	p.Email, _ = data[KeyEmail].(string)
	p.DisplayName, _ = data[KeyDisplayName].(string)
	p.CreatedBy, _ = data[KeyCreatedBy].(string)
	if s, ok := data[KeyRole].(string); ok {
		p.Role = RoleOrViewer(s)
	}
	p.Disabled, _ = data[KeyDisabled].(bool)
	if s, ok := data[KeyDeletedAt].(string); ok && s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			p.DeletedAt = &t
		}
	}
	return p
}

// Data encodes the profile as a document body.
func (p Profile) Data() map[string]any {
	out := map[string]any{
		KeyEmail:       p.Email,
		KeyDisplayName: p.DisplayName,
		KeyRole:        string(p.Role),
		KeyDisabled:    p.Disabled,
	}
	if p.CreatedBy != "" {
		out[KeyCreatedBy] = p.CreatedBy
	}
	if p.DeletedAt != nil {
		out[KeyDeletedAt] = p.DeletedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// Deleted reports whether the profile was soft deleted.
func (p Profile) Deleted() bool { return p.DeletedAt != nil }
