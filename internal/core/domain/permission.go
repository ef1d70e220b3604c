package domain

import "time"

// Permission grants one action on one resource.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Matches reports whether p grants action on resource.
func (p Permission) Matches(resource, action string) bool {
	return p.Resource == resource && p.Action == action
}

// PermissionUpdate carries the mutable permission fields. Nil fields are left unchanged.
type PermissionUpdate struct {
	Name        *string
	Description *string
	Resource    *string
	Action      *string
}

// Apply copies the set fields of u onto p.
func (u PermissionUpdate) Apply(p *Permission) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = u.Description
	}
	if u.Resource != nil {
		p.Resource = *u.Resource
	}
	if u.Action != nil {
		p.Action = *u.Action
	}
}

// Names returns the permission names in input order.
func Names(perms []Permission) []string {
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return names
}
