package domain

import (
	"strings"
	"time"
)

// Role is one of the fixed account roles.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleModerator, RoleUser}
}

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// ParseRole returns the Role named by s. An empty string yields RoleUser.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RoleUser, nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", E(KindValidation, "role must be one of: admin, moderator, user")
	}
	return r, nil
}

// User models an account.
type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Username        string     `json:"username"`
	FirstName       *string    `json:"firstName"`
	LastName        *string    `json:"lastName"`
	PasswordHash    string     `json:"-"`
	Role            Role       `json:"role"`
	IsActive        bool       `json:"isActive"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	LastLogin       *time.Time `json:"lastLogin"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// UserWithPermissions is a user together with the names of its effective permissions.
type UserWithPermissions struct {
	User
	Permissions []string `json:"permissions"`
}

// UserUpdate carries the mutable user fields. Nil fields are left unchanged.
type UserUpdate struct {
	Email           *string
	Username        *string
	FirstName       *string
	LastName        *string
	Role            *Role
	IsActive        *bool
	IsEmailVerified *bool
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.Username == nil && u.FirstName == nil && u.LastName == nil &&
		u.Role == nil && u.IsActive == nil && u.IsEmailVerified == nil
}

// Apply copies the set fields of u onto user.
func (u UserUpdate) Apply(user *User) {
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.Username != nil {
		user.Username = *u.Username
	}
	if u.FirstName != nil {
		user.FirstName = u.FirstName
	}
	if u.LastName != nil {
		user.LastName = u.LastName
	}
	if u.Role != nil {
		user.Role = *u.Role
	}
	if u.IsActive != nil {
		user.IsActive = *u.IsActive
	}
	if u.IsEmailVerified != nil {
		user.IsEmailVerified = *u.IsEmailVerified
	}
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the caller holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
