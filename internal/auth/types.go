package auth

import "time"

// User is a principal that can log in. The password hash never leaves the service.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Roles        []Role    `json:"roles"`
	MFAEnabled   bool      `json:"mfaEnabled"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RoleNames lists the names of the user's roles in stored order.
func (u User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// Role groups permissions and is shared between users.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Permission is a fine-grained capability identified by its code.
type Permission struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UserUpdate carries the mutable parts of a user. A nil RoleIDs keeps the current roles.
type UserUpdate struct {
	PasswordHash *string
	RoleIDs      []string
}

// RoleUpdate carries the mutable parts of a role. A nil PermissionIDs keeps the current set.
type RoleUpdate struct {
	Name          *string
	Description   *string
	PermissionIDs []string
}

type PermissionUpdate struct {
	Code        *string
	Description *string
}
