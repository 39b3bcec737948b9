package auth

import (
	"context"

	"shopcore.dev/internal/paging"
)

// UserStore persists users and their role assignments.
type UserStore interface {
	CreateUser(ctx context.Context, u User, roleIDs []string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context, req paging.Request) ([]User, int, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

// RoleStore persists roles and the role to permission links.
type RoleStore interface {
	CreateRole(ctx context.Context, r Role, permissionIDs []string) (Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context, req paging.Request) ([]Role, int, error)
	UpdateRole(ctx context.Context, id string, upd RoleUpdate) (Role, error)
	DeleteRole(ctx context.Context, id string) error
	AddRolePermissions(ctx context.Context, roleID string, permissionIDs []string) (Role, error)
	RemoveRolePermissions(ctx context.Context, roleID string, permissionIDs []string) (Role, error)
}

// PermissionStore persists the permission catalogue.
type PermissionStore interface {
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	GetPermission(ctx context.Context, id string) (Permission, error)
	ListPermissions(ctx context.Context, req paging.Request) ([]Permission, int, error)
	PermissionsByCodes(ctx context.Context, codes []string) ([]Permission, error)
	UpdatePermission(ctx context.Context, id string, upd PermissionUpdate) (Permission, error)
	DeletePermission(ctx context.Context, id string) error
	// EnsurePermissions inserts missing codes and leaves existing ones untouched.
	EnsurePermissions(ctx context.Context, perms []Permission) error
}

// PermissionResolver answers which permission codes a set of role names grants.
type PermissionResolver interface {
	PermissionCodesForRoles(ctx context.Context, roleNames []string) ([]string, error)
}

// Directory is the persistence surface of the auth subsystem.
type Directory interface {
	UserStore
	RoleStore
	PermissionStore
	PermissionResolver
}
