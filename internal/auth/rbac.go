package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shopcore.dev/internal/apperr"
	"shopcore.dev/internal/obs"
	"shopcore.dev/internal/paging"
)

const (
	maxUsernameLen           = 32
	maxRoleNameLen           = 64
	maxRoleDescriptionLen    = 256
	maxPermissionCodeLen     = 64
	maxPermissionDescription = 256
)

// PermissionCache is purged whenever role or permission links change.
type PermissionCache interface {
	Purge()
}

// UserInput is the payload for creating a user. A nil RoleIDs is rejected.
type UserInput struct {
	Username string
	Password string
	RoleIDs  []string
}

// UserChanges is the payload for updating a user. Nil fields keep their value.
type UserChanges struct {
	Password *string
	RoleIDs  []string
}

type RoleInput struct {
	Name          string
	Description   string
	PermissionIDs []string
}

type PermissionInput struct {
	Code        string
	Description string
}

// RBACService administers users, roles and permissions.
type RBACService struct {
	dir    Directory
	hasher *Hasher
	cache  PermissionCache
}

func NewRBACService(dir Directory, hasher *Hasher, cache PermissionCache) (*RBACService, error) {
	if dir == nil {
		return nil, errors.New("rbac directory is required")
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	return &RBACService{dir: dir, hasher: hasher, cache: cache}, nil
}

func (s *RBACService) purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// EnsureBuiltins installs the permission catalogue and an ADMIN role holding all of it.
func (s *RBACService) EnsureBuiltins(ctx context.Context) (Role, error) {
	if err := s.dir.EnsurePermissions(ctx, BuiltinPermissions); err != nil {
		return Role{}, fmt.Errorf("ensure permissions: %w", err)
	}
	perms, err := s.dir.PermissionsByCodes(ctx, BuiltinCodes())
	if err != nil {
		return Role{}, fmt.Errorf("load builtin permissions: %w", err)
	}
	permIDs := make([]string, 0, len(perms))
	for _, p := range perms {
		permIDs = append(permIDs, p.ID)
	}

	role, err := s.dir.GetRoleByName(ctx, AdminRole)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		role, err = s.dir.CreateRole(ctx, Role{Name: AdminRole, Description: "Full access"}, permIDs)
	case err == nil:
		role, err = s.dir.AddRolePermissions(ctx, role.ID, permIDs)
	}
	if err != nil {
		return Role{}, fmt.Errorf("ensure admin role: %w", err)
	}
	s.purge()
	return role, nil
}

// EnsureAdminUser creates username with the ADMIN role unless it already exists.
func (s *RBACService) EnsureAdminUser(ctx context.Context, username, password string) (User, bool, error) {
	existing, err := s.dir.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return User{}, false, err
	}
	role, err := s.dir.GetRoleByName(ctx, AdminRole)
	if err != nil {
		return User{}, false, fmt.Errorf("load admin role: %w", err)
	}
	u, err := s.CreateUser(ctx, UserInput{Username: username, Password: password, RoleIDs: []string{role.ID}})
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

func (s *RBACService) CreateUser(ctx context.Context, in UserInput) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	var v apperr.Validator
	v.NotBlank("username", in.Username)
	v.MaxLen("username", in.Username, maxUsernameLen)
	v.NotBlank("password", in.Password)
	v.Check(in.RoleIDs != nil, "roleIds", "must not be null")
	if err := v.Err(); err != nil {
		return User{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, err
	}
	return obs.Timed(ctx, "rbac.create_user", func(ctx context.Context) (User, error) {
		return s.dir.CreateUser(ctx, User{Username: in.Username, PasswordHash: hash}, dedupeStrings(in.RoleIDs))
	})
}

func (s *RBACService) GetUser(ctx context.Context, id string) (User, error) {
	return s.dir.GetUser(ctx, strings.TrimSpace(id))
}

func (s *RBACService) ListUsers(ctx context.Context, req paging.Request) (paging.Page[User], error) {
	req = req.Normalize()
	users, total, err := s.dir.ListUsers(ctx, req)
	if err != nil {
		return paging.Page[User]{}, err
	}
	return paging.New(users, req, total), nil
}

func (s *RBACService) UpdateUser(ctx context.Context, id string, ch UserChanges) (User, error) {
	var v apperr.Validator
	if ch.Password != nil {
		v.NotBlank("password", *ch.Password)
	}
	if err := v.Err(); err != nil {
		return User{}, err
	}
	upd := UserUpdate{}
	if ch.Password != nil {
		hash, err := s.hasher.Hash(*ch.Password)
		if err != nil {
			return User{}, err
		}
		upd.PasswordHash = &hash
	}
	if ch.RoleIDs != nil {
		upd.RoleIDs = dedupeStrings(ch.RoleIDs)
	}
	return obs.Timed(ctx, "rbac.update_user", func(ctx context.Context) (User, error) {
		return s.dir.UpdateUser(ctx, strings.TrimSpace(id), upd)
	})
}

func (s *RBACService) DeleteUser(ctx context.Context, id string) error {
	return s.dir.DeleteUser(ctx, strings.TrimSpace(id))
}

func (s *RBACService) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateRole(in.Name, in.Description); err != nil {
		return Role{}, err
	}
	role, err := obs.Timed(ctx, "rbac.create_role", func(ctx context.Context) (Role, error) {
		return s.dir.CreateRole(ctx, Role{Name: in.Name, Description: in.Description}, dedupeStrings(in.PermissionIDs))
	})
	if err != nil {
		return Role{}, err
	}
	s.purge()
	return role, nil
}

func (s *RBACService) GetRole(ctx context.Context, id string) (Role, error) {
	return s.dir.GetRole(ctx, strings.TrimSpace(id))
}

func (s *RBACService) ListRoles(ctx context.Context, req paging.Request) (paging.Page[Role], error) {
	req = req.Normalize()
	roles, total, err := s.dir.ListRoles(ctx, req)
	if err != nil {
		return paging.Page[Role]{}, err
	}
	return paging.New(roles, req, total), nil
}

func (s *RBACService) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (Role, error) {
	var v apperr.Validator
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		v.NotBlank("name", trimmed)
		v.MaxLen("name", trimmed, maxRoleNameLen)
		upd.Name = &trimmed
	}
	if upd.Description != nil {
		trimmed := strings.TrimSpace(*upd.Description)
		v.MaxLen("description", trimmed, maxRoleDescriptionLen)
		upd.Description = &trimmed
	}
	if err := v.Err(); err != nil {
		return Role{}, err
	}
	if upd.PermissionIDs != nil {
		upd.PermissionIDs = dedupeStrings(upd.PermissionIDs)
	}
	role, err := s.dir.UpdateRole(ctx, strings.TrimSpace(id), upd)
	if err != nil {
		return Role{}, err
	}
	s.purge()
	return role, nil
}

// DeleteRole removes the role and its links; the permissions themselves stay.
func (s *RBACService) DeleteRole(ctx context.Context, id string) error {
	if err := s.dir.DeleteRole(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.purge()
	return nil
}

func (s *RBACService) AddRolePermissions(ctx context.Context, roleID string, permissionIDs []string) (Role, error) {
	ids := dedupeStrings(permissionIDs)
	if len(ids) == 0 {
		return Role{}, &apperr.ValidationError{Fields: []apperr.FieldError{{Field: "permissionIds", Message: "must not be empty"}}}
	}
	role, err := s.dir.AddRolePermissions(ctx, strings.TrimSpace(roleID), ids)
	if err != nil {
		return Role{}, err
	}
	s.purge()
	return role, nil
}

func (s *RBACService) RemoveRolePermissions(ctx context.Context, roleID string, permissionIDs []string) (Role, error) {
	ids := dedupeStrings(permissionIDs)
	if len(ids) == 0 {
		return Role{}, &apperr.ValidationError{Fields: []apperr.FieldError{{Field: "permissionIds", Message: "must not be empty"}}}
	}
	role, err := s.dir.RemoveRolePermissions(ctx, strings.TrimSpace(roleID), ids)
	if err != nil {
		return Role{}, err
	}
	s.purge()
	return role, nil
}

func (s *RBACService) CreatePermission(ctx context.Context, in PermissionInput) (Permission, error) {
	in.Code = normalizeCode(in.Code)
	in.Description = strings.TrimSpace(in.Description)
	if err := validatePermission(in.Code, in.Description); err != nil {
		return Permission{}, err
	}
	return s.dir.CreatePermission(ctx, Permission{Code: in.Code, Description: in.Description})
}

func (s *RBACService) GetPermission(ctx context.Context, id string) (Permission, error) {
	return s.dir.GetPermission(ctx, strings.TrimSpace(id))
}

func (s *RBACService) ListPermissions(ctx context.Context, req paging.Request) (paging.Page[Permission], error) {
	req = req.Normalize()
	perms, total, err := s.dir.ListPermissions(ctx, req)
	if err != nil {
		return paging.Page[Permission]{}, err
	}
	return paging.New(perms, req, total), nil
}

// UpdatePermission changes a permission. Stores reject a code change while any role references it.
func (s *RBACService) UpdatePermission(ctx context.Context, id string, upd PermissionUpdate) (Permission, error) {
	var v apperr.Validator
	if upd.Code != nil {
		code := normalizeCode(*upd.Code)
		v.NotBlank("code", code)
		v.MaxLen("code", code, maxPermissionCodeLen)
		upd.Code = &code
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		v.MaxLen("description", desc, maxPermissionDescription)
		upd.Description = &desc
	}
	if err := v.Err(); err != nil {
		return Permission{}, err
	}
	p, err := s.dir.UpdatePermission(ctx, strings.TrimSpace(id), upd)
	if err != nil {
		return Permission{}, err
	}
	s.purge()
	return p, nil
}

func (s *RBACService) DeletePermission(ctx context.Context, id string) error {
	if err := s.dir.DeletePermission(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.purge()
	return nil
}

func validateRole(name, description string) error {
	var v apperr.Validator
	v.NotBlank("name", name)
	v.MaxLen("name", name, maxRoleNameLen)
	v.MaxLen("description", description, maxRoleDescriptionLen)
	return v.Err()
}

func validatePermission(code, description string) error {
	var v apperr.Validator
	v.NotBlank("code", code)
	v.MaxLen("code", code, maxPermissionCodeLen)
	v.MaxLen("description", description, maxPermissionDescription)
	return v.Err()
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
