package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"shopcore.dev/internal/apperr"
	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/ids"
	"shopcore.dev/internal/paging"
)

func (s *Store) CreateUser(_ context.Context, u auth.User, roleIDs []string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.users {
		if strings.EqualFold(rec.user.Username, u.Username) {
			return auth.User{}, fmt.Errorf("%w: username %s is taken", apperr.ErrConflict, u.Username)
		}
	}
	if err := s.requireRoles(roleIDs); err != nil {
		return auth.User{}, err
	}
	now := s.now()
	u.ID = ids.Ensure(u.ID)
	u.CreatedAt, u.UpdatedAt = now, now
	if _, ok := s.users[u.ID]; ok {
		return auth.User{}, fmt.Errorf("%w: user %s exists", apperr.ErrConflict, u.ID)
	}
	s.users[u.ID] = &userRecord{user: u, roleIDs: slices.Clone(roleIDs)}
	return s.userView(s.users[u.ID]), nil
}

func (s *Store) GetUser(_ context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return auth.User{}, apperr.NotFound("user", id)
	}
	return s.userView(rec), nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		if strings.EqualFold(rec.user.Username, username) {
			return s.userView(rec), nil
		}
	}
	return auth.User{}, apperr.NotFound("user", username)
}

func (s *Store) ListUsers(_ context.Context, req paging.Request) ([]auth.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]auth.User, 0, len(s.users))
	for _, rec := range s.users {
		all = append(all, s.userView(rec))
	}
	items, total := sortedPage(all, func(u auth.User) string { return u.ID }, req)
	return items, total, nil
}

func (s *Store) UpdateUser(_ context.Context, id string, upd auth.UserUpdate) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok {
		return auth.User{}, apperr.NotFound("user", id)
	}
	if upd.RoleIDs != nil {
		if err := s.requireRoles(upd.RoleIDs); err != nil {
			return auth.User{}, err
		}
		rec.roleIDs = slices.Clone(upd.RoleIDs)
	}
	if upd.PasswordHash != nil {
		rec.user.PasswordHash = *upd.PasswordHash
	}
	rec.user.UpdatedAt = s.now()
	return s.userView(rec), nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return apperr.NotFound("user", id)
	}
	delete(s.users, id)
	delete(s.secrets, id)
	return nil
}

func (s *Store) CreateRole(_ context.Context, r auth.Role, permissionIDs []string) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roleNameTaken(r.Name, "") {
		return auth.Role{}, fmt.Errorf("%w: role %s exists", apperr.ErrConflict, r.Name)
	}
	if err := s.requirePermissions(permissionIDs); err != nil {
		return auth.Role{}, err
	}
	now := s.now()
	r.ID = ids.Ensure(r.ID)
	r.CreatedAt, r.UpdatedAt = now, now
	rec := &roleRecord{role: r, permIDs: slices.Clone(permissionIDs)}
	s.roles[r.ID] = rec
	return s.roleView(rec), nil
}

func (s *Store) GetRole(_ context.Context, id string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.roles[id]
	if !ok {
		return auth.Role{}, apperr.NotFound("role", id)
	}
	return s.roleView(rec), nil
}

func (s *Store) GetRoleByName(_ context.Context, name string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.roles {
		if rec.role.Name == name {
			return s.roleView(rec), nil
		}
	}
	return auth.Role{}, apperr.NotFound("role", name)
}

func (s *Store) ListRoles(_ context.Context, req paging.Request) ([]auth.Role, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]auth.Role, 0, len(s.roles))
	for _, rec := range s.roles {
		all = append(all, s.roleView(rec))
	}
	items, total := sortedPage(all, func(r auth.Role) string { return r.ID }, req)
	return items, total, nil
}

func (s *Store) UpdateRole(_ context.Context, id string, upd auth.RoleUpdate) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.roles[id]
	if !ok {
		return auth.Role{}, apperr.NotFound("role", id)
	}
	if upd.Name != nil && s.roleNameTaken(*upd.Name, id) {
		return auth.Role{}, fmt.Errorf("%w: role %s exists", apperr.ErrConflict, *upd.Name)
	}
	if upd.PermissionIDs != nil {
		if err := s.requirePermissions(upd.PermissionIDs); err != nil {
			return auth.Role{}, err
		}
		rec.permIDs = slices.Clone(upd.PermissionIDs)
	}
	if upd.Name != nil {
		rec.role.Name = *upd.Name
	}
	if upd.Description != nil {
		rec.role.Description = *upd.Description
	}
	rec.role.UpdatedAt = s.now()
	return s.roleView(rec), nil
}

func (s *Store) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return apperr.NotFound("role", id)
	}
	delete(s.roles, id)
	for _, u := range s.users {
		u.roleIDs = slices.DeleteFunc(u.roleIDs, func(rid string) bool { return rid == id })
	}
	return nil
}

func (s *Store) AddRolePermissions(_ context.Context, roleID string, permissionIDs []string) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.roles[roleID]
	if !ok {
		return auth.Role{}, apperr.NotFound("role", roleID)
	}
	if err := s.requirePermissions(permissionIDs); err != nil {
		return auth.Role{}, err
	}
	for _, pid := range permissionIDs {
		if !slices.Contains(rec.permIDs, pid) {
			rec.permIDs = append(rec.permIDs, pid)
		}
	}
	rec.role.UpdatedAt = s.now()
	return s.roleView(rec), nil
}

func (s *Store) RemoveRolePermissions(_ context.Context, roleID string, permissionIDs []string) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.roles[roleID]
	if !ok {
		return auth.Role{}, apperr.NotFound("role", roleID)
	}
	rec.permIDs = slices.DeleteFunc(rec.permIDs, func(pid string) bool { return slices.Contains(permissionIDs, pid) })
	rec.role.UpdatedAt = s.now()
	return s.roleView(rec), nil
}

func (s *Store) CreatePermission(_ context.Context, p auth.Permission) (auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codeTaken(p.Code, "") {
		return auth.Permission{}, fmt.Errorf("%w: permission %s exists", apperr.ErrConflict, p.Code)
	}
	now := s.now()
	p.ID = ids.Ensure(p.ID)
	p.CreatedAt, p.UpdatedAt = now, now
	s.perms[p.ID] = p
	return p, nil
}

func (s *Store) GetPermission(_ context.Context, id string) (auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.perms[id]
	if !ok {
		return auth.Permission{}, apperr.NotFound("permission", id)
	}
	return p, nil
}

func (s *Store) ListPermissions(_ context.Context, req paging.Request) ([]auth.Permission, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]auth.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		all = append(all, p)
	}
	items, total := sortedPage(all, func(p auth.Permission) string { return p.ID }, req)
	return items, total, nil
}

func (s *Store) PermissionsByCodes(_ context.Context, codes []string) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Permission, 0, len(codes))
	for _, p := range s.perms {
		if slices.Contains(codes, p.Code) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b auth.Permission) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (s *Store) UpdatePermission(_ context.Context, id string, upd auth.PermissionUpdate) (auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.perms[id]
	if !ok {
		return auth.Permission{}, apperr.NotFound("permission", id)
	}
	if upd.Code != nil && *upd.Code != p.Code {
		if s.permissionReferenced(id) {
			return auth.Permission{}, fmt.Errorf("%w: permission %s is referenced by a role, its code cannot change", apperr.ErrConflict, p.Code)
		}
		if s.codeTaken(*upd.Code, id) {
			return auth.Permission{}, fmt.Errorf("%w: permission %s exists", apperr.ErrConflict, *upd.Code)
		}
		p.Code = *upd.Code
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	p.UpdatedAt = s.now()
	s.perms[id] = p
	return p, nil
}

func (s *Store) DeletePermission(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[id]; !ok {
		return apperr.NotFound("permission", id)
	}
	delete(s.perms, id)
	for _, r := range s.roles {
		r.permIDs = slices.DeleteFunc(r.permIDs, func(pid string) bool { return pid == id })
	}
	return nil
}

func (s *Store) EnsurePermissions(_ context.Context, perms []auth.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, p := range perms {
		if s.codeTaken(p.Code, "") {
			continue
		}
		p.ID = ids.Ensure(p.ID)
		p.CreatedAt, p.UpdatedAt = now, now
		s.perms[p.ID] = p
	}
	return nil
}

func (s *Store) PermissionCodesForRoles(_ context.Context, roleNames []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	var codes []string
	for _, rec := range s.roles {
		if !slices.Contains(roleNames, rec.role.Name) {
			continue
		}
		for _, pid := range rec.permIDs {
			p, ok := s.perms[pid]
			if !ok {
				continue
			}
			if _, dup := seen[p.Code]; dup {
				continue
			}
			seen[p.Code] = struct{}{}
			codes = append(codes, p.Code)
		}
	}
	slices.Sort(codes)
	return codes, nil
}

func (s *Store) userView(rec *userRecord) auth.User {
	u := rec.user
	u.Roles = make([]auth.Role, 0, len(rec.roleIDs))
	for _, rid := range rec.roleIDs {
		if r, ok := s.roles[rid]; ok {
			u.Roles = append(u.Roles, s.roleView(r))
		}
	}
	if sec, ok := s.secrets[u.ID]; ok {
		u.MFAEnabled = sec.Enabled
	}
	return u
}

func (s *Store) roleView(rec *roleRecord) auth.Role {
	r := rec.role
	r.Permissions = make([]auth.Permission, 0, len(rec.permIDs))
	for _, pid := range rec.permIDs {
		if p, ok := s.perms[pid]; ok {
			r.Permissions = append(r.Permissions, p)
		}
	}
	return r
}

func (s *Store) requireRoles(roleIDs []string) error {
	for _, rid := range roleIDs {
		if _, ok := s.roles[rid]; !ok {
			return apperr.NotFound("role", rid)
		}
	}
	return nil
}

func (s *Store) requirePermissions(permissionIDs []string) error {
	for _, pid := range permissionIDs {
		if _, ok := s.perms[pid]; !ok {
			return apperr.NotFound("permission", pid)
		}
	}
	return nil
}

func (s *Store) roleNameTaken(name, exceptID string) bool {
	for id, rec := range s.roles {
		if id != exceptID && rec.role.Name == name {
			return true
		}
	}
	return false
}

func (s *Store) codeTaken(code, exceptID string) bool {
	for id, p := range s.perms {
		if id != exceptID && p.Code == code {
			return true
		}
	}
	return false
}

func (s *Store) permissionReferenced(id string) bool {
	for _, r := range s.roles {
		if slices.Contains(r.permIDs, id) {
			return true
		}
	}
	return false
}
