package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shopcore.dev/internal/apperr"
	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/ids"
	"shopcore.dev/internal/paging"
)

const userColumns = `u.id, u.username, u.password_hash, u.created_at, u.updated_at,
	coalesce((select m.enabled from user_mfa m where m.user_id = u.id), false)`

const roleColumns = `r.id, r.name, r.description, r.created_at, r.updated_at`

const permissionColumns = `p.id, p.code, p.description, p.created_at, p.updated_at`

func (s *Store) CreateUser(ctx context.Context, u auth.User, roleIDs []string) (auth.User, error) {
	u.ID = ids.Ensure(u.ID)
	return inTx(ctx, s.db, func(tx *sql.Tx) (auth.User, error) {
		if _, err := tx.ExecContext(ctx, `
			insert into users (id, username, password_hash)
			values ($1, $2, $3)
		`, u.ID, u.Username, u.PasswordHash); err != nil {
			return auth.User{}, translate(err, "user "+u.Username)
		}
		if err := linkUserRoles(ctx, tx, u.ID, roleIDs); err != nil {
			return auth.User{}, err
		}
		return loadUser(ctx, tx, `u.id = $1`, u.ID)
	})
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	return loadUser(ctx, s.db, `u.id = $1`, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (auth.User, error) {
	return loadUser(ctx, s.db, `lower(u.username) = lower($1)`, username)
}

func (s *Store) ListUsers(ctx context.Context, req paging.Request) ([]auth.User, int, error) {
	total, err := count(ctx, s.db, `select count(*) from users`)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users u
		order by u.id
		limit $1 offset $2
	`, req.Size, req.Offset())
	if err != nil {
		return nil, 0, err
	}
	users, err := collect(rows, scanUser)
	if err != nil {
		return nil, 0, err
	}
	userIDs := make([]string, len(users))
	for i, u := range users {
		userIDs[i] = u.ID
	}
	roles, err := rolesForUsers(ctx, s.db, userIDs)
	if err != nil {
		return nil, 0, err
	}
	for i := range users {
		users[i].Roles = nonNil(roles[users[i].ID])
	}
	return users, total, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd auth.UserUpdate) (auth.User, error) {
	return inTx(ctx, s.db, func(tx *sql.Tx) (auth.User, error) {
		if err := lockRow(ctx, tx, `select 1 from users where id = $1 for update`, "user", id); err != nil {
			return auth.User{}, err
		}
		if upd.PasswordHash != nil {
			if _, err := tx.ExecContext(ctx, `update users set password_hash = $2 where id = $1`, id, *upd.PasswordHash); err != nil {
				return auth.User{}, err
			}
		}
		if upd.RoleIDs != nil {
			if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, id); err != nil {
				return auth.User{}, err
			}
			if err := linkUserRoles(ctx, tx, id, upd.RoleIDs); err != nil {
				return auth.User{}, err
			}
		}
		if _, err := tx.ExecContext(ctx, `update users set updated_at = now() where id = $1`, id); err != nil {
			return auth.User{}, err
		}
		return loadUser(ctx, tx, `u.id = $1`, id)
	})
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	return affected(res, "user", id)
}

func (s *Store) CreateRole(ctx context.Context, r auth.Role, permissionIDs []string) (auth.Role, error) {
	r.ID = ids.Ensure(r.ID)
	return inTx(ctx, s.db, func(tx *sql.Tx) (auth.Role, error) {
		if _, err := tx.ExecContext(ctx, `
			insert into roles (id, name, description)
			values ($1, $2, $3)
		`, r.ID, r.Name, r.Description); err != nil {
			return auth.Role{}, translate(err, "role "+r.Name)
		}
		if err := linkRolePermissions(ctx, tx, r.ID, permissionIDs); err != nil {
			return auth.Role{}, err
		}
		return loadRole(ctx, tx, `r.id = $1`, r.ID)
	})
}

func (s *Store) GetRole(ctx context.Context, id string) (auth.Role, error) {
	return loadRole(ctx, s.db, `r.id = $1`, id)
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (auth.Role, error) {
	return loadRole(ctx, s.db, `r.name = $1`, name)
}

func (s *Store) ListRoles(ctx context.Context, req paging.Request) ([]auth.Role, int, error) {
	total, err := count(ctx, s.db, `select count(*) from roles`)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+`
		from roles r
		order by r.id
		limit $1 offset $2
	`, req.Size, req.Offset())
	if err != nil {
		return nil, 0, err
	}
	roles, err := collect(rows, scanRole)
	if err != nil {
		return nil, 0, err
	}
	if err := attachPermissions(ctx, s.db, roles); err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd auth.RoleUpdate) (auth.Role, error) {
	return inTx(ctx, s.db, func(tx *sql.Tx) (auth.Role, error) {
		if err := lockRow(ctx, tx, `select 1 from roles where id = $1 for update`, "role", id); err != nil {
			return auth.Role{}, err
		}
		var (
			setClauses = []string{"updated_at = now()"}
			args       []any
			idx        = 1
		)
		if upd.Name != nil {
			setClauses = append(setClauses, fmt.Sprintf("name = $%d", idx))
			args = append(args, *upd.Name)
			idx++
		}
		if upd.Description != nil {
			setClauses = append(setClauses, fmt.Sprintf("description = $%d", idx))
			args = append(args, *upd.Description)
			idx++
		}
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(setClauses, ", "), idx)
		args = append(args, id)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return auth.Role{}, translate(err, "role")
		}
		if upd.PermissionIDs != nil {
			if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, id); err != nil {
				return auth.Role{}, err
			}
			if err := linkRolePermissions(ctx, tx, id, upd.PermissionIDs); err != nil {
				return auth.Role{}, err
			}
		}
		return loadRole(ctx, tx, `r.id = $1`, id)
	})
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return err
	}
	return affected(res, "role", id)
}

func (s *Store) AddRolePermissions(ctx context.Context, roleID string, permissionIDs []string) (auth.Role, error) {
	return inTx(ctx, s.db, func(tx *sql.Tx) (auth.Role, error) {
		if err := lockRow(ctx, tx, `select 1 from roles where id = $1 for update`, "role", roleID); err != nil {
			return auth.Role{}, err
		}
		if err := linkRolePermissions(ctx, tx, roleID, permissionIDs); err != nil {
			return auth.Role{}, err
		}
		if _, err := tx.ExecContext(ctx, `update roles set updated_at = now() where id = $1`, roleID); err != nil {
			return auth.Role{}, err
		}
		return loadRole(ctx, tx, `r.id = $1`, roleID)
	})
}

func (s *Store) RemoveRolePermissions(ctx context.Context, roleID string, permissionIDs []string) (auth.Role, error) {
	return inTx(ctx, s.db, func(tx *sql.Tx) (auth.Role, error) {
		if err := lockRow(ctx, tx, `select 1 from roles where id = $1 for update`, "role", roleID); err != nil {
			return auth.Role{}, err
		}
		if len(permissionIDs) > 0 {
			args := append([]any{roleID}, stringArgs(permissionIDs)...)
			if _, err := tx.ExecContext(ctx, `
				delete from role_permissions
				where role_id = $1 and permission_id in (`+placeholders(2, len(permissionIDs))+`)
			`, args...); err != nil {
				return auth.Role{}, err
			}
		}
		if _, err := tx.ExecContext(ctx, `update roles set updated_at = now() where id = $1`, roleID); err != nil {
			return auth.Role{}, err
		}
		return loadRole(ctx, tx, `r.id = $1`, roleID)
	})
}

func (s *Store) CreatePermission(ctx context.Context, p auth.Permission) (auth.Permission, error) {
	p.ID = ids.Ensure(p.ID)
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, code, description)
		values ($1, $2, $3)
		returning created_at, updated_at
	`, p.ID, p.Code, p.Description)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return auth.Permission{}, translate(err, "permission "+p.Code)
	}
	return p, nil
}

func (s *Store) GetPermission(ctx context.Context, id string) (auth.Permission, error) {
	p, err := scanPermission(s.db.QueryRowContext(ctx, `select `+permissionColumns+` from permissions p where p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Permission{}, apperr.NotFound("permission", id)
	}
	return p, err
}

func (s *Store) ListPermissions(ctx context.Context, req paging.Request) ([]auth.Permission, int, error) {
	total, err := count(ctx, s.db, `select count(*) from permissions`)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+permissionColumns+`
		from permissions p
		order by p.id
		limit $1 offset $2
	`, req.Size, req.Offset())
	if err != nil {
		return nil, 0, err
	}
	perms, err := collect(rows, scanPermission)
	if err != nil {
		return nil, 0, err
	}
	return perms, total, nil
}

func (s *Store) PermissionsByCodes(ctx context.Context, codes []string) ([]auth.Permission, error) {
	if len(codes) == 0 {
		return []auth.Permission{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+permissionColumns+`
		from permissions p
		where p.code in (`+placeholders(1, len(codes))+`)
		order by p.code
	`, stringArgs(codes)...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPermission)
}

// UpdatePermission refuses to rename a code that a role still references.
func (s *Store) UpdatePermission(ctx context.Context, id string, upd auth.PermissionUpdate) (auth.Permission, error) {
	return inTx(ctx, s.db, func(tx *sql.Tx) (auth.Permission, error) {
		var current string
		err := tx.QueryRowContext(ctx, `select code from permissions where id = $1 for update`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Permission{}, apperr.NotFound("permission", id)
		}
		if err != nil {
			return auth.Permission{}, err
		}
		if upd.Code != nil && *upd.Code != current {
			var referenced bool
			if err := tx.QueryRowContext(ctx, `
				select exists (select 1 from role_permissions where permission_id = $1)
			`, id).Scan(&referenced); err != nil {
				return auth.Permission{}, err
			}
			if referenced {
				return auth.Permission{}, fmt.Errorf("%w: permission %s is referenced by a role, its code cannot change", apperr.ErrConflict, current)
			}
			if _, err := tx.ExecContext(ctx, `update permissions set code = $2 where id = $1`, id, *upd.Code); err != nil {
				return auth.Permission{}, translate(err, "permission "+*upd.Code)
			}
		}
		if upd.Description != nil {
			if _, err := tx.ExecContext(ctx, `update permissions set description = $2 where id = $1`, id, *upd.Description); err != nil {
				return auth.Permission{}, err
			}
		}
		return scanPermission(tx.QueryRowContext(ctx, `
			update permissions p set updated_at = now() where p.id = $1
			returning `+permissionColumns, id))
	})
}

func (s *Store) DeletePermission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return err
	}
	return affected(res, "permission", id)
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	return WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, p := range perms {
			if _, err := tx.ExecContext(ctx, `
				insert into permissions (id, code, description)
				values ($1, $2, $3)
				on conflict (code) do nothing
			`, ids.Ensure(p.ID), p.Code, p.Description); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) PermissionCodesForRoles(ctx context.Context, roleNames []string) ([]string, error) {
	if len(roleNames) == 0 {
		return []string{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.code
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		join roles r on r.id = rp.role_id
		where r.name in (`+placeholders(1, len(roleNames))+`)
		order by p.code
	`, stringArgs(roleNames)...)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(sc scanner) (string, error) {
		var code string
		err := sc.Scan(&code)
		return code, err
	})
}

type scanner interface {
	Scan(dest ...any) error
}

// collect drains rows so the next statement can run on the same connection.
func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanUser(sc scanner) (auth.User, error) {
	var u auth.User
	err := sc.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &u.MFAEnabled)
	return u, err
}

func scanRole(sc scanner) (auth.Role, error) {
	var r auth.Role
	err := sc.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func scanPermission(sc scanner) (auth.Permission, error) {
	var p auth.Permission
	err := sc.Scan(&p.ID, &p.Code, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func loadUser(ctx context.Context, q querier, where string, arg string) (auth.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, `select `+userColumns+` from users u where `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, apperr.NotFound("user", arg)
	}
	if err != nil {
		return auth.User{}, err
	}
	roles, err := rolesForUsers(ctx, q, []string{u.ID})
	if err != nil {
		return auth.User{}, err
	}
	u.Roles = nonNil(roles[u.ID])
	return u, nil
}

func loadRole(ctx context.Context, q querier, where string, arg string) (auth.Role, error) {
	r, err := scanRole(q.QueryRowContext(ctx, `select `+roleColumns+` from roles r where `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, apperr.NotFound("role", arg)
	}
	if err != nil {
		return auth.Role{}, err
	}
	roles := []auth.Role{r}
	if err := attachPermissions(ctx, q, roles); err != nil {
		return auth.Role{}, err
	}
	return roles[0], nil
}

func rolesForUsers(ctx context.Context, q querier, userIDs []string) (map[string][]auth.Role, error) {
	out := make(map[string][]auth.Role, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	type link struct {
		userID string
		role   auth.Role
	}
	rows, err := q.QueryContext(ctx, `
		select ur.user_id, `+roleColumns+`
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id in (`+placeholders(1, len(userIDs))+`)
		order by r.name
	`, stringArgs(userIDs)...)
	if err != nil {
		return nil, err
	}
	links, err := collect(rows, func(sc scanner) (link, error) {
		var l link
		err := sc.Scan(&l.userID, &l.role.ID, &l.role.Name, &l.role.Description, &l.role.CreatedAt, &l.role.UpdatedAt)
		return l, err
	})
	if err != nil {
		return nil, err
	}
	roles := make([]auth.Role, len(links))
	for i, l := range links {
		roles[i] = l.role
	}
	if err := attachPermissions(ctx, q, roles); err != nil {
		return nil, err
	}
	for i, l := range links {
		out[l.userID] = append(out[l.userID], roles[i])
	}
	return out, nil
}

// attachPermissions fills Permissions for every role in place.
func attachPermissions(ctx context.Context, q querier, roles []auth.Role) error {
	if len(roles) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	var roleIDs []string
	for _, r := range roles {
		if _, ok := seen[r.ID]; !ok {
			seen[r.ID] = struct{}{}
			roleIDs = append(roleIDs, r.ID)
		}
	}
	type link struct {
		roleID string
		perm   auth.Permission
	}
	rows, err := q.QueryContext(ctx, `
		select rp.role_id, `+permissionColumns+`
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id in (`+placeholders(1, len(roleIDs))+`)
		order by p.code
	`, stringArgs(roleIDs)...)
	if err != nil {
		return err
	}
	links, err := collect(rows, func(sc scanner) (link, error) {
		var l link
		err := sc.Scan(&l.roleID, &l.perm.ID, &l.perm.Code, &l.perm.Description, &l.perm.CreatedAt, &l.perm.UpdatedAt)
		return l, err
	})
	if err != nil {
		return err
	}
	byRole := map[string][]auth.Permission{}
	for _, l := range links {
		byRole[l.roleID] = append(byRole[l.roleID], l.perm)
	}
	for i := range roles {
		roles[i].Permissions = nonNil(byRole[roles[i].ID])
	}
	return nil
}

func linkUserRoles(ctx context.Context, tx *sql.Tx, userID string, roleIDs []string) error {
	for _, rid := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id) values ($1, $2)
			on conflict do nothing
		`, userID, rid); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return apperr.NotFound("role", rid)
			}
			return err
		}
	}
	return nil
}

func linkRolePermissions(ctx context.Context, tx *sql.Tx, roleID string, permissionIDs []string) error {
	for _, pid := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id) values ($1, $2)
			on conflict do nothing
		`, roleID, pid); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return apperr.NotFound("permission", pid)
			}
			return err
		}
	}
	return nil
}

func lockRow(ctx context.Context, tx *sql.Tx, query, kind, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(kind, id)
	}
	return err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
