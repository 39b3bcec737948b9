package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shopcore.dev/internal/audit"
	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/paging"
)

type createUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	RoleIDs  []string `json:"roleIds"`
}

type updateUserRequest struct {
	Password *string  `json:"password"`
	RoleIDs  []string `json:"roleIds"`
}

type roleRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permissionIds"`
}

type updateRoleRequest struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	PermissionIDs []string `json:"permissionIds"`
}

type rolePermissionsRequest struct {
	PermissionIDs []string `json:"permissionIds"`
}

type permissionRequest struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type updatePermissionRequest struct {
	Code        *string `json:"code"`
	Description *string `json:"description"`
}

func (a *API) audit(ctx context.Context, event, resourceID string, extra map[string]any) {
	fields := map[string]any{"resource_id": resourceID}
	for k, v := range extra {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}

func (a *API) userRoutes(r chi.Router) {
	r.With(a.requirePermission(auth.PermCreateUser)).Post("/", a.handleCreateUser)
	r.With(a.requirePermission(auth.PermReadUser)).Get("/", a.handleListUsers)
	r.Route("/{id}", func(r chi.Router) {
		r.With(a.requirePermission(auth.PermReadUser)).Get("/", a.handleGetUser)
		r.With(a.requirePermission(auth.PermUpdateUser)).Put("/", a.handleUpdateUser)
		r.With(a.requirePermission(auth.PermDeleteUser)).Delete("/", a.handleDeleteUser)
	})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := a.rbac.CreateUser(r.Context(), auth.UserInput{Username: req.Username, Password: req.Password, RoleIDs: req.RoleIDs})
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.user.created", u.ID, map[string]any{"username": u.Username, "roles": u.RoleNames()})
	writeCreated(w, "/users/"+u.ID, u)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := a.rbac.ListUsers(r.Context(), paging.FromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.rbac.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := a.rbac.UpdateUser(r.Context(), chi.URLParam(r, "id"), auth.UserChanges{Password: req.Password, RoleIDs: req.RoleIDs})
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.user.updated", u.ID, map[string]any{
		"password_changed": req.Password != nil,
		"roles":            u.RoleNames(),
	})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.rbac.DeleteUser(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.user.deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) roleRoutes(r chi.Router) {
	r.With(a.requirePermission(auth.PermCreateRole)).Post("/", a.handleCreateRole)
	r.With(a.requirePermission(auth.PermReadRole)).Get("/", a.handleListRoles)
	r.Route("/{id}", func(r chi.Router) {
		r.With(a.requirePermission(auth.PermReadRole)).Get("/", a.handleGetRole)
		r.With(a.requirePermission(auth.PermUpdateRole)).Put("/", a.handleUpdateRole)
		r.With(a.requirePermission(auth.PermDeleteRole)).Delete("/", a.handleDeleteRole)
		r.With(a.requirePermission(auth.PermUpdateRole)).Post("/permissions", a.handleAddRolePermissions)
		r.With(a.requirePermission(auth.PermUpdateRole)).Delete("/permissions", a.handleRemoveRolePermissions)
	})
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := a.rbac.CreateRole(r.Context(), auth.RoleInput{Name: req.Name, Description: req.Description, PermissionIDs: req.PermissionIDs})
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.created", role.ID, map[string]any{"name": role.Name})
	writeCreated(w, "/roles/"+role.ID, role)
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	page, err := a.rbac.ListRoles(r.Context(), paging.FromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := a.rbac.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := a.rbac.UpdateRole(r.Context(), chi.URLParam(r, "id"), auth.RoleUpdate{
		Name:          req.Name,
		Description:   req.Description,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.updated", role.ID, map[string]any{"name": role.Name})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.rbac.DeleteRole(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddRolePermissions(w http.ResponseWriter, r *http.Request) {
	a.changeRolePermissions(w, r, true)
}

func (a *API) handleRemoveRolePermissions(w http.ResponseWriter, r *http.Request) {
	a.changeRolePermissions(w, r, false)
}

func (a *API) changeRolePermissions(w http.ResponseWriter, r *http.Request, add bool) {
	var req rolePermissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var (
		role  auth.Role
		err   error
		event = "rbac.role.permissions_added"
	)
	if add {
		role, err = a.rbac.AddRolePermissions(r.Context(), chi.URLParam(r, "id"), req.PermissionIDs)
	} else {
		event = "rbac.role.permissions_removed"
		role, err = a.rbac.RemoveRolePermissions(r.Context(), chi.URLParam(r, "id"), req.PermissionIDs)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.audit(r.Context(), event, role.ID, map[string]any{"permission_ids": req.PermissionIDs})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) permissionRoutes(r chi.Router) {
	r.With(a.requirePermission(auth.PermCreatePermission)).Post("/", a.handleCreatePermission)
	r.With(a.requirePermission(auth.PermReadPermission)).Get("/", a.handleListPermissions)
	r.Route("/{id}", func(r chi.Router) {
		r.With(a.requirePermission(auth.PermReadPermission)).Get("/", a.handleGetPermission)
		r.With(a.requirePermission(auth.PermUpdatePermission)).Put("/", a.handleUpdatePermission)
		r.With(a.requirePermission(auth.PermDeletePermission)).Delete("/", a.handleDeletePermission)
	})
}

func (a *API) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := a.rbac.CreatePermission(r.Context(), auth.PermissionInput{Code: req.Code, Description: req.Description})
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.permission.created", p.ID, map[string]any{"code": p.Code})
	writeCreated(w, "/permissions/"+p.ID, p)
}

func (a *API) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	page, err := a.rbac.ListPermissions(r.Context(), paging.FromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	p, err := a.rbac.GetPermission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleUpdatePermission(w http.ResponseWriter, r *http.Request) {
	var req updatePermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := a.rbac.UpdatePermission(r.Context(), chi.URLParam(r, "id"), auth.PermissionUpdate{Code: req.Code, Description: req.Description})
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.permission.updated", p.ID, map[string]any{"code": p.Code})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.rbac.DeletePermission(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.permission.deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
