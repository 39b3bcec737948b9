package httpapi

import (
	"net/http"
	"strings"
	"testing"

	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/paging"
)

func TestPermissionAndRoleLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/permissions", env.admin, map[string]string{"code": "export_reports", "description": "Export"})
	expectStatus(t, rr, http.StatusCreated)
	perm := decode[auth.Permission](t, rr)
	if perm.Code != "EXPORT_REPORTS" {
		t.Fatalf("code = %q", perm.Code)
	}

	rr = env.do(t, http.MethodPost, "/permissions", env.admin, map[string]string{"code": "EXPORT_REPORTS"})
	expectStatus(t, rr, http.StatusConflict)
	if code := decode[errorBody](t, rr).ErrorCode; code != "RESOURCE_CONFLICT" {
		t.Fatalf("errorCode = %q", code)
	}

	rr = env.do(t, http.MethodPost, "/roles", env.admin, map[string]any{"name": "REPORTER", "permissionIds": []string{}})
	expectStatus(t, rr, http.StatusCreated)
	role := decode[auth.Role](t, rr)

	rr = env.do(t, http.MethodPost, "/roles/"+role.ID+"/permissions", env.admin, map[string]any{"permissionIds": []string{perm.ID}})
	expectStatus(t, rr, http.StatusOK)
	if got := decode[auth.Role](t, rr); len(got.Permissions) != 1 || got.Permissions[0].Code != "EXPORT_REPORTS" {
		t.Fatalf("unexpected role: %+v", got)
	}

	newCode := "RENAMED"
	rr = env.do(t, http.MethodPut, "/permissions/"+perm.ID, env.admin, map[string]any{"code": newCode})
	expectStatus(t, rr, http.StatusConflict)

	rr = env.do(t, http.MethodDelete, "/roles/"+role.ID+"/permissions", env.admin, map[string]any{"permissionIds": []string{perm.ID}})
	expectStatus(t, rr, http.StatusOK)
	if got := decode[auth.Role](t, rr); len(got.Permissions) != 0 {
		t.Fatalf("permissions not removed: %+v", got)
	}

	rr = env.do(t, http.MethodPut, "/permissions/"+perm.ID, env.admin, map[string]any{"code": newCode})
	expectStatus(t, rr, http.StatusOK)

	rr = env.do(t, http.MethodPost, "/roles/"+role.ID+"/permissions", env.admin, map[string]any{"permissionIds": []string{"missing"}})
	expectStatus(t, rr, http.StatusNotFound)

	rr = env.do(t, http.MethodDelete, "/roles/"+role.ID, env.admin, nil)
	expectStatus(t, rr, http.StatusNoContent)
	rr = env.do(t, http.MethodGet, "/permissions/"+perm.ID, env.admin, nil)
	expectStatus(t, rr, http.StatusOK)
	rr = env.do(t, http.MethodGet, "/roles/"+role.ID, env.admin, nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestUserEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/users", env.admin, map[string]any{"username": "", "password": ""})
	expectStatus(t, rr, http.StatusBadRequest)
	fields := map[string]bool{}
	for _, f := range decode[errorBody](t, rr).FieldErrors {
		fields[f.FieldName] = true
	}
	for _, f := range []string{"username", "password", "roleIds"} {
		if !fields[f] {
			t.Fatalf("missing field error %q in %v", f, fields)
		}
	}

	rr = env.do(t, http.MethodPost, "/users", env.admin, map[string]any{"username": "bob", "password": "bob-pass", "roleIds": []string{}})
	expectStatus(t, rr, http.StatusCreated)
	bob := decode[auth.User](t, rr)
	if bob.Username != "bob" || len(bob.Roles) != 0 {
		t.Fatalf("unexpected user: %+v", bob)
	}
	if got := rr.Body.String(); strings.Contains(got, "passwordHash") || strings.Contains(got, "$2a$") {
		t.Fatalf("password hash leaked: %s", got)
	}

	rr = env.do(t, http.MethodPost, "/users", env.admin, map[string]any{"username": "BOB", "password": "x", "roleIds": []string{}})
	expectStatus(t, rr, http.StatusConflict)

	rr = env.do(t, http.MethodPut, "/users/"+bob.ID, env.admin, map[string]any{"password": "new-pass"})
	expectStatus(t, rr, http.StatusOK)
	env.login(t, "bob", "new-pass", "")

	rr = env.do(t, http.MethodGet, "/users?size=1", env.admin, nil)
	expectStatus(t, rr, http.StatusOK)
	page := decode[paging.Page[auth.User]](t, rr)
	if page.TotalElements != 2 || len(page.Content) != 1 || page.TotalPages != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}

	rr = env.do(t, http.MethodDelete, "/users/"+bob.ID, env.admin, nil)
	expectStatus(t, rr, http.StatusNoContent)
	rr = env.do(t, http.MethodGet, "/users/"+bob.ID, env.admin, nil)
	expectStatus(t, rr, http.StatusNotFound)
}
