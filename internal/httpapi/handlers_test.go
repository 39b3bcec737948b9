package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/commerce"
	"shopcore.dev/internal/config"
	"shopcore.dev/internal/events"
	"shopcore.dev/internal/mfa"
	"shopcore.dev/internal/store/memory"
)

const (
	testSecret    = "0123456789abcdef0123456789abcdef"
	adminUser     = "admin"
	adminPassword = "admin-password"
)

type testEnv struct {
	api     *API
	handler http.Handler
	store   *memory.Store
	rbac    *auth.RBACService
	admin   string
}

type probeFunc func(ctx context.Context) error

func (f probeFunc) Check(ctx context.Context) error { return f(ctx) }

func newTestEnv(t *testing.T, probe readinessChecker, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.TokenSecret = testSecret
	cfg.HTTP.LoginRate = 0
	for _, m := range mutate {
		m(&cfg)
	}

	store := memory.New()
	hasher, err := auth.NewHasher(4)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	tokens, err := auth.NewTokenProvider(auth.TokenConfig{Secret: cfg.Auth.TokenSecret, Expiry: cfg.Auth.TokenExpiry(), Issuer: cfg.Auth.TokenIssuer})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	evaluator, err := auth.NewEvaluator(store, cfg.Auth.PBACEnabled, auth.WithPermissionCache(16, time.Minute))
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	rbac, err := auth.NewRBACService(store, hasher, evaluator)
	if err != nil {
		t.Fatalf("rbac: %v", err)
	}
	enroller, err := mfa.NewEnroller(cfg.MFA.Issuer, cfg.MFA.QRSize, mfa.Settings{Digits: cfg.MFA.Digits, Period: cfg.MFA.Period, Discrepancy: cfg.MFA.Discrepancy})
	if err != nil {
		t.Fatalf("enroller: %v", err)
	}
	mfaSvc, err := mfa.NewService(store, enroller, cfg.MFA.Discrepancy)
	if err != nil {
		t.Fatalf("mfa: %v", err)
	}
	authSvc, err := auth.NewService(store, hasher, tokens, auth.WithOTPVerifier(mfaSvc))
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	shop, err := commerce.NewService(store, events.NewLogPublisher(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("commerce: %v", err)
	}

	ctx := context.Background()
	if _, err := rbac.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("builtins: %v", err)
	}
	if _, _, err := rbac.EnsureAdminUser(ctx, adminUser, adminPassword); err != nil {
		t.Fatalf("admin: %v", err)
	}

	api, err := New(cfg, Services{Auth: authSvc, Evaluator: evaluator, RBAC: rbac, MFA: mfaSvc, Commerce: shop}, probe, "test")
	if err != nil {
		t.Fatalf("api: %v", err)
	}
	env := &testEnv{api: api, handler: api.Handler(), store: store, rbac: rbac}
	env.admin = env.login(t, adminUser, adminPassword, "")
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T, username, password, otp string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": password, "otp": otp})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, rr.Code, rr.Body.String())
	}
	resp := decode[loginResponse](t, rr)
	if resp.AccessToken == "" {
		t.Fatalf("login %s: empty token", username)
	}
	return resp.AccessToken
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body %s)", v, err, rr.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}

func TestHealthzAndVersionArePublic(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[map[string]any](t, rr)["status"]; got != "ok" {
		t.Fatalf("healthz status = %v", got)
	}

	rr = env.do(t, http.MethodGet, "/version", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[map[string]any](t, rr)["version"]; got != "test" {
		t.Fatalf("version = %v", got)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}
}

func TestReadyReportsProbeFailure(t *testing.T) {
	env := newTestEnv(t, probeFunc(func(context.Context) error { return errors.New("db down") }))

	rr := env.do(t, http.MethodGet, "/readyz", "", nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)
	if strings.Contains(rr.Body.String(), "db down") {
		t.Fatalf("probe error leaked: %s", rr.Body.String())
	}
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": adminUser, "password": "wrong"})
	expectStatus(t, rr, http.StatusUnauthorized)
	if msg := decode[unauthorizedBody](t, rr).Message; msg != "Bad credentials" {
		t.Fatalf("message = %q", msg)
	}

	rr = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "nobody", "password": "x"})
	expectStatus(t, rr, http.StatusUnauthorized)

	rr = env.do(t, http.MethodGet, "/auth/me", env.admin, nil)
	expectStatus(t, rr, http.StatusOK)
	me := decode[auth.User](t, rr)
	if me.Username != adminUser || len(me.Roles) != 1 || me.Roles[0].Name != auth.AdminRole {
		t.Fatalf("unexpected me: %+v", me)
	}

	rr = env.do(t, http.MethodPost, "/auth/logout", env.admin, nil)
	expectStatus(t, rr, http.StatusNoContent)
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/customers", env.admin, `{"name":`)
	expectStatus(t, rr, http.StatusBadRequest)
	if code := decode[errorBody](t, rr).ErrorCode; code != "MALFORMED_REQUEST" {
		t.Fatalf("errorCode = %q", code)
	}
}

func TestBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, nil, func(c *config.Config) { c.HTTP.MaxBodyBytes = 32 })

	rr := env.do(t, http.MethodPost, "/customers", env.admin, map[string]string{"name": strings.Repeat("x", 64)})
	expectStatus(t, rr, http.StatusRequestEntityTooLarge)
}

func TestValidationErrorBody(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/customers", env.admin, map[string]any{
		"name":   " ",
		"orders": []map[string]any{{"lineItems": []map[string]any{{"description": ""}}}},
	})
	expectStatus(t, rr, http.StatusBadRequest)
	body := decode[errorBody](t, rr)
	if body.ErrorCode != "VALIDATION_FAILED" {
		t.Fatalf("errorCode = %q", body.ErrorCode)
	}
	fields := map[string]bool{}
	for _, f := range body.FieldErrors {
		fields[f.FieldName] = true
	}
	if !fields["name"] || !fields["orders[0].lineItems[0].description"] {
		t.Fatalf("unexpected field errors: %+v", body.FieldErrors)
	}
}

func TestCustomerOrderLineItemFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/customers", env.admin, map[string]any{
		"name":    "Ada",
		"email":   "ADA@example.com",
		"address": map[string]any{"street": "1 Loop Rd", "city": "London"},
		"orders": []map[string]any{{
			"description": "first",
			"lineItems":   []map[string]any{{"description": "widget", "quantity": 2}},
		}},
	})
	expectStatus(t, rr, http.StatusCreated)
	c := decode[commerce.Customer](t, rr)
	if rr.Header().Get("Location") != "/customers/"+c.ID {
		t.Fatalf("location = %q", rr.Header().Get("Location"))
	}
	if c.Email != "ada@example.com" || c.Address == nil || len(c.Orders) != 1 || len(c.Orders[0].LineItems) != 1 {
		t.Fatalf("unexpected customer: %+v", c)
	}
	orderPath := "/customers/" + c.ID + "/orders/" + c.Orders[0].ID

	rr = env.do(t, http.MethodPost, orderPath+"/lineItems", env.admin, map[string]any{"description": "gadget"})
	expectStatus(t, rr, http.StatusCreated)
	if li := decode[commerce.LineItem](t, rr); li.Quantity != 1 {
		t.Fatalf("default quantity = %d", li.Quantity)
	}

	rr = env.do(t, http.MethodGet, orderPath+"/lineItems?page=0&size=1", env.admin, nil)
	expectStatus(t, rr, http.StatusOK)
	page := decode[map[string]any](t, rr)
	if page["totalElements"] != float64(2) || page["totalPages"] != float64(2) || page["size"] != float64(1) {
		t.Fatalf("unexpected page: %v", page)
	}

	rr = env.do(t, http.MethodPut, orderPath, env.admin, map[string]any{"description": "renamed"})
	expectStatus(t, rr, http.StatusOK)
	if o := decode[commerce.Order](t, rr); o.Description != "renamed" || len(o.LineItems) != 2 {
		t.Fatalf("unexpected order: %+v", o)
	}

	addrPath := "/customers/" + c.ID + "/addresses/" + c.Address.ID
	rr = env.do(t, http.MethodGet, addrPath, env.admin, nil)
	expectStatus(t, rr, http.StatusOK)
	rr = env.do(t, http.MethodPost, "/customers/"+c.ID+"/addresses", env.admin, map[string]any{"street": "2 Loop Rd"})
	expectStatus(t, rr, http.StatusConflict)

	rr = env.do(t, http.MethodDelete, "/customers/"+c.ID, env.admin, nil)
	expectStatus(t, rr, http.StatusNoContent)

	rr = env.do(t, http.MethodGet, orderPath, env.admin, nil)
	expectStatus(t, rr, http.StatusNotFound)
	body := decode[errorBody](t, rr)
	if body.ErrorCode != "RESOURCE_NOT_FOUND" || !strings.Contains(body.ErrorMessage, c.ID) {
		t.Fatalf("unexpected not found body: %+v", body)
	}
}

func TestListBeyondLastPageIsEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/customers", env.admin, map[string]any{
		"name": "Ada", "email": "ada@example.com",
	})
	expectStatus(t, rr, http.StatusCreated)

	rr = env.do(t, http.MethodGet, "/customers?page=9223372036854775807&size=100", env.admin, nil)
	expectStatus(t, rr, http.StatusOK)
	page := decode[struct {
		Content       []json.RawMessage `json:"content"`
		TotalElements int               `json:"totalElements"`
	}](t, rr)
	if len(page.Content) != 0 || page.TotalElements != 1 {
		t.Fatalf("unexpected page: %s", rr.Body.String())
	}
}

func TestOrderOfAnotherCustomerIsNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	a := decode[commerce.Customer](t, env.do(t, http.MethodPost, "/customers", env.admin, map[string]any{
		"name": "A", "orders": []map[string]any{{"description": "a"}},
	}))
	b := decode[commerce.Customer](t, env.do(t, http.MethodPost, "/customers", env.admin, map[string]any{"name": "B"}))

	rr := env.do(t, http.MethodGet, "/customers/"+b.ID+"/orders/"+a.Orders[0].ID, env.admin, nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestPermissionGuards(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	perm := readPermissionID(t, env, auth.PermReadCustomer)
	role, err := env.rbac.CreateRole(ctx, auth.RoleInput{Name: "VIEWER", PermissionIDs: []string{perm}})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if _, err := env.rbac.CreateUser(ctx, auth.UserInput{Username: "viewer", Password: "viewer-pass", RoleIDs: []string{role.ID}}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	token := env.login(t, "viewer", "viewer-pass", "")

	rr := env.do(t, http.MethodGet, "/customers", token, nil)
	expectStatus(t, rr, http.StatusOK)

	rr = env.do(t, http.MethodPost, "/customers", token, map[string]any{"name": "nope"})
	expectStatus(t, rr, http.StatusForbidden)
	if code := decode[errorBody](t, rr).ErrorCode; code != "ACCESS_DENIED" {
		t.Fatalf("errorCode = %q", code)
	}

	rr = env.do(t, http.MethodGet, "/users", token, nil)
	expectStatus(t, rr, http.StatusForbidden)
}

func TestPBACDisabledAllowsAnyAuthenticatedUser(t *testing.T) {
	env := newTestEnv(t, nil, func(c *config.Config) { c.Auth.PBACEnabled = false })
	if _, err := env.rbac.CreateUser(context.Background(), auth.UserInput{Username: "plain", Password: "plain-pass", RoleIDs: []string{}}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	token := env.login(t, "plain", "plain-pass", "")

	rr := env.do(t, http.MethodPost, "/customers", token, map[string]any{"name": "Grace"})
	expectStatus(t, rr, http.StatusCreated)
}

func TestMFAEnrollActivateAndLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/auth/mfa/enrollment", env.admin, nil)
	expectStatus(t, rr, http.StatusOK)
	enr := decode[enrollmentResponse](t, rr)
	if enr.Issuer != "DruvStar" || enr.AccountName != adminUser || enr.Digits != 6 || enr.Period != 30 {
		t.Fatalf("unexpected enrollment: %+v", enr)
	}
	if !strings.HasPrefix(enr.QRCode, "data:image/png;base64,") || !strings.HasPrefix(enr.OTPAuthURL, "otpauth://totp/") {
		t.Fatalf("unexpected qr (len %d) or url %q", len(enr.QRCode), enr.OTPAuthURL)
	}

	engine, err := mfa.NewEngine(mfa.DefaultSettings())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	rr = env.do(t, http.MethodPost, "/auth/mfa/activation", env.admin, map[string]string{"otp": "000000x"})
	expectStatus(t, rr, http.StatusUnauthorized)

	code, err := engine.Generate(enr.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	rr = env.do(t, http.MethodPost, "/auth/mfa/activation", env.admin, map[string]string{"otp": code})
	expectStatus(t, rr, http.StatusNoContent)

	rr = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": adminUser, "password": adminPassword})
	expectStatus(t, rr, http.StatusUnauthorized)
	if got := decode[errorBody](t, rr).ErrorCode; got != "MISSING_OTP" {
		t.Fatalf("errorCode = %q", got)
	}

	code, err = engine.Generate(enr.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	token := env.login(t, adminUser, adminPassword, code)

	rr = env.do(t, http.MethodPost, "/auth/mfa/enrollment", token, nil)
	expectStatus(t, rr, http.StatusConflict)

	rr = env.do(t, http.MethodDelete, "/auth/mfa", token, nil)
	expectStatus(t, rr, http.StatusNoContent)
	env.login(t, adminUser, adminPassword, "")
}

func TestMFAEnrollmentEncodings(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/auth/mfa/enrollment?encoding=png", env.admin, nil)
	expectStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("body is not a PNG")
	}

	rr = env.do(t, http.MethodPost, "/auth/mfa/enrollment?encoding=svg", env.admin, nil)
	expectStatus(t, rr, http.StatusBadRequest)
	if got := decode[errorBody](t, rr).ErrorCode; got != "UNSUPPORTED_ENCODING" {
		t.Fatalf("errorCode = %q", got)
	}

	rr = env.do(t, http.MethodPost, "/auth/mfa/enrollment?channel=sms", env.admin, nil)
	expectStatus(t, rr, http.StatusBadRequest)
	if got := decode[errorBody](t, rr).ErrorCode; got != "UNSUPPORTED_CHANNEL" {
		t.Fatalf("errorCode = %q", got)
	}
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/nowhere", env.admin, nil)
	expectStatus(t, rr, http.StatusNotFound)
	if code := decode[errorBody](t, rr).ErrorCode; code != "RESOURCE_NOT_FOUND" {
		t.Fatalf("errorCode = %q", code)
	}
}

func readPermissionID(t *testing.T, env *testEnv, code string) string {
	t.Helper()
	perms, err := env.store.PermissionsByCodes(context.Background(), []string{code})
	if err != nil || len(perms) != 1 {
		t.Fatalf("permission %s: %v %v", code, perms, err)
	}
	return perms[0].ID
}
