package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shopcore.dev/internal/apperr"
	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/commerce"
	"shopcore.dev/internal/config"
	"shopcore.dev/internal/mfa"
	"shopcore.dev/internal/obs"
)

const serviceName = "shopcore-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Services are the domain services served over HTTP.
type Services struct {
	Auth      *auth.Service
	Evaluator *auth.Evaluator
	RBAC      *auth.RBACService
	MFA       *mfa.Service
	Commerce  *commerce.Service
}

// API is the HTTP layer.
type API struct {
	cfg       config.Config
	auth      *auth.Service
	evaluator *auth.Evaluator
	rbac      *auth.RBACService
	mfa       *mfa.Service
	commerce  *commerce.Service

	readyProbe readinessChecker
	version    string
	allow      allowList
	proxies    []netip.Prefix
	router     chi.Router
}

func New(cfg config.Config, svc Services, rp readinessChecker, version string) (*API, error) {
	if svc.Auth == nil || svc.Evaluator == nil {
		return nil, errors.New("httpapi: auth service and evaluator are required")
	}
	if svc.RBAC == nil || svc.MFA == nil || svc.Commerce == nil {
		return nil, errors.New("httpapi: rbac, mfa and commerce services are required")
	}
	if rp == nil {
		rp = ReadyProbe{}
	}
	proxies, err := cfg.HTTP.TrustedProxyPrefixes()
	if err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}
	a := &API{
		cfg:        cfg,
		auth:       svc.Auth,
		evaluator:  svc.Evaluator,
		rbac:       svc.RBAC,
		mfa:        svc.MFA,
		commerce:   svc.Commerce,
		readyProbe: rp,
		version:    version,
		allow:      newAllowList(cfg.Auth.UnsecuredPaths),
		proxies:    proxies,
	}
	a.router = a.routes()
	return a, nil
}

// Handler returns the fully wrapped router.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Logging)
	r.Use(middleware.Recoverer)
	r.Use(obs.Instrument)
	r.Use(SecurityHeaders)
	r.Use(CORS(a.cfg.CORS))
	r.Use(MaxBodyBytes(a.cfg.HTTP.MaxBodyBytes))
	r.Use(a.authenticate)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeCode(w, http.StatusNotFound, apperr.CodeNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{ErrorCode: "METHOD_NOT_ALLOWED", ErrorMessage: "method not allowed"})
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/version", a.Version)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/auth", a.authRoutes)
	r.Route("/users", a.userRoutes)
	r.Route("/roles", a.roleRoutes)
	r.Route("/permissions", a.permissionRoutes)
	r.Route("/customers", a.customerRoutes)
	return r
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.Logger(r.Context()).Warn("readiness check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

var errMalformedBody = errors.New("malformed request body")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeCreated(w http.ResponseWriter, location string, v any) {
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusCreated, v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errMalformedBody)
		}
		return fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	return nil
}
