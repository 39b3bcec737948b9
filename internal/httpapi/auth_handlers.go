package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shopcore.dev/internal/audit"
	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/mfa"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresAt   string `json:"expiresAt"`
}

type mfaActivationRequest struct {
	OTP string `json:"otp"`
}

type enrollmentResponse struct {
	Issuer      string `json:"issuer"`
	AccountName string `json:"accountName"`
	Secret      string `json:"secret"`
	Digits      int    `json:"digits"`
	Period      int    `json:"period"`
	OTPAuthURL  string `json:"otpauthUrl"`
	QRCode      string `json:"qrCode"`
}

func (a *API) authRoutes(r chi.Router) {
	r.With(NewRateLimiter(a.cfg.HTTP.LoginRate, a.cfg.HTTP.LoginBurst, a.proxies...).Middleware).Post("/login", a.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuthenticated)
		r.Post("/logout", a.handleLogout)
		r.Get("/me", a.handleMe)
		r.Post("/mfa/enrollment", a.handleMFAEnrollment)
		r.Post("/mfa/activation", a.handleMFAActivation)
		r.Delete("/mfa", a.handleMFADisable)
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.auth.Login(r.Context(), req.Username, req.Password, req.OTP)
	if err != nil {
		reason := "error"
		var mfaErr *mfa.Error
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			reason = "bad_credentials"
		case errors.As(err, &mfaErr):
			reason = string(mfaErr.Code)
		}
		_ = audit.LogEvent(r.Context(), audit.LoginFailed, map[string]any{"username": req.Username, "reason": reason})
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeUnauthorized(w, "Bad credentials")
			return
		}
		writeError(w, r, err)
		return
	}
	ctx := auth.ContextWithPrincipal(r.Context(), res.Principal)
	_ = audit.LogEvent(ctx, audit.LoginSucceeded, map[string]any{
		"username":          res.Principal.Username,
		"token_fingerprint": auth.Fingerprint(res.AccessToken),
	})
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// handleLogout only records the event; tokens stay valid until they expire.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	_ = audit.LogEvent(r.Context(), audit.Logout, map[string]any{"token_fingerprint": auth.TokenFingerprint(r.Context())})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	u, err := a.rbac.GetUser(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleMFAEnrollment(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	enr, err := a.mfa.BeginEnrollment(r.Context(), p.ID, p.Username, q.Get("channel"), q.Get("encoding"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.MFAEnrolled, map[string]any{"encoding": enr.Encoding})

	if enr.Encoding == mfa.EncodingPNG {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(enr.QRCode)
		return
	}
	writeJSON(w, http.StatusOK, enrollmentResponse{
		Issuer:      enr.Issuer,
		AccountName: enr.AccountName,
		Secret:      enr.Secret,
		Digits:      enr.Digits,
		Period:      enr.Period,
		OTPAuthURL:  enr.URL,
		QRCode:      enr.QRCodeDataURL(),
	})
}

func (a *API) handleMFAActivation(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	var req mfaActivationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.mfa.Activate(r.Context(), p.ID, req.OTP); err != nil {
		writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.MFAActivated, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	if err := a.mfa.Disable(r.Context(), p.ID); err != nil {
		writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.MFADisabled, nil)
	w.WriteHeader(http.StatusNoContent)
}
