package httpapi

import (
	"errors"
	"net/http"

	"shopcore.dev/internal/apperr"
	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/mfa"
	"shopcore.dev/internal/obs"
)

type fieldErrorBody struct {
	FieldName    string `json:"fieldName"`
	ErrorMessage string `json:"errorMessage"`
}

type errorBody struct {
	ErrorCode    string           `json:"errorCode"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	FieldErrors  []fieldErrorBody `json:"fieldErrors,omitempty"`
}

// unauthorizedBody is the entry point response for requests without a usable token.
type unauthorizedBody struct {
	Message string `json:"message"`
}

func writeCode(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorBody{ErrorCode: code, ErrorMessage: apperr.Message(code)})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSON(w, http.StatusUnauthorized, unauthorizedBody{Message: message})
}

// writeError maps domain errors onto status codes and the error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve       *apperr.ValidationError
		nf       *apperr.NotFoundError
		mfaErr   *mfa.Error
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ve):
		body := errorBody{ErrorCode: apperr.CodeValidationFailed, ErrorMessage: apperr.Message(apperr.CodeValidationFailed)}
		for _, f := range ve.Fields {
			body.FieldErrors = append(body.FieldErrors, fieldErrorBody{FieldName: f.Field, ErrorMessage: f.Message})
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.As(err, &mfaErr):
		writeJSON(w, mfaStatus(mfaErr.Code), errorBody{ErrorCode: string(mfaErr.Code), ErrorMessage: mfaErr.Message()})
		if mfaErr.Code == mfa.CodeFailedToGenerateOTP || mfaErr.Code == mfa.CodeFailedToGenerateQRCode {
			obs.Logger(r.Context()).Error("mfa failure", "err", err)
		}
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorBody{ErrorCode: apperr.CodeNotFound, ErrorMessage: nf.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		writeCode(w, http.StatusNotFound, apperr.CodeNotFound)
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{ErrorCode: apperr.CodeMalformedRequest, ErrorMessage: "request body too large"})
	case errors.Is(err, errMalformedBody):
		writeCode(w, http.StatusBadRequest, apperr.CodeMalformedRequest)
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{ErrorCode: apperr.CodeValidationFailed, ErrorMessage: err.Error()})
	case errors.Is(err, apperr.ErrConflict):
		writeCode(w, http.StatusConflict, apperr.CodeConflict)
	case errors.Is(err, apperr.ErrForbidden):
		writeCode(w, http.StatusForbidden, apperr.CodeAccessDenied)
	case errors.Is(err, apperr.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenMalformed):
		writeCode(w, http.StatusUnauthorized, apperr.CodeUnauthenticated)
	default:
		obs.Logger(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeCode(w, http.StatusInternalServerError, apperr.CodeInternal)
	}
}

func mfaStatus(code mfa.Code) int {
	switch code {
	case mfa.CodeMissingOTP, mfa.CodeInvalidOTP:
		return http.StatusUnauthorized
	case mfa.CodeUnsupportedChannel, mfa.CodeUnsupportedEncoding:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
