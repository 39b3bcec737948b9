package mfa

import (
	"errors"

	"shopcore.dev/internal/apperr"
)

// Code identifies an MFA failure for clients.
type Code string

const (
	CodeFailedToGenerateOTP    Code = "FAILED_TO_GENERATE_OTP"
	CodeFailedToGenerateQRCode Code = "FAILED_TO_GENERATE_QRCODE"
	CodeInvalidOTP             Code = "INVALID_OTP"
	CodeMissingOTP             Code = "MISSING_OTP"
	CodeUnsupportedChannel     Code = "UNSUPPORTED_CHANNEL"
	CodeUnsupportedEncoding    Code = "UNSUPPORTED_ENCODING"
)

var messages = map[string]string{
	string(CodeFailedToGenerateOTP):    "The one-time password could not be generated.",
	string(CodeFailedToGenerateQRCode): "The enrollment QR code could not be generated.",
	string(CodeInvalidOTP):             "The one-time password is invalid or expired.",
	string(CodeMissingOTP):             "A one-time password is required for this account.",
	string(CodeUnsupportedChannel):     "The requested MFA delivery channel is not supported.",
	string(CodeUnsupportedEncoding):    "The requested QR code encoding is not supported.",
}

func init() {
	apperr.RegisterMessages(messages)
}

// Error is a recoverable MFA failure.
type Error struct {
	Code Code
	Err  error
}

var (
	ErrInvalidOTP          = &Error{Code: CodeInvalidOTP}
	ErrMissingOTP          = &Error{Code: CodeMissingOTP}
	ErrUnsupportedChannel  = &Error{Code: CodeUnsupportedChannel}
	ErrUnsupportedEncoding = &Error{Code: CodeUnsupportedEncoding}
)

func newError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "mfa: " + string(e.Code) + ": " + e.Err.Error()
	}
	return "mfa: " + string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Message returns the catalogued text for the error code.
func (e *Error) Message() string {
	return apperr.Message(string(e.Code))
}
