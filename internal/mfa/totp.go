package mfa

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

const (
	DefaultDigits      = 6
	DefaultPeriod      = 30
	DefaultDiscrepancy = 2
)

// Settings describe the codes an Engine produces and accepts.
type Settings struct {
	Digits      int
	Period      int
	Discrepancy int
}

// DefaultSettings are six digit codes over thirty second steps, accepting two steps of drift.
func DefaultSettings() Settings {
	return Settings{Digits: DefaultDigits, Period: DefaultPeriod, Discrepancy: DefaultDiscrepancy}
}

func (s Settings) Validate() error {
	if s.Digits < 6 || s.Digits > 8 {
		return fmt.Errorf("mfa: digits %d outside 6-8", s.Digits)
	}
	if s.Period <= 0 {
		return fmt.Errorf("mfa: period must be positive, got %d", s.Period)
	}
	if s.Discrepancy < 0 {
		return fmt.Errorf("mfa: discrepancy must not be negative, got %d", s.Discrepancy)
	}
	return nil
}

// Engine generates and verifies RFC 6238 codes with HMAC-SHA1.
// Secrets are base32 strings, padding optional.
type Engine struct {
	settings Settings
}

func NewEngine(s Settings) (*Engine, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Engine{settings: s}, nil
}

func (e *Engine) Settings() Settings { return e.settings }

// Generate returns the code for the time step containing t.
func (e *Engine) Generate(secret string, t time.Time) (string, error) {
	return e.codeAt(secret, e.counter(t))
}

// Verify reports whether code matches any step in [counter-discrepancy, counter+discrepancy].
func (e *Engine) Verify(secret, code string, t time.Time, discrepancy int) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, ErrMissingOTP
	}
	if discrepancy < 0 {
		discrepancy = 0
	}
	counter := e.counter(t)
	matched := 0
	for step := counter - int64(discrepancy); step <= counter+int64(discrepancy); step++ {
		if step < 0 {
			continue
		}
		expected, err := e.codeAt(secret, step)
		if err != nil {
			return false, err
		}
		matched |= subtle.ConstantTimeCompare([]byte(expected), []byte(code))
	}
	return matched == 1, nil
}

// Check verifies code with the configured discrepancy and returns INVALID_OTP on mismatch.
func (e *Engine) Check(secret, code string, t time.Time) error {
	ok, err := e.Verify(secret, code, t, e.settings.Discrepancy)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOTP
	}
	return nil
}

func (e *Engine) counter(t time.Time) int64 {
	unix := t.Unix()
	period := int64(e.settings.Period)
	c := unix / period
	if unix%period != 0 && unix < 0 {
		c--
	}
	return c
}

func (e *Engine) codeAt(secret string, counter int64) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", newError(CodeFailedToGenerateOTP, errors.New("empty secret"))
	}
	code, err := hotp.GenerateCodeCustom(secret, uint64(counter), hotp.ValidateOpts{
		Digits:    otp.Digits(e.settings.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", newError(CodeFailedToGenerateOTP, err)
	}
	return code, nil
}
