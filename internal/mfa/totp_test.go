package mfa

import (
	"encoding/base32"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// rfcSecret is the RFC 6238 SHA1 test key "12345678901234567890".
var rfcSecret = base32.StdEncoding.EncodeToString([]byte("12345678901234567890"))

func newTestEngine(t *testing.T, digits, discrepancy int) *Engine {
	t.Helper()
	e, err := NewEngine(Settings{Digits: digits, Period: 30, Discrepancy: discrepancy})
	require.NoError(t, err)
	return e
}

func TestRFC6238Vector(t *testing.T) {
	e := newTestEngine(t, 6, 1)
	at59 := time.Unix(59, 0)

	code, err := e.Generate(rfcSecret, at59)
	require.NoError(t, err)
	require.Equal(t, "287082", code)

	ok, err := e.Verify(rfcSecret, "287082", at59, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Verify(rfcSecret, "287082", time.Unix(150, 0), 1)
	require.NoError(t, err)
	require.False(t, ok, "counter 5 is outside one step of counter 1")
}

func TestRFC6238EightDigitVectors(t *testing.T) {
	e := newTestEngine(t, 8, 0)
	vectors := map[int64]string{
		59:          "94287082",
		1111111109:  "07081804",
		1111111111:  "14050471",
		1234567890:  "89005924",
		2000000000:  "69279037",
		20000000000: "65353130",
	}
	for ts, want := range vectors {
		code, err := e.Generate(rfcSecret, time.Unix(ts, 0))
		require.NoError(t, err)
		require.Equal(t, want, code, "t=%d", ts)
	}
}

func TestVerifyRoundTripWithoutDrift(t *testing.T) {
	e := newTestEngine(t, 6, 0)
	for _, ts := range []int64{0, 29, 30, 1_700_000_000, 1_999_999_999} {
		at := time.Unix(ts, 0)
		code, err := e.Generate(rfcSecret, at)
		require.NoError(t, err)
		ok, err := e.Verify(rfcSecret, code, at, 0)
		require.NoError(t, err)
		require.True(t, ok, "t=%d", ts)
	}
}

func TestVerifyWindowBoundaries(t *testing.T) {
	e := newTestEngine(t, 6, 2)
	issued := time.Unix(1_700_000_010, 0)
	code, err := e.Generate(rfcSecret, issued)
	require.NoError(t, err)

	for steps, want := range map[int]bool{-3: false, -2: true, 0: true, 2: true, 3: false} {
		at := issued.Add(time.Duration(steps) * 30 * time.Second)
		ok, err := e.Verify(rfcSecret, code, at, 2)
		require.NoError(t, err)
		require.Equal(t, want, ok, "offset %d steps", steps)
	}
}

func TestVerifySkipsNegativeCounters(t *testing.T) {
	e := newTestEngine(t, 6, 2)
	code, err := e.Generate(rfcSecret, time.Unix(0, 0))
	require.NoError(t, err)
	ok, err := e.Verify(rfcSecret, code, time.Unix(10, 0), 2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsWrongAndMissingCodes(t *testing.T) {
	e := newTestEngine(t, 6, 1)
	at := time.Unix(59, 0)

	ok, err := e.Verify(rfcSecret, "000000", at, 1)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = e.Verify(rfcSecret, " ", at, 1)
	require.ErrorIs(t, err, ErrMissingOTP)

	require.ErrorIs(t, e.Check(rfcSecret, "123", at), ErrInvalidOTP)
	require.NoError(t, e.Check(rfcSecret, "287082", at))
}

func TestGenerateFailures(t *testing.T) {
	e := newTestEngine(t, 6, 1)

	_, err := e.Generate("", time.Unix(59, 0))
	require.ErrorIs(t, err, &Error{Code: CodeFailedToGenerateOTP})

	_, err = e.Generate("not base32!", time.Unix(59, 0))
	require.ErrorIs(t, err, &Error{Code: CodeFailedToGenerateOTP})
}

func TestSettingsValidation(t *testing.T) {
	for _, s := range []Settings{
		{Digits: 5, Period: 30},
		{Digits: 9, Period: 30},
		{Digits: 6, Period: 0},
		{Digits: 6, Period: 30, Discrepancy: -1},
	} {
		_, err := NewEngine(s)
		require.Error(t, err, "%+v", s)
	}
	_, err := NewEngine(DefaultSettings())
	require.NoError(t, err)
}
