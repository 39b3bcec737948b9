package obs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                      "/",
		"/metrics":                              "/metrics",
		"/customers/01ARZ3NDEKTSV4RRFFQ69G5FAV": "/customers/:id",
		"/customers/42/orders":                  "/customers/:id/orders",
		"/customers/abc/orders":                 "/customers/abc/orders",
		"/roles?page=1":                         "/roles",
		"/customers/42/orders/7/lineItems?size=5": "/customers/:id/orders/:id/lineItems",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/customers/{customerId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/some-id", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/customers/{customerId}", "418"))
	if got != 1 {
		t.Fatalf("expected one request counted under the route pattern, got %v", got)
	}
}

func TestTimedRecordsOutcome(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := WithLogger(context.Background(), logger)

	v, err := Timed(ctx, "test.ok", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("Timed returned %d, %v", v, err)
	}
	boom := errors.New("boom")
	if err := TimedErr(ctx, "test.fail", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("TimedErr lost the error: %v", err)
	}

	if n := testutil.CollectAndCount(operationDuration); n < 2 {
		t.Fatalf("expected two observed series, got %d", n)
	}
	out := buf.String()
	if !strings.Contains(out, "op=test.ok") || !strings.Contains(out, "outcome=error") {
		t.Fatalf("missing timing log lines: %s", out)
	}
}
