package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/farmfresh/marketplace-backend/pkg/logger"
)

func TestRequestIDKeepsUsableCallerID(t *testing.T) {
	var seen string
	handler := RequestID(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(requestIDHeader)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "trace-123" {
		t.Fatalf("expected caller id kept, got %q", seen)
	}

	for _, bad := range []string{"", "has space", "tab\tid", strings.Repeat("a", maxRequestIDLength+1)} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.Header.Set(requestIDHeader, bad)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		got := rec.Header().Get(requestIDHeader)
		if got == bad || len(got) != 36 {
			t.Fatalf("expected fresh uuid for %q, got %q", bad, got)
		}
	}
}

func TestLoggingLevelsByStatus(t *testing.T) {
	cases := []struct {
		path   string
		status int
		want   string
	}{
		{"/api/v1/orders", http.StatusCreated, `"level":"info"`},
		{"/api/v1/orders", http.StatusConflict, `"level":"warn"`},
		{"/api/v1/orders", http.StatusServiceUnavailable, `"level":"error"`},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		logg := logger.New(logger.Options{ServiceName: "api-test", Output: &buf})
		handler := Logging(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, tc.path, nil))
		if !strings.Contains(buf.String(), tc.want) {
			t.Fatalf("status %d: expected %s in %s", tc.status, tc.want, buf.String())
		}
	}

	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "api-test", Output: &buf})
	Logging(logg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if buf.Len() != 0 {
		t.Fatalf("health probes should stay below info, got %s", buf.String())
	}
}
