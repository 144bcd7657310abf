package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"archivehub/internal/errs"
)

func TestQueryInt64UsesDefaultOnMissingOrInvalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=notanumber", nil)
	if got := queryInt64(req, "limit", 42); got != 42 {
		t.Fatalf("expected default 42 for invalid value, got %d", got)
	}
	if got := queryInt64(req, "offset", 7); got != 7 {
		t.Fatalf("expected default 7 for missing param, got %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/?limit=15", nil)
	if got := queryInt64(req, "limit", 42); got != 15 {
		t.Fatalf("expected parsed value 15, got %d", got)
	}
}

func TestRequireBearerRejectsMissingAndAcceptsAnyConfiguredToken(t *testing.T) {
	s := &Server{}
	mw := s.requireBearer("token-a", "token-b")
	ok := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	ok.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/enqueue", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no auth header, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/enqueue", nil)
	req.Header.Set("Authorization", "Bearer token-b")
	ok.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with a matching token, got %d", rec.Code)
	}
}

func TestRequireBearerRejectsEverythingWhenNoTokenConfigured(t *testing.T) {
	s := &Server{}
	mw := s.requireBearer("", "")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/enqueue", nil)
	req.Header.Set("Authorization", "Bearer anything")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected an unconfigured token to reject all requests, got %d", rec.Code)
	}
}

func TestWriteRoutingErrorUsesRoutingErrorCode(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRoutingError(rec, &errs.RoutingError{Code: "MISSING_TENANT_ID", Message: "tenant_id is required"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "MISSING_TENANT_ID") {
		t.Fatalf("expected body to contain routing error code, got %s", body)
	}
}
