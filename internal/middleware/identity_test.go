package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentity_SetsUserIDFromHeader(t *testing.T) {
	var got string
	handler := Identity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Header.Set(UserIDHeader, "user-42")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if got != "user-42" {
		t.Errorf("user id in context = %q, want user-42", got)
	}
}

func TestIdentity_NoHeaderPassesThrough(t *testing.T) {
	var got string
	handler := Identity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if got != "" {
		t.Errorf("user id in context = %q, want empty", got)
	}
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}
