package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	Healthz(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
		t.Errorf("got %d %q, want 200 %q", w.Code, w.Body.String(), "ok\n")
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		ready      ReadyFunc
		wantStatus int
		wantBody   string
	}{
		{"nil func", nil, http.StatusOK, "ready"},
		{"ready", func(context.Context) error { return nil }, http.StatusOK, "ready"},
		{"catalog pending", func(context.Context) error { return errors.New("catalog not loaded") },
			http.StatusServiceUnavailable, "catalog not loaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Readyz(tt.ready)(w, httptest.NewRequest("GET", "/readyz", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}
