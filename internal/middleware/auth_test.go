package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestWebhookSecret(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
		wantCalled bool
	}{
		{name: "matching secret", secret: "s3cret", header: "s3cret", wantStatus: http.StatusOK, wantCalled: true},
		{name: "wrong secret", secret: "s3cret", header: "s3creT", wantStatus: http.StatusForbidden},
		{name: "missing header", secret: "s3cret", header: "", wantStatus: http.StatusForbidden},
		{name: "check disabled", secret: "", header: "", wantStatus: http.StatusOK, wantCalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			r := httptest.NewRequest(http.MethodPost, "/payment/webhook", nil)
			if tt.header != "" {
				r.Header.Set(WebhookSecretHeader, tt.header)
			}
			w := httptest.NewRecorder()

			WebhookSecret(tt.secret, zap.NewNop())(next).ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != tt.wantCalled {
				t.Fatalf("next called = %v, want %v", called, tt.wantCalled)
			}
		})
	}
}

func TestInitDataFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := InitDataFromRequest(r); got != "" {
		t.Fatalf("InitDataFromRequest = %q, want empty", got)
	}

	r.Header.Set("Authorization", "tma user=1&hash=ab")
	if got := InitDataFromRequest(r); got != "user=1&hash=ab" {
		t.Fatalf("InitDataFromRequest = %q", got)
	}

	r.Header.Set(InitDataHeader, "user=2&hash=cd")
	if got := InitDataFromRequest(r); got != "user=2&hash=cd" {
		t.Fatalf("header must take precedence, got %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer token")
	if got := InitDataFromRequest(r); got != "" {
		t.Fatalf("foreign scheme accepted: %q", got)
	}
}
