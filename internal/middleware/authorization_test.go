package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/coursegate/internal/auth"
	"github.com/hitoshi/coursegate/internal/model"
)

func TestAuthorizationMiddleware(t *testing.T) {
	policy := auth.PrimaryEmailPolicy("admin@example.com")

	tests := []struct {
		name       string
		principal  *model.Principal
		policy     auth.Policy
		wantStatus int
		wantCalled bool
	}{
		{"privileged principal", testPrincipal("admin@example.com"), policy, http.StatusOK, true},
		{"non-privileged principal", testPrincipal("user@example.com"), policy, http.StatusForbidden, false},
		{"no principal", nil, policy, http.StatusForbidden, false},
		{"nil policy", testPrincipal("admin@example.com"), nil, http.StatusForbidden, false},
		{"custom policy", testPrincipal("user@example.com"), func(p *model.Principal) bool { return p.ID == "principal-1" }, http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			denied := 0
			capture := &captureHandler{}
			handler := NewAuthorizationMiddleware(tt.policy, WithDenyHook(func(_ *http.Request) { denied++ }))(capture)

			req := httptest.NewRequest(http.MethodPost, "/posts", nil)
			if tt.principal != nil {
				req = req.WithContext(ContextWithPrincipal(req.Context(), tt.principal))
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if capture.called != tt.wantCalled {
				t.Errorf("next called = %v, want %v", capture.called, tt.wantCalled)
			}
			if tt.wantStatus == http.StatusForbidden {
				assertErrorResponse(t, w, http.StatusForbidden, "Forbidden")
				if denied != 1 {
					t.Errorf("deny hook called %d times, want 1", denied)
				}
			} else {
				if w.Code != tt.wantStatus {
					t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
				}
				if denied != 0 {
					t.Errorf("deny hook called %d times, want 0", denied)
				}
			}
		})
	}
}
