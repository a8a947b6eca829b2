package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeGoogle はトークンエンドポイントとユーザー情報エンドポイントを模倣する。
type fakeGoogle struct {
	token    *httptest.Server
	userInfo *httptest.Server
}

func newFakeGoogle(t *testing.T, tokenBody map[string]any, userInfoStatus int, userInfoBody map[string]any) *fakeGoogle {
	t.Helper()

	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token request: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q, want %q", got, "authorization_code")
		}
		if r.PostForm.Get("code") == "invalid-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenBody)
	}))
	t.Cleanup(token.Close)

	userInfo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-access-token" {
			t.Errorf("unexpected Authorization header: %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(userInfoStatus)
		if userInfoBody != nil {
			json.NewEncoder(w).Encode(userInfoBody)
		}
	}))
	t.Cleanup(userInfo.Close)

	return &fakeGoogle{token: token, userInfo: userInfo}
}

func (f *fakeGoogle) provider(verifier IDTokenVerifier) *GoogleOAuthProvider {
	return NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:3000/auth/google/callback",
		TokenURL:     f.token.URL,
		UserInfoURL:  f.userInfo.URL,
		Verifier:     verifier,
	})
}

var defaultTokenBody = map[string]any{
	"access_token": "test-access-token",
	"token_type":   "Bearer",
	"expires_in":   3600,
	"id_token":     "raw-id-token",
}

var defaultUserInfoBody = map[string]any{
	"sub":            "google-sub-12345",
	"name":           "Ada Lovelace",
	"given_name":     "Ada",
	"family_name":    "Lovelace",
	"picture":        "https://example.com/ada.png",
	"email":          "ada@example.com",
	"email_verified": true,
}

type stubVerifier struct {
	sub string
	err error
	raw string
}

func (v *stubVerifier) VerifySubject(_ context.Context, raw string) (string, error) {
	v.raw = raw
	return v.sub, v.err
}

func TestGoogleOAuthProvider_GetLoginURL_ContainsRequiredParams(t *testing.T) {
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:3000/auth/google/callback",
	})

	loginURL := provider.GetLoginURL("test-state-value")

	if !strings.HasPrefix(loginURL, "https://accounts.google.com/") {
		t.Errorf("URL should point at Google, got %q", loginURL)
	}

	tests := []struct {
		name     string
		contains string
	}{
		{"client_id", "client_id=test-client-id"},
		{"redirect_uri", "redirect_uri="},
		{"state", "state=test-state-value"},
		{"response_type", "response_type=code"},
		{"scope", "scope=profile+email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(loginURL, tt.contains) {
				t.Errorf("URL should contain %q, got %q", tt.contains, loginURL)
			}
		})
	}
}

func TestGoogleOAuthProvider_GetLoginURL_AddsOpenIDWithVerifier(t *testing.T) {
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID: "test-client-id",
		Verifier: &stubVerifier{},
	})

	loginURL := provider.GetLoginURL("s")

	if !strings.Contains(loginURL, "scope=openid+profile+email") {
		t.Errorf("URL should request openid scope, got %q", loginURL)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_Success(t *testing.T) {
	fake := newFakeGoogle(t, defaultTokenBody, http.StatusOK, defaultUserInfoBody)

	principal, err := fake.provider(nil).ExchangeCode(context.Background(), "test-auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if principal.ID != "google-sub-12345" {
		t.Errorf("ID = %q, want %q", principal.ID, "google-sub-12345")
	}
	if principal.Provider != "google" {
		t.Errorf("Provider = %q, want %q", principal.Provider, "google")
	}
	if principal.DisplayName != "Ada Lovelace" {
		t.Errorf("DisplayName = %q, want %q", principal.DisplayName, "Ada Lovelace")
	}
	if principal.Name.GivenName != "Ada" || principal.Name.FamilyName != "Lovelace" {
		t.Errorf("Name = %+v, want Ada Lovelace", principal.Name)
	}
	if principal.PrimaryEmail() != "ada@example.com" {
		t.Errorf("PrimaryEmail() = %q, want %q", principal.PrimaryEmail(), "ada@example.com")
	}
	if !principal.Emails[0].Verified {
		t.Error("expected email to be verified")
	}
	if len(principal.Photos) != 1 || principal.Photos[0].Value != "https://example.com/ada.png" {
		t.Errorf("Photos = %+v", principal.Photos)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_NoEmail(t *testing.T) {
	fake := newFakeGoogle(t, defaultTokenBody, http.StatusOK, map[string]any{
		"sub":  "google-sub-1",
		"name": "No Mail",
	})

	principal, err := fake.provider(nil).ExchangeCode(context.Background(), "code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if len(principal.Emails) != 0 {
		t.Errorf("Emails = %+v, want empty", principal.Emails)
	}
	if principal.PrimaryEmail() != "" {
		t.Errorf("PrimaryEmail() = %q, want empty", principal.PrimaryEmail())
	}
}

func TestGoogleOAuthProvider_ExchangeCode_TokenError(t *testing.T) {
	fake := newFakeGoogle(t, defaultTokenBody, http.StatusOK, defaultUserInfoBody)

	_, err := fake.provider(nil).ExchangeCode(context.Background(), "invalid-code")
	if err == nil {
		t.Fatal("expected error from ExchangeCode with invalid code")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_UserInfoError(t *testing.T) {
	fake := newFakeGoogle(t, defaultTokenBody, http.StatusInternalServerError, nil)

	_, err := fake.provider(nil).ExchangeCode(context.Background(), "code")
	if err == nil {
		t.Fatal("expected error when user info endpoint fails")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_EmptySub(t *testing.T) {
	fake := newFakeGoogle(t, defaultTokenBody, http.StatusOK, map[string]any{"email": "a@example.com"})

	_, err := fake.provider(nil).ExchangeCode(context.Background(), "code")
	if err == nil {
		t.Fatal("expected error for empty sub")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_VerifiesIDToken(t *testing.T) {
	fake := newFakeGoogle(t, defaultTokenBody, http.StatusOK, defaultUserInfoBody)
	verifier := &stubVerifier{sub: "google-sub-12345"}

	principal, err := fake.provider(verifier).ExchangeCode(context.Background(), "code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if verifier.raw != "raw-id-token" {
		t.Errorf("verifier received %q, want %q", verifier.raw, "raw-id-token")
	}
	if principal.ID != "google-sub-12345" {
		t.Errorf("ID = %q", principal.ID)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_VerifierRejects(t *testing.T) {
	fake := newFakeGoogle(t, defaultTokenBody, http.StatusOK, defaultUserInfoBody)
	verifier := &stubVerifier{err: errors.New("bad signature")}

	_, err := fake.provider(verifier).ExchangeCode(context.Background(), "code")
	if err == nil {
		t.Fatal("expected error when id_token verification fails")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_SubjectMismatch(t *testing.T) {
	fake := newFakeGoogle(t, defaultTokenBody, http.StatusOK, defaultUserInfoBody)
	verifier := &stubVerifier{sub: "someone-else"}

	_, err := fake.provider(verifier).ExchangeCode(context.Background(), "code")
	if err == nil {
		t.Fatal("expected error when id_token subject differs from user info")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_MissingIDToken(t *testing.T) {
	fake := newFakeGoogle(t, map[string]any{
		"access_token": "test-access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}, http.StatusOK, defaultUserInfoBody)

	_, err := fake.provider(&stubVerifier{sub: "google-sub-12345"}).ExchangeCode(context.Background(), "code")
	if err == nil {
		t.Fatal("expected error when id_token is missing")
	}
}
