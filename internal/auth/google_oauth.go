package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/hitoshi/coursegate/internal/model"
)

// googleEndpoint はGoogleのOAuth 2.0エンドポイント。
var googleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL:  "https://oauth2.googleapis.com/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const (
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	googleIssuer             = "https://accounts.google.com"
	googleJWKSURL            = "https://www.googleapis.com/oauth2/v3/certs"
	providerGoogle           = "google"
)

// DefaultScopes はログイン時に要求するスコープ。
var DefaultScopes = []string{"profile", "email"}

// IDTokenVerifier はIDトークンを検証し、subクレームを返す。
type IDTokenVerifier interface {
	VerifySubject(ctx context.Context, rawIDToken string) (string, error)
}

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// HTTPClient はトークン交換とユーザー情報取得に使うクライアント。
	// nilの場合はhttp.DefaultClientを使用する。
	HTTPClient *http.Client

	// Verifier が設定されている場合、トークンレスポンスのid_tokenを検証する。
	Verifier IDTokenVerifier

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// GoogleOAuthProvider はGoogle OAuth 2.0による認証を提供する。
type GoogleOAuthProvider struct {
	oauth2      *oauth2.Config
	httpClient  *http.Client
	verifier    IDTokenVerifier
	userInfoURL string
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	endpoint := googleEndpoint
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	if config.Verifier != nil && !containsScope(scopes, oidc.ScopeOpenID) {
		scopes = append([]string{oidc.ScopeOpenID}, scopes...)
	}

	userInfoURL := config.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultGoogleUserInfoURL
	}

	return &GoogleOAuthProvider{
		oauth2: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		httpClient:  config.HTTPClient,
		verifier:    config.Verifier,
		userInfoURL: userInfoURL,
	}
}

// GetLoginURL はGoogle OAuthの認証URLを生成する。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	return p.oauth2.AuthCodeURL(state)
}

// googleUserInfo はGoogleのユーザー情報エンドポイントのレスポンス。
type googleUserInfo struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// ExchangeCode は認可コードをトークンに交換し、プロフィールを取得する。
// 取得したトークンは保存せず、プロフィール取得にのみ使用する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*model.Principal, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	// 1. 認可コードをトークンに交換
	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. IDトークンの検証（有効な場合のみ）
	var verifiedSub string
	if p.verifier != nil {
		rawIDToken, ok := token.Extra("id_token").(string)
		if !ok || rawIDToken == "" {
			return nil, fmt.Errorf("no id_token in token response")
		}
		verifiedSub, err = p.verifier.VerifySubject(ctx, rawIDToken)
		if err != nil {
			return nil, fmt.Errorf("failed to verify id_token: %w", err)
		}
	}

	// 3. アクセストークンでユーザー情報を取得
	info, err := p.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	if verifiedSub != "" && verifiedSub != info.Sub {
		return nil, fmt.Errorf("id_token subject does not match user info")
	}

	return info.toPrincipal(), nil
}

// fetchUserInfo はアクセストークンでGoogleのユーザー情報を取得する。
func (p *GoogleOAuthProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}

	resp, err := p.oauth2.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}

	if info.Sub == "" {
		return nil, fmt.Errorf("empty sub in user info response")
	}

	return &info, nil
}

// toPrincipal はGoogleのユーザー情報をPrincipalに変換する。
func (u *googleUserInfo) toPrincipal() *model.Principal {
	p := &model.Principal{
		ID:          u.Sub,
		Provider:    providerGoogle,
		DisplayName: u.Name,
		Name: model.PrincipalName{
			FamilyName: u.FamilyName,
			GivenName:  u.GivenName,
		},
	}
	if u.Email != "" {
		p.Emails = []model.ProfileEmail{{Value: u.Email, Verified: u.EmailVerified}}
	}
	if u.Picture != "" {
		p.Photos = []model.ProfilePhoto{{Value: u.Picture}}
	}
	return p
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// oidcVerifier はgo-oidcのIDTokenVerifierをIDTokenVerifierに適合させる。
type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewGoogleIDTokenVerifier はGoogleの公開鍵でIDトークンを検証するVerifierを生成する。
// 公開鍵は初回の検証時に取得され、以降はキャッシュされる。
func NewGoogleIDTokenVerifier(ctx context.Context, clientID string, client *http.Client) IDTokenVerifier {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	keySet := oidc.NewRemoteKeySet(ctx, googleJWKSURL)
	return &oidcVerifier{
		verifier: oidc.NewVerifier(googleIssuer, keySet, &oidc.Config{ClientID: clientID}),
	}
}

// VerifySubject はIDトークンの署名とクレームを検証し、subを返す。
func (v *oidcVerifier) VerifySubject(ctx context.Context, rawIDToken string) (string, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", err
	}
	return idToken.Subject, nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
