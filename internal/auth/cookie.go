package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookieIssuer = "coursegate"

// ErrInvalidSessionCookie はセッションCookieの署名・形式・期限が不正な場合に返される。
var ErrInvalidSessionCookie = errors.New("invalid session cookie")

// SessionCookieCodec はセッションIDをHS256署名付きの値にエンコードする。
// Cookieにはセッションの識別子のみを載せ、Principalはサーバー側に保持する。
type SessionCookieCodec struct {
	secret []byte
	now    func() time.Time
}

// NewSessionCookieCodec はSessionCookieCodecを生成する。
func NewSessionCookieCodec(secret string) *SessionCookieCodec {
	return &SessionCookieCodec{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Encode はセッションIDと有効期限を署名付きトークンにする。
func (c *SessionCookieCodec) Encode(sessionID string, expiresAt time.Time) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session ID is required")
	}

	claims := jwt.RegisteredClaims{
		ID:        sessionID,
		Issuer:    sessionCookieIssuer,
		IssuedAt:  jwt.NewNumericDate(c.now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}
	return signed, nil
}

// Decode は署名と期限を検証し、セッションIDを返す。
func (c *SessionCookieCodec) Decode(value string) (string, error) {
	if value == "" {
		return "", ErrInvalidSessionCookie
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionCookieIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionCookie, err)
	}
	if claims.ID == "" {
		return "", ErrInvalidSessionCookie
	}
	return claims.ID, nil
}
