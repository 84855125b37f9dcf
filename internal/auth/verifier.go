// Package auth exchanges bearer credentials for verified user ids.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/fortimind/subscriptions/internal/config"
	"go.uber.org/fx"
)

var (
	ErrInvalidToken  = errors.New("invalid_token")
	ErrNotConfigured = errors.New("auth_not_configured")
)

// TokenVerifier exchanges a bearer credential for a verified user id.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (string, error)
}

type jwtVerifier struct {
	secret []byte
}

// NewJWTVerifier verifies HS256 id tokens signed with the shared
// application secret. The subject claim carries the user id.
func NewJWTVerifier(cfg config.Config) TokenVerifier {
	return &jwtVerifier{secret: []byte(cfg.AuthJWTSecret)}
}

func (v *jwtVerifier) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	_ = ctx
	if len(v.secret) == 0 {
		return "", ErrNotConfigured
	}
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.Parse(idToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}

var Module = fx.Module("auth",
	fx.Provide(NewJWTVerifier),
)
