package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName 会话 cookie 名
const CookieName = "sid"

var ErrInvalidSession = errors.New("invalid session token")

// SessionClaims sid cookie 中的声明，Subject 即会话 id
type SessionClaims struct {
	jwt.RegisteredClaims
}

// NewSessionID 生成新的会话 id
func NewSessionID() string {
	return uuid.NewString()
}

// IssueSessionToken 为会话签发 HS256 令牌
func IssueSessionToken(secret []byte, sessionID string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("empty session secret")
	}
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// ParseSessionToken 校验签名与过期时间，返回会话 id
func ParseSessionToken(secret []byte, tokenString string) (string, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("%w: bad subject", ErrInvalidSession)
	}
	return claims.Subject, nil
}
