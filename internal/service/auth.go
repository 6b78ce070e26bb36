package service

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gymvietai/payment/internal/domain"
)

// TokenVerifier validates JWTs issued by the auth service.
type TokenVerifier struct {
	jwtSecret string
}

// NewTokenVerifier creates a TokenVerifier for the shared HMAC secret.
func NewTokenVerifier(jwtSecret string) (*TokenVerifier, error) {
	if jwtSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &TokenVerifier{jwtSecret: jwtSecret}, nil
}

// VerifyToken validates a JWT token and returns the claims.
func (s *TokenVerifier) VerifyToken(tokenStr string) (*domain.JWTClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized("invalid token claims")
	}

	// Older auth service builds put the user id in "id" and flag admins
	// with "isAdmin" instead of a role.
	sub := getClaimString(claims, "sub")
	if sub == "" {
		sub = getClaimString(claims, "id")
	}
	if sub == "" {
		return nil, domain.ErrUnauthorized("token has no subject")
	}
	role := getClaimString(claims, "role")
	if admin, _ := claims["isAdmin"].(bool); admin {
		role = "admin"
	}

	return &domain.JWTClaims{
		Sub:   sub,
		Email: getClaimString(claims, "email"),
		Role:  role,
	}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
