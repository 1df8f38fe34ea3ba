package utils

import (
	"errors"
	"fmt"
	"time"

	"remit/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "remit-api"

// GenerateAccessToken signs an HS256 access token for claims, valid for ttl.
func GenerateAccessToken(claims models.UserClaims, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("JWT secret not configured")
	}

	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    tokenIssuer,
		Subject:   claims.UserID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAccessToken verifies tokenString and returns its claims.
func ParseAccessToken(tokenString string, secret []byte) (*models.UserClaims, error) {
	claims := &models.UserClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token for %q carries no user id", claims.Subject)
	}
	return claims, nil
}
