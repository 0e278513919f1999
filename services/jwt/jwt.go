package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	AccessTokenType = "access"
	userIDClaim     = "user_id"
	tokenTypeClaim  = "token_type"
)

var ErrMissingSecret = errors.New("JWT secret key is missing")

// GenerateAccessToken signs an HS256 access token for userID
func GenerateAccessToken(userID uint, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	now := time.Now()
	claims := jwt.MapClaims{
		userIDClaim:    userID,
		tokenTypeClaim: AccessTokenType,
		"iat":          now.Unix(),
		"exp":          now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ValidateAndGetClaims checks signature, algorithm and expiry of token and
// returns its claims
func ValidateAndGetClaims(tokenString string, secret string) (jwt.MapClaims, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// UserIDFromToken validates an access token and extracts its user id
func UserIDFromToken(tokenString string, secret string) (uint, error) {
	claims, err := ValidateAndGetClaims(tokenString, secret)
	if err != nil {
		return 0, err
	}

	if tokenType, ok := claims[tokenTypeClaim]; ok && tokenType != AccessTokenType {
		return 0, fmt.Errorf("unexpected token type %v", tokenType)
	}

	switch v := claims[userIDClaim].(type) {
	case float64:
		if v <= 0 || v != float64(uint(v)) {
			return 0, fmt.Errorf("invalid user id %v", v)
		}
		return uint(v), nil
	default:
		return 0, errors.New("user id claim missing")
	}
}
