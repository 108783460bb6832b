package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoExpiry = errors.New("exp claim not present")

// ExpiryFromJWT returns the `exp` claim of tok without verifying the signature.
// It is only suitable for computing TTLs of tokens already accepted elsewhere.
func ExpiryFromJWT(tok string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// SignWebhook creates a short-lived HS256 token that lets a webhook receiver
// authenticate the caller. subject identifies the payload (for example a shift id).
func SignWebhook(secret, event, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("webhook secret is empty")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   "smartbar-terminal",
		"sub":   subject,
		"event": event,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyWebhook parses a token produced by SignWebhook and returns its claims.
func VerifyWebhook(secret, tok string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
