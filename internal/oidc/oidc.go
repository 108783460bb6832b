package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Token is a verified token payload that can expose claims.
// It is satisfied by *oidc.IDToken and by test fakes.
type Token interface {
	Claims(v interface{}) error
}

// TokenVerifier checks a raw id_token and returns its payload.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVerifier creates a new OIDC verifier for the given issuer and client ID
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{provider: provider, verifier: verifier}, nil
}

// Verify verifies the provided raw ID token using the provided context
func (v *Verifier) Verify(ctx context.Context, raw string) (Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

var ErrNoVerifier = errors.New("oidc verifier not configured")

// Issuer builds the Keycloak realm issuer URL.
func Issuer(baseURL, realm string) string {
	return strings.TrimRight(baseURL, "/") + "/realms/" + realm
}

// Claims verifies raw and decodes its claims into a generic map.
func Claims(ctx context.Context, v TokenVerifier, raw string) (map[string]interface{}, error) {
	if v == nil {
		return nil, ErrNoVerifier
	}
	tok, err := v.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}
