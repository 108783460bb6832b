package oidc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// unverifiedToken exposes the claims of a JWT whose signature was not checked.
type unverifiedToken struct {
	claims jwt.MapClaims
}

func (t *unverifiedToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// InsecureVerifier parses id tokens WITHOUT validating signature, issuer or audience.
// Only enabled when ALLOW_INSECURE_TOKEN is set, for local terminals without a reachable issuer.
type InsecureVerifier struct {
	parser *jwt.Parser
}

func NewInsecureVerifier() *InsecureVerifier {
	return &InsecureVerifier{parser: jwt.NewParser()}
}

func (v *InsecureVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	claims := jwt.MapClaims{}
	if _, _, err := v.parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parse unverified token: %w", err)
	}
	return &unverifiedToken{claims: claims}, nil
}
