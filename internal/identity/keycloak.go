package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/oidc"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/sessions"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/tokens"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/logger"
)

var ErrNoSession = errors.New("no active session")

// KeycloakConfig configures the Keycloak-backed provider.
type KeycloakConfig struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	// TerminalKey is the key the session is cached under.
	TerminalKey string
	// SessionTTL is used when the access token carries no usable exp claim.
	SessionTTL time.Duration
	HTTPClient *http.Client
}

// KeycloakProvider implements Provider against a Keycloak realm. Sessions are
// cached through the sessions service so a restarted terminal boots straight back
// into the operator's session.
type KeycloakProvider struct {
	cfg       KeycloakConfig
	verifier  oidc.TokenVerifier
	sessions  *sessions.Service
	blacklist *sessions.Blacklist
	broker    *Broker
	client    *http.Client
}

func NewKeycloakProvider(cfg KeycloakConfig, v oidc.TokenVerifier, s *sessions.Service, bl *sessions.Blacklist, b *Broker) *KeycloakProvider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if b == nil {
		b = NewBroker(0)
	}
	return &KeycloakProvider{cfg: cfg, verifier: v, sessions: s, blacklist: bl, broker: b, client: client}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (p *KeycloakProvider) tokenURL() string {
	return oidc.Issuer(p.cfg.BaseURL, p.cfg.Realm) + "/protocol/openid-connect/token"
}

func (p *KeycloakProvider) logoutURL() string {
	return oidc.Issuer(p.cfg.BaseURL, p.cfg.Realm) + "/protocol/openid-connect/logout"
}

func (p *KeycloakProvider) GetSession(ctx context.Context) (*Session, error) {
	s, err := p.sessions.Current(ctx, p.cfg.TerminalKey)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	return fromStored(s), nil
}

func (p *KeycloakProvider) SignInWithPassword(ctx context.Context, username, password string) (*Session, error) {
	tr, err := p.requestToken(ctx, url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
		"scope":      {"openid"},
	})
	if err != nil {
		return nil, err
	}
	return p.establish(ctx, tr, EventSignedIn)
}

func (p *KeycloakProvider) SignInWithCode(ctx context.Context, code, redirectURI string) (*Session, error) {
	if code == "" || redirectURI == "" {
		return nil, errors.New("code and redirect_uri required")
	}
	logger.Debugf("keycloak: auth code exchange code_len=%d redirect_uri=%s", len(code), redirectURI)
	tr, err := p.requestToken(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	})
	if err != nil {
		return nil, err
	}
	return p.establish(ctx, tr, EventSignedIn)
}

func (p *KeycloakProvider) Refresh(ctx context.Context) (*Session, error) {
	cur, err := p.sessions.Current(ctx, p.cfg.TerminalKey)
	if err != nil {
		return nil, err
	}
	if cur == nil || cur.RefreshToken == "" {
		return nil, ErrNoSession
	}
	tr, err := p.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cur.RefreshToken},
	})
	if err != nil {
		return nil, err
	}
	if tr.RefreshToken == "" {
		tr.RefreshToken = cur.RefreshToken
	}
	return p.establish(ctx, tr, EventTokenRefreshed)
}

// SignOut revokes the cached session. The access token is blacklisted until it
// would have expired and the Keycloak session is ended; both are best-effort and
// never keep the terminal signed in.
func (p *KeycloakProvider) SignOut(ctx context.Context) error {
	cur, err := p.sessions.Current(ctx, p.cfg.TerminalKey)
	if err != nil {
		return err
	}
	if cur != nil {
		if exp, err := tokens.ExpiryFromJWT(cur.AccessToken); err == nil {
			if err := p.blacklist.Add(ctx, cur.AccessToken, time.Until(exp)); err != nil {
				logger.WarnEvent().Str("component", "identity").Err(err).Msg("keycloak: blacklist write failed, signing out anyway")
			}
		}
		if cur.RefreshToken != "" {
			if err := p.endRemoteSession(ctx, cur.RefreshToken); err != nil {
				logger.Warnf("keycloak: logout request failed: %v", err)
			}
		}
		if err := p.sessions.Clear(ctx, p.cfg.TerminalKey); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
	}
	p.broker.Publish(AuthEvent{Type: EventSignedOut})
	return nil
}

func (p *KeycloakProvider) Subscribe() (<-chan AuthEvent, func()) {
	return p.broker.Subscribe()
}

// Revoked reports whether an access token was blacklisted by a sign-out.
func (p *KeycloakProvider) Revoked(ctx context.Context, accessToken string) (bool, error) {
	return p.blacklist.Contains(ctx, accessToken)
}

func (p *KeycloakProvider) establish(ctx context.Context, tr *tokenResponse, evType EventType) (*Session, error) {
	if tr.IDToken == "" {
		return nil, errors.New("token response without id_token")
	}
	claims, err := oidc.Claims(ctx, p.verifier, tr.IDToken)
	if err != nil {
		return nil, fmt.Errorf("invalid id token: %w", err)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("id token without sub claim")
	}
	email, _ := claims["email"].(string)

	meta := map[string]string{}
	for _, k := range []string{"name", "preferred_username", "picture", "given_name", "family_name"} {
		if v, ok := claims[k].(string); ok && v != "" {
			meta[k] = v
		}
	}
	if v, ok := meta["name"]; ok {
		meta["full_name"] = v
	}

	now := time.Now().UTC()
	expires, err := tokens.ExpiryFromJWT(tr.AccessToken)
	if err != nil {
		if tr.ExpiresIn > 0 {
			expires = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
		} else {
			expires = now.Add(p.cfg.SessionTTL)
		}
	}

	stored := &sessions.Session{
		TerminalKey:  p.cfg.TerminalKey,
		UserID:       sub,
		Email:        email,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Metadata:     meta,
		ExpiresAt:    expires.UTC(),
		CreatedAt:    now,
	}
	if err := p.sessions.Store(ctx, stored); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	sess := fromStored(stored)
	p.broker.Publish(AuthEvent{Type: evType, Session: sess})
	return sess, nil
}

// requestToken posts a token grant. Client credentials go in the form body first
// and are retried once with HTTP Basic auth when Keycloak answers 401.
func (p *KeycloakProvider) requestToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	if p.cfg.BaseURL == "" || p.cfg.Realm == "" {
		return nil, errors.New("keycloak not configured")
	}
	form.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecret != "" {
		form.Set("client_secret", p.cfg.ClientSecret)
	}

	resp, err := p.postForm(ctx, p.tokenURL(), form, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && p.cfg.ClientSecret != "" {
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		logger.Warnf("keycloak: token request returned 401 (%s); retrying with basic auth", strings.TrimSpace(string(b)))
		basic := url.Values{}
		for k, v := range form {
			if k != "client_secret" {
				basic[k] = v
			}
		}
		resp, err = p.postForm(ctx, p.tokenURL(), basic, true)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &tr, nil
}

func (p *KeycloakProvider) endRemoteSession(ctx context.Context, refreshToken string) error {
	form := url.Values{"client_id": {p.cfg.ClientID}, "refresh_token": {refreshToken}}
	if p.cfg.ClientSecret != "" {
		form.Set("client_secret", p.cfg.ClientSecret)
	}
	resp, err := p.postForm(ctx, p.logoutURL(), form, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("logout endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (p *KeycloakProvider) postForm(ctx context.Context, endpoint string, form url.Values, basic bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basic {
		req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	}
	return p.client.Do(req)
}

func fromStored(s *sessions.Session) *Session {
	return copySession(&Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		UserID:       s.UserID,
		Email:        s.Email,
		Metadata:     s.Metadata,
		ExpiresAt:    s.ExpiresAt,
	})
}
