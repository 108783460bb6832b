package identity

import (
	"context"
	"time"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/models"
)

// State of the identity resolution machine.
type State string

const (
	StateBooting         State = "booting"
	StateLoadingProfile  State = "loading_profile"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
	StateError           State = "error"
)

// Session is the read-only copy of the provider session held by the resolver.
type Session struct {
	AccessToken  string            `json:"-"`
	RefreshToken string            `json:"-"`
	UserID       string            `json:"userId"`
	Email        string            `json:"email"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ExpiresAt    time.Time         `json:"expiresAt"`
}

type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventSignedOut      EventType = "SIGNED_OUT"
)

// AuthEvent is an auth-state change delivered by the provider.
type AuthEvent struct {
	Type    EventType
	Session *Session
}

// Provider is the identity provider the resolver consumes.
//
// GetSession returns (nil, nil) when no session exists. Subscribe delivers events
// in arrival order until the returned cancel func is called.
type Provider interface {
	GetSession(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, username, password string) (*Session, error)
	SignInWithCode(ctx context.Context, code, redirectURI string) (*Session, error)
	Refresh(ctx context.Context) (*Session, error)
	SignOut(ctx context.Context) error
	Subscribe() (<-chan AuthEvent, func())
}

// ProfileStore is the slice of the profile service the resolver needs.
type ProfileStore interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
	Provision(ctx context.Context, p *models.Profile) (*models.Profile, error)
	UpdateRole(ctx context.Context, id string, role models.Role) error
}

// Snapshot is the externally visible resolver state.
type Snapshot struct {
	State       State       `json:"state"`
	Session     *Session    `json:"session,omitempty"`
	Role        models.Role `json:"role,omitempty"`
	AvatarURL   string      `json:"avatarUrl,omitempty"`
	DisplayName string      `json:"displayName,omitempty"`
	Err         error       `json:"-"`
	Generation  uint64      `json:"generation"`
}

// Authenticated reports whether the snapshot carries a resolved operator.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Session != nil
}
