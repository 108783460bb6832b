package sessions

import "time"

// Session is the cached copy of the identity provider session held by one terminal.
type Session struct {
	TerminalKey  string            `bson:"_id" json:"terminalKey"`
	UserID       string            `bson:"userId" json:"userId"`
	Email        string            `bson:"email" json:"email"`
	AccessToken  string            `bson:"accessToken" json:"accessToken"`
	RefreshToken string            `bson:"refreshToken" json:"refreshToken"`
	Metadata     map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	ExpiresAt    time.Time         `bson:"expiresAt" json:"expiresAt"`
	CreatedAt    time.Time         `bson:"createdAt" json:"createdAt"`
}

// Expired reports whether the session is past its expiry at t.
func (s *Session) Expired(t time.Time) bool {
	return !s.ExpiresAt.IsZero() && t.After(s.ExpiresAt)
}
