package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/identity"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/logger"
)

const defaultResolveWait = 3 * time.Second

// LoginRequest selects the Keycloak grant used to sign the operator in.
type LoginRequest struct {
	Mode        string `json:"mode" binding:"required"` // "password" | "auth_code"
	Username    string `json:"username"`
	Password    string `json:"password"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// IdentityState is the resolver as seen by the HTTP layer.
type IdentityState interface {
	Snapshot() identity.Snapshot
	WaitFor(ctx context.Context, pred func(identity.Snapshot) bool) (identity.Snapshot, error)
}

// AuthHandler holds dependencies
type AuthHandler struct {
	provider identity.Provider
	state    IdentityState
	// ResolveWait bounds how long login waits for the profile to resolve.
	ResolveWait time.Duration
}

func NewAuthHandler(p identity.Provider, s IdentityState) *AuthHandler {
	return &AuthHandler{provider: p, state: s, ResolveWait: defaultResolveWait}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
}

// RegisterSession exposes the resolver state.
func (h *AuthHandler) RegisterSession(rg *gin.RouterGroup) {
	rg.GET("/session", h.Session)
}

// Login signs in through the provider and waits for the resolver to settle on
// the new session. If it does not settle in time the response is 202 with the
// intermediate state.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var sess *identity.Session
	var err error
	switch req.Mode {
	case "password":
		if req.Username == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
			return
		}
		sess, err = h.provider.SignInWithPassword(c.Request.Context(), req.Username, req.Password)
	case "auth_code":
		if req.Code == "" || req.RedirectURI == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code and redirect_uri required"})
			return
		}
		sess, err = h.provider.SignInWithCode(c.Request.Context(), req.Code, req.RedirectURI)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported mode"})
		return
	}
	if err != nil {
		logger.Warnf("auth: login failed mode=%s: %v", req.Mode, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.ResolveWait)
	defer cancel()
	snap, err := h.state.WaitFor(ctx, settledFor(sess.UserID))
	status := http.StatusOK
	if err != nil {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{
		"access_token":  sess.AccessToken,
		"refresh_token": sess.RefreshToken,
		"expires_at":    sess.ExpiresAt,
		"identity":      snapshotBody(snap),
	})
}

// Refresh renews the cached session's tokens.
func (h *AuthHandler) Refresh(c *gin.Context) {
	sess, err := h.provider.Refresh(c.Request.Context())
	if err != nil {
		if errors.Is(err, identity.ErrNoSession) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no active session"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": sess.AccessToken,
		"expires_at":   sess.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.provider.SignOut(c.Request.Context()); err != nil {
		logger.Errorf("auth: logout failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// Session returns the current resolver state; tokens are never included.
func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, snapshotBody(h.state.Snapshot()))
}

// settledFor matches a final state reached after signing in as userID.
func settledFor(userID string) func(identity.Snapshot) bool {
	return func(s identity.Snapshot) bool {
		if s.State != identity.StateAuthenticated && s.State != identity.StateError {
			return false
		}
		return s.Session != nil && s.Session.UserID == userID
	}
}

// snapshotView adds the resolution error message to the snapshot JSON.
type snapshotView struct {
	identity.Snapshot
	Error string `json:"error,omitempty"`
}

func snapshotBody(s identity.Snapshot) snapshotView {
	v := snapshotView{Snapshot: s}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	return v
}
