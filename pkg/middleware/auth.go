package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/identity"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/models"
)

const snapshotKey = "identity"

// SessionSource exposes the terminal's resolved identity.
type SessionSource interface {
	Snapshot() identity.Snapshot
}

// RevocationChecker reports access tokens revoked by a sign-out.
type RevocationChecker interface {
	Revoked(ctx context.Context, accessToken string) (bool, error)
}

// AuthMiddleware admits requests whose Bearer token is the access token of the
// operator currently authenticated on this terminal.
func AuthMiddleware(src SessionSource, rc RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		// Expect 'Bearer <token>'
		var token string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		snap := src.Snapshot()
		if !snap.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no authenticated operator", "state": snap.State})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(snap.Session.AccessToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if rc != nil {
			revoked, err := rc.Revoked(c.Request.Context(), token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "revocation check failed"})
				return
			}
			if revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			}
		}

		c.Set(snapshotKey, snap)
		c.Set("claims", map[string]interface{}{
			"sub":   snap.Session.UserID,
			"email": snap.Session.Email,
			"role":  string(snap.Role),
		})
		c.Next()
	}
}

// RequireRole rejects requests whose operator role is not listed. It must run after AuthMiddleware.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		snap, ok := SnapshotFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		if _, ok := allowed[snap.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not permitted", "role": snap.Role})
			return
		}
		c.Next()
	}
}

// SnapshotFrom returns the identity stored by AuthMiddleware.
func SnapshotFrom(c *gin.Context) (identity.Snapshot, bool) {
	v, ok := c.Get(snapshotKey)
	if !ok {
		return identity.Snapshot{}, false
	}
	snap, ok := v.(identity.Snapshot)
	return snap, ok
}
