package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/users"
)

// UserEnsurer records an authenticated user.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, u users.UpsertUser) (string, error)
}

// WithUser upserts the authenticated caller and stores its database id in
// the context. It must run after FirebaseAuthMiddleware or DevUser.
func WithUser(repo UserEnsurer, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		fuid := UserFirebaseUID(c)
		if fuid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "missing user"})
			return
		}

		id, err := repo.EnsureUser(c.Request.Context(), users.UpsertUser{
			FirebaseUID: fuid,
			Email:       c.GetString(CtxEmail),
			DisplayName: c.GetHeader("X-User-Name"),
			PhotoURL:    c.GetHeader("X-User-Photo"),
		})
		if err != nil {
			log.Error().Err(err).Str("firebase_uid", fuid).Msg("ensure user failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "ensure user failed"})
			return
		}

		c.Set(CtxUserDBID, id)
		c.Next()
	}
}
