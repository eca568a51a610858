package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/launchpad/internal/auth"
	"github.com/charlesng35/launchpad/internal/models"
	appErrors "github.com/charlesng35/launchpad/pkg/errors"
	"github.com/charlesng35/launchpad/pkg/logger"
	"github.com/charlesng35/launchpad/pkg/response"
)

const (
	CtxUserIDKey       = "userID"
	CtxSessionKey      = "session"
	CtxSessionTokenKey = "sessionToken"

	// SessionCookieName carries the opaque session token for browser clients.
	SessionCookieName = "launchpad_session"
)

// SessionLookup resolves a live session from its token.
type SessionLookup interface {
	Lookup(ctx context.Context, sessionToken string) (*models.Session, error)
}

// SessionToken extracts the session token from the session cookie or, failing that, a
// Bearer Authorization header.
func SessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && strings.TrimSpace(cookie) != "" {
		return strings.TrimSpace(cookie)
	}
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// Auth requires a live session and exposes its owner to downstream handlers.
func Auth(sessions SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c)
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}

		session, err := sessions.Lookup(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, iauth.ErrSessionNotFound) && !errors.Is(err, iauth.ErrSessionExpired) && !errors.Is(err, iauth.ErrSessionInvalidToken) {
				logger.WithModule("http").Error("session lookup failed", zap.Error(err))
				response.Abort(c, appErrors.ErrInternalServer.WithInternal(err))
				return
			}
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}

		c.Set(CtxSessionKey, session)
		c.Set(CtxSessionTokenKey, token)
		c.Set(CtxUserIDKey, session.UserID)

		c.Next()
	}
}
