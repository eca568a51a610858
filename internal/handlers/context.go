package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/launchpad/internal/auth"
	"github.com/charlesng35/launchpad/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requestMetadata captures the device details a session is annotated with.
func requestMetadata(c *gin.Context) auth.RequestMetadata {
	return auth.RequestMetadata{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
}

// CookieSettings controls the attributes of the session cookie.
type CookieSettings struct {
	Secure bool
	Domain string
}

func (s CookieSettings) setSession(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   s.Domain,
		Expires:  expiresAt.UTC(),
		MaxAge:   maxAge,
		Secure:   s.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s CookieSettings) clearSession(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   s.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionToken returns the token stored by middleware.Auth.
func sessionToken(c *gin.Context) string {
	return c.GetString(middleware.CtxSessionTokenKey)
}
