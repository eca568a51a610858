package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/launchpad/internal/auth"
	"github.com/charlesng35/launchpad/internal/models"
	"github.com/charlesng35/launchpad/pkg/response"
)

type stubSessions map[string]*models.Session

func (s stubSessions) Lookup(_ context.Context, token string) (*models.Session, error) {
	switch token {
	case "expired":
		return nil, iauth.ErrSessionExpired
	case "broken":
		return nil, errors.New("database is locked")
	}
	if session, ok := s[token]; ok {
		return session, nil
	}
	return nil, iauth.ErrSessionNotFound
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	sessions := stubSessions{"tok-123": {SessionToken: "tok-123", UserID: "user-123"}}

	r := gin.New()
	r.GET("/secure", Auth(sessions), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(CtxUserIDKey),
			"token":   c.GetString(CtxSessionTokenKey),
		})
	})

	// Missing credentials -> 401
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	// Bearer token -> downstream handler executes
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-123", payload["user_id"])
	require.Equal(t, "tok-123", payload["token"])

	// Cookie wins over the header
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok-123"})
	req.Header.Set("Authorization", "Bearer unknown")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddlewareFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/secure", Auth(stubSessions{}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	cases := map[string]int{
		"unknown": http.StatusUnauthorized,
		"expired": http.StatusUnauthorized,
		"broken":  http.StatusInternalServerError,
	}
	for token, status := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/secure", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		require.Equal(t, status, w.Code, token)

		var payload response.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
		require.False(t, payload.Success)
		require.NotContains(t, payload.Error.Message, "database")
	}
}

func TestSessionTokenIgnoresOtherSchemes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	require.Empty(t, SessionToken(c))

	c.Request.Header.Set("Authorization", "bearer abc")
	require.Equal(t, "abc", SessionToken(c))
}
