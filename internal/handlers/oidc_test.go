package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/launchpad/internal/auth/providers"
	"github.com/charlesng35/launchpad/internal/models"
)

type fakeOIDCFlow struct {
	lastAuth     providers.AuthRequest
	gotVerifier  string
	gotNonce     string
	identity     *providers.Identity
	exchangeErr  error
	exchangeCall int
}

func (f *fakeOIDCFlow) AuthCodeURL(req providers.AuthRequest) (string, error) {
	f.lastAuth = req
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(req.State), nil
}

func (f *fakeOIDCFlow) Exchange(_ context.Context, _ string, verifier, nonce string) (*providers.Identity, error) {
	f.exchangeCall++
	f.gotVerifier = verifier
	f.gotNonce = nonce
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.identity, nil
}

func newOIDCRouter(f *handlerFixture, flow *fakeOIDCFlow) *gin.Engine {
	handler := NewOIDCHandler(flow, f.accounts, f.store, CookieSettings{Secure: true}, OIDCRedirects{
		Success: "/dashboard",
		Failure: "/signin",
	})
	r := gin.New()
	r.GET("/api/auth/oidc/login", handler.Login)
	r.GET("/api/auth/oidc/callback", handler.Callback)
	return r
}

func serve(r http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestOIDCLoginAndCallback(t *testing.T) {
	f := newHandlerFixture(t)
	flow := &fakeOIDCFlow{identity: &providers.Identity{
		Subject:       "sub-1",
		Email:         "Sso@Example.com",
		EmailVerified: true,
		Name:          "Sso User",
	}}
	r := newOIDCRouter(f, flow)

	w := serve(r, "/api/auth/oidc/login")
	require.Equal(t, http.StatusFound, w.Code)
	require.Contains(t, w.Header().Get("Location"), "https://idp.example.com/authorize")
	require.NotEmpty(t, flow.lastAuth.State)
	require.NotEmpty(t, flow.lastAuth.Nonce)
	require.NotEmpty(t, flow.lastAuth.PKCEChallenge)

	state := flow.lastAuth.State
	w = serve(r, "/api/auth/oidc/callback?code=abc&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/dashboard", w.Header().Get("Location"))
	require.Equal(t, flow.lastAuth.Nonce, flow.gotNonce)
	require.Equal(t, flow.lastAuth.PKCEChallenge, providers.S256Challenge(flow.gotVerifier))

	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	require.True(t, cookie.Secure)

	var user models.User
	require.NoError(t, f.db.Take(&user, "email = ?", "sso@example.com").Error)
	require.Equal(t, models.ProviderOIDC, user.Provider)
	require.True(t, user.IsEmailVerified())

	// The state is single use.
	w = serve(r, "/api/auth/oidc/callback?code=abc&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/signin?error=invalid_state", w.Header().Get("Location"))
	require.Equal(t, 1, flow.exchangeCall)
}

func TestOIDCCallbackFailures(t *testing.T) {
	f := newHandlerFixture(t)
	flow := &fakeOIDCFlow{exchangeErr: errors.New("bad code")}
	r := newOIDCRouter(f, flow)

	w := serve(r, "/api/auth/oidc/callback?error=access_denied")
	require.Equal(t, "/signin?error=provider_error", w.Header().Get("Location"))

	w = serve(r, "/api/auth/oidc/callback?code=abc")
	require.Equal(t, "/signin?error=invalid_request", w.Header().Get("Location"))

	serve(r, "/api/auth/oidc/login")
	w = serve(r, "/api/auth/oidc/callback?code=abc&state="+url.QueryEscape(flow.lastAuth.State))
	require.Equal(t, "/signin?error=exchange_failed", w.Header().Get("Location"))
	require.Nil(t, sessionCookie(w))

	flow.exchangeErr = nil
	flow.identity = &providers.Identity{Subject: "sub-2", Email: "unverified@example.com"}
	serve(r, "/api/auth/oidc/login")
	w = serve(r, "/api/auth/oidc/callback?code=abc&state="+url.QueryEscape(flow.lastAuth.State))
	require.Equal(t, "/signin?error=email_not_verified", w.Header().Get("Location"))
}
