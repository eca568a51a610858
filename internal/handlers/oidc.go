package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/launchpad/internal/auth/providers"
	"github.com/charlesng35/launchpad/internal/cache"
	"github.com/charlesng35/launchpad/internal/services"
	"github.com/charlesng35/launchpad/pkg/crypto"
	appErrors "github.com/charlesng35/launchpad/pkg/errors"
	"github.com/charlesng35/launchpad/pkg/logger"
	"github.com/charlesng35/launchpad/pkg/response"
)

const (
	oidcStateTTL   = 10 * time.Minute
	oidcStateBytes = 24
)

// OIDCFlow is the part of an OpenID Connect provider the handler drives.
type OIDCFlow interface {
	AuthCodeURL(req providers.AuthRequest) (string, error)
	Exchange(ctx context.Context, code, pkceVerifier, expectedNonce string) (*providers.Identity, error)
}

// OIDCRedirects are the browser destinations after the callback completes.
type OIDCRedirects struct {
	Success string
	Failure string
}

type oidcState struct {
	Nonce    string `json:"nonce"`
	Verifier string `json:"verifier"`
}

// OIDCHandler runs the authorization code flow with PKCE. Pending state lives in the
// shared cache so any replica can finish a login.
type OIDCHandler struct {
	provider  OIDCFlow
	accounts  *services.AccountService
	store     cache.Store
	cookies   CookieSettings
	redirects OIDCRedirects
	log       *zap.Logger
}

func NewOIDCHandler(provider OIDCFlow, accounts *services.AccountService, store cache.Store, cookies CookieSettings, redirects OIDCRedirects) *OIDCHandler {
	if redirects.Success == "" {
		redirects.Success = "/dashboard"
	}
	if redirects.Failure == "" {
		redirects.Failure = "/signin"
	}
	return &OIDCHandler{
		provider:  provider,
		accounts:  accounts,
		store:     store,
		cookies:   cookies,
		redirects: redirects,
		log:       logger.WithModule("oidc"),
	}
}

func oidcStateKey(state string) string {
	return cache.Key("oidc", "state", state)
}

// Login GET /api/auth/oidc/login
func (h *OIDCHandler) Login(c *gin.Context) {
	state, err := crypto.GenerateToken(oidcStateBytes)
	if err != nil {
		respondError(c, err)
		return
	}
	nonce, err := crypto.GenerateToken(oidcStateBytes)
	if err != nil {
		respondError(c, err)
		return
	}
	pkce, err := providers.GeneratePKCE()
	if err != nil {
		respondError(c, err)
		return
	}

	payload, err := json.Marshal(oidcState{Nonce: nonce, Verifier: pkce.Verifier})
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.store.Set(requestContext(c), oidcStateKey(state), payload, oidcStateTTL); err != nil {
		respondError(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	target, err := h.provider.AuthCodeURL(providers.AuthRequest{
		State:         state,
		Nonce:         nonce,
		PKCEChallenge: pkce.Challenge,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

// Callback GET /api/auth/oidc/callback
func (h *OIDCHandler) Callback(c *gin.Context) {
	ctx := requestContext(c)

	if providerErr := c.Query("error"); providerErr != "" {
		h.log.Info("identity provider returned an error", zap.String("error", providerErr), zap.String("description", c.Query("error_description")))
		h.fail(c, "provider_error")
		return
	}

	state := strings.TrimSpace(c.Query("state"))
	code := strings.TrimSpace(c.Query("code"))
	if state == "" || code == "" {
		h.fail(c, "invalid_request")
		return
	}

	pending, ok := h.consumeState(ctx, state)
	if !ok {
		h.fail(c, "invalid_state")
		return
	}

	identity, err := h.provider.Exchange(ctx, code, pending.Verifier, pending.Nonce)
	if err != nil {
		h.log.Warn("oidc exchange failed", zap.Error(err))
		h.fail(c, "exchange_failed")
		return
	}

	result, err := h.accounts.SignInWithIdentity(ctx, identity, requestMetadata(c))
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.StatusCode >= http.StatusInternalServerError {
			h.log.Error("oidc sign-in failed", zap.Error(err))
		}
		h.fail(c, strings.ToLower(appErr.Code))
		return
	}

	h.cookies.setSession(c, result.SessionToken, result.ExpiresAt)
	c.Redirect(http.StatusFound, h.redirects.Success)
}

// consumeState loads and deletes the pending login so a state can be redeemed once.
func (h *OIDCHandler) consumeState(ctx context.Context, state string) (oidcState, bool) {
	key := oidcStateKey(state)
	raw, found, err := h.store.Get(ctx, key)
	if err != nil {
		h.log.Warn("oidc state lookup failed", zap.Error(err))
		return oidcState{}, false
	}
	if !found {
		return oidcState{}, false
	}
	if err := h.store.Delete(ctx, key); err != nil {
		h.log.Warn("oidc state not deleted", zap.Error(err))
	}

	var pending oidcState
	if err := json.Unmarshal(raw, &pending); err != nil || pending.Verifier == "" {
		return oidcState{}, false
	}
	return pending, true
}

func (h *OIDCHandler) fail(c *gin.Context, reason string) {
	target, err := url.Parse(h.redirects.Failure)
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := target.Query()
	query.Set("error", reason)
	target.RawQuery = query.Encode()
	c.Redirect(http.StatusFound, target.String())
}
