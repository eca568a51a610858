// Package providers implements external identity providers used for sign-in.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig is the client registration at an OpenID Connect issuer.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCOptions configures the behaviour of the OIDC provider implementation.
type OIDCOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Identity is the verified subject returned by a successful callback.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	RawClaims     map[string]any
}

// AuthRequest carries the per-attempt secrets bound to an authorization redirect.
type AuthRequest struct {
	State         string
	Nonce         string
	PKCEChallenge string
}

// OIDCProvider performs the authorization code flow with PKCE against one issuer.
type OIDCProvider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	httpClient  *http.Client
	timeout     time.Duration
}

// NewOIDCProvider runs discovery against cfg.Issuer and prepares the client.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig, opts OIDCOptions) (*OIDCProvider, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("oidc provider: issuer is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("oidc provider: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("oidc provider: client secret is required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("oidc provider: redirect url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if opts.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, opts.HTTPClient)
	}
	discoveryCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	issuer, err := oidc.NewProvider(discoveryCtx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: discovery failed: %w", err)
	}

	return &OIDCProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     issuer.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		verifier:   issuer.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
	}, nil
}

// AuthCodeURL builds the redirect to the issuer's authorization endpoint.
func (p *OIDCProvider) AuthCodeURL(req AuthRequest) (string, error) {
	if strings.TrimSpace(req.State) == "" {
		return "", errors.New("oidc provider: state is required")
	}
	if strings.TrimSpace(req.Nonce) == "" {
		return "", errors.New("oidc provider: nonce is required")
	}
	if strings.TrimSpace(req.PKCEChallenge) == "" {
		return "", errors.New("oidc provider: pkce challenge is required")
	}

	return p.oauthConfig.AuthCodeURL(req.State,
		oidc.Nonce(req.Nonce),
		oauth2.SetAuthURLParam("code_challenge", req.PKCEChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

// Exchange trades an authorization code for a verified identity.
func (p *OIDCProvider) Exchange(ctx context.Context, code, pkceVerifier, expectedNonce string) (*Identity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oidc provider: authorization code missing")
	}
	if strings.TrimSpace(pkceVerifier) == "" {
		return nil, errors.New("oidc provider: pkce verifier is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if p.httpClient != nil {
		ctx = oidc.ClientContext(ctx, p.httpClient)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(pkceVerifier))
	if err != nil {
		return nil, fmt.Errorf("oidc provider: exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("oidc provider: id token missing")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: verify id token: %w", err)
	}
	if expectedNonce != "" && idToken.Nonce != expectedNonce {
		return nil, errors.New("oidc provider: nonce mismatch")
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc provider: decode claims: %w", err)
	}

	return &Identity{
		Provider:      "oidc",
		Subject:       idToken.Subject,
		Email:         stringValue(claims, "email"),
		EmailVerified: boolValue(claims, "email_verified"),
		Name:          stringValue(claims, "name"),
		RawClaims:     claims,
	}, nil
}

func stringValue(claims map[string]any, key string) string {
	if v, ok := claims[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolValue(claims map[string]any, key string) bool {
	if v, ok := claims[key]; ok {
		switch val := v.(type) {
		case bool:
			return val
		case string:
			return strings.EqualFold(val, "true")
		}
	}
	return false
}
