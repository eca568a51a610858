package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/launchpad/internal/models"
	"github.com/charlesng35/launchpad/internal/services"
	"github.com/charlesng35/launchpad/pkg/response"
)

// AuthHandler serves the local account flows.
type AuthHandler struct {
	accounts *services.AccountService
	cookies  CookieSettings
}

func NewAuthHandler(accounts *services.AccountService, cookies CookieSettings) *AuthHandler {
	return &AuthHandler{accounts: accounts, cookies: cookies}
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Provider        string     `json:"provider"`
	EmailVerified   bool       `json:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:              user.ID,
		Name:            user.Name,
		Email:           user.Email,
		Provider:        user.Provider,
		EmailVerified:   user.IsEmailVerified(),
		EmailVerifiedAt: user.EmailVerifiedAt,
		LastLoginAt:     user.LastLoginAt,
		CreatedAt:       user.CreatedAt,
	}
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterInput
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.accounts.Register(requestContext(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user":    toUserResponse(user),
		"message": "Check your inbox to confirm your email address",
	})
}

// ResendVerification POST /api/auth/verify/resend
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ResendVerification(requestContext(c), req.Email); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{
		"message": "If the account exists and is unconfirmed, a new link is on its way",
	})
}

// VerifyEmail GET /api/auth/verify?token=
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token, ok := queryToken(c)
	if !ok {
		return
	}

	user, err := h.accounts.ConfirmEmail(requestContext(c), token)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": toUserResponse(user)})
}

// ForgotPassword POST /api/auth/password/forgot
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.RequestPasswordReset(requestContext(c), req.Email); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{
		"message": "If an account exists for this email, a reset link is on its way",
	})
}

// ValidateResetToken GET /api/auth/password/reset?token=
func (h *AuthHandler) ValidateResetToken(c *gin.Context) {
	token, ok := queryToken(c)
	if !ok {
		return
	}

	result, err := h.accounts.ValidatePasswordResetToken(requestContext(c), token)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"valid":      true,
		"email":      result.Identifier,
		"expires_at": result.ExpiresAt,
	})
}

// ResetPassword POST /api/auth/password/reset
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ResetPassword(requestContext(c), req.Token, req.Password); err != nil {
		respondError(c, err)
		return
	}
	h.cookies.clearSession(c)
	response.Success(c, http.StatusOK, gin.H{"message": "Password updated, please sign in again"})
}

// SignIn POST /api/auth/signin
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.accounts.SignIn(requestContext(c), req.Email, req.Password, requestMetadata(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.cookies.setSession(c, result.SessionToken, result.ExpiresAt)
	response.Success(c, http.StatusOK, gin.H{
		"user":          toUserResponse(result.User),
		"session_token": result.SessionToken,
		"expires_at":    result.ExpiresAt,
	})
}

// SignOut POST /api/auth/signout
func (h *AuthHandler) SignOut(c *gin.Context) {
	if err := h.accounts.SignOut(requestContext(c), sessionToken(c)); err != nil {
		respondError(c, err)
		return
	}
	h.cookies.clearSession(c)
	response.Success(c, http.StatusOK, gin.H{"signed_out": true})
}

// Me GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, session, err := h.accounts.CurrentUser(requestContext(c), sessionToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"user":    toUserResponse(user),
		"session": toSessionResponse(session, session.SessionToken),
	})
}
