package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/launchpad/internal/auth"
	"github.com/charlesng35/launchpad/internal/auth/providers"
	"github.com/charlesng35/launchpad/internal/models"
	"github.com/charlesng35/launchpad/internal/repository"
	appErrors "github.com/charlesng35/launchpad/pkg/errors"
)

const firefoxOnMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14.1; rv:121.0) Gecko/20100101 Firefox/121.0"

func registerInput(email string) RegisterInput {
	return RegisterInput{Name: "Ada Lovelace", Email: email, Password: testPassword}
}

func requireAppError(t *testing.T, err error, code string, status int) {
	t.Helper()
	var appErr *appErrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, code, appErr.Code)
	require.Equal(t, status, appErr.StatusCode)
}

func TestNewAccountServiceRequiresDependencies(t *testing.T) {
	_, err := NewAccountService(nil, nil, nil, nil)
	require.Error(t, err)
}

func TestRegisterCreatesUnverifiedUserAndSendsLink(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user, err := f.accounts.Register(ctx, registerInput(" Ada@Example.com "))
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", user.Email)
	require.False(t, user.IsEmailVerified())
	require.NotEqual(t, testPassword, user.Password)

	msg := f.mailer.last(t)
	require.Equal(t, []string{"ada@example.com"}, msg.To)
	require.Contains(t, msg.Text, "https://launchpad.test/verify-email?token=")
	require.Contains(t, msg.HTML, "Ada Lovelace")

	result, err := f.tokens.VerifyTokenFor(ctx, tokenFromMessage(t, msg), models.TokenKindEmailVerification)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "ada@example.com", result.Identifier)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, registerInput("dup@example.com"))
	require.NoError(t, err)

	_, err = f.accounts.Register(ctx, registerInput("DUP@example.com"))
	requireAppError(t, err, "EMAIL_TAKEN", http.StatusConflict)
	require.Equal(t, 1, f.mailer.count())
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.accounts.Register(context.Background(), RegisterInput{Email: "weak@example.com", Password: "password"})
	requireAppError(t, err, "WEAK_PASSWORD", http.StatusBadRequest)
	require.Zero(t, f.countRows(t, &models.User{}))
}

func TestRegisterRollsBackWhenEmailFails(t *testing.T) {
	f := newServiceFixture(t)
	sendErr := errors.New("smtp: connection refused")
	f.mailer.fail(sendErr)

	_, err := f.accounts.Register(context.Background(), registerInput("rollback@example.com"))
	requireAppError(t, err, "EMAIL_DELIVERY_FAILED", http.StatusServiceUnavailable)
	require.ErrorIs(t, err, sendErr)

	require.Zero(t, f.countRows(t, &models.User{}))
	require.Zero(t, f.countRows(t, &models.Token{}))
	require.Zero(t, f.logs.FilterMessage("registration rollback incomplete").Len())
}

type failingDeleteUsers struct {
	repository.UserRepository
}

func (failingDeleteUsers) Delete(context.Context, string) error {
	return errors.New("delete refused")
}

func TestRegisterRollbackFailureIsLoggedNotReturned(t *testing.T) {
	f := newServiceFixture(t)
	sendErr := errors.New("resend: send email: 500")
	f.mailer.fail(sendErr)

	accounts, err := NewAccountService(failingDeleteUsers{f.users}, f.tokens, f.sessions, f.emails,
		WithAccountClock(f.clock.Now), WithAccountLogger(f.accounts.log))
	require.NoError(t, err)

	_, err = accounts.Register(context.Background(), registerInput("stuck@example.com"))
	require.ErrorIs(t, err, sendErr)
	require.NotContains(t, err.Error(), "delete refused")

	entries := f.logs.FilterMessage("registration rollback incomplete").All()
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].ContextMap()["error"], "delete refused")

	require.EqualValues(t, 1, f.countRows(t, &models.User{}), "unreachable user is left behind")
	require.Zero(t, f.countRows(t, &models.Token{}), "token is still compensated")
}

func TestConfirmEmailVerifiesAndRevokes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, registerInput("confirm@example.com"))
	require.NoError(t, err)
	token := tokenFromMessage(t, f.mailer.last(t))

	user, err := f.accounts.ConfirmEmail(ctx, token)
	require.NoError(t, err)
	require.True(t, user.IsEmailVerified())

	stored, err := f.users.FindByEmail(ctx, "confirm@example.com")
	require.NoError(t, err)
	require.True(t, stored.IsEmailVerified())

	_, err = f.accounts.ConfirmEmail(ctx, token)
	requireAppError(t, err, "AUTH_TOKEN_INVALID", http.StatusBadRequest)
}

func TestConfirmEmailExpiredOffersResend(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, registerInput("late@example.com"))
	require.NoError(t, err)
	token := tokenFromMessage(t, f.mailer.last(t))

	f.clock.Advance(24 * time.Hour)
	for i := 0; i < 2; i++ {
		_, err = f.accounts.ConfirmEmail(ctx, token)
		requireAppError(t, err, "AUTH_TOKEN_EXPIRED", http.StatusGone)

		var appErr *appErrors.AppError
		require.ErrorAs(t, err, &appErr)
		require.NotEmpty(t, appErr.Hint)
		require.NotContains(t, appErr.Message, "token:")
	}
}

func TestConfirmEmailRejectsPasswordResetToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.createVerifiedUser(t, "mixed@example.com")

	require.NoError(t, f.accounts.RequestPasswordReset(ctx, "mixed@example.com"))
	_, err := f.accounts.ConfirmEmail(ctx, tokenFromMessage(t, f.mailer.last(t)))
	requireAppError(t, err, "AUTH_TOKEN_INVALID", http.StatusBadRequest)
}

func TestResendVerification(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.accounts.ResendVerification(ctx, "nobody@example.com"))
	require.Zero(t, f.mailer.count())

	f.createVerifiedUser(t, "done@example.com")
	require.NoError(t, f.accounts.ResendVerification(ctx, "done@example.com"))
	require.Zero(t, f.mailer.count())

	_, err := f.accounts.Register(ctx, registerInput("pending@example.com"))
	require.NoError(t, err)
	first := tokenFromMessage(t, f.mailer.last(t))

	require.NoError(t, f.accounts.ResendVerification(ctx, "Pending@example.com"))
	second := tokenFromMessage(t, f.mailer.last(t))
	require.NotEqual(t, first, second)

	_, err = f.accounts.ConfirmEmail(ctx, first)
	requireAppError(t, err, "AUTH_TOKEN_INVALID", http.StatusBadRequest)
	_, err = f.accounts.ConfirmEmail(ctx, second)
	require.NoError(t, err)
}

func TestResendVerificationEmailFailureKeepsToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, registerInput("flaky@example.com"))
	require.NoError(t, err)

	f.mailer.fail(errors.New("smtp down"))
	err = f.accounts.ResendVerification(ctx, "flaky@example.com")
	requireAppError(t, err, "EMAIL_DELIVERY_FAILED", http.StatusServiceUnavailable)

	require.EqualValues(t, 1, f.countRows(t, &models.User{}))
	require.EqualValues(t, 1, f.countRows(t, &models.Token{}))
}

func TestRequestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	f := newServiceFixture(t)

	require.NoError(t, f.accounts.RequestPasswordReset(context.Background(), "ghost@example.com"))
	require.Zero(t, f.mailer.count())
	require.Zero(t, f.countRows(t, &models.Token{}))
}

func TestRequestPasswordResetEmailFailureKeepsToken(t *testing.T) {
	f := newServiceFixture(t)
	f.createVerifiedUser(t, "keep@example.com")
	f.mailer.fail(errors.New("resend: 503"))

	err := f.accounts.RequestPasswordReset(context.Background(), "keep@example.com")
	requireAppError(t, err, "EMAIL_DELIVERY_FAILED", http.StatusServiceUnavailable)
	require.EqualValues(t, 1, f.countRows(t, &models.Token{}))
}

func TestResetPasswordFlow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := f.createVerifiedUser(t, "reset@example.com")

	signedIn, err := f.accounts.SignIn(ctx, "reset@example.com", testPassword, auth.RequestMetadata{UserAgent: firefoxOnMac})
	require.NoError(t, err)

	require.NoError(t, f.accounts.RequestPasswordReset(ctx, "reset@example.com"))
	token := tokenFromMessage(t, f.mailer.last(t))
	require.Contains(t, f.mailer.last(t).Text, "/reset-password?token=")

	result, err := f.accounts.ValidatePasswordResetToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "reset@example.com", result.Identifier)

	err = f.accounts.ResetPassword(ctx, token, "short")
	requireAppError(t, err, "WEAK_PASSWORD", http.StatusBadRequest)

	require.NoError(t, f.accounts.ResetPassword(ctx, token, "brand-new-pass1"))

	_, err = f.accounts.SignIn(ctx, "reset@example.com", testPassword, auth.RequestMetadata{})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
	_, err = f.accounts.SignIn(ctx, "reset@example.com", "brand-new-pass1", auth.RequestMetadata{})
	require.NoError(t, err)

	_, _, err = f.accounts.CurrentUser(ctx, signedIn.SessionToken)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized, "old sessions are revoked")

	err = f.accounts.ResetPassword(ctx, token, "another-pass2")
	requireAppError(t, err, "AUTH_TOKEN_INVALID", http.StatusBadRequest)

	_, err = f.accounts.ValidatePasswordResetToken(ctx, token)
	requireAppError(t, err, "AUTH_TOKEN_INVALID", http.StatusBadRequest)
	require.NotEmpty(t, user.ID)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.createVerifiedUser(t, "slow@example.com")

	require.NoError(t, f.accounts.RequestPasswordReset(ctx, "slow@example.com"))
	token := tokenFromMessage(t, f.mailer.last(t))
	f.clock.Advance(61 * time.Minute)

	err := f.accounts.ResetPassword(ctx, token, "brand-new-pass1")
	requireAppError(t, err, "AUTH_TOKEN_EXPIRED", http.StatusGone)

	_, err = f.accounts.SignIn(ctx, "slow@example.com", testPassword, auth.RequestMetadata{})
	require.NoError(t, err, "password is unchanged")
}

func TestSignIn(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := f.createVerifiedUser(t, "signin@example.com")

	_, err := f.accounts.SignIn(ctx, "signin@example.com", "wrong-password1", auth.RequestMetadata{})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = f.accounts.SignIn(ctx, "missing@example.com", testPassword, auth.RequestMetadata{})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	result, err := f.accounts.SignIn(ctx, " SignIn@example.com", testPassword, auth.RequestMetadata{
		UserAgent: firefoxOnMac,
		IPAddress: "10.0.0.8",
	})
	require.NoError(t, err)
	require.Equal(t, user.ID, result.User.ID)
	require.Len(t, result.SessionToken, 43)
	require.Equal(t, f.clock.Now().Add(auth.DefaultSessionTTL), result.ExpiresAt)
	require.NotNil(t, result.User.LastLoginAt)

	var session models.Session
	require.NoError(t, f.db.Take(&session, "session_token = ?", result.SessionToken).Error)
	require.Equal(t, user.ID, session.UserID)
	require.Equal(t, "Firefox", session.Browser)
	require.Equal(t, "macOS", session.OS)
	require.Equal(t, models.DeviceDesktop, session.DeviceType)

	current, currentSession, err := f.accounts.CurrentUser(ctx, result.SessionToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, current.ID)
	require.Equal(t, result.SessionToken, currentSession.SessionToken)
}

func TestSignInRequiresVerifiedEmail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, registerInput("unverified@example.com"))
	require.NoError(t, err)

	_, err = f.accounts.SignIn(ctx, "unverified@example.com", testPassword, auth.RequestMetadata{})
	requireAppError(t, err, "EMAIL_NOT_VERIFIED", http.StatusForbidden)
	require.Zero(t, f.countRows(t, &models.Session{}))
}

func TestSignOutEndsSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.createVerifiedUser(t, "out@example.com")

	result, err := f.accounts.SignIn(ctx, "out@example.com", testPassword, auth.RequestMetadata{})
	require.NoError(t, err)

	require.NoError(t, f.accounts.SignOut(ctx, result.SessionToken))
	require.NoError(t, f.accounts.SignOut(ctx, result.SessionToken))

	_, _, err = f.accounts.CurrentUser(ctx, result.SessionToken)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestCurrentUserRejectsExpiredSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.createVerifiedUser(t, "expiring@example.com")

	result, err := f.accounts.SignIn(ctx, "expiring@example.com", testPassword, auth.RequestMetadata{})
	require.NoError(t, err)

	f.clock.Advance(auth.DefaultSessionTTL)
	_, _, err = f.accounts.CurrentUser(ctx, result.SessionToken)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestSignInWithIdentity(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.accounts.SignInWithIdentity(ctx, &providers.Identity{Subject: "sub-1", Email: "new@example.com"}, auth.RequestMetadata{})
	requireAppError(t, err, "EMAIL_NOT_VERIFIED", http.StatusForbidden)

	identity := &providers.Identity{Provider: "oidc", Subject: "sub-1", Email: "New@Example.com", EmailVerified: true, Name: "Grace"}
	result, err := f.accounts.SignInWithIdentity(ctx, identity, auth.RequestMetadata{})
	require.NoError(t, err)
	require.Equal(t, models.ProviderOIDC, result.User.Provider)
	require.Equal(t, "new@example.com", result.User.Email)
	require.True(t, result.User.IsEmailVerified())

	again, err := f.accounts.SignInWithIdentity(ctx, identity, auth.RequestMetadata{})
	require.NoError(t, err)
	require.Equal(t, result.User.ID, again.User.ID)
	require.EqualValues(t, 1, f.countRows(t, &models.User{}))

	_, err = f.accounts.SignIn(ctx, "new@example.com", "", auth.RequestMetadata{})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials, "provider accounts have no password")
}

func TestSignInWithIdentityVerifiesPendingLocalAccount(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, registerInput("linked@example.com"))
	require.NoError(t, err)

	result, err := f.accounts.SignInWithIdentity(ctx, &providers.Identity{Subject: "s", Email: "linked@example.com", EmailVerified: true}, auth.RequestMetadata{})
	require.NoError(t, err)
	require.True(t, result.User.IsEmailVerified())
	require.Equal(t, models.ProviderLocal, result.User.Provider)

	_, err = f.accounts.SignInWithIdentity(ctx, nil, auth.RequestMetadata{})
	require.True(t, appErrors.HasCode(err, "UNAUTHORIZED"))
	require.False(t, strings.Contains(err.Error(), "repository"))
}
