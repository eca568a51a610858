package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/launchpad/internal/auth"
	"github.com/charlesng35/launchpad/internal/cache"
	"github.com/charlesng35/launchpad/internal/database/testutil"
	"github.com/charlesng35/launchpad/internal/geo"
	"github.com/charlesng35/launchpad/internal/middleware"
	"github.com/charlesng35/launchpad/internal/models"
	"github.com/charlesng35/launchpad/internal/repository"
	"github.com/charlesng35/launchpad/internal/services"
	"github.com/charlesng35/launchpad/pkg/crypto"
	"github.com/charlesng35/launchpad/pkg/mail"
)

const testPassword = "s3cure-password"

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *recordingMailer) Provider() string { return "recording" }

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

var linkToken = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

func (m *recordingMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages)
	match := linkToken.FindStringSubmatch(m.messages[len(m.messages)-1].Text)
	require.Len(t, match, 2)
	return match[1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type handlerFixture struct {
	db         *gorm.DB
	router     *gin.Engine
	mailer     *recordingMailer
	store      cache.Store
	sessions   *auth.SessionService
	accounts   *services.AccountService
	newsletter *services.NewsletterService
	users      repository.UserRepository
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)

	tokens, err := services.NewTokenService(repository.NewTokenRepository(db), services.WithTokenTombstones(store, time.Hour))
	require.NoError(t, err)
	sessions, err := auth.NewSessionService(repository.NewSessionRepository(db), auth.SessionConfig{Locator: geo.NoopLocator{}})
	require.NoError(t, err)

	mailer := &recordingMailer{}
	emails := services.NewEmailSender(mailer, services.SiteSettings{Name: "Launchpad", BaseURL: "https://launchpad.test"})
	users := repository.NewUserRepository(db)
	accounts, err := services.NewAccountService(users, tokens, sessions, emails)
	require.NoError(t, err)
	newsletter, err := services.NewNewsletterService(repository.NewNewsletterRepository(db), tokens, emails)
	require.NoError(t, err)

	f := &handlerFixture{
		db:         db,
		mailer:     mailer,
		store:      store,
		sessions:   sessions,
		accounts:   accounts,
		newsletter: newsletter,
		users:      users,
	}
	f.router = f.buildRouter()
	return f
}

func (f *handlerFixture) buildRouter() *gin.Engine {
	r := gin.New()
	authHandler := NewAuthHandler(f.accounts, CookieSettings{})
	sessionHandler := NewSessionHandler(f.sessions)
	newsletterHandler := NewNewsletterHandler(f.newsletter)
	requireSession := middleware.Auth(f.sessions)

	api := r.Group("/api")
	authGroup := api.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/verify/resend", authHandler.ResendVerification)
	authGroup.GET("/verify", authHandler.VerifyEmail)
	authGroup.POST("/password/forgot", authHandler.ForgotPassword)
	authGroup.GET("/password/reset", authHandler.ValidateResetToken)
	authGroup.POST("/password/reset", authHandler.ResetPassword)
	authGroup.POST("/signin", authHandler.SignIn)
	authGroup.POST("/signout", requireSession, authHandler.SignOut)
	authGroup.GET("/me", requireSession, authHandler.Me)

	api.POST("/session/update", requireSession, sessionHandler.Update)
	api.GET("/sessions", requireSession, sessionHandler.List)

	api.POST("/newsletter/subscribe", newsletterHandler.Subscribe)
	api.GET("/newsletter/confirm", newsletterHandler.Confirm)
	return r
}

func (f *handlerFixture) createVerifiedUser(t *testing.T, email string) *models.User {
	t.Helper()
	hash, err := crypto.HashPassword(testPassword)
	require.NoError(t, err)
	now := time.Now().UTC()
	user := &models.User{Name: "Ada", Email: email, Password: hash, EmailVerifiedAt: &now}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withUserAgent(ua string) requestOption {
	return func(r *http.Request) { r.Header.Set("User-Agent", ua) }
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Hint    string `json:"hint"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func requireErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	env := decode(t, w, nil)
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	require.Equal(t, code, env.Error.Code)
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == middleware.SessionCookieName {
			return cookie
		}
	}
	return nil
}
