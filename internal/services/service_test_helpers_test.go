package services

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/charlesng35/launchpad/internal/auth"
	"github.com/charlesng35/launchpad/internal/cache"
	"github.com/charlesng35/launchpad/internal/database/testutil"
	"github.com/charlesng35/launchpad/internal/geo"
	"github.com/charlesng35/launchpad/internal/models"
	"github.com/charlesng35/launchpad/internal/repository"
	"github.com/charlesng35/launchpad/pkg/crypto"
	"github.com/charlesng35/launchpad/pkg/mail"
)

const testPassword = "s3cure-password"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (m *fakeMailer) Provider() string { return "fake" }

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *fakeMailer) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *fakeMailer) last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages, "expected an email to be sent")
	return m.messages[len(m.messages)-1]
}

var linkToken = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

func tokenFromMessage(t *testing.T, msg mail.Message) string {
	t.Helper()
	match := linkToken.FindStringSubmatch(msg.Text)
	require.Len(t, match, 2, "no token link in %q", msg.Text)
	return match[1]
}

type serviceFixture struct {
	db         *gorm.DB
	clock      *testClock
	mailer     *fakeMailer
	logs       *observer.ObservedLogs
	users      repository.UserRepository
	tokens     *TokenService
	sessions   *auth.SessionService
	emails     *EmailSender
	accounts   *AccountService
	newsletter *NewsletterService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	tokens, err := NewTokenService(
		repository.NewTokenRepository(db),
		WithTokenClock(clock.Now),
		WithTokenLogger(log),
		WithTokenTombstones(cache.NewDatabaseStore(db, cache.WithDatabaseClock(clock.Now)), time.Hour),
	)
	require.NoError(t, err)

	sessions, err := auth.NewSessionService(repository.NewSessionRepository(db), auth.SessionConfig{
		Clock:   clock.Now,
		Locator: geo.NoopLocator{},
		Logger:  log,
	})
	require.NoError(t, err)

	mailer := &fakeMailer{}
	emails := NewEmailSender(mailer, SiteSettings{Name: "Launchpad", BaseURL: "https://launchpad.test/"})

	users := repository.NewUserRepository(db)
	accounts, err := NewAccountService(users, tokens, sessions, emails, WithAccountClock(clock.Now), WithAccountLogger(log))
	require.NoError(t, err)

	newsletter, err := NewNewsletterService(repository.NewNewsletterRepository(db), tokens, emails)
	require.NoError(t, err)
	newsletter.now = clock.Now

	return &serviceFixture{
		db:         db,
		clock:      clock,
		mailer:     mailer,
		logs:       logs,
		users:      users,
		tokens:     tokens,
		sessions:   sessions,
		emails:     emails,
		accounts:   accounts,
		newsletter: newsletter,
	}
}

// createVerifiedUser inserts a local account that can sign in immediately.
func (f *serviceFixture) createVerifiedUser(t *testing.T, email string) *models.User {
	t.Helper()
	hash, err := crypto.HashPassword(testPassword)
	require.NoError(t, err)
	verified := f.clock.Now()
	user := &models.User{Name: "Ada", Email: email, Password: hash, EmailVerifiedAt: &verified}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func (f *serviceFixture) countRows(t *testing.T, model any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(model).Count(&count).Error)
	return count
}
