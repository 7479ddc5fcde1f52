package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/prompthub/authcore/internal/database/testutil"
	"github.com/prompthub/authcore/internal/models"
	"github.com/prompthub/authcore/pkg/crypto"
	"github.com/prompthub/authcore/pkg/mail"
)

const (
	testAccessSecret  = "access-secret-for-tests-0123456789abcdef"
	testRefreshSecret = "refresh-secret-for-tests-fedcba9876543210"
)

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

type tokenFixture struct {
	db     *gorm.DB
	clock  *testClock
	jwt    *JWTService
	tokens *TokenService
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()

	jwtSvc, err := NewJWTService(JWTConfig{Secret: testAccessSecret, Issuer: "authcore", Clock: clock.Now})
	require.NoError(t, err)

	tokens, err := NewTokenService(db, jwtSvc, TokenConfig{
		RefreshSecret:   testRefreshSecret,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		RevokeOnReuse:   true,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	return &tokenFixture{db: db, clock: clock, jwt: jwtSvc, tokens: tokens}
}

func createTestUser(t *testing.T, db *gorm.DB, email, userID, password string) *models.User {
	t.Helper()

	user := &models.User{
		Email:       email,
		Handle:      userID,
		DisplayName: userID,
		LoginType:   models.LoginTypeLocal,
	}
	if password != "" {
		hash, err := crypto.HashPasswordWithCost(password, 4)
		require.NoError(t, err)
		user.PasswordHash = &hash
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type passwordFixture struct {
	*tokenFixture
	mailer    *mail.Recorder
	passwords *PasswordService
}

func newPasswordFixture(t *testing.T) *passwordFixture {
	t.Helper()

	fx := newTokenFixture(t)
	recorder := mail.NewRecorder(nil)

	passwords, err := NewPasswordService(fx.db, fx.tokens, recorder, PasswordConfig{
		BcryptCost:  4,
		AppURL:      "https://app.example.com/",
		MailFrom:    "no-reply@example.com",
		TokenSecret: testRefreshSecret,
		Clock:       fx.clock.Now,
	})
	require.NoError(t, err)

	return &passwordFixture{tokenFixture: fx, mailer: recorder, passwords: passwords}
}
