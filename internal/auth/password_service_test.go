package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prompthub/authcore/internal/models"
	apperrors "github.com/prompthub/authcore/pkg/errors"
	"github.com/prompthub/authcore/pkg/mail"
)

func validRegistration() RegisterInput {
	return RegisterInput{
		Email:       "Ada@Example.com ",
		Password:    "secret1",
		UserID:      "Ada_L",
		DisplayName: "Ada Lovelace",
	}
}

func TestRegisterCreatesLocalUser(t *testing.T) {
	fx := newPasswordFixture(t)

	user, pair, err := fx.passwords.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	require.NotZero(t, user.ID)
	require.Equal(t, "ada@example.com", user.Email)
	require.Equal(t, "ada_l", user.Handle)
	require.Equal(t, models.LoginTypeLocal, user.LoginType)
	require.True(t, user.HasPassword())
	require.NotEqual(t, "secret1", *user.PasswordHash)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	var stored models.RefreshToken
	require.NoError(t, fx.db.Where("user_id = ?", user.ID).Take(&stored).Error)
}

func TestRegisterValidation(t *testing.T) {
	fx := newPasswordFixture(t)

	cases := map[string]func(*RegisterInput){
		"malformed email": func(in *RegisterInput) { in.Email = "not-an-email" },
		"short password":  func(in *RegisterInput) { in.Password = "12345" },
		"short userid":    func(in *RegisterInput) { in.UserID = "ab" },
		"bad userid":      func(in *RegisterInput) { in.UserID = "ada lovelace" },
		"empty name":      func(in *RegisterInput) { in.DisplayName = "  " },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validRegistration()
			mutate(&in)
			_, _, err := fx.passwords.Register(context.Background(), in)
			require.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestRegisterDuplicates(t *testing.T) {
	fx := newPasswordFixture(t)
	ctx := context.Background()

	_, _, err := fx.passwords.Register(ctx, validRegistration())
	require.NoError(t, err)

	dupEmail := validRegistration()
	dupEmail.UserID = "someone_else"
	_, _, err = fx.passwords.Register(ctx, dupEmail)
	require.ErrorIs(t, err, apperrors.ErrEmailTaken)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 409, appErr.StatusCode)

	dupUserID := validRegistration()
	dupUserID.Email = "other@example.com"
	_, _, err = fx.passwords.Register(ctx, dupUserID)
	require.ErrorIs(t, err, apperrors.ErrUserIDTaken)
}

func TestRegisterConcurrentDuplicatesYieldOneUser(t *testing.T) {
	fx := newPasswordFixture(t)
	ctx := context.Background()

	const workers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := validRegistration()
			in.UserID = fmt.Sprintf("racer_%d", i)
			_, _, err := fx.passwords.Register(ctx, in)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrEmailTaken)
			conflicts++
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, conflicts)

	var count int64
	require.NoError(t, fx.db.Model(&models.User{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	fx := newPasswordFixture(t)
	ctx := context.Background()

	_, _, err := fx.passwords.Register(ctx, validRegistration())
	require.NoError(t, err)

	oauthOnly := &models.User{Email: "oauth@example.com", Handle: "oauth_only", DisplayName: "OAuth", LoginType: models.LoginTypeOAuth}
	require.NoError(t, fx.db.Create(oauthOnly).Error)

	_, _, unknown := fx.passwords.Login(ctx, "nobody@example.com", "secret1")
	_, _, wrong := fx.passwords.Login(ctx, "ada@example.com", "wrong-password")
	_, _, noPassword := fx.passwords.Login(ctx, "oauth@example.com", "secret1")

	for _, err := range []error{unknown, wrong, noPassword} {
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		require.Equal(t, unknown.Error(), err.Error())
	}
}

func TestLoginReplacesRefreshToken(t *testing.T) {
	fx := newPasswordFixture(t)
	ctx := context.Background()

	_, first, err := fx.passwords.Register(ctx, validRegistration())
	require.NoError(t, err)

	user, second, err := fx.passwords.Login(ctx, " ADA@example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, "ada_l", user.Handle)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, _, err = fx.tokens.Rotate(ctx, first.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}

func TestChangePassword(t *testing.T) {
	fx := newPasswordFixture(t)
	ctx := context.Background()

	user, pair, err := fx.passwords.Register(ctx, validRegistration())
	require.NoError(t, err)

	err = fx.passwords.ChangePassword(ctx, user.ID, "wrong", "another1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	err = fx.passwords.ChangePassword(ctx, user.ID, "secret1", "123")
	require.ErrorIs(t, err, apperrors.ErrValidation)

	require.NoError(t, fx.passwords.ChangePassword(ctx, user.ID, "secret1", "another1"))

	_, _, err = fx.passwords.Login(ctx, "ada@example.com", "secret1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, _, err = fx.passwords.Login(ctx, "ada@example.com", "another1")
	require.NoError(t, err)

	// refresh tokens are untouched by a change
	var count int64
	require.NoError(t, fx.db.Model(&models.RefreshToken{}).Where("user_id = ?", user.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
	require.NotEmpty(t, pair.RefreshToken)
}

func requestReset(t *testing.T, fx *passwordFixture, email string) string {
	t.Helper()

	require.NoError(t, fx.passwords.RequestPasswordReset(context.Background(), email))
	fx.passwords.Wait()

	messages := fx.mailer.Messages()
	require.NotEmpty(t, messages)
	msg := messages[len(messages)-1]
	require.Equal(t, resetSubject, msg.Subject)

	idx := strings.Index(msg.Body, "https://app.example.com/reset-password?token=")
	require.GreaterOrEqual(t, idx, 0)
	line := strings.Fields(msg.Body[idx:])[0]
	parsed, err := url.Parse(line)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestPasswordResetFlow(t *testing.T) {
	fx := newPasswordFixture(t)
	ctx := context.Background()

	user, pair, err := fx.passwords.Register(ctx, validRegistration())
	require.NoError(t, err)

	token := requestReset(t, fx, "ada@example.com")
	msg := fx.mailer.Messages()[0]
	require.Equal(t, []string{"ada@example.com"}, msg.To)
	require.Equal(t, "no-reply@example.com", msg.From)

	err = fx.passwords.ConfirmPasswordReset(ctx, token, "123")
	require.ErrorIs(t, err, apperrors.ErrValidation)

	require.NoError(t, fx.passwords.ConfirmPasswordReset(ctx, token, "brand-new"))

	err = fx.passwords.ConfirmPasswordReset(ctx, token, "brand-new-2")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, _, err = fx.passwords.Login(ctx, "ada@example.com", "brand-new")
	require.NoError(t, err)

	_, _, err = fx.tokens.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

	var stored models.PasswordResetToken
	require.NoError(t, fx.db.Where("user_id = ?", user.ID).Take(&stored).Error)
	require.True(t, stored.Consumed())
	require.NotEqual(t, token, stored.TokenHash)
}

func TestPasswordResetExpiryBoundary(t *testing.T) {
	t.Run("valid at 59 minutes", func(t *testing.T) {
		fx := newPasswordFixture(t)
		_, _, err := fx.passwords.Register(context.Background(), validRegistration())
		require.NoError(t, err)

		token := requestReset(t, fx, "ada@example.com")
		fx.clock.Advance(59 * time.Minute)
		require.NoError(t, fx.passwords.ConfirmPasswordReset(context.Background(), token, "brand-new"))
	})

	t.Run("expired at 61 minutes", func(t *testing.T) {
		fx := newPasswordFixture(t)
		_, _, err := fx.passwords.Register(context.Background(), validRegistration())
		require.NoError(t, err)

		token := requestReset(t, fx, "ada@example.com")
		fx.clock.Advance(61 * time.Minute)
		err = fx.passwords.ConfirmPasswordReset(context.Background(), token, "brand-new")
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})
}

func TestPasswordResetNewRequestSupersedesOld(t *testing.T) {
	fx := newPasswordFixture(t)
	_, _, err := fx.passwords.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	first := requestReset(t, fx, "ada@example.com")
	second := requestReset(t, fx, "ada@example.com")
	require.NotEqual(t, first, second)

	err = fx.passwords.ConfirmPasswordReset(context.Background(), first, "brand-new")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	require.NoError(t, fx.passwords.ConfirmPasswordReset(context.Background(), second, "brand-new"))
}

func TestPasswordResetUnknownEmailSendsNothing(t *testing.T) {
	fx := newPasswordFixture(t)

	require.NoError(t, fx.passwords.RequestPasswordReset(context.Background(), "ghost@example.com"))
	fx.passwords.Wait()
	require.Empty(t, fx.mailer.Messages())

	var count int64
	require.NoError(t, fx.db.Model(&models.PasswordResetToken{}).Count(&count).Error)
	require.Zero(t, count)

	err := fx.passwords.RequestPasswordReset(context.Background(), "not an email")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestPasswordResetMailFailureIsSwallowed(t *testing.T) {
	fx := newTokenFixture(t)
	ctx := context.Background()
	createTestUser(t, fx.db, "ada@example.com", "ada_l", "secret1")

	for _, mailer := range []mail.Mailer{mail.Disabled{}, mail.NewRecorder(errors.New("smtp down"))} {
		passwords, err := NewPasswordService(fx.db, fx.tokens, mailer, PasswordConfig{
			BcryptCost:  4,
			TokenSecret: testRefreshSecret,
			Clock:       fx.clock.Now,
		})
		require.NoError(t, err)

		require.NoError(t, passwords.RequestPasswordReset(ctx, "ada@example.com"))
		passwords.Wait()
	}

	var count int64
	require.NoError(t, fx.db.Model(&models.PasswordResetToken{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCleanupExpiredResets(t *testing.T) {
	fx := newPasswordFixture(t)
	_, _, err := fx.passwords.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	requestReset(t, fx, "ada@example.com")
	fx.clock.Advance(2 * time.Hour)

	removed, err := fx.passwords.CleanupExpiredResets(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
}
