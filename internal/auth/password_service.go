package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/prompthub/authcore/internal/database"
	"github.com/prompthub/authcore/internal/models"
	"github.com/prompthub/authcore/pkg/crypto"
	apperrors "github.com/prompthub/authcore/pkg/errors"
	"github.com/prompthub/authcore/pkg/logger"
	"github.com/prompthub/authcore/pkg/mail"
	"github.com/prompthub/authcore/pkg/metrics"
	"github.com/prompthub/authcore/pkg/validator"
)

const (
	// DefaultMinPasswordLength is the shortest password accepted when none is configured.
	DefaultMinPasswordLength = 6
	// DefaultResetTokenTTL is how long a password reset link stays valid.
	DefaultResetTokenTTL = time.Hour
	// DefaultMailTimeout bounds a single reset email dispatch.
	DefaultMailTimeout = 10 * time.Second

	resetTokenBytes = 32
	resetKeyInfo    = "password-reset"
)

// PasswordConfig describes tunable behaviour for the PasswordService.
type PasswordConfig struct {
	MinLength   int
	BcryptCost  int
	ResetTTL    time.Duration
	AppURL      string
	MailFrom    string
	MailTimeout time.Duration
	// TokenSecret keys the stored hash of reset tokens.
	TokenSecret string
	Clock       func() time.Time
}

// RegisterInput carries the fields accepted by Register.
type RegisterInput struct {
	Email       string `json:"email" validate:"required,email,max=320"`
	Password    string `json:"password" validate:"required"`
	UserID      string `json:"userid" validate:"required,userid"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
}

// PasswordService owns local credentials: registration, login, password change and reset.
type PasswordService struct {
	db        *gorm.DB
	tokens    *TokenService
	mailer    mail.Mailer
	cfg       PasswordConfig
	resetKey  []byte
	now       func() time.Time
	log       *zap.Logger
	pending   sync.WaitGroup
	dummyOnce sync.Once
	dummyHash string
}

// NewPasswordService constructs a PasswordService. A nil mailer is treated as mail.Disabled.
func NewPasswordService(db *gorm.DB, tokens *TokenService, mailer mail.Mailer, cfg PasswordConfig) (*PasswordService, error) {
	if db == nil {
		return nil, errors.New("password service: db is required")
	}
	if tokens == nil {
		return nil, errors.New("password service: token service is required")
	}
	if len(cfg.TokenSecret) < MinSecretLength {
		return nil, fmt.Errorf("password service: token secret must be at least %d characters", MinSecretLength)
	}
	if mailer == nil {
		mailer = mail.Disabled{}
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinPasswordLength
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTokenTTL
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = DefaultMailTimeout
	}
	cfg.AppURL = strings.TrimRight(strings.TrimSpace(cfg.AppURL), "/")

	key, err := crypto.DeriveKey([]byte(cfg.TokenSecret), resetKeyInfo, 32)
	if err != nil {
		return nil, fmt.Errorf("password service: derive reset key: %w", err)
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &PasswordService{
		db:       db,
		tokens:   tokens,
		mailer:   mailer,
		cfg:      cfg,
		resetKey: key,
		now:      clock,
		log:      logger.WithModule("password"),
	}, nil
}

// Register creates a local account and signs it in.
func (s *PasswordService) Register(ctx context.Context, in RegisterInput) (*models.User, TokenPair, error) {
	in.Email = models.NormalizeEmail(in.Email)
	in.UserID = models.NormalizeUserID(in.UserID)
	in.DisplayName = strings.TrimSpace(in.DisplayName)

	if err := validator.ValidateStruct(in); err != nil {
		return nil, TokenPair{}, apperrors.NewValidation(err.Error())
	}
	if err := s.checkLength(in.Password); err != nil {
		return nil, TokenPair{}, err
	}

	if err := s.ensureAvailable(ctx, in.Email, in.UserID); err != nil {
		return nil, TokenPair{}, err
	}

	hash, err := crypto.HashPasswordWithCost(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("password service: hash password: %w", err)
	}

	user := &models.User{
		Email:        in.Email,
		Handle:       in.UserID,
		DisplayName:  in.DisplayName,
		PasswordHash: &hash,
		LoginType:    models.LoginTypeLocal,
	}

	var pair TokenPair
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		issued, err := s.tokens.IssueTx(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		pair = issued
		return nil
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, TokenPair{}, s.classifyConflict(ctx, in.Email)
		}
		return nil, TokenPair{}, fmt.Errorf("password service: create user: %w", err)
	}

	metrics.Registrations.WithLabelValues(string(models.LoginTypeLocal)).Inc()
	s.log.Info("user registered", zap.Uint("user_id", user.ID))
	return user, pair, nil
}

func (s *PasswordService) ensureAvailable(ctx context.Context, email, userID string) error {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return fmt.Errorf("password service: check email: %w", err)
	}
	if count > 0 {
		return apperrors.ErrEmailTaken
	}
	if err := db.Model(&models.User{}).Where("userid = ?", userID).Count(&count).Error; err != nil {
		return fmt.Errorf("password service: check userid: %w", err)
	}
	if count > 0 {
		return apperrors.ErrUserIDTaken
	}
	return nil
}

// classifyConflict maps a unique violation that slipped past the pre-check to
// the field that lost the race.
func (s *PasswordService) classifyConflict(ctx context.Context, email string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err == nil && count > 0 {
		return apperrors.ErrEmailTaken
	}
	return apperrors.ErrUserIDTaken
}

// Login verifies email and password. Every failure cause returns ErrInvalidCredentials.
func (s *PasswordService) Login(ctx context.Context, email, password string) (*models.User, TokenPair, error) {
	email = models.NormalizeEmail(email)

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, TokenPair{}, fmt.Errorf("password service: find user: %w", err)
	}

	if err != nil || !user.HasPassword() {
		crypto.VerifyPassword(s.dummy(), password)
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		return nil, TokenPair{}, apperrors.ErrInvalidCredentials
	}
	if !crypto.VerifyPassword(*user.PasswordHash, password) {
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		return nil, TokenPair{}, apperrors.ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	metrics.AuthAttempts.WithLabelValues("password", "success").Inc()
	return &user, pair, nil
}

func (s *PasswordService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := crypto.HashPasswordWithCost("authcore-timing-equaliser", s.cfg.BcryptCost)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

// ChangePassword replaces the password of userID after verifying the current one.
func (s *PasswordService) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("password service: find user: %w", err)
	}

	if !user.HasPassword() || !crypto.VerifyPassword(*user.PasswordHash, current) {
		return apperrors.ErrInvalidCredentials
	}
	if err := s.checkLength(next); err != nil {
		return err
	}

	hash, err := crypto.HashPasswordWithCost(next, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("password service: hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Update("password", hash).Error; err != nil {
		return fmt.Errorf("password service: update password: %w", err)
	}
	return nil
}

// RequestPasswordReset mints a reset token for an existing account and mails
// the link in the background. The result does not reveal whether the account exists.
func (s *PasswordService) RequestPasswordReset(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)
	if err := validator.ValidateVar(email, "required,email"); err != nil {
		return apperrors.NewValidation("A valid email address is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.PasswordResets.WithLabelValues("unknown_email").Inc()
		return nil
	}
	if err != nil {
		s.log.Error("reset lookup failed", zap.Error(err))
		return nil
	}

	token, err := crypto.GenerateToken(resetTokenBytes)
	if err != nil {
		s.log.Error("reset token generation failed", zap.Error(err))
		return nil
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND used_at IS NULL", user.ID).Delete(&models.PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.PasswordResetToken{
			UserID:    user.ID,
			TokenHash: crypto.HashToken(s.resetKey, token),
			ExpiresAt: now.Add(s.cfg.ResetTTL),
		}).Error
	})
	if err != nil {
		s.log.Error("reset token store failed", zap.Uint("user_id", user.ID), zap.Error(err))
		return nil
	}

	metrics.PasswordResets.WithLabelValues("requested").Inc()
	s.dispatchReset(user, token)
	return nil
}

func (s *PasswordService) dispatchReset(user models.User, token string) {
	msg := resetMessage(s.cfg.MailFrom, user, s.resetLink(token), s.cfg.ResetTTL)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.MailTimeout)
		defer cancel()

		err := s.mailer.Send(ctx, msg)
		switch {
		case err == nil:
			metrics.PasswordResets.WithLabelValues("mailed").Inc()
		case errors.Is(err, mail.ErrUnavailable):
			s.log.Warn("password reset email skipped: mail transport unavailable", zap.Uint("user_id", user.ID))
		default:
			metrics.PasswordResets.WithLabelValues("mail_failed").Inc()
			s.log.Error("password reset email failed", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	}()
}

func (s *PasswordService) resetLink(token string) string {
	return s.cfg.AppURL + "/reset-password?token=" + url.QueryEscape(token)
}

// Wait blocks until background reset mails have finished.
func (s *PasswordService) Wait() {
	s.pending.Wait()
}

// ConfirmPasswordReset redeems a reset token and sets a new password. The
// user's refresh token is revoked in the same transaction.
func (s *PasswordService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := s.checkLength(newPassword); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.ErrInvalidToken
	}

	hash, err := crypto.HashPasswordWithCost(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("password service: hash password: %w", err)
	}

	now := s.now()
	tokenHash := crypto.HashToken(s.resetKey, token)

	var userID uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.PasswordResetToken
		if err := tx.Where("token_hash = ?", tokenHash).Take(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrInvalidToken
			}
			return err
		}

		consumed := tx.Model(&models.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL AND expires_at > ?", record.ID, now).
			Update("used_at", now)
		if consumed.Error != nil {
			return consumed.Error
		}
		if consumed.RowsAffected != 1 {
			return apperrors.ErrInvalidToken
		}

		if err := tx.Model(&models.User{}).Where("id = ?", record.UserID).Update("password", hash).Error; err != nil {
			return err
		}
		userID = record.UserID
		return s.tokens.RevokeUserTx(ctx, tx, record.UserID)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidToken) {
			metrics.PasswordResets.WithLabelValues("rejected").Inc()
			return apperrors.ErrInvalidToken
		}
		return fmt.Errorf("password service: confirm reset: %w", err)
	}

	metrics.PasswordResets.WithLabelValues("completed").Inc()
	s.log.Info("password reset completed", zap.Uint("user_id", userID))
	return nil
}

// CleanupExpiredResets removes reset tokens that expired or were redeemed before cutoff.
func (s *PasswordService) CleanupExpiredResets(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ? OR used_at IS NOT NULL", s.now()).
		Delete(&models.PasswordResetToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("password service: cleanup reset tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// MinLength returns the configured minimum password length.
func (s *PasswordService) MinLength() int {
	return s.cfg.MinLength
}

func (s *PasswordService) checkLength(password string) error {
	if len([]rune(password)) < s.cfg.MinLength {
		return apperrors.NewValidation(fmt.Sprintf("Password must be at least %d characters", s.cfg.MinLength))
	}
	return nil
}
