package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prompthub/authcore/internal/models"
	"github.com/prompthub/authcore/pkg/crypto"
	apperrors "github.com/prompthub/authcore/pkg/errors"
	"github.com/prompthub/authcore/pkg/logger"
	"github.com/prompthub/authcore/pkg/metrics"
)

const (
	// DefaultRefreshTokenTTL is the fallback refresh token lifetime.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	// DefaultRefreshTokenLength is the number of random bytes in a refresh token.
	DefaultRefreshTokenLength = 48
	// RefreshReuseGracePeriod is how long after a rotation the previous value
	// is reported as superseded instead of treated as reuse.
	RefreshReuseGracePeriod = 10 * time.Second
)

// TokenConfig describes tunable behaviour for the TokenService.
type TokenConfig struct {
	RefreshSecret   string
	RefreshTokenTTL time.Duration
	RefreshLength   int
	// RevokeOnReuse deletes the user's refresh token when a rotated-out value is presented again.
	RevokeOnReuse bool
	Clock         func() time.Time
}

// TokenPair is the credential pair handed to a client after authentication.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenService mints access tokens and owns the lifecycle of refresh tokens.
type TokenService struct {
	db            *gorm.DB
	jwt           *JWTService
	refreshKey    []byte
	refreshTTL    time.Duration
	tokenLen      int
	revokeOnReuse bool
	now           func() time.Time
	log           *zap.Logger
}

// NewTokenService constructs a token service backed by the provided database and JWT service.
func NewTokenService(db *gorm.DB, jwtService *JWTService, cfg TokenConfig) (*TokenService, error) {
	if db == nil {
		return nil, errors.New("token service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("token service: jwt service is required")
	}
	if len(cfg.RefreshSecret) < MinSecretLength {
		return nil, fmt.Errorf("token service: refresh secret must be at least %d characters", MinSecretLength)
	}

	ttl := cfg.RefreshTokenTTL
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	length := cfg.RefreshLength
	if length <= 0 {
		length = DefaultRefreshTokenLength
	}
	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &TokenService{
		db:            db,
		jwt:           jwtService,
		refreshKey:    []byte(cfg.RefreshSecret),
		refreshTTL:    ttl,
		tokenLen:      length,
		revokeOnReuse: cfg.RevokeOnReuse,
		now:           clock,
		log:           logger.WithModule("tokens"),
	}, nil
}

// RefreshTTL returns the lifetime of issued refresh tokens.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Issue mints a credential pair and stores the refresh token, replacing any prior one.
func (s *TokenService) Issue(ctx context.Context, userID uint) (TokenPair, error) {
	return s.IssueTx(ctx, s.db, userID)
}

// IssueTx is Issue inside the caller's transaction.
func (s *TokenService) IssueTx(ctx context.Context, tx *gorm.DB, userID uint) (TokenPair, error) {
	if userID == 0 {
		return TokenPair{}, errors.New("token service: user id is required")
	}

	refresh, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return TokenPair{}, fmt.Errorf("token service: generate refresh token: %w", err)
	}

	now := s.now()
	record := models.RefreshToken{
		UserID:    userID,
		TokenHash: s.hash(refresh),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}

	err = tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"token_hash":          record.TokenHash,
			"previous_token_hash": "",
			"issued_at":           record.IssuedAt,
			"expires_at":          record.ExpiresAt,
			"rotated_at":          nil,
			"updated_at":          now,
		}),
	}).Create(&record).Error
	if err != nil {
		return TokenPair{}, fmt.Errorf("token service: store refresh token: %w", err)
	}

	return s.pair(userID, refresh, record.ExpiresAt)
}

// VerifyAccess checks an access token and returns its user and remaining lifetime.
func (s *TokenService) VerifyAccess(token string) (uint, time.Duration, error) {
	claims, err := s.jwt.ValidateAccessToken(token)
	if err != nil {
		return 0, 0, apperrors.ErrUnauthorized.WithInternal(err)
	}
	return claims.UserID, s.jwt.Remaining(claims), nil
}

// Rotate exchanges a current refresh token for a new pair. The swap is a
// conditional update on the presented hash, so among concurrent callers
// presenting the same value exactly one succeeds.
func (s *TokenService) Rotate(ctx context.Context, presented string) (TokenPair, uint, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		return TokenPair{}, 0, apperrors.ErrInvalidRefreshToken
	}

	hash := s.hash(presented)
	now := s.now()
	db := s.db.WithContext(ctx)

	var record models.RefreshToken
	err := db.Where("token_hash = ?", hash).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.handleReuse(ctx, hash, now); err != nil {
			return TokenPair{}, 0, err
		}
		return TokenPair{}, 0, apperrors.ErrInvalidRefreshToken
	}
	if err != nil {
		return TokenPair{}, 0, fmt.Errorf("token service: find refresh token: %w", err)
	}

	if !now.Before(record.ExpiresAt) {
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		return TokenPair{}, 0, apperrors.ErrInvalidRefreshToken
	}

	next, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return TokenPair{}, 0, fmt.Errorf("token service: generate refresh token: %w", err)
	}
	expiresAt := now.Add(s.refreshTTL)

	result := db.Model(&models.RefreshToken{}).
		Where("id = ? AND token_hash = ? AND expires_at > ?", record.ID, hash, now).
		Updates(map[string]interface{}{
			"token_hash":          s.hash(next),
			"previous_token_hash": hash,
			"expires_at":          expiresAt,
			"rotated_at":          now,
		})
	if result.Error != nil {
		return TokenPair{}, 0, fmt.Errorf("token service: rotate refresh token: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		// another caller rotated the same value first
		metrics.RefreshRotations.WithLabelValues("superseded").Inc()
		return TokenPair{}, 0, apperrors.ErrInvalidRefreshToken
	}

	pair, err := s.pair(record.UserID, next, expiresAt)
	if err != nil {
		return TokenPair{}, 0, err
	}
	metrics.RefreshRotations.WithLabelValues("success").Inc()
	return pair, record.UserID, nil
}

func (s *TokenService) handleReuse(ctx context.Context, hash string, now time.Time) error {
	var record models.RefreshToken
	err := s.db.WithContext(ctx).Where("previous_token_hash = ?", hash).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("token service: reuse lookup: %w", err)
	}

	// concurrent callers that lost the swap land here moments after the winner
	if record.RotatedAt != nil && now.Sub(*record.RotatedAt) < RefreshReuseGracePeriod {
		metrics.RefreshRotations.WithLabelValues("superseded").Inc()
		return nil
	}

	metrics.RefreshRotations.WithLabelValues("reuse").Inc()
	s.log.Warn("rotated refresh token presented again",
		zap.Uint("user_id", record.UserID),
		zap.Bool("revoked", s.revokeOnReuse),
	)
	if !s.revokeOnReuse {
		return nil
	}
	if err := s.db.WithContext(ctx).Delete(&models.RefreshToken{}, record.ID).Error; err != nil {
		return fmt.Errorf("token service: revoke after reuse: %w", err)
	}
	return nil
}

// Revoke deletes the stored refresh token. Unknown or empty values are not an error.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	err := s.db.WithContext(ctx).Where("token_hash = ?", s.hash(token)).Delete(&models.RefreshToken{}).Error
	if err != nil {
		return fmt.Errorf("token service: revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUser deletes any refresh token held by userID.
func (s *TokenService) RevokeUser(ctx context.Context, userID uint) error {
	return s.RevokeUserTx(ctx, s.db, userID)
}

// RevokeUserTx is RevokeUser inside the caller's transaction.
func (s *TokenService) RevokeUserTx(ctx context.Context, tx *gorm.DB, userID uint) error {
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		return fmt.Errorf("token service: revoke user tokens: %w", err)
	}
	return nil
}

// CleanupExpired removes refresh tokens past their expiry.
func (s *TokenService) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("token service: cleanup expired tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *TokenService) pair(userID uint, refresh string, refreshExpiresAt time.Time) (TokenPair, error) {
	access, accessExpiresAt, err := s.jwt.GenerateAccessToken(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("token service: generate access token: %w", err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        int(s.jwt.TTL().Seconds()),
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

func (s *TokenService) hash(token string) string {
	return crypto.HashToken(s.refreshKey, token)
}
