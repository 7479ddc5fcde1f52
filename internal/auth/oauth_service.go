package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prompthub/authcore/internal/auth/providers"
	"github.com/prompthub/authcore/internal/database"
	"github.com/prompthub/authcore/internal/models"
	"github.com/prompthub/authcore/pkg/crypto"
	apperrors "github.com/prompthub/authcore/pkg/errors"
	"github.com/prompthub/authcore/pkg/logger"
	"github.com/prompthub/authcore/pkg/metrics"
)

const (
	oauthStateKeyInfo = "oauth-state"
	oauthTokenKeyInfo = "oauth-provider-tokens"
	maxUserIDAttempts = 50
	minUserIDLength   = 3
	maxUserIDLength   = 30
)

// OAuthConfig describes tunable behaviour for the OAuthService.
type OAuthConfig struct {
	// Secret seeds the keys that seal state parameters and stored provider tokens.
	Secret   string
	StateTTL time.Duration
	Clock    func() time.Time
}

// CallbackResult is the outcome of a completed authorization round trip.
type CallbackResult struct {
	Mode     OAuthMode
	Provider string
	User     *models.User
	Tokens   TokenPair
}

// OAuthService links external provider identities to local users.
type OAuthService struct {
	db       *gorm.DB
	tokens   *TokenService
	registry *providers.Registry
	state    *StateCodec
	sealKey  []byte
	now      func() time.Time
	log      *zap.Logger
}

// NewOAuthService constructs an OAuthService over the configured provider registry.
func NewOAuthService(db *gorm.DB, tokens *TokenService, registry *providers.Registry, cfg OAuthConfig) (*OAuthService, error) {
	if db == nil {
		return nil, errors.New("oauth service: db is required")
	}
	if tokens == nil {
		return nil, errors.New("oauth service: token service is required")
	}
	if registry == nil {
		registry = providers.NewRegistry()
	}
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("oauth service: secret must be at least %d characters", MinSecretLength)
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	stateKey, err := crypto.DeriveKey([]byte(cfg.Secret), oauthStateKeyInfo, 32)
	if err != nil {
		return nil, fmt.Errorf("oauth service: derive state key: %w", err)
	}
	sealKey, err := crypto.DeriveKey([]byte(cfg.Secret), oauthTokenKeyInfo, 32)
	if err != nil {
		return nil, fmt.Errorf("oauth service: derive token key: %w", err)
	}
	codec, err := NewStateCodec(stateKey, cfg.StateTTL, clock)
	if err != nil {
		return nil, err
	}

	return &OAuthService{
		db:       db,
		tokens:   tokens,
		registry: registry,
		state:    codec,
		sealKey:  sealKey,
		now:      clock,
		log:      logger.WithModule("oauth"),
	}, nil
}

// Providers lists the configured provider names.
func (s *OAuthService) Providers() []string {
	return s.registry.Names()
}

func (s *OAuthService) provider(name string) (providers.Provider, error) {
	name = providers.Normalise(name)
	if !providers.Supported(name) {
		return nil, apperrors.ErrInvalidProvider
	}
	p, ok := s.registry.Get(name)
	if !ok {
		return nil, apperrors.ErrInvalidProvider.WithMessage("Provider is not configured")
	}
	return p, nil
}

// Authorization is a started round trip: the provider URL to send the
// browser to and the binding value that browser must present on callback.
type Authorization struct {
	URL     string
	Binding string
}

// StateTTL reports how long a started round trip may take.
func (s *OAuthService) StateTTL() time.Duration {
	return s.state.TTL()
}

// Begin starts an authorization round trip.
func (s *OAuthService) Begin(providerName string, mode OAuthMode, userID uint) (*Authorization, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	if mode == OAuthModeLink && userID == 0 {
		return nil, apperrors.ErrUnauthorized
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, err
	}
	nonce, err := crypto.GenerateToken(16)
	if err != nil {
		return nil, fmt.Errorf("oauth service: generate nonce: %w", err)
	}
	binding, err := crypto.GenerateToken(24)
	if err != nil {
		return nil, fmt.Errorf("oauth service: generate binding: %w", err)
	}

	state, err := s.state.Encode(StatePayload{
		Provider: p.Name(),
		Mode:     mode,
		UserID:   userID,
		Nonce:    nonce,
		PKCE:     pkce.Verifier,
		Binding:  binding,
	})
	if err != nil {
		return nil, err
	}

	redirectURL, err := p.AuthCodeURL(providers.AuthorizeRequest{
		State:         state,
		Nonce:         nonce,
		PKCEChallenge: pkce.Challenge,
	})
	if err != nil {
		return nil, err
	}
	return &Authorization{URL: redirectURL, Binding: binding}, nil
}

// Complete finishes a round trip started by Begin: it validates state and the
// browser binding, exchanges the code and then signs in or links according to
// the sealed mode.
func (s *OAuthService) Complete(ctx context.Context, providerName, state, code, binding string) (*CallbackResult, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	payload, err := s.state.Decode(state)
	if err != nil {
		return nil, apperrors.ErrInvalidToken.WithMessage("Authorization state is invalid or expired").WithInternal(err)
	}
	if payload.Provider != p.Name() {
		return nil, apperrors.ErrInvalidToken.WithMessage("Authorization state does not match provider")
	}
	if subtle.ConstantTimeCompare([]byte(payload.Binding), []byte(binding)) != 1 {
		return nil, apperrors.ErrInvalidToken.WithMessage("Authorization was started in a different browser")
	}
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.NewValidation("Authorization code is required")
	}

	identity, err := p.Exchange(ctx, providers.ExchangeRequest{
		Code:          code,
		PKCEVerifier:  payload.PKCE,
		ExpectedNonce: payload.Nonce,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(p.Name(), "failure").Inc()
		return nil, apperrors.ErrUnauthorized.WithMessage("Provider authorization failed").WithInternal(err)
	}
	identity.Provider = p.Name()

	result := &CallbackResult{Mode: payload.Mode, Provider: p.Name()}
	switch payload.Mode {
	case OAuthModeLink:
		if err := s.Link(ctx, payload.UserID, p.Name(), *identity); err != nil {
			return nil, err
		}
		var user models.User
		if err := s.db.WithContext(ctx).Take(&user, payload.UserID).Error; err != nil {
			return nil, fmt.Errorf("oauth service: reload user: %w", err)
		}
		result.User = &user
	default:
		user, pair, err := s.HandleCallback(ctx, p.Name(), *identity)
		if err != nil {
			return nil, err
		}
		result.User = user
		result.Tokens = pair
	}
	return result, nil
}

// HandleCallback resolves a provider identity to a local user and signs it in.
// An existing link wins; otherwise a verified email matches an existing
// account; otherwise a new oauth account is created.
func (s *OAuthService) HandleCallback(ctx context.Context, providerName string, identity providers.Identity) (*models.User, TokenPair, error) {
	provider := providers.Normalise(providerName)
	if !providers.Supported(provider) {
		return nil, TokenPair{}, apperrors.ErrInvalidProvider
	}
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		return nil, TokenPair{}, apperrors.NewValidation("Provider did not return an account id")
	}
	email := models.NormalizeEmail(identity.Email)

	var (
		user    models.User
		pair    TokenPair
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link models.OAuthAccount
		err := tx.Where("provider = ? AND provider_user_id = ?", provider, subject).Take(&link).Error
		switch {
		case err == nil:
			if err := tx.Take(&user, link.UserID).Error; err != nil {
				return err
			}
			if err := s.refreshLink(tx, &link, identity); err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if email == "" {
				return apperrors.NewValidation("Provider did not return an email address")
			}
			found, err := s.userByEmail(tx, email)
			if err != nil {
				return err
			}
			if found != nil {
				if !identity.EmailVerified {
					return apperrors.ErrEmailTaken
				}
				var count int64
				if err := tx.Model(&models.OAuthAccount{}).
					Where("user_id = ? AND provider = ?", found.ID, provider).
					Count(&count).Error; err != nil {
					return err
				}
				if count > 0 {
					return apperrors.ErrOAuthAccountLinked.WithMessage("A different account from this provider is already linked")
				}
				user = *found
			} else {
				if err := s.createOAuthUser(tx, &user, email, identity); err != nil {
					return err
				}
				created = true
			}
			if err := s.createLink(tx, user.ID, provider, identity); err != nil {
				return err
			}
		default:
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
		metrics.AuthAttempts.WithLabelValues(provider, "failure").Inc()
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, TokenPair{}, appErr
		}
		if database.IsUniqueViolation(err) {
			return nil, TokenPair{}, apperrors.ErrOAuthAccountLinked
		}
		return nil, TokenPair{}, fmt.Errorf("oauth service: resolve identity: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues(provider, "success").Inc()
	if created {
		metrics.Registrations.WithLabelValues(string(models.LoginTypeOAuth)).Inc()
		s.log.Info("user registered via provider", zap.String("provider", provider), zap.Uint("user_id", user.ID))
	}
	return &user, pair, nil
}

// Link attaches a provider identity to userID.
func (s *OAuthService) Link(ctx context.Context, userID uint, providerName string, identity providers.Identity) error {
	provider := providers.Normalise(providerName)
	if !providers.Supported(provider) {
		return apperrors.ErrInvalidProvider
	}
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		return apperrors.NewValidation("Provider did not return an account id")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Take(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("User not found")
			}
			return err
		}

		var existing models.OAuthAccount
		err := tx.Where("provider = ? AND provider_user_id = ?", provider, subject).Take(&existing).Error
		switch {
		case err == nil:
			if existing.UserID != userID {
				return apperrors.ErrOAuthAccountLinked
			}
			return s.refreshLink(tx, &existing, identity)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		var count int64
		if err := tx.Model(&models.OAuthAccount{}).Where("user_id = ? AND provider = ?", userID, provider).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperrors.ErrOAuthAccountLinked.WithMessage("A different account from this provider is already linked")
		}
		return s.createLink(tx, userID, provider, identity)
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		if database.IsUniqueViolation(err) {
			return apperrors.ErrOAuthAccountLinked
		}
		return fmt.Errorf("oauth service: link provider: %w", err)
	}

	s.log.Info("provider linked", zap.String("provider", provider), zap.Uint("user_id", userID))
	return nil
}

// Unlink removes the user's link to provider. An account without a password
// keeps at least one provider.
func (s *OAuthService) Unlink(ctx context.Context, userID uint, providerName string) error {
	provider := providers.Normalise(providerName)
	if !providers.Supported(provider) {
		return apperrors.ErrInvalidProvider
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Take(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("User not found")
			}
			return err
		}

		var link models.OAuthAccount
		if err := tx.Where("user_id = ? AND provider = ?", userID, provider).Take(&link).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("Provider is not linked")
			}
			return err
		}

		if !user.HasPassword() {
			var count int64
			if err := tx.Model(&models.OAuthAccount{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
				return err
			}
			if count <= 1 {
				return apperrors.ErrLastLoginMethod
			}
		}
		return tx.Delete(&link).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return fmt.Errorf("oauth service: unlink provider: %w", err)
	}

	s.log.Info("provider unlinked", zap.String("provider", provider), zap.Uint("user_id", userID))
	return nil
}

// Linked lists the provider links of userID ordered by provider name.
func (s *OAuthService) Linked(ctx context.Context, userID uint) ([]models.OAuthAccount, error) {
	var links []models.OAuthAccount
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("provider").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("oauth service: list links: %w", err)
	}
	return links, nil
}

// ProviderAccessToken returns the decrypted provider access token stored for a link.
func (s *OAuthService) ProviderAccessToken(link models.OAuthAccount) (string, error) {
	if link.AccessToken == "" {
		return "", nil
	}
	raw, err := crypto.Decrypt(link.AccessToken, s.sealKey)
	if err != nil {
		return "", fmt.Errorf("oauth service: open access token: %w", err)
	}
	return string(raw), nil
}

func (s *OAuthService) userByEmail(tx *gorm.DB, email string) (*models.User, error) {
	var user models.User
	err := tx.Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *OAuthService) createOAuthUser(tx *gorm.DB, user *models.User, email string, identity providers.Identity) error {
	userID, err := uniqueUserID(tx, deriveUserID(email, identity))
	if err != nil {
		return err
	}

	displayName := strings.TrimSpace(identity.DisplayName)
	if displayName == "" {
		displayName = strings.TrimSpace(identity.Login)
	}
	if displayName == "" {
		displayName = userID
	}
	if len([]rune(displayName)) > 100 {
		displayName = string([]rune(displayName)[:100])
	}

	*user = models.User{
		Email:           email,
		Handle:          userID,
		DisplayName:     displayName,
		LoginType:       models.LoginTypeOAuth,
		ProfileImageURL: strings.TrimSpace(identity.AvatarURL),
	}
	return tx.Create(user).Error
}

func (s *OAuthService) createLink(tx *gorm.DB, userID uint, provider string, identity providers.Identity) error {
	link := models.OAuthAccount{
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: strings.TrimSpace(identity.Subject),
	}
	if err := s.fillLink(&link, identity); err != nil {
		return err
	}
	return tx.Create(&link).Error
}

func (s *OAuthService) refreshLink(tx *gorm.DB, link *models.OAuthAccount, identity providers.Identity) error {
	if err := s.fillLink(link, identity); err != nil {
		return err
	}
	return tx.Model(link).Select("email", "access_token", "refresh_token", "profile").Updates(link).Error
}

func (s *OAuthService) fillLink(link *models.OAuthAccount, identity providers.Identity) error {
	link.Email = models.NormalizeEmail(identity.Email)

	access, err := s.seal(identity.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.seal(identity.RefreshToken)
	if err != nil {
		return err
	}
	link.AccessToken = access
	link.RefreshToken = refresh

	if len(identity.RawClaims) > 0 {
		raw, err := json.Marshal(identity.RawClaims)
		if err != nil {
			return fmt.Errorf("oauth service: marshal profile: %w", err)
		}
		link.Profile = datatypes.JSON(raw)
	}
	return nil
}

func (s *OAuthService) seal(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	sealed, err := crypto.Encrypt([]byte(value), s.sealKey)
	if err != nil {
		return "", fmt.Errorf("oauth service: seal provider token: %w", err)
	}
	return sealed, nil
}

// deriveUserID builds a handle candidate from the email local part, falling
// back to the provider login.
func deriveUserID(email string, identity providers.Identity) string {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}
	for _, candidate := range []string{local, identity.Login, "user"} {
		if handle := sanitiseUserID(candidate); len(handle) >= minUserIDLength {
			return handle
		}
	}
	return "user"
}

func sanitiseUserID(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	var b strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == '.' || r == '+' || r == ' ':
			b.WriteRune('_')
		}
	}
	result := strings.Trim(b.String(), "_-")
	if len(result) > maxUserIDLength {
		result = result[:maxUserIDLength]
	}
	return result
}

func uniqueUserID(tx *gorm.DB, base string) (string, error) {
	for attempt := 0; attempt < maxUserIDAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			suffix := strconv.Itoa(attempt + 1)
			trimmed := base
			if len(trimmed)+len(suffix) > maxUserIDLength {
				trimmed = trimmed[:maxUserIDLength-len(suffix)]
			}
			candidate = trimmed + suffix
		}

		var count int64
		if err := tx.Model(&models.User{}).Where("userid = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", errors.New("oauth service: unable to derive a unique userid")
}
