package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/prompthub/authcore/internal/auth"
	"github.com/prompthub/authcore/pkg/logger"
)

const (
	defaultTokenSpec = "@hourly"

	// Timeout bounds a single manual cleanup pass run from the command line.
	Timeout = 2 * time.Minute
)

// Purger is implemented by counter stores that keep expired windows around.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Stats captures the number of records removed by one cleanup pass.
type Stats struct {
	RefreshTokens  int64
	PasswordResets int64
	CacheEntries   int64
}

// Cleaner periodically removes expired refresh tokens, spent reset tokens and
// closed rate-limit windows.
type Cleaner struct {
	tokens    *iauth.TokenService
	passwords *iauth.PasswordService
	counters  Purger
	cron      *cron.Cron
	log       *zap.Logger

	tokenSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithTokenSchedule overrides the cron specification for token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithCounterStore adds purging of expired rate-limit windows.
func WithCounterStore(p Purger) Option {
	return func(cleaner *Cleaner) {
		cleaner.counters = p
	}
}

// NewCleaner constructs a Cleaner. Any nil dependency results in the
// corresponding cleanup being skipped.
func NewCleaner(tokens *iauth.TokenService, passwords *iauth.PasswordService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		tokens:        tokens,
		passwords:     passwords,
		tokenSchedule: defaultTokenSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) enabled() bool {
	return c.tokens != nil || c.passwords != nil || c.counters != nil
}

// Start registers the cleanup job with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if !c.enabled() {
		return nil
	}

	if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
		stats, err := c.RunOnce(context.Background())
		if err != nil {
			c.log.Warn("token cleanup failed", zap.Error(err))
		}
		c.log.Debug("token cleanup finished",
			zap.Int64("refresh_tokens", stats.RefreshTokens),
			zap.Int64("password_resets", stats.PasswordResets),
			zap.Int64("cache_entries", stats.CacheEntries),
		)
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured cleanup sequentially. A failing step does
// not prevent the others from running; all failures are returned together.
func (c *Cleaner) RunOnce(ctx context.Context) (Stats, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		stats Stats
		errs  error
	)

	if c.tokens != nil {
		n, err := c.tokens.CleanupExpired(ctx)
		errs = multierr.Append(errs, err)
		stats.RefreshTokens = n
	}

	if c.passwords != nil {
		n, err := c.passwords.CleanupExpiredResets(ctx)
		errs = multierr.Append(errs, err)
		stats.PasswordResets = n
	}

	if c.counters != nil {
		n, err := c.counters.PurgeExpired(ctx)
		errs = multierr.Append(errs, err)
		stats.CacheEntries = n
	}

	return stats, errs
}
