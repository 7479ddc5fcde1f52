package app

import (
	"fmt"
	"strings"

	"github.com/prompthub/authcore/pkg/crypto"
)

const secretBytes = 48

// ApplyRuntimeDefaults fills missing signing secrets so a development server can
// start without a configuration file. Generated secrets do not survive a restart,
// so every issued credential is invalidated when the process exits. The returned
// map names the generated keys so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	for key, target := range map[string]*string{
		"auth.jwt.secret":     &cfg.Auth.JWT.Secret,
		"auth.refresh.secret": &cfg.Auth.Refresh.Secret,
	} {
		if strings.TrimSpace(*target) != "" {
			continue
		}
		secret, err := crypto.GenerateToken(secretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", key, err)
		}
		*target = secret
		generated[key] = true
	}

	return generated, nil
}
