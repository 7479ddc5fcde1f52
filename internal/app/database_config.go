package app

import (
	"strings"

	"github.com/prompthub/authcore/internal/database"
)

// Connection converts DatabaseConfig into the database package representation,
// picking the host credentials that match the selected driver.
func (c DatabaseConfig) Connection() database.Config {
	cfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   c.Path,
		DSN:    strings.TrimSpace(c.DSN),
	}

	var hostAuth DBAuthConfig
	switch cfg.Driver {
	case "postgres", "postgresql":
		hostAuth = c.Postgres
	case "mysql", "mariadb":
		hostAuth = c.MySQL
	default:
		return cfg
	}

	cfg.Host = hostAuth.Host
	cfg.Port = hostAuth.Port
	cfg.Name = hostAuth.Database
	cfg.User = hostAuth.Username
	cfg.Password = hostAuth.Password
	return cfg
}
