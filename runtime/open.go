package runtime

import (
	"errors"

	"github.com/chainq-dev/chainq/config"
	"github.com/chainq-dev/chainq/internal/debug"
	"github.com/chainq-dev/chainq/runtime/repo"
	"github.com/chainq-dev/chainq/schema"
)

// ErrNoDatabase is returned when no database URL is configured.
var ErrNoDatabase = errors.New("no database URL configured")

// OpenSession connects to the configured database and returns a session
// over it. A nil config falls back to the process-wide one.
func OpenSession(cfg *config.Config, registry *schema.Registry) (*Session, error) {
	if cfg == nil {
		cfg = config.Current()
	}
	if cfg == nil || cfg.DatabaseURL == "" {
		return nil, ErrNoDatabase
	}
	debug.Init(cfg.Debug)

	r, err := repo.Open(cfg.Provider, cfg.DatabaseURL, registry)
	if err != nil {
		return nil, err
	}
	r.SetNamespace(cfg.Namespace)
	s := NewSession(r, registry)
	s.Namespace = cfg.Namespace
	return s, nil
}
