package secrets

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Credential sources, in resolution order.
const (
	SourceConfig      = "config"
	SourceEnvironment = "environment"
	SourceManager     = "secret_manager"
)

// EnvVar is the environment variable consulted after explicit configuration.
const EnvVar = "GITHUB_TOKEN"

// Credential is a resolved token and where it came from.
type Credential struct {
	Token  string
	Source string
}

// Resolver picks the first non-empty token from: explicit configuration,
// the environment, the secret manager. Sources are never merged.
type Resolver struct {
	explicit string
	manager  *Manager
	log      zerolog.Logger
}

// NewResolver creates a resolver. manager may be nil.
func NewResolver(explicit string, manager *Manager, log zerolog.Logger) *Resolver {
	return &Resolver{
		explicit: strings.TrimSpace(explicit),
		manager:  manager,
		log:      log.With().Str("component", "credential_resolver").Logger(),
	}
}

// Resolve returns the credential to use, or ok=false when none is available.
func (r *Resolver) Resolve(ctx context.Context) (Credential, bool) {
	if r.explicit != "" {
		return Credential{Token: r.explicit, Source: SourceConfig}, true
	}
	if token := strings.TrimSpace(os.Getenv(EnvVar)); token != "" {
		return Credential{Token: token, Source: SourceEnvironment}, true
	}
	if r.manager != nil {
		token, err := r.manager.Load(ctx)
		if err == nil && token != "" {
			return Credential{Token: token, Source: SourceManager}, true
		}
		if err != nil {
			r.log.Debug().Err(err).Msg("No stored secret")
		}
	}
	return Credential{}, false
}
