// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Service runs the WebAuthn registration and authentication ceremonies.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	challenges *ChallengeStore
	repo       CredentialRepository
	identities IdentityProvider
	logger     *slog.Logger
	configured bool

	// now is a test hook for timestamps on persisted state.
	now func() time.Time
}

// ServiceParams contains dependencies for creating a passkey service.
type ServiceParams struct {
	// Config is the relying-party configuration (required).
	Config *Config

	// Repository is the durable credential store (required).
	Repository CredentialRepository

	// Identities resolves identity hints for registration options (required).
	Identities IdentityProvider

	// Challenges is the pending-challenge store. If nil, one is created
	// from the config's TTL and sweep interval and owned by the service.
	Challenges *ChallengeStore

	// Logger receives internal ceremony failure detail. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// NewService creates a new passkey service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("credential repository is required")
	}
	if params.Identities == nil {
		return nil, fmt.Errorf("identity provider is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	challenges := params.Challenges
	if challenges == nil {
		challenges = NewChallengeStore(params.Config.ChallengeTTL, params.Config.SweepInterval)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		challenges: challenges,
		repo:       params.Repository,
		identities: params.Identities,
		logger:     logger,
		configured: true,
		now:        time.Now,
	}, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// Challenges returns the pending-challenge store, for health checks and
// operational introspection.
func (s *Service) Challenges() *ChallengeStore {
	return s.challenges
}

// Credentials retrieves all credentials registered for a user.
func (s *Service) Credentials(ctx context.Context, userID []byte) ([]*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	return s.repo.ListByUser(ctx, userID)
}

// DeleteCredential removes a credential by its authenticator-assigned ID.
func (s *Service) DeleteCredential(ctx context.Context, credentialID []byte) error {
	if !s.configured {
		return ErrNotConfigured
	}
	return s.repo.Delete(ctx, credentialID)
}

// Close releases the service's background resources.
func (s *Service) Close() {
	if s.challenges != nil {
		s.challenges.Close()
	}
}

// logFailure records the internal reason a ceremony step rejected a
// request. The detail stays server-side; callers surface only an opaque
// failure.
func (s *Service) logFailure(ceremony Ceremony, err error) {
	s.logger.Warn("ceremony failed",
		"ceremony", string(ceremony),
		"error", err)
}
