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
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Config:     testConfig(),
		Repository: NewMemoryRepository(),
		Identities: NewMemoryIdentityProvider(),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return svc
}

func TestNewService(t *testing.T) {
	tests := []struct {
		name    string
		params  ServiceParams
		wantErr string
	}{
		{
			name: "valid params",
			params: ServiceParams{
				Config:     testConfig(),
				Repository: NewMemoryRepository(),
				Identities: NewMemoryIdentityProvider(),
			},
		},
		{
			name: "missing config",
			params: ServiceParams{
				Repository: NewMemoryRepository(),
				Identities: NewMemoryIdentityProvider(),
			},
			wantErr: "config is required",
		},
		{
			name: "missing repository",
			params: ServiceParams{
				Config:     testConfig(),
				Identities: NewMemoryIdentityProvider(),
			},
			wantErr: "credential repository is required",
		},
		{
			name: "missing identity provider",
			params: ServiceParams{
				Config:     testConfig(),
				Repository: NewMemoryRepository(),
			},
			wantErr: "identity provider is required",
		},
		{
			name: "invalid config",
			params: ServiceParams{
				Config:     &Config{RPID: "example.com"},
				Repository: NewMemoryRepository(),
				Identities: NewMemoryIdentityProvider(),
			},
			wantErr: "invalid config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.params)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer svc.Close()

			assert.NotNil(t, svc.Config())
			assert.NotNil(t, svc.Challenges())
		})
	}
}

func TestNewService_UsesProvidedChallengeStore(t *testing.T) {
	challenges := NewChallengeStore(0, 0)
	defer challenges.Close()

	svc, err := NewService(ServiceParams{
		Config:     testConfig(),
		Repository: NewMemoryRepository(),
		Identities: NewMemoryIdentityProvider(),
		Challenges: challenges,
	})
	require.NoError(t, err)
	defer svc.Close()

	assert.Same(t, challenges, svc.Challenges())
}

func TestService_CredentialManagement(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	repo := svc.repo.(*MemoryRepository)
	require.NoError(t, repo.Insert(ctx, &Credential{
		ID:           "rec-1",
		UserID:       []byte("user-1"),
		CredentialID: []byte{1, 2, 3},
	}))

	creds, err := svc.Credentials(ctx, []byte("user-1"))
	require.NoError(t, err)
	assert.Len(t, creds, 1)

	require.NoError(t, svc.DeleteCredential(ctx, []byte{1, 2, 3}))

	creds, err = svc.Credentials(ctx, []byte("user-1"))
	require.NoError(t, err)
	assert.Empty(t, creds)

	err = svc.DeleteCredential(ctx, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestFinishRegistration_UnknownChallenge(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	response := &protocol.ParsedCredentialCreationData{}
	response.Response.CollectedClientData.Challenge = "bmV2ZXItaXNzdWVk"

	_, err := svc.FinishRegistration(ctx, response, []byte("user-1"), "")
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestFinishRegistration_NilResponse(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.FinishRegistration(ctx, nil, []byte("user-1"), "")
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestFinishRegistration_SubjectMismatch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// Challenge issued for alice must not bind a credential to bob.
	session := webauthn.SessionData{
		Challenge: "YWxpY2UtY2hhbGxlbmdl",
		UserID:    []byte("alice"),
	}
	svc.Challenges().Issue(CeremonyRegistration, ExistingSubject([]byte("alice")), session)

	response := &protocol.ParsedCredentialCreationData{}
	response.Response.CollectedClientData.Challenge = session.Challenge

	_, err := svc.FinishRegistration(ctx, response, []byte("bob"), "")
	assert.ErrorIs(t, err, ErrSubjectMismatch)

	// The challenge was consumed by the failed attempt.
	_, err = svc.FinishRegistration(ctx, response, []byte("alice"), "")
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestFinishRegistration_ProvisionalSubjectMismatch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// Provisional challenges bind to the handle minted at begin time.
	session := webauthn.SessionData{
		Challenge: "cHJvdmlzaW9uYWw",
		UserID:    []byte("minted-handle"),
	}
	svc.Challenges().Issue(CeremonyRegistration, ProvisionalSubject(), session)

	response := &protocol.ParsedCredentialCreationData{}
	response.Response.CollectedClientData.Challenge = session.Challenge

	_, err := svc.FinishRegistration(ctx, response, []byte("some-other-id"), "")
	assert.ErrorIs(t, err, ErrSubjectMismatch)
}

func TestFinishAuthentication_UnknownChallenge(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	response := &protocol.ParsedCredentialAssertionData{}
	response.Response.CollectedClientData.Challenge = "bm8tc3VjaC1jaGFsbGVuZ2U"

	_, err := svc.FinishAuthentication(ctx, response)
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestFinishAuthentication_UnknownCredentialConsumesChallenge(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	session := webauthn.SessionData{Challenge: "YXV0aC1jaGFsbGVuZ2U"}
	svc.Challenges().Issue(CeremonyAuthentication, ProvisionalSubject(), session)

	response := &protocol.ParsedCredentialAssertionData{}
	response.RawID = []byte("unregistered-credential")
	response.Response.CollectedClientData.Challenge = session.Challenge

	_, err := svc.FinishAuthentication(ctx, response)
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	// The unknown-credential rejection consumed the challenge, so the
	// same response cannot be used to probe again.
	_, err = svc.FinishAuthentication(ctx, response)
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestFinishAuthentication_WrongCeremonyKind(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// A registration challenge cannot be redeemed for authentication.
	session := webauthn.SessionData{Challenge: "cmVnLWNoYWxsZW5nZQ"}
	svc.Challenges().Issue(CeremonyRegistration, ProvisionalSubject(), session)

	response := &protocol.ParsedCredentialAssertionData{}
	response.Response.CollectedClientData.Challenge = session.Challenge

	_, err := svc.FinishAuthentication(ctx, response)
	assert.ErrorIs(t, err, ErrChallengeInvalid)

	// The mismatched redemption did not consume the entry.
	assert.Equal(t, 1, svc.Challenges().Len())
}

func TestService_NotConfigured(t *testing.T) {
	ctx := context.Background()
	svc := &Service{}

	_, err := svc.BeginRegistration(ctx, "user@example.com", "User")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.FinishRegistration(ctx, &protocol.ParsedCredentialCreationData{}, []byte("u"), "")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.BeginAuthentication(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.FinishAuthentication(ctx, &protocol.ParsedCredentialAssertionData{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.Credentials(ctx, []byte("u"))
	assert.ErrorIs(t, err, ErrNotConfigured)

	err = svc.DeleteCredential(ctx, []byte{1})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCheckSignCount(t *testing.T) {
	tests := []struct {
		name     string
		stored   uint32
		reported uint32
		wantErr  bool
	}{
		{"both zero counter not implemented", 0, 0, false},
		{"first increment from zero", 0, 1, false},
		{"strictly increasing", 5, 6, false},
		{"large jump", 5, 1000, false},
		{"equal counters", 5, 5, true},
		{"regression", 5, 4, true},
		{"reported zero after use", 5, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSignCount(tt.stored, tt.reported)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrClonedAuthenticator)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
