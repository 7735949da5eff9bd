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
	"encoding/json"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRelyingParty returns the virtual authenticator's view of the
// relying party configured by testConfig.
func testRelyingParty(cfg *Config) virtualwebauthn.RelyingParty {
	return virtualwebauthn.RelyingParty{
		Name:   cfg.RPDisplayName,
		ID:     cfg.RPID,
		Origin: cfg.RPOrigins[0],
	}
}

// registeredUserID extracts the user handle carried in registration options.
func registeredUserID(t *testing.T, creation *protocol.CredentialCreation) []byte {
	t.Helper()

	id, ok := creation.Response.User.ID.(protocol.URLEncodedBase64)
	require.True(t, ok, "registration options must carry a URL-encoded user handle")
	return []byte(id)
}

// attest drives the virtual authenticator through the attestation step
// and parses its response the way a browser submission would arrive.
func attest(t *testing.T, rp virtualwebauthn.RelyingParty, auth virtualwebauthn.Authenticator, cred virtualwebauthn.Credential, creation *protocol.CredentialCreation) *protocol.ParsedCredentialCreationData {
	t.Helper()

	optionsJSON, err := json.Marshal(creation.Response)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(rp, auth, cred, *parsedOptions)

	var ccr protocol.CredentialCreationResponse
	require.NoError(t, json.Unmarshal([]byte(attestation), &ccr))

	parsed, err := ccr.Parse()
	require.NoError(t, err)
	return parsed
}

// assertAgainst drives the virtual authenticator through the assertion
// step and parses its response.
func assertAgainst(t *testing.T, rp virtualwebauthn.RelyingParty, auth virtualwebauthn.Authenticator, cred virtualwebauthn.Credential, assertion *protocol.CredentialAssertion) *protocol.ParsedCredentialAssertionData {
	t.Helper()

	optionsJSON, err := json.Marshal(assertion.Response)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	response := virtualwebauthn.CreateAssertionResponse(rp, auth, cred, *parsedOptions)

	var car protocol.CredentialAssertionResponse
	require.NoError(t, json.Unmarshal([]byte(response), &car))

	parsed, err := car.Parse()
	require.NoError(t, err)
	return parsed
}

// registerPasskey walks a fresh credential through the full new-account
// registration ceremony and returns the stored credential plus a
// discoverable authenticator holding it.
func registerPasskey(t *testing.T, svc *Service, hint string) (*Credential, virtualwebauthn.Authenticator, virtualwebauthn.Credential) {
	t.Helper()
	ctx := context.Background()

	rp := testRelyingParty(svc.Config())
	vcred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	creation, err := svc.BeginRegistration(ctx, hint, "")
	require.NoError(t, err)

	userID := registeredUserID(t, creation)

	auth := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: userID,
	})

	response := attest(t, rp, auth, vcred, creation)

	stored, err := svc.FinishRegistration(ctx, response, userID, "test passkey")
	require.NoError(t, err)

	auth.AddCredential(vcred)
	return stored, auth, vcred
}

func TestIntegration_RegisterNewAccount(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	cfg := svc.Config()

	creation, err := svc.BeginRegistration(ctx, "newuser@example.com", "New User")
	require.NoError(t, err)
	require.NotNil(t, creation)

	assert.Equal(t, cfg.RPID, creation.Response.RelyingParty.ID)
	assert.Equal(t, cfg.RPDisplayName, creation.Response.RelyingParty.Name)
	assert.Equal(t, "newuser@example.com", creation.Response.User.Name)
	assert.Equal(t, "New User", creation.Response.User.DisplayName)
	assert.NotEmpty(t, creation.Response.Challenge)

	// No identity exists for the hint, so the exclude list is empty and
	// the user handle is freshly minted.
	assert.Empty(t, creation.Response.CredentialExcludeList)
	userID := registeredUserID(t, creation)
	assert.NotEmpty(t, userID)

	rp := testRelyingParty(cfg)
	auth := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{UserHandle: userID})
	vcred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	response := attest(t, rp, auth, vcred, creation)

	stored, err := svc.FinishRegistration(ctx, response, userID, "laptop")
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, userID, stored.UserID)
	assert.NotEmpty(t, stored.CredentialID)
	assert.NotEmpty(t, stored.PublicKey)
	assert.Equal(t, uint32(0), stored.SignCount)
	assert.Equal(t, "laptop", stored.Label)
	assert.False(t, stored.CreatedAt.IsZero())

	creds, err := svc.Credentials(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, creds, 1)
}

func TestIntegration_RegisterExistingUserExcludesCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// First passkey registers a brand-new account; adopt its handle as
	// the durable identity.
	stored, _, _ := registerPasskey(t, svc, "alice@example.com")

	identities := svc.identities.(*MemoryIdentityProvider)
	identities.Put("alice@example.com", Identity{
		ID:          stored.UserID,
		Name:        "alice@example.com",
		DisplayName: "Alice",
	})

	// A second registration for the same hint now resolves the identity
	// and excludes the already-bound credential.
	creation, err := svc.BeginRegistration(ctx, "alice@example.com", "")
	require.NoError(t, err)

	assert.Equal(t, stored.UserID, registeredUserID(t, creation))
	require.Len(t, creation.Response.CredentialExcludeList, 1)
	assert.Equal(t, protocol.URLEncodedBase64(stored.CredentialID), creation.Response.CredentialExcludeList[0].CredentialID)

	// Completing it with a second authenticator leaves the user with
	// two credentials.
	rp := testRelyingParty(svc.Config())
	auth2 := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{UserHandle: stored.UserID})
	vcred2 := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	response := attest(t, rp, auth2, vcred2, creation)

	second, err := svc.FinishRegistration(ctx, response, stored.UserID, "backup key")
	require.NoError(t, err)
	assert.NotEqual(t, stored.CredentialID, second.CredentialID)

	creds, err := svc.Credentials(ctx, stored.UserID)
	require.NoError(t, err)
	assert.Len(t, creds, 2)
}

func TestIntegration_RegistrationChallengeSingleUse(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	rp := testRelyingParty(svc.Config())
	vcred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	creation, err := svc.BeginRegistration(ctx, "replay@example.com", "")
	require.NoError(t, err)
	userID := registeredUserID(t, creation)

	auth := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{UserHandle: userID})
	response := attest(t, rp, auth, vcred, creation)

	_, err = svc.FinishRegistration(ctx, response, userID, "")
	require.NoError(t, err)

	// Replaying the same response finds no pending challenge.
	_, err = svc.FinishRegistration(ctx, response, userID, "")
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestIntegration_FullAuthenticationFlow(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	stored, auth, vcred := registerPasskey(t, svc, "login@example.com")
	rp := testRelyingParty(svc.Config())

	assertion, err := svc.BeginAuthentication(ctx)
	require.NoError(t, err)
	require.NotNil(t, assertion)

	// Identity-discovering authentication sends no allow-list.
	assert.Empty(t, assertion.Response.AllowedCredentials)
	assert.NotEmpty(t, assertion.Response.Challenge)

	vcred.Counter = 1
	response := assertAgainst(t, rp, auth, vcred, assertion)

	verified, err := svc.FinishAuthentication(ctx, response)
	require.NoError(t, err)
	require.NotNil(t, verified)

	assert.Equal(t, stored.UserID, verified.UserID)
	assert.Equal(t, stored.CredentialID, verified.CredentialID)
	assert.False(t, verified.AuthenticatedAt.IsZero())

	// The stored counter and last-used timestamp were committed.
	after, err := svc.repo.FindByCredentialID(ctx, stored.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), after.SignCount)
	assert.Equal(t, verified.AuthenticatedAt, after.LastUsedAt)

	// A second login with an increased counter succeeds.
	assertion, err = svc.BeginAuthentication(ctx)
	require.NoError(t, err)

	vcred.Counter = 2
	response = assertAgainst(t, rp, auth, vcred, assertion)

	_, err = svc.FinishAuthentication(ctx, response)
	require.NoError(t, err)
}

func TestIntegration_CloneDetection(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	stored, auth, vcred := registerPasskey(t, svc, "cloned@example.com")
	rp := testRelyingParty(svc.Config())

	// Establish a non-zero stored counter.
	assertion, err := svc.BeginAuthentication(ctx)
	require.NoError(t, err)
	vcred.Counter = 5
	response := assertAgainst(t, rp, auth, vcred, assertion)
	_, err = svc.FinishAuthentication(ctx, response)
	require.NoError(t, err)

	// A cloned authenticator replays the same counter value.
	assertion, err = svc.BeginAuthentication(ctx)
	require.NoError(t, err)
	vcred.Counter = 5
	response = assertAgainst(t, rp, auth, vcred, assertion)

	_, err = svc.FinishAuthentication(ctx, response)
	assert.ErrorIs(t, err, ErrClonedAuthenticator)

	// The stored counter is left untouched so the legitimate
	// authenticator's next assertion still exceeds it.
	after, err := svc.repo.FindByCredentialID(ctx, stored.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), after.SignCount)

	// The real authenticator, whose counter kept advancing, still
	// authenticates.
	assertion, err = svc.BeginAuthentication(ctx)
	require.NoError(t, err)
	vcred.Counter = 6
	response = assertAgainst(t, rp, auth, vcred, assertion)

	_, err = svc.FinishAuthentication(ctx, response)
	assert.NoError(t, err)
}

func TestIntegration_ZeroCounterAuthenticator(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, auth, vcred := registerPasskey(t, svc, "nocounter@example.com")
	rp := testRelyingParty(svc.Config())

	// Authenticators that never implement counters report zero forever;
	// repeated zero/zero logins are accepted.
	for i := 0; i < 2; i++ {
		assertion, err := svc.BeginAuthentication(ctx)
		require.NoError(t, err)

		vcred.Counter = 0
		response := assertAgainst(t, rp, auth, vcred, assertion)

		_, err = svc.FinishAuthentication(ctx, response)
		require.NoError(t, err)
	}
}

func TestIntegration_AuthenticationChallengeSingleUse(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, auth, vcred := registerPasskey(t, svc, "once@example.com")
	rp := testRelyingParty(svc.Config())

	assertion, err := svc.BeginAuthentication(ctx)
	require.NoError(t, err)

	vcred.Counter = 1
	response := assertAgainst(t, rp, auth, vcred, assertion)

	_, err = svc.FinishAuthentication(ctx, response)
	require.NoError(t, err)

	_, err = svc.FinishAuthentication(ctx, response)
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestIntegration_AssertionFromUnknownAuthenticator(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// Register one passkey, then answer the challenge with a different,
	// never-registered credential.
	registerPasskey(t, svc, "victim@example.com")
	rp := testRelyingParty(svc.Config())

	rogue := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte("rogue-handle"),
	})
	rogueCred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	rogue.AddCredential(rogueCred)

	assertion, err := svc.BeginAuthentication(ctx)
	require.NoError(t, err)

	response := assertAgainst(t, rp, rogue, rogueCred, assertion)

	_, err = svc.FinishAuthentication(ctx, response)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}
