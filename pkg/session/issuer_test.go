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

package session

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newECDSAIssuer(t *testing.T) *Issuer {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	issuer, err := NewIssuer(&IssuerConfig{PrivateKey: key})
	require.NoError(t, err)
	return issuer
}

func testIdentity() passkey.VerifiedIdentity {
	return passkey.VerifiedIdentity{
		UserID:          []byte("user-handle-1"),
		CredentialID:    []byte{1, 2, 3, 4},
		AuthenticatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewIssuer(t *testing.T) {
	_, err := NewIssuer(nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewIssuer(&IssuerConfig{})
	assert.ErrorContains(t, err, "private key is required")

	_, err = NewIssuer(&IssuerConfig{PrivateKey: "not a key"})
	assert.ErrorContains(t, err, "unsupported private key type")

	issuer := newECDSAIssuer(t)
	assert.NotNil(t, issuer.PublicKey())
	assert.Equal(t, time.Hour, issuer.TTL())
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	issuer := newECDSAIssuer(t)

	identity := testIdentity()
	token, err := issuer.Issue(ctx, identity)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	verified, err := issuer.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, identity.UserID, verified.UserID)
	assert.Equal(t, identity.CredentialID, verified.CredentialID)
	assert.Equal(t, identity.AuthenticatedAt, verified.AuthenticatedAt)
}

func TestIssue_RequiresUserID(t *testing.T) {
	ctx := context.Background()
	issuer := newECDSAIssuer(t)

	_, err := issuer.Issue(ctx, passkey.VerifiedIdentity{})
	assert.ErrorContains(t, err, "no user ID")
}

func TestVerify_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	issuer := newECDSAIssuer(t)

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issued }

	token, err := issuer.Issue(ctx, testIdentity())
	require.NoError(t, err)

	issuer.now = func() time.Time { return issued.Add(2 * time.Hour) }

	_, err = issuer.Verify(token)
	assert.ErrorContains(t, err, "token verification failed")
}

func TestVerify_WrongIssuer(t *testing.T) {
	ctx := context.Background()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	signer, err := NewIssuer(&IssuerConfig{PrivateKey: key, Issuer: "service-a"})
	require.NoError(t, err)

	verifier, err := NewIssuer(&IssuerConfig{PrivateKey: key, Issuer: "service-b"})
	require.NoError(t, err)

	token, err := signer.Issue(ctx, testIdentity())
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.Error(t, err)
}

func TestVerify_WrongKey(t *testing.T) {
	ctx := context.Background()
	issuer := newECDSAIssuer(t)
	other := newECDSAIssuer(t)

	token, err := issuer.Issue(ctx, testIdentity())
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.Error(t, err)
}

func TestVerify_RejectsForeignSigningMethod(t *testing.T) {
	issuer := newECDSAIssuer(t)

	// A token signed with the wrong algorithm family must be rejected
	// even before signature validation.
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "go-passkey",
		"aud": "go-passkey",
		"sub": "dXNlcg",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := forged.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = issuer.Verify(tokenString)
	assert.ErrorContains(t, err, "token verification failed")
}

func TestSigningMethodSelection(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	ecKey384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name string
		key  any
		alg  string
	}{
		{"rsa", rsaKey, "RS256"},
		{"ed25519", edKey, "EdDSA"},
		{"ecdsa p384", ecKey384, "ES384"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, err := signingMethodFor(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.alg, method.Alg())

			issuer, err := NewIssuer(&IssuerConfig{PrivateKey: tt.key})
			require.NoError(t, err)

			token, err := issuer.Issue(context.Background(), testIdentity())
			require.NoError(t, err)

			_, err = issuer.Verify(token)
			assert.NoError(t, err)
		})
	}
}

func TestIssue_KeyIDHeader(t *testing.T) {
	ctx := context.Background()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	issuer, err := NewIssuer(&IssuerConfig{PrivateKey: key, KeyID: "key-2025-06"})
	require.NoError(t, err)

	token, err := issuer.Issue(ctx, testIdentity())
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, "key-2025-06", parsed.Header["kid"])
}
