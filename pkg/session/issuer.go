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

// Package session issues and verifies the JWT session tokens handed to
// clients after a successful authentication ceremony. The passkey core
// hands off a verified identity; everything from there on (token
// lifetime, claims, revocation) is session-layer policy.
package session

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// Claims carried by issued session tokens beyond the registered set.
const (
	// ClaimCredentialID names the credential that produced the assertion,
	// base64url-encoded.
	ClaimCredentialID = "cid"

	// ClaimAuthTime is the Unix timestamp of ceremony completion.
	ClaimAuthTime = "auth_time"
)

// Issuer signs JWT session tokens for authenticated users. It implements
// passkey.SessionIssuer.
type Issuer struct {
	privateKey crypto.PrivateKey
	publicKey  crypto.PublicKey
	method     jwt.SigningMethod
	issuer     string
	audience   []string
	ttl        time.Duration
	keyID      string

	// now is a test hook for claim timestamps.
	now func() time.Time
}

// IssuerConfig contains configuration for the session token issuer.
type IssuerConfig struct {
	// PrivateKey is the key used to sign tokens (required). The signing
	// algorithm follows the key type: RSA keys sign RS256, ECDSA P-256
	// keys sign ES256, Ed25519 keys sign EdDSA.
	PrivateKey crypto.PrivateKey

	// PublicKey is the key used to verify tokens (optional, derived from
	// PrivateKey if not set).
	PublicKey crypto.PublicKey

	// Issuer is the JWT issuer claim (default: "go-passkey").
	Issuer string

	// Audience is the JWT audience claim (default: ["go-passkey"]).
	Audience []string

	// TTL is how long tokens are valid (default: 1 hour).
	TTL time.Duration

	// KeyID is the key identifier for the kid header (optional).
	KeyID string
}

// NewIssuer creates a session token issuer with the given configuration.
func NewIssuer(config *IssuerConfig) (*Issuer, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	method, err := signingMethodFor(config.PrivateKey)
	if err != nil {
		return nil, err
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "go-passkey"
	}

	audience := config.Audience
	if len(audience) == 0 {
		audience = []string{"go-passkey"}
	}

	ttl := config.TTL
	if ttl == 0 {
		ttl = time.Hour
	}

	publicKey := config.PublicKey
	if publicKey == nil {
		type publicKeyGetter interface {
			Public() crypto.PublicKey
		}
		if pk, ok := config.PrivateKey.(publicKeyGetter); ok {
			publicKey = pk.Public()
		}
	}

	return &Issuer{
		privateKey: config.PrivateKey,
		publicKey:  publicKey,
		method:     method,
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
		keyID:      config.KeyID,
		now:        time.Now,
	}, nil
}

// Issue creates a signed session token for a verified identity.
func (i *Issuer) Issue(ctx context.Context, identity passkey.VerifiedIdentity) (string, error) {
	if len(identity.UserID) == 0 {
		return "", fmt.Errorf("verified identity has no user ID")
	}

	now := i.now()
	authTime := identity.AuthenticatedAt
	if authTime.IsZero() {
		authTime = now
	}

	claims := jwt.MapClaims{
		"iss":             i.issuer,
		"aud":             i.audience,
		"sub":             base64.RawURLEncoding.EncodeToString(identity.UserID),
		"iat":             now.Unix(),
		"nbf":             now.Unix(),
		"exp":             now.Add(i.ttl).Unix(),
		ClaimCredentialID: base64.RawURLEncoding.EncodeToString(identity.CredentialID),
		ClaimAuthTime:     authTime.Unix(),
	}

	token := jwt.NewWithClaims(i.method, claims)
	if i.keyID != "" {
		token.Header["kid"] = i.keyID
	}

	signed, err := token.SignedString(i.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify validates a session token's signature and registered claims and
// returns the identity it was issued for.
func (i *Issuer) Verify(tokenString string) (passkey.VerifiedIdentity, error) {
	if i.publicKey == nil {
		return passkey.VerifiedIdentity{}, fmt.Errorf("public key not available for verification")
	}

	token, err := jwt.Parse(tokenString,
		func(token *jwt.Token) (any, error) {
			if token.Method.Alg() != i.method.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
			}
			return i.publicKey, nil
		},
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience[0]),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	)
	if err != nil {
		return passkey.VerifiedIdentity{}, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return passkey.VerifiedIdentity{}, fmt.Errorf("invalid claims type")
	}

	identity := passkey.VerifiedIdentity{}

	sub, _ := claims["sub"].(string)
	if identity.UserID, err = base64.RawURLEncoding.DecodeString(sub); err != nil || len(identity.UserID) == 0 {
		return passkey.VerifiedIdentity{}, fmt.Errorf("invalid subject claim")
	}

	if cid, ok := claims[ClaimCredentialID].(string); ok {
		if identity.CredentialID, err = base64.RawURLEncoding.DecodeString(cid); err != nil {
			return passkey.VerifiedIdentity{}, fmt.Errorf("invalid credential claim")
		}
	}

	if authTime, ok := claims[ClaimAuthTime].(float64); ok {
		identity.AuthenticatedAt = time.Unix(int64(authTime), 0).UTC()
	}

	return identity, nil
}

// PublicKey returns the public key for token verification.
func (i *Issuer) PublicKey() crypto.PublicKey {
	return i.publicKey
}

// TTL returns the token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func signingMethodFor(key crypto.PrivateKey) (jwt.SigningMethod, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PrivateKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return jwt.SigningMethodES256, nil
		case 384:
			return jwt.SigningMethodES384, nil
		case 521:
			return jwt.SigningMethodES512, nil
		}
		return nil, fmt.Errorf("unsupported ECDSA curve: %s", k.Curve.Params().Name)
	case ed25519.PrivateKey:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("unsupported private key type: %T", key)
	}
}

var _ passkey.SessionIssuer = (*Issuer)(nil)
