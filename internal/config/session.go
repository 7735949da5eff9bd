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

package config

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/jeremyhahn/go-passkey/pkg/session"
)

// CreateIssuer creates a session token issuer from the configuration.
// Returns nil without error when sessions are disabled.
func (cfg *SessionConfig) CreateIssuer() (*session.Issuer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	key, err := loadSigningKey(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load session signing key: %w", err)
	}

	return session.NewIssuer(&session.IssuerConfig{
		PrivateKey: key,
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		TTL:        cfg.TTL,
		KeyID:      cfg.KeyID,
	})
}

// loadSigningKey reads a PEM-encoded private key. RSA, ECDSA and
// Ed25519 keys are supported; the issuer picks the signing algorithm
// from the key type.
func loadSigningKey(path string) (crypto.Signer, error) {
	// #nosec G304 - Key file path from trusted config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 key: %w", err)
		}
		switch k := key.(type) {
		case *rsa.PrivateKey:
			return k, nil
		case *ecdsa.PrivateKey:
			return k, nil
		case ed25519.PrivateKey:
			return k, nil
		default:
			return nil, fmt.Errorf("unsupported key type %T in %s", key, path)
		}
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q in %s", block.Type, path)
	}
}
