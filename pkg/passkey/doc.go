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

// Package passkey implements the server side of the WebAuthn (FIDO2)
// registration and authentication ceremonies.
//
// The package wraps the go-webauthn/webauthn library with the protocol
// state machine a relying party needs around it:
//   - A single-use, time-bounded challenge store with atomic redemption
//   - Registration: option building with exclude lists, attestation
//     verification, credential persistence
//   - Authentication: discoverable (passkey) login, assertion
//     verification, signature-counter clone detection
//   - Pluggable credential persistence and identity resolution
//
// # Architecture
//
// The package is designed with a layered architecture:
//
//  1. Service layer (Service) - the two ceremonies
//  2. Challenge layer (ChallengeStore) - pending ceremony state
//  3. Storage layer (CredentialRepository) - pluggable persistence
//  4. HTTP layer (pkg/passkey/http) - composable HTTP handlers
//
// # Usage
//
// Basic usage with in-memory storage (for development):
//
//	svc, err := passkey.NewService(passkey.ServiceParams{
//	    Config: &passkey.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "My App",
//	        RPOrigins:     []string{"https://localhost:3000"},
//	    },
//	    Repository: passkey.NewMemoryRepository(),
//	    Identities: identityProvider,
//	})
//
// For production, implement CredentialRepository with your database, or
// use the SQLite implementation in pkg/passkey/sqlite.
//
// # Challenge lifecycle
//
// Every ceremony is anchored on a single-use challenge. The challenge is
// issued when options are built, redeemed exactly once when the client
// response is verified, and expired by a background sweep otherwise. A
// second verification attempt against the same challenge fails as if the
// challenge never existed.
//
// # WebAuthn Specification Compliance
//
// This implementation follows the W3C Web Authentication specification:
//   - https://www.w3.org/TR/webauthn-2/
//   - https://www.w3.org/TR/webauthn-3/
//
// Note: WebAuthn requires HTTPS for all operations. Browsers will only
// expose the WebAuthn API in secure contexts.
package passkey
