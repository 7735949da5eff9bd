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
	"time"
)

// CredentialRepository is the durable credential store the ceremonies
// read and write through. It is the single source of truth: every read
// must reflect the latest committed counter for clone detection to hold.
//
// Implementations return the package sentinels (ErrCredentialNotFound,
// ErrDuplicateCredential) for domain conditions and wrap infrastructure
// failures with WrapRepositoryError.
type CredentialRepository interface {
	// Insert stores a new credential.
	// Returns ErrDuplicateCredential if the credential ID already exists.
	Insert(ctx context.Context, cred *Credential) error

	// FindByCredentialID retrieves a credential by its authenticator-assigned ID.
	// Returns ErrCredentialNotFound if the credential does not exist.
	FindByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error)

	// ListByUser retrieves all credentials bound to a user.
	// Returns an empty slice if the user has none.
	ListByUser(ctx context.Context, userID []byte) ([]*Credential, error)

	// UpdateCounterAndLastUsed commits a new signature counter and usage
	// timestamp after a successful authentication.
	// Returns ErrCredentialNotFound if the credential does not exist.
	UpdateCounterAndLastUsed(ctx context.Context, credentialID []byte, signCount uint32, lastUsedAt time.Time) error

	// Delete removes a credential by its authenticator-assigned ID.
	// Returns ErrCredentialNotFound if the credential does not exist.
	Delete(ctx context.Context, credentialID []byte) error
}

// IdentityProvider resolves an identity hint (typically a username or
// email) to a stable user handle and display names for ceremony options.
// Returning ErrIdentityNotFound marks the hint as a new-account flow; the
// registration ceremony then issues a provisional handle instead of
// failing.
type IdentityProvider interface {
	Resolve(ctx context.Context, hint string) (Identity, error)
}

// SessionIssuer turns a verified ceremony outcome into an opaque session
// token. Token format and transport are outside this package's concern.
type SessionIssuer interface {
	Issue(ctx context.Context, identity VerifiedIdentity) (string, error)
}
