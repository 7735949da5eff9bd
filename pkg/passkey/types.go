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
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Ceremony identifies which of the two WebAuthn ceremonies a pending
// challenge was issued for. Challenges issued for one ceremony cannot be
// redeemed by the other.
type Ceremony string

const (
	// CeremonyRegistration is the attestation (credential creation) ceremony.
	CeremonyRegistration Ceremony = "registration"

	// CeremonyAuthentication is the assertion (login) ceremony.
	CeremonyAuthentication Ceremony = "authentication"
)

// Credential is a WebAuthn credential stored by the Relying Party. It
// binds an authenticator's public key to the owning user.
type Credential struct {
	// ID is the server-assigned identifier for this record.
	ID string `json:"id"`

	// UserID is the WebAuthn user handle this credential belongs to.
	UserID []byte `json:"user_id"`

	// CredentialID is the identifier assigned by the authenticator.
	// Globally unique; the lookup key during authentication.
	CredentialID []byte `json:"credential_id"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the type of attestation used.
	AttestationType string `json:"attestation_type"`

	// Transports lists the transports reported by the authenticator.
	// Advisory only.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// Flags contains authenticator capability flags captured at registration.
	Flags CredentialFlags `json:"flags"`

	// AAGUID is the authenticator model's identifier.
	AAGUID []byte `json:"aaguid"`

	// SignCount is the signature counter for clone detection.
	SignCount uint32 `json:"sign_count"`

	// Label is a user-supplied name for the credential.
	Label string `json:"label,omitempty"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// CredentialFlags contains authenticator capability flags.
type CredentialFlags struct {
	// UserPresent indicates the user was present during the operation.
	UserPresent bool `json:"user_present"`

	// UserVerified indicates the user was verified (e.g., biometric, PIN).
	UserVerified bool `json:"user_verified"`

	// BackupEligible indicates the credential can be backed up.
	BackupEligible bool `json:"backup_eligible"`

	// BackupState indicates the credential is currently backed up.
	BackupState bool `json:"backup_state"`
}

// ToWebAuthn converts a Credential to the go-webauthn library's type.
func (c *Credential) ToWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    c.Flags.UserPresent,
			UserVerified:   c.Flags.UserVerified,
			BackupEligible: c.Flags.BackupEligible,
			BackupState:    c.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

// Descriptor returns the credential descriptor used in exclude lists.
func (c *Credential) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: c.CredentialID,
		Transport:    c.Transports,
	}
}

// Subject identifies who a registration challenge was issued for. A
// provisional subject marks a new-account flow where no durable identity
// exists yet; it is a distinct state, not a sentinel user ID, so it can
// never collide with a real identifier.
type Subject struct {
	userID      []byte
	provisional bool
}

// ProvisionalSubject returns a subject for a ceremony whose identity has
// not been durably established yet.
func ProvisionalSubject() Subject {
	return Subject{provisional: true}
}

// ExistingSubject returns a subject bound to an established user.
func ExistingSubject(userID []byte) Subject {
	return Subject{userID: userID}
}

// Provisional reports whether the subject is a new-account placeholder.
func (s Subject) Provisional() bool {
	return s.provisional
}

// UserID returns the subject's user handle. Nil for provisional subjects.
func (s Subject) UserID() []byte {
	return s.userID
}

// Identity is the result of resolving an identity hint: a stable
// WebAuthn user handle plus the names used in ceremony options.
type Identity struct {
	// ID is the stable WebAuthn user handle.
	ID []byte

	// Name is the account name shown by authenticator UIs (e.g. email).
	Name string

	// DisplayName is the human-friendly name shown by authenticator UIs.
	DisplayName string
}

// VerifiedIdentity is the outcome of a successful authentication
// ceremony, handed off to the session layer. It is not persisted here.
type VerifiedIdentity struct {
	// UserID is the user handle that owns the credential used.
	UserID []byte `json:"user_id"`

	// CredentialID is the credential that produced the assertion.
	CredentialID []byte `json:"credential_id"`

	// AuthenticatedAt is when verification completed.
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// ceremonyUser adapts ceremony state to the webauthn.User interface the
// library verifies against.
type ceremonyUser struct {
	id          []byte
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return u.id
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.name
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.displayName == "" {
		return u.name
	}
	return u.displayName
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}
