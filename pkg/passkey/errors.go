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
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations.
var (
	// ErrChallengeInvalid is returned when a challenge is missing, expired,
	// already redeemed, or was issued for a different ceremony kind.
	ErrChallengeInvalid = errors.New("challenge invalid or expired")

	// ErrSubjectMismatch is returned when a registration response is
	// submitted for a different user than the one the challenge was
	// issued for.
	ErrSubjectMismatch = errors.New("challenge subject mismatch")

	// ErrVerificationFailed is returned when cryptographic verification of
	// an attestation or assertion fails, including origin, RP ID, and
	// challenge mismatches.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrDuplicateCredential is returned when attempting to register a
	// credential ID that already exists.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrClonedAuthenticator is returned when the signature counter
	// reported by an authenticator is not strictly greater than the
	// stored counter, indicating a possible cloned authenticator.
	ErrClonedAuthenticator = errors.New("cloned authenticator detected")

	// ErrIdentityNotFound is returned by an IdentityProvider when no
	// durable identity exists for a hint. The registration ceremony
	// treats this as a new-account flow, not a failure.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrNotConfigured is returned when the service is not properly configured.
	ErrNotConfigured = errors.New("passkey service not configured")
)

// CeremonyError wraps a ceremony failure with the operation that failed
// and, for verification failures, the specific internal reason. The
// reason is for logging and telemetry only; request boundaries must
// surface ceremony failures as an opaque authentication failure.
type CeremonyError struct {
	Op     string // Operation that failed
	Reason string // Internal detail, never exposed to clients
	Err    error  // Sentinel the failure maps to
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Reason)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying sentinel.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// ceremonyErr wraps a sentinel with an operation name.
func ceremonyErr(op string, err error) error {
	return &CeremonyError{Op: op, Err: err}
}

// verificationErr maps a library verification failure to
// ErrVerificationFailed, retaining the cause for internal logging.
func verificationErr(op string, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return &CeremonyError{Op: op, Reason: reason, Err: ErrVerificationFailed}
}

// RepositoryError wraps a persistence-layer failure. It is an
// infrastructure error, not a security decision, and is propagated
// rather than masked as a ceremony failure.
type RepositoryError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *RepositoryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("repository: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// WrapRepositoryError wraps an error as a RepositoryError if it's not nil.
func WrapRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{Op: op, Err: err}
}

// IsRepositoryError returns true if the error is an infrastructure
// failure from the credential repository.
func IsRepositoryError(err error) bool {
	var re *RepositoryError
	return errors.As(err, &re)
}

// IsCeremonyFailure returns true if the error belongs to the ceremony
// failure taxonomy. Request boundaries collapse all of these into a
// single opaque authentication failure so callers cannot probe which
// step rejected them.
func IsCeremonyFailure(err error) bool {
	for _, sentinel := range []error{
		ErrChallengeInvalid,
		ErrSubjectMismatch,
		ErrVerificationFailed,
		ErrCredentialNotFound,
		ErrDuplicateCredential,
		ErrClonedAuthenticator,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// IsChallengeInvalid returns true if the error indicates a missing,
// expired, or already-redeemed challenge.
func IsChallengeInvalid(err error) bool {
	return errors.Is(err, ErrChallengeInvalid)
}

// IsSubjectMismatch returns true if the error indicates a response was
// submitted for a different user than the challenge was issued for.
func IsSubjectMismatch(err error) bool {
	return errors.Is(err, ErrSubjectMismatch)
}

// IsDuplicateCredential returns true if the error indicates a credential
// ID that is already registered.
func IsDuplicateCredential(err error) bool {
	return errors.Is(err, ErrDuplicateCredential)
}

// IsCredentialNotFound returns true if the error indicates a credential was not found.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsVerificationFailed returns true if the error indicates verification failed.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// IsClonedAuthenticator returns true if the error indicates a possible
// cloned authenticator.
func IsClonedAuthenticator(err error) bool {
	return errors.Is(err, ErrClonedAuthenticator)
}
