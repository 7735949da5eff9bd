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

package http

import "time"

// HeaderUserID is the header carrying a base64url-encoded user handle.
const HeaderUserID = "X-User-Id"

// HeaderCredentialLabel is the header carrying an optional credential label.
const HeaderCredentialLabel = "X-Credential-Label"

// BeginRegistrationRequest is the request body for starting registration.
type BeginRegistrationRequest struct {
	// Username is the identity hint, e.g. an email address (required).
	Username string `json:"username"`

	// DisplayName is the user's display name (optional, defaults to username).
	DisplayName string `json:"display_name,omitempty"`
}

// RegistrationResponse is the response after a successful registration.
type RegistrationResponse struct {
	// UserID is the base64url-encoded user handle the credential is bound to.
	UserID string `json:"user_id"`

	// CredentialID is the base64url-encoded credential ID.
	CredentialID string `json:"credential_id"`

	// Label is the credential's label, if one was supplied.
	Label string `json:"label,omitempty"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`
}

// AuthResponse is the response after a successful authentication.
type AuthResponse struct {
	// Token is the session token, present when a session issuer is configured.
	Token string `json:"token,omitempty"`

	// UserID is the base64url-encoded user handle.
	UserID string `json:"user_id"`

	// CredentialID is the base64url-encoded credential that signed the assertion.
	CredentialID string `json:"credential_id"`

	// AuthenticatedAt is when verification completed.
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// CredentialSummary describes a stored credential in management responses.
type CredentialSummary struct {
	// ID is the server-assigned record identifier.
	ID string `json:"id"`

	// CredentialID is the base64url-encoded credential ID.
	CredentialID string `json:"credential_id"`

	// Label is the user-supplied credential label.
	Label string `json:"label,omitempty"`

	// BackedUp indicates the credential is currently backed up.
	BackedUp bool `json:"backed_up"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse. Every ceremony rejection maps
// to ErrorCodeAuthenticationFailed regardless of the internal reason, so
// responses cannot be used to probe which credentials or accounts exist.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeAuthenticationFailed = "authentication_failed"
	ErrorCodeNotFound             = "not_found"
	ErrorCodeInternalError        = "internal_error"
)
