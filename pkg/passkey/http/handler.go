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

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// Handler provides HTTP handlers for passkey ceremonies.
// These handlers can be mounted on any HTTP router.
type Handler struct {
	service  *passkey.Service
	sessions passkey.SessionIssuer
	logger   *slog.Logger
}

// NewHandler creates a new passkey HTTP handler.
func NewHandler(service *passkey.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// WithSessionIssuer sets the session issuer used to mint tokens after a
// successful authentication. Without one, authentication responses carry
// the verified identity but no token.
func (h *Handler) WithSessionIssuer(issuer passkey.SessionIssuer) *Handler {
	h.sessions = issuer
	return h
}

// BeginRegistration handles POST /registration/begin
//
// Request body:
//
//	{
//	    "username": "user@example.com",
//	    "display_name": "User Name" // optional
//	}
//
// Response: WebAuthn PublicKeyCredentialCreationOptions. The user handle
// to pass back in FinishRegistration is in publicKey.user.id.
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	if req.Username == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "username is required")
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	start := time.Now()
	options, err := h.service.BeginRegistration(r.Context(), req.Username, displayName)
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StepBegin,
		metrics.OutcomeFor(err), time.Since(start).Seconds())
	if err != nil {
		h.handleCeremonyError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, options)
}

// FinishRegistration handles POST /registration/finish
//
// Header: X-User-Id (the base64url user handle from BeginRegistration)
// Header: X-Credential-Label (optional)
// Request body: Attestation response from authenticator
// Response: RegistrationResponse
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	userIDStr := r.Header.Get(HeaderUserID)
	if userIDStr == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "user ID header is required")
		return
	}
	userID, err := base64.RawURLEncoding.DecodeString(userIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid user ID encoding")
		return
	}

	// Parse the credential creation response
	response, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid attestation response")
		return
	}

	start := time.Now()
	cred, err := h.service.FinishRegistration(r.Context(), response, userID, r.Header.Get(HeaderCredentialLabel))
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StepFinish,
		metrics.OutcomeFor(err), time.Since(start).Seconds())
	if err != nil {
		h.handleCeremonyError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RegistrationResponse{
		UserID:       base64.RawURLEncoding.EncodeToString(cred.UserID),
		CredentialID: base64.RawURLEncoding.EncodeToString(cred.CredentialID),
		Label:        cred.Label,
		CreatedAt:    cred.CreatedAt,
	})
}

// BeginAuthentication handles POST /authentication/begin
//
// The request carries no body: authentication is identity-discovering,
// so the options are issued with an empty allow-list and any registered
// passkey may answer.
//
// Response: WebAuthn PublicKeyCredentialRequestOptions
func (h *Handler) BeginAuthentication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	start := time.Now()
	options, err := h.service.BeginAuthentication(r.Context())
	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.StepBegin,
		metrics.OutcomeFor(err), time.Since(start).Seconds())
	if err != nil {
		h.handleCeremonyError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, options)
}

// FinishAuthentication handles POST /authentication/finish
//
// Request body: Assertion response from authenticator
// Response: AuthResponse with the verified identity and, when a session
// issuer is configured, a session token.
func (h *Handler) FinishAuthentication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	// Parse the assertion response
	response, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid assertion response")
		return
	}

	start := time.Now()
	identity, err := h.service.FinishAuthentication(r.Context(), response)
	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.StepFinish,
		metrics.OutcomeFor(err), time.Since(start).Seconds())
	if err != nil {
		h.handleCeremonyError(w, err)
		return
	}

	resp := AuthResponse{
		UserID:          base64.RawURLEncoding.EncodeToString(identity.UserID),
		CredentialID:    base64.RawURLEncoding.EncodeToString(identity.CredentialID),
		AuthenticatedAt: identity.AuthenticatedAt,
	}

	if h.sessions != nil {
		token, err := h.sessions.Issue(r.Context(), *identity)
		if err != nil {
			h.logger.Error("failed to issue session token", "error", err)
			h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
			return
		}
		resp.Token = token
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ListCredentials handles GET /credentials
//
// Header: X-User-Id (base64url user handle)
// Response: array of CredentialSummary
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	userIDStr := r.Header.Get(HeaderUserID)
	if userIDStr == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "user ID header is required")
		return
	}
	userID, err := base64.RawURLEncoding.DecodeString(userIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid user ID encoding")
		return
	}

	creds, err := h.service.Credentials(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
		return
	}

	summaries := make([]CredentialSummary, len(creds))
	for i, cred := range creds {
		summaries[i] = CredentialSummary{
			ID:           cred.ID,
			CredentialID: base64.RawURLEncoding.EncodeToString(cred.CredentialID),
			Label:        cred.Label,
			BackedUp:     cred.Flags.BackupState,
			CreatedAt:    cred.CreatedAt,
			LastUsedAt:   cred.LastUsedAt,
		}
	}

	h.writeJSON(w, http.StatusOK, summaries)
}

// DeleteCredential handles DELETE /credentials/{credentialID}
//
// The path parameter is the base64url-encoded credential ID.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	credentialIDStr := chi.URLParam(r, "credentialID")
	if credentialIDStr == "" {
		// Stdlib mounts populate Go 1.22 path values instead.
		credentialIDStr = r.PathValue("credentialID")
	}
	if credentialIDStr == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "credential ID is required")
		return
	}
	credentialID, err := base64.RawURLEncoding.DecodeString(credentialIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid credential ID encoding")
		return
	}

	if err := h.service.DeleteCredential(r.Context(), credentialID); err != nil {
		if passkey.IsCredentialNotFound(err) {
			h.writeError(w, http.StatusNotFound, ErrorCodeNotFound, "credential not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleCeremonyError maps service errors to HTTP responses. Every
// ceremony rejection collapses to the same opaque 401 so the response
// does not reveal whether the challenge, the credential, or the
// signature was at fault; infrastructure failures surface as 500.
func (h *Handler) handleCeremonyError(w http.ResponseWriter, err error) {
	if passkey.IsCeremonyFailure(err) {
		h.writeError(w, http.StatusUnauthorized, ErrorCodeAuthenticationFailed, "authentication failed")
		return
	}
	h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
