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
	"encoding/hex"
	"sync"
	"time"
)

// MemoryRepository is an in-memory implementation of CredentialRepository.
// This is intended for development and testing only.
type MemoryRepository struct {
	mu       sync.RWMutex
	byCredID map[string]*Credential
	byUserID map[string][]*Credential
}

// NewMemoryRepository creates a new in-memory credential repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byCredID: make(map[string]*Credential),
		byUserID: make(map[string][]*Credential),
	}
}

// Insert stores a new credential.
func (r *MemoryRepository) Insert(ctx context.Context, cred *Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	credKey := hex.EncodeToString(cred.CredentialID)
	if _, ok := r.byCredID[credKey]; ok {
		return ErrDuplicateCredential
	}

	stored := *cred
	userKey := hex.EncodeToString(cred.UserID)
	r.byCredID[credKey] = &stored
	r.byUserID[userKey] = append(r.byUserID[userKey], &stored)

	return nil
}

// FindByCredentialID retrieves a credential by its authenticator-assigned ID.
func (r *MemoryRepository) FindByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.byCredID[hex.EncodeToString(credentialID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}

	// Return a copy so callers cannot mutate stored state.
	result := *cred
	return &result, nil
}

// ListByUser retrieves all credentials bound to a user.
func (r *MemoryRepository) ListByUser(ctx context.Context, userID []byte) ([]*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	creds := r.byUserID[hex.EncodeToString(userID)]
	result := make([]*Credential, len(creds))
	for i, cred := range creds {
		copied := *cred
		result[i] = &copied
	}
	return result, nil
}

// UpdateCounterAndLastUsed commits a new signature counter and usage timestamp.
func (r *MemoryRepository) UpdateCounterAndLastUsed(ctx context.Context, credentialID []byte, signCount uint32, lastUsedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.byCredID[hex.EncodeToString(credentialID)]
	if !ok {
		return ErrCredentialNotFound
	}

	cred.SignCount = signCount
	cred.LastUsedAt = lastUsedAt
	return nil
}

// Delete removes a credential by its authenticator-assigned ID.
func (r *MemoryRepository) Delete(ctx context.Context, credentialID []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	credKey := hex.EncodeToString(credentialID)
	cred, ok := r.byCredID[credKey]
	if !ok {
		return ErrCredentialNotFound
	}

	delete(r.byCredID, credKey)

	userKey := hex.EncodeToString(cred.UserID)
	creds := r.byUserID[userKey]
	for i, c := range creds {
		if hex.EncodeToString(c.CredentialID) == credKey {
			r.byUserID[userKey] = append(creds[:i], creds[i+1:]...)
			break
		}
	}

	return nil
}

// Count returns the total number of credentials in the repository.
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCredID)
}

// Clear removes all credentials from the repository.
func (r *MemoryRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCredID = make(map[string]*Credential)
	r.byUserID = make(map[string][]*Credential)
}
