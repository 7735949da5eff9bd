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
	"sync"
)

// MemoryIdentityProvider is an in-memory implementation of
// IdentityProvider keyed by identity hint. This is intended for
// development and testing only.
type MemoryIdentityProvider struct {
	mu     sync.RWMutex
	byHint map[string]Identity
}

// NewMemoryIdentityProvider creates a new in-memory identity provider.
func NewMemoryIdentityProvider() *MemoryIdentityProvider {
	return &MemoryIdentityProvider{
		byHint: make(map[string]Identity),
	}
}

// Resolve looks up the identity registered under the hint.
func (p *MemoryIdentityProvider) Resolve(ctx context.Context, hint string) (Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ident, ok := p.byHint[hint]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return ident, nil
}

// Put registers or replaces the identity for a hint.
func (p *MemoryIdentityProvider) Put(hint string, ident Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byHint[hint] = ident
}

// Count returns the number of registered identities.
func (p *MemoryIdentityProvider) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byHint)
}
