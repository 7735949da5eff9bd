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
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// PendingChallenge is the ephemeral record of an issued, not yet
// redeemed ceremony challenge.
type PendingChallenge struct {
	// Value is the base64url-encoded challenge included in the ceremony
	// options and echoed back in the client data.
	Value string

	// Kind is the ceremony the challenge was issued for.
	Kind Ceremony

	// Subject is who the challenge was issued for. Provisional for
	// new-account registrations and for authentication, where the
	// identity is discovered from the returned credential.
	Subject Subject

	// Session is the library session state needed to verify the response.
	Session webauthn.SessionData

	// ExpiresAt is the absolute expiry timestamp.
	ExpiresAt time.Time
}

// ChallengeStore holds pending ceremony challenges in memory. Challenges
// are single-use: Redeem atomically removes the entry it returns, so two
// concurrent redemptions of the same value can never both succeed.
//
// Entries abandoned by clients are removed by a background sweep.
type ChallengeStore struct {
	mu      sync.Mutex
	pending map[string]*PendingChallenge
	ttl     time.Duration

	sweepEvery time.Duration
	done       chan struct{}
	closeOnce  sync.Once

	// now is a test hook for expiry checks.
	now func() time.Time
}

// DefaultChallengeTTL bounds challenge lifetime when none is configured.
const DefaultChallengeTTL = 5 * time.Minute

// DefaultSweepInterval is how often expired challenges are swept.
const DefaultSweepInterval = time.Minute

// NewChallengeStore creates a challenge store and starts its background
// sweep. Call Close to stop the sweep.
func NewChallengeStore(ttl, sweepEvery time.Duration) *ChallengeStore {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	if sweepEvery <= 0 {
		sweepEvery = DefaultSweepInterval
	}
	s := &ChallengeStore{
		pending:    make(map[string]*PendingChallenge),
		ttl:        ttl,
		sweepEvery: sweepEvery,
		done:       make(chan struct{}),
		now:        time.Now,
	}
	go s.sweepLoop()
	return s
}

// Issue records a pending challenge for the given ceremony. The challenge
// value is the one the library generated into the session data (32 random
// bytes, well above the 128-bit unguessability floor). Returns the
// recorded entry with its expiry stamped.
func (s *ChallengeStore) Issue(kind Ceremony, subject Subject, session webauthn.SessionData) PendingChallenge {
	entry := PendingChallenge{
		Value:     session.Challenge,
		Kind:      kind,
		Subject:   subject,
		Session:   session,
		ExpiresAt: s.now().Add(s.ttl),
	}

	s.mu.Lock()
	s.pending[entry.Value] = &entry
	s.mu.Unlock()

	return entry
}

// Redeem atomically looks up and removes the challenge if it is present,
// unexpired, and was issued for the given ceremony. Any other state
// yields ErrChallengeInvalid: absent, already redeemed, expired, and
// wrong-kind are indistinguishable to the caller.
func (s *ChallengeStore) Redeem(value string, kind Ceremony) (PendingChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[value]
	if !ok {
		return PendingChallenge{}, ErrChallengeInvalid
	}
	if s.now().After(entry.ExpiresAt) {
		delete(s.pending, value)
		return PendingChallenge{}, ErrChallengeInvalid
	}
	if entry.Kind != kind {
		// Cross-ceremony redemption is refused without consuming the
		// entry; the ceremony it was issued for may still complete.
		return PendingChallenge{}, ErrChallengeInvalid
	}

	delete(s.pending, value)
	return *entry, nil
}

// Len returns the number of pending challenges.
func (s *ChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Sweep removes expired entries and returns how many were removed. It is
// called periodically by the background loop and exported for tests and
// manual maintenance.
func (s *ChallengeStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for value, entry := range s.pending {
		if now.After(entry.ExpiresAt) {
			delete(s.pending, value)
			removed++
		}
	}
	return removed
}

// Close stops the background sweep. Pending entries remain redeemable
// until they expire; Close is for shutdown, not invalidation.
func (s *ChallengeStore) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *ChallengeStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.done:
			return
		}
	}
}
