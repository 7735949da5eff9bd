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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestChallengeStore returns a store with a controllable clock and no
// reliance on the background sweep timing.
func newTestChallengeStore(t *testing.T, ttl time.Duration) (*ChallengeStore, *time.Time) {
	t.Helper()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewChallengeStore(ttl, time.Hour)
	store.now = func() time.Time { return current }
	t.Cleanup(store.Close)

	return store, &current
}

func TestChallengeStore_IssueAndRedeem(t *testing.T) {
	store, _ := newTestChallengeStore(t, time.Minute)

	session := webauthn.SessionData{
		Challenge: "dGVzdC1jaGFsbGVuZ2U",
		UserID:    []byte("user-1"),
	}
	issued := store.Issue(CeremonyRegistration, ExistingSubject([]byte("user-1")), session)
	assert.Equal(t, session.Challenge, issued.Value)
	assert.Equal(t, 1, store.Len())

	redeemed, err := store.Redeem(session.Challenge, CeremonyRegistration)
	require.NoError(t, err)
	assert.Equal(t, CeremonyRegistration, redeemed.Kind)
	assert.Equal(t, []byte("user-1"), redeemed.Subject.UserID())
	assert.Equal(t, session.UserID, redeemed.Session.UserID)
	assert.Equal(t, 0, store.Len())
}

func TestChallengeStore_RedeemIsSingleUse(t *testing.T) {
	store, _ := newTestChallengeStore(t, time.Minute)

	session := webauthn.SessionData{Challenge: "b25jZS1vbmx5"}
	store.Issue(CeremonyAuthentication, ProvisionalSubject(), session)

	_, err := store.Redeem(session.Challenge, CeremonyAuthentication)
	require.NoError(t, err)

	_, err = store.Redeem(session.Challenge, CeremonyAuthentication)
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestChallengeStore_RedeemUnknown(t *testing.T) {
	store, _ := newTestChallengeStore(t, time.Minute)

	_, err := store.Redeem("bmV2ZXItaXNzdWVk", CeremonyRegistration)
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestChallengeStore_RedeemExpired(t *testing.T) {
	store, clock := newTestChallengeStore(t, time.Minute)

	session := webauthn.SessionData{Challenge: "ZXhwaXJlcw"}
	store.Issue(CeremonyRegistration, ProvisionalSubject(), session)

	*clock = clock.Add(time.Minute + time.Second)

	_, err := store.Redeem(session.Challenge, CeremonyRegistration)
	assert.ErrorIs(t, err, ErrChallengeInvalid)

	// Expired entries are removed on the redemption attempt.
	assert.Equal(t, 0, store.Len())
}

func TestChallengeStore_RedeemWrongKind(t *testing.T) {
	store, _ := newTestChallengeStore(t, time.Minute)

	session := webauthn.SessionData{Challenge: "cmVnLW9ubHk"}
	store.Issue(CeremonyRegistration, ProvisionalSubject(), session)

	_, err := store.Redeem(session.Challenge, CeremonyAuthentication)
	assert.ErrorIs(t, err, ErrChallengeInvalid)

	// The mismatched attempt must not consume the entry.
	redeemed, err := store.Redeem(session.Challenge, CeremonyRegistration)
	require.NoError(t, err)
	assert.Equal(t, CeremonyRegistration, redeemed.Kind)
}

func TestChallengeStore_Sweep(t *testing.T) {
	store, clock := newTestChallengeStore(t, time.Minute)

	for i := 0; i < 5; i++ {
		store.Issue(CeremonyRegistration, ProvisionalSubject(), webauthn.SessionData{
			Challenge: fmt.Sprintf("c3dlZXAt%d", i),
		})
	}
	*clock = clock.Add(30 * time.Second)
	store.Issue(CeremonyAuthentication, ProvisionalSubject(), webauthn.SessionData{
		Challenge: "c3RpbGwtZnJlc2g",
	})
	require.Equal(t, 6, store.Len())

	*clock = clock.Add(45 * time.Second)

	removed := store.Sweep()
	assert.Equal(t, 5, removed)
	assert.Equal(t, 1, store.Len())

	// The surviving entry is still redeemable.
	_, err := store.Redeem("c3RpbGwtZnJlc2g", CeremonyAuthentication)
	assert.NoError(t, err)
}

func TestChallengeStore_ConcurrentRedeem(t *testing.T) {
	store, _ := newTestChallengeStore(t, time.Minute)

	session := webauthn.SessionData{Challenge: "cmFjZS10YXJnZXQ"}
	store.Issue(CeremonyAuthentication, ProvisionalSubject(), session)

	const workers = 32
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Redeem(session.Challenge, CeremonyAuthentication); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	assert.Len(t, successes, 1, "exactly one concurrent redemption must win")
}

func TestChallengeStore_Defaults(t *testing.T) {
	store := NewChallengeStore(0, 0)
	defer store.Close()

	assert.Equal(t, DefaultChallengeTTL, store.ttl)
	assert.Equal(t, DefaultSweepInterval, store.sweepEvery)
}

func TestChallengeStore_CloseIsIdempotent(t *testing.T) {
	store := NewChallengeStore(time.Minute, time.Minute)
	store.Close()
	store.Close()
}
