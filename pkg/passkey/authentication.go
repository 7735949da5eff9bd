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
	"bytes"
	"context"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// BeginAuthentication starts the authentication ceremony. Authentication
// is identity-discovering: no user is known yet, so the options carry an
// empty allow-list and any registered passkey may answer.
func (s *Service) BeginAuthentication(ctx context.Context) (*protocol.CredentialAssertion, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	assertion, session, err := s.webauthn.BeginDiscoverableLogin()
	if err != nil {
		return nil, fmt.Errorf("begin authentication: %w", err)
	}

	s.challenges.Issue(CeremonyAuthentication, ProvisionalSubject(), *session)

	return assertion, nil
}

// FinishAuthentication completes the authentication ceremony: it redeems
// the challenge, looks up the credential named by the response, verifies
// the assertion against the stored public key, enforces the
// signature-counter clone policy, and commits the new counter.
//
// The challenge is consumed on redemption regardless of later outcome,
// including when the credential is unknown.
func (s *Service) FinishAuthentication(ctx context.Context, response *protocol.ParsedCredentialAssertionData) (*VerifiedIdentity, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if response == nil {
		return nil, verificationErr("finish authentication", fmt.Errorf("response is required"))
	}

	pending, err := s.challenges.Redeem(response.Response.CollectedClientData.Challenge, CeremonyAuthentication)
	if err != nil {
		err = ceremonyErr("finish authentication", ErrChallengeInvalid)
		s.logFailure(CeremonyAuthentication, err)
		return nil, err
	}

	stored, err := s.repo.FindByCredentialID(ctx, response.RawID)
	if err != nil {
		s.logFailure(CeremonyAuthentication, err)
		return nil, err
	}

	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		if !bytes.Equal(rawID, stored.CredentialID) {
			return nil, ErrCredentialNotFound
		}
		return &ceremonyUser{
			id:          stored.UserID,
			name:        string(stored.UserID),
			credentials: []webauthn.Credential{stored.ToWebAuthn()},
		}, nil
	}

	validated, err := s.webauthn.ValidateDiscoverableLogin(handler, pending.Session, response)
	if err != nil {
		err = verificationErr("finish authentication", err)
		s.logFailure(CeremonyAuthentication, err)
		return nil, err
	}

	if err := checkSignCount(stored.SignCount, validated.Authenticator.SignCount); err != nil {
		// Fail closed, leaving the stored counter untouched so the
		// legitimate authenticator's next assertion still exceeds it.
		err = ceremonyErr("finish authentication", err)
		s.logFailure(CeremonyAuthentication, err)
		return nil, err
	}

	now := s.now().UTC()
	if err := s.repo.UpdateCounterAndLastUsed(ctx, stored.CredentialID, validated.Authenticator.SignCount, now); err != nil {
		s.logFailure(CeremonyAuthentication, err)
		return nil, err
	}

	return &VerifiedIdentity{
		UserID:          stored.UserID,
		CredentialID:    stored.CredentialID,
		AuthenticatedAt: now,
	}, nil
}

// checkSignCount enforces the clone-detection policy on the signature
// counter reported in an assertion. A stored counter of zero marks an
// authenticator that never implements counters, so zero/zero is accepted
// without a clone check; once the stored counter is non-zero, a reported
// counter that does not strictly increase is treated as a possible clone.
func checkSignCount(stored, reported uint32) error {
	if stored > 0 && reported <= stored {
		return ErrClonedAuthenticator
	}
	return nil
}
