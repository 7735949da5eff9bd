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
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// BeginRegistration starts the registration ceremony for the identity
// the hint resolves to. When the identity provider reports no durable
// identity (a new-account flow), the ceremony proceeds under a
// provisional user handle; the caller binds the credential to the
// established account in FinishRegistration.
//
// The returned options carry the challenge, the relying-party and user
// info, the exclude list of already-bound credential IDs, and the
// configured authenticator-selection preferences.
func (s *Service) BeginRegistration(ctx context.Context, hint, displayName string) (*protocol.CredentialCreation, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	subject := ProvisionalSubject()
	user := &ceremonyUser{name: hint, displayName: displayName}

	ident, err := s.identities.Resolve(ctx, hint)
	switch {
	case err == nil:
		subject = ExistingSubject(ident.ID)
		user.id = ident.ID
		user.name = ident.Name
		user.displayName = ident.DisplayName
	case errors.Is(err, ErrIdentityNotFound):
		// New-account flow: mint a provisional handle. The surrounding
		// application adopts it as the account's user handle when it
		// creates the account.
		handle := uuid.New()
		user.id = handle[:]
	default:
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	var opts []webauthn.RegistrationOption
	if !subject.Provisional() {
		existing, err := s.repo.ListByUser(ctx, subject.UserID())
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			exclude := make([]protocol.CredentialDescriptor, len(existing))
			for i, cred := range existing {
				exclude[i] = cred.Descriptor()
			}
			opts = append(opts, webauthn.WithExclusions(exclude))
		}
	}

	creation, session, err := s.webauthn.BeginRegistration(user, opts...)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}

	s.challenges.Issue(CeremonyRegistration, subject, *session)

	return creation, nil
}

// FinishRegistration completes the registration ceremony: it redeems the
// challenge echoed in the response's client data, verifies the
// attestation, and persists the new credential bound to targetUserID.
//
// The challenge is consumed on redemption regardless of later outcome, so
// a failed verification cannot be replayed.
func (s *Service) FinishRegistration(ctx context.Context, response *protocol.ParsedCredentialCreationData, targetUserID []byte, label string) (*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if response == nil {
		return nil, verificationErr("finish registration", fmt.Errorf("response is required"))
	}
	if len(targetUserID) == 0 {
		return nil, ceremonyErr("finish registration", ErrSubjectMismatch)
	}

	pending, err := s.challenges.Redeem(response.Response.CollectedClientData.Challenge, CeremonyRegistration)
	if err != nil {
		err = ceremonyErr("finish registration", ErrChallengeInvalid)
		s.logFailure(CeremonyRegistration, err)
		return nil, err
	}

	// A challenge issued for a concrete identity must not bind a
	// credential to anyone else. Provisional challenges bind to the
	// handle minted at begin time, which the caller adopts as the new
	// account's ID.
	if pending.Subject.Provisional() {
		if !bytes.Equal(pending.Session.UserID, targetUserID) {
			err = ceremonyErr("finish registration", ErrSubjectMismatch)
			s.logFailure(CeremonyRegistration, err)
			return nil, err
		}
	} else if !bytes.Equal(pending.Subject.UserID(), targetUserID) {
		err = ceremonyErr("finish registration", ErrSubjectMismatch)
		s.logFailure(CeremonyRegistration, err)
		return nil, err
	}

	user := &ceremonyUser{id: pending.Session.UserID}
	validated, err := s.webauthn.CreateCredential(user, pending.Session, response)
	if err != nil {
		err = verificationErr("finish registration", err)
		s.logFailure(CeremonyRegistration, err)
		return nil, err
	}

	cred := &Credential{
		ID:              uuid.NewString(),
		UserID:          targetUserID,
		CredentialID:    validated.ID,
		PublicKey:       validated.PublicKey,
		AttestationType: validated.AttestationType,
		Transports:      validated.Transport,
		Flags: CredentialFlags{
			UserPresent:    validated.Flags.UserPresent,
			UserVerified:   validated.Flags.UserVerified,
			BackupEligible: validated.Flags.BackupEligible,
			BackupState:    validated.Flags.BackupState,
		},
		AAGUID:    validated.Authenticator.AAGUID,
		SignCount: validated.Authenticator.SignCount,
		Label:     label,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.Insert(ctx, cred); err != nil {
		if errors.Is(err, ErrDuplicateCredential) {
			err = ceremonyErr("finish registration", ErrDuplicateCredential)
		}
		s.logFailure(CeremonyRegistration, err)
		return nil, err
	}

	return cred, nil
}
