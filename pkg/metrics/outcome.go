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

package metrics

import (
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// OutcomeFor maps a ceremony result to its outcome label.
func OutcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case passkey.IsChallengeInvalid(err):
		return OutcomeChallengeInvalid
	case passkey.IsClonedAuthenticator(err):
		return OutcomeClonedAuthenticator
	case passkey.IsCredentialNotFound(err):
		return OutcomeCredentialNotFound
	case passkey.IsVerificationFailed(err):
		return OutcomeVerificationFailed
	case passkey.IsSubjectMismatch(err):
		return OutcomeSubjectMismatch
	case passkey.IsDuplicateCredential(err):
		return OutcomeDuplicateCredential
	case passkey.IsRepositoryError(err):
		return OutcomeRepositoryError
	default:
		return OutcomeInternalError
	}
}
