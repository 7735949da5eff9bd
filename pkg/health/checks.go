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

package health

import (
	"context"
	"fmt"
)

// Pinger is implemented by credential stores that can verify backend
// connectivity. The SQLite store satisfies this.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PendingCounter reports the number of outstanding challenges.
type PendingCounter interface {
	Len() int
}

// RepositoryCheck returns a readiness check that verifies the
// credential store backend is reachable.
func RepositoryCheck(name string, store Pinger) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if store == nil {
			return CheckResult{
				Name:    name,
				Status:  StatusUnhealthy,
				Message: "Credential store not configured",
			}
		}
		if err := store.Ping(ctx); err != nil {
			return CheckResult{
				Name:    name,
				Status:  StatusUnhealthy,
				Message: "Credential store unreachable",
				Error:   err.Error(),
			}
		}
		return CheckResult{
			Name:    name,
			Status:  StatusHealthy,
			Message: "Credential store reachable",
		}
	}
}

// ChallengeBacklogCheck returns a readiness check that watches the
// outstanding challenge count. A backlog past maxPending means clients
// are starting ceremonies far faster than they finish them, usually a
// probe or a stuck sweeper, and the service reports degraded rather
// than unhealthy since it can still answer.
func ChallengeBacklogCheck(store PendingCounter, maxPending int) CheckFunc {
	return func(ctx context.Context) CheckResult {
		pending := store.Len()
		if maxPending > 0 && pending > maxPending {
			return CheckResult{
				Name:    "challenges",
				Status:  StatusDegraded,
				Message: fmt.Sprintf("Challenge backlog %d exceeds threshold %d", pending, maxPending),
			}
		}
		return CheckResult{
			Name:    "challenges",
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%d challenges pending", pending),
		}
	}
}
