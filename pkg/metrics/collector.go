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
	"context"
	"time"
)

// PendingCounter reports the number of pending challenges.
// *passkey.ChallengeStore satisfies this.
type PendingCounter interface {
	Len() int
}

// CredentialCounter reports the number of stored credentials.
type CredentialCounter func(ctx context.Context) (int, error)

// StateCollector periodically samples the challenge store and credential
// repository into gauges.
type StateCollector struct {
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	pending     PendingCounter
	credentials CredentialCounter
}

// NewStateCollector creates a collector that updates gauges at the
// specified interval. Either source may be nil to skip that gauge.
//
// Example:
//
//	collector := metrics.NewStateCollector(ctx, 30*time.Second, svc.Challenges(), store.Count)
//	go collector.Start()
//	defer collector.Stop()
func NewStateCollector(ctx context.Context, interval time.Duration, pending PendingCounter, credentials CredentialCounter) *StateCollector {
	collectorCtx, cancel := context.WithCancel(ctx)
	return &StateCollector{
		ctx:         collectorCtx,
		cancel:      cancel,
		interval:    interval,
		pending:     pending,
		credentials: credentials,
	}
}

// Start begins sampling at the configured interval. This method blocks
// and should typically be run in a goroutine. It stops when Stop() is
// called or the parent context is cancelled.
func (sc *StateCollector) Start() {
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	// Collect initial metrics immediately
	sc.collect()

	for {
		select {
		case <-sc.ctx.Done():
			return
		case <-ticker.C:
			sc.collect()
		}
	}
}

// Stop halts the collector gracefully.
func (sc *StateCollector) Stop() {
	sc.cancel()
}

func (sc *StateCollector) collect() {
	if !IsEnabled() {
		return
	}

	if sc.pending != nil {
		SetChallengesPending(float64(sc.pending.Len()))
	}

	if sc.credentials != nil {
		if count, err := sc.credentials(sc.ctx); err == nil {
			SetCredentialsTotal(float64(count))
		}
	}
}

// StartStateCollector is a convenience function that creates and starts a
// state collector. It returns the collector for lifecycle management.
func StartStateCollector(ctx context.Context, interval time.Duration, pending PendingCounter, credentials CredentialCounter) *StateCollector {
	collector := NewStateCollector(ctx, interval, pending, credentials)
	go collector.Start()
	return collector
}
