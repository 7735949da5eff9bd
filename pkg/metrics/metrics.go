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

// Package metrics provides Prometheus instrumentation for passkey
// ceremonies and the HTTP surface that drives them. Outcome labels carry
// the internal failure taxonomy; they are telemetry only and never feed
// back into client responses.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all passkey metrics.
	Namespace = "passkey"

	// Label names
	LabelCeremony   = "ceremony"
	LabelStep       = "step"
	LabelOutcome    = "outcome"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Ceremony identifiers
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"

	// Step identifiers
	StepBegin  = "begin"
	StepFinish = "finish"

	// Outcome values. Failure outcomes mirror the ceremony error
	// taxonomy so operators can see which step rejects requests.
	OutcomeSuccess             = "success"
	OutcomeChallengeInvalid    = "challenge_invalid"
	OutcomeSubjectMismatch     = "subject_mismatch"
	OutcomeVerificationFailed  = "verification_failed"
	OutcomeCredentialNotFound  = "credential_not_found"
	OutcomeDuplicateCredential = "duplicate_credential"
	OutcomeClonedAuthenticator = "cloned_authenticator"
	OutcomeRepositoryError     = "repository_error"
	OutcomeInternalError       = "internal_error"
)

var (
	// CeremoniesTotal tracks ceremony steps by ceremony, step, and outcome.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of ceremony steps by ceremony, step, and outcome",
		},
		[]string{LabelCeremony, LabelStep, LabelOutcome},
	)

	// CeremonyDuration tracks ceremony step durations in seconds.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony steps in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelCeremony, LabelStep},
	)

	// ChallengesPending tracks the number of issued, unredeemed challenges.
	ChallengesPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "challenges_pending",
			Help:      "Number of issued, unredeemed ceremony challenges",
		},
	)

	// ChallengesSweptTotal tracks expired challenges removed by the sweep.
	ChallengesSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "challenges_swept_total",
			Help:      "Total number of expired challenges removed by the background sweep",
		},
	)

	// CredentialsTotal tracks the number of stored credentials.
	CredentialsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "credentials_total",
			Help:      "Total number of stored credentials",
		},
	)

	// HTTPRequestsTotal tracks HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks HTTP request durations in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordCeremony records a ceremony step with its outcome and duration.
//
// Example:
//
//	start := time.Now()
//	_, err := svc.FinishAuthentication(ctx, response)
//	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.StepFinish,
//	    metrics.OutcomeFor(err), time.Since(start).Seconds())
func RecordCeremony(ceremony, step, outcome string, duration float64) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, step, outcome).Inc()
	CeremonyDuration.WithLabelValues(ceremony, step).Observe(duration)
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// SetChallengesPending sets the pending-challenge gauge.
func SetChallengesPending(count float64) {
	if !enabled.Load() {
		return
	}
	ChallengesPending.Set(count)
}

// AddChallengesSwept adds to the swept-challenge counter.
func AddChallengesSwept(count float64) {
	if !enabled.Load() {
		return
	}
	ChallengesSweptTotal.Add(count)
}

// SetCredentialsTotal sets the stored-credential gauge.
func SetCredentialsTotal(count float64) {
	if !enabled.Load() {
		return
	}
	CredentialsTotal.Set(count)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
