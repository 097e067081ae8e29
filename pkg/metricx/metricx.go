// Package metricx exposes the prometheus metrics of the identity core.
// Registration happens once against the default registry; every counter is
// safe for concurrent use.
package metricx

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_login_attempts_total",
			Help: "Identity resolution attempts by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	invitationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_invitation_events_total",
			Help: "Invitation lifecycle transitions.",
		},
		[]string{"event"},
	)

	clientMaterializations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_client_materializations_total",
			Help: "OAuth2 client descriptor materializations by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers all identity metrics with the default registry. Idempotent.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(loginAttempts, invitationEvents, clientMaterializations)
	})
}

// LoginAttempt records one identity resolution outcome. Mode is "strict",
// "loose", or "service"; outcome is "success" or the failure reason.
func LoginAttempt(mode, outcome string) {
	loginAttempts.WithLabelValues(mode, outcome).Inc()
}

// InvitationEvent records one invitation lifecycle transition
// ("invited", "accepted", "resent", "cancelled").
func InvitationEvent(event string) {
	invitationEvents.WithLabelValues(event).Inc()
}

// ClientMaterialization records one descriptor derivation outcome.
func ClientMaterialization(outcome string) {
	clientMaterializations.WithLabelValues(outcome).Inc()
}
