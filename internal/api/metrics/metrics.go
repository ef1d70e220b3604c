// Package metrics defines the custom Prometheus collectors of the API. It is
// the single source of truth for metric names, labels, and help strings.
//
// Build one Metrics per registry with New; the router serves the same
// registry on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/abneribeiro/apits/internal/core/domain"
)

const namespace = "apits"

// ResultSuccess is the result label of an operation that returned no error.
const ResultSuccess = "success"

// Revocation triggers.
const (
	TriggerLogout         = "logout"
	TriggerDeactivate     = "deactivate"
	TriggerDelete         = "delete"
	TriggerPasswordChange = "password_change"
	TriggerUpdateInactive = "update_inactive"
)

// Authorization gates.
const (
	GateAuthenticate = "authenticate"
	GateRole         = "role"
	GatePermission   = "permission"
	GateSelfOrAdmin  = "self_or_admin"
)

type Metrics struct {
	// LoginsTotal counts login attempts.
	// Label:
	//   - result: "success" or the error kind (e.g. "invalid_credentials")
	LoginsTotal *prometheus.CounterVec

	// RefreshTotal counts refresh-token exchanges.
	// Label:
	//   - result: "success" or the error kind (e.g. "invalid_token", "token_expired")
	RefreshTotal *prometheus.CounterVec

	// RegistrationsTotal counts accounts created through registration.
	RegistrationsTotal prometheus.Counter

	// SessionsRevokedTotal counts revocation events.
	// Label:
	//   - trigger: logout, deactivate, delete, password_change, update_inactive
	SessionsRevokedTotal *prometheus.CounterVec

	// AuthzDecisionsTotal counts gate decisions.
	// Labels:
	//   - gate: authenticate, role, permission, self_or_admin
	//   - result: "allow" or the error kind of the denial
	AuthzDecisionsTotal *prometheus.CounterVec
}

// New creates every collector and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoginsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Total number of login attempts, labelled by result.",
		}, []string{"result"}),
		RefreshTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Total number of refresh-token exchanges, labelled by result.",
		}, []string{"result"}),
		RegistrationsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Total number of accounts created through registration.",
		}),
		SessionsRevokedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "revoked_total",
			Help:      "Total number of session revocation events, labelled by trigger.",
		}, []string{"trigger"}),
		AuthzDecisionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "decisions_total",
			Help:      "Total number of authorization gate decisions, labelled by gate and result.",
		}, []string{"gate", "result"}),
	}
}

// Result maps err to a result label.
func Result(err error) string {
	if err == nil {
		return ResultSuccess
	}
	return domain.KindOf(err).String()
}

// Decision records one gate outcome. A nil err is an allow.
func (m *Metrics) Decision(gate string, err error) {
	result := "allow"
	if err != nil {
		result = domain.KindOf(err).String()
	}
	m.AuthzDecisionsTotal.WithLabelValues(gate, result).Inc()
}
