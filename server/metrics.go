package server

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/bdevloed/graph-login-service/internal/errors"
)

// Metrics counts login and logout outcomes.
type Metrics struct {
	logins  *prometheus.CounterVec
	logouts *prometheus.CounterVec
}

// NewMetrics registers the counters on the given registerer. Each server
// carries its own registry, so constructing several servers in one process
// never collides on registration.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "login_service_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		logouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "login_service_logouts_total",
			Help: "Logout attempts by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) LoginSucceeded()              { m.logins.WithLabelValues("success").Inc() }
func (m *Metrics) LoginRejected(outcome string) { m.logins.WithLabelValues(outcome).Inc() }

func (m *Metrics) LogoutSucceeded()              { m.logouts.WithLabelValues("success").Inc() }
func (m *Metrics) LogoutRejected(outcome string) { m.logouts.WithLabelValues(outcome).Inc() }

func outcomeForError(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrMissingSessionToken),
		errors.Is(err, apperrors.ErrMissingAuthorizationCode):
		return "missing_input"
	case errors.Is(err, apperrors.ErrVerificationRejected):
		return "verification_rejected"
	case errors.Is(err, apperrors.ErrNoTenant):
		return "no_tenant"
	case errors.Is(err, apperrors.ErrInvalidSession):
		return "invalid_session"
	default:
		return "fault"
	}
}
