// Package metrics exposes Prometheus counters for session operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalid       = "invalid"
	OutcomeNotFound      = "not_found"
	OutcomeBadCredential = "bad_credential"
	OutcomeUnauthorized  = "unauthorized"
	OutcomeReuse         = "reuse_detected"
	OutcomeError         = "error"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	logins    *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	logouts   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videotube_auth_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videotube_auth_refreshes_total",
			Help: "Refresh token rotations by outcome",
		}, []string{"outcome"}),
		logouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videotube_auth_logouts_total",
			Help: "Logouts by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Login(outcome string) {
	if m != nil {
		m.logins.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Refresh(outcome string) {
	if m != nil {
		m.refreshes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Logout(outcome string) {
	if m != nil {
		m.logouts.WithLabelValues(outcome).Inc()
	}
}

// LoginCounter returns the login counter for outcome.
func (m *Metrics) LoginCounter(outcome string) prometheus.Counter {
	return m.logins.WithLabelValues(outcome)
}

func (m *Metrics) RefreshCounter(outcome string) prometheus.Counter {
	return m.refreshes.WithLabelValues(outcome)
}

func (m *Metrics) LogoutCounter(outcome string) prometheus.Counter {
	return m.logouts.WithLabelValues(outcome)
}
