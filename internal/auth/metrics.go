package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts auth outcomes.  A nil *Metrics records nothing.
type Metrics struct {
	Logins    *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
	Lockouts  prometheus.Counter
	Upgrades  *prometheus.CounterVec
}

// NewMetrics registers the auth collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "club",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome code.",
		}, []string{"outcome"}),
		Refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "club",
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Refresh token exchanges by outcome code.",
		}, []string{"outcome"}),
		Lockouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "club",
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Throttle keys that entered the locked state.",
		}),
		Upgrades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "club",
			Subsystem: "auth",
			Name:      "password_upgrades_total",
			Help:      "Stored password hashes rewritten on login, by reason.",
		}, []string{"reason"}),
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(CodeOf(err))
}

func (m *Metrics) login(err error) {
	if m != nil {
		m.Logins.WithLabelValues(outcome(err)).Inc()
	}
}

func (m *Metrics) refresh(err error) {
	if m != nil {
		m.Refreshes.WithLabelValues(outcome(err)).Inc()
	}
}

func (m *Metrics) lockout() {
	if m != nil {
		m.Lockouts.Inc()
	}
}

func (m *Metrics) upgrade(reason string) {
	if m != nil {
		m.Upgrades.WithLabelValues(reason).Inc()
	}
}
