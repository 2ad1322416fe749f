package permission

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"rpg-forum/internal/apperr"
)

// Metrics counts decisions by deciding layer and failures by class.
type Metrics struct {
	decisions *prometheus.CounterVec
	errors    *prometheus.CounterVec
}

// NewMetrics registers the counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpgforum",
			Subsystem: "permission",
			Name:      "decisions_total",
			Help:      "Permission decisions by deciding step and outcome.",
		}, []string{"step", "allowed"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpgforum",
			Subsystem: "permission",
			Name:      "errors_total",
			Help:      "Permission checks that failed, by error class.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.decisions, m.errors)
	return m
}

func (m *Metrics) observe(d Decision, err error) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(d.Step), strconv.FormatBool(d.Allowed)).Inc()
	if err != nil {
		m.errors.WithLabelValues(errorKind(err)).Inc()
	}
}

func errorKind(err error) string {
	switch {
	case apperr.IsConfiguration(err):
		return "configuration"
	case apperr.Wrap(err).Code == apperr.CodeNotFound:
		return "not_found"
	}
	return "lookup"
}
