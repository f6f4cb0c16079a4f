// Package metrics holds the Prometheus collectors shared by the session and
// fetch layers. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "finfeed"

type Metrics struct {
	CrumbAcquisitions *prometheus.CounterVec
	FetchRequests     *prometheus.CounterVec
	ReauthRetries     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CrumbAcquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crumb_acquisitions_total",
			Help:      "Crumb acquisition attempts by result.",
		}, []string{"result"}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Data requests by endpoint and result.",
		}, []string{"endpoint", "result"}),
		ReauthRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reauth_retries_total",
			Help:      "Requests retried after the crumb was rejected.",
		}, []string{"endpoint"}),
	}
	if reg != nil {
		reg.MustRegister(m.CrumbAcquisitions, m.FetchRequests, m.ReauthRetries)
	}
	return m
}

func (m *Metrics) Acquisition(result string) {
	if m == nil {
		return
	}
	m.CrumbAcquisitions.WithLabelValues(result).Inc()
}

func (m *Metrics) Fetch(endpoint, result string) {
	if m == nil {
		return
	}
	m.FetchRequests.WithLabelValues(endpoint, result).Inc()
}

func (m *Metrics) Reauth(endpoint string) {
	if m == nil {
		return
	}
	m.ReauthRetries.WithLabelValues(endpoint).Inc()
}
