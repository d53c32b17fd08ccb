package chatsync

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts sync activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	fetches    *prometheus.CounterVec
	events     *prometheus.CounterVec
	sends      *prometheus.CounterVec
	reconnects prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "fetches_total",
			Help:      "List page fetches by list, mode and result.",
		}, []string{"list", "mode", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "events_total",
			Help:      "Inbound realtime events by name and outcome.",
		}, []string{"event", "outcome"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "sends_total",
			Help:      "Optimistic sends by final state.",
		}, []string{"result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "reconnects_total",
			Help:      "Realtime channel reconnection attempts.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.fetches, m.events, m.sends, m.reconnects)
	}
	return m
}

func (m *Metrics) fetch(list string, mode FetchMode, result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(list, string(mode), result).Inc()
}

func (m *Metrics) event(name, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventFamily(name), outcome).Inc()
}

func (m *Metrics) send(result string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(result).Inc()
}

func (m *Metrics) reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
