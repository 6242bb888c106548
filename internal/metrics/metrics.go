package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/your-org/procwatch/internal/model"
)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procwatch_events_total",
			Help: "Number of decoded process lifecycle events, labelled by type.",
		},
		[]string{"type"},
	)

	pollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "procwatch_polls_total",
			Help: "Number of poll calls made against the netlink session.",
		},
	)

	idlePollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "procwatch_idle_polls_total",
			Help: "Number of poll calls that produced no event (empty batch or absorbed receive error).",
		},
	)
)

func Register(reg *prometheus.Registry) {
	reg.MustRegister(eventsTotal, pollsTotal, idlePollsTotal)
}

func IncEvent(eventType model.EventType) {
	eventsTotal.WithLabelValues(string(eventType)).Inc()
}

func IncPoll(idle bool) {
	pollsTotal.Inc()
	if idle {
		idlePollsTotal.Inc()
	}
}
