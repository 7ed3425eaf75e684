package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaker_requests_total",
			Help: "Total matchmaker API requests",
		},
		[]string{"op", "result"}, // success|failure|error
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matchmaker_request_duration_seconds",
			Help:    "Duration of matchmaker API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	ConnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaker_connects_total",
			Help: "Total attempts to connect to an assigned game server",
		},
		[]string{"result"}, // success|failure|invalid
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_transitions_total",
			Help: "Total ticket session state transitions",
		},
		[]string{"from", "to"},
	)

	SessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "session_state",
			Help: "1 for the current ticket session state, 0 otherwise",
		},
		[]string{"state"},
	)

	TicketWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "session_ticket_wait_seconds",
			Help:    "Time from ticket creation to assignment",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ConnectsTotal)
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(SessionState)
	prometheus.MustRegister(TicketWait)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
