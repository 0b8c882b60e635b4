package telemetry

import "github.com/prometheus/client_golang/prometheus"

const studyroomsNamespace string = "studyrooms"

var (
	promConnectionsTotal prometheus.Gauge
	promRoomsHosted      prometheus.Gauge
	promSignalsRelayed   *prometheus.CounterVec
	promSignalsDropped   prometheus.Counter
	promJoinsResolved    *prometheus.CounterVec
)

func init() {
	promConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: studyroomsNamespace,
		Subsystem: "connections",
		Name:      "total",
	})

	promRoomsHosted = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: studyroomsNamespace,
		Subsystem: "rooms",
		Name:      "hosted",
	})

	promSignalsRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: studyroomsNamespace,
			Subsystem: "relay",
			Name:      "messages_total",
		},
		[]string{"kind"},
	)

	promSignalsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: studyroomsNamespace,
		Subsystem: "relay",
		Name:      "dropped_total",
	})

	promJoinsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: studyroomsNamespace,
			Subsystem: "gate",
			Name:      "joins_total",
		},
		[]string{"status"},
	)

	prometheus.MustRegister(promConnectionsTotal)
	prometheus.MustRegister(promRoomsHosted)
	prometheus.MustRegister(promSignalsRelayed)
	prometheus.MustRegister(promSignalsDropped)
	prometheus.MustRegister(promJoinsResolved)
}

func ConnectionOpened() {
	promConnectionsTotal.Inc()
}

func ConnectionClosed() {
	promConnectionsTotal.Dec()
}

func RoomHosted() {
	promRoomsHosted.Inc()
}

func RoomClosed() {
	promRoomsHosted.Dec()
}

func SignalRelayed(kind string) {
	promSignalsRelayed.WithLabelValues(kind).Inc()
}

func SignalDropped() {
	promSignalsDropped.Inc()
}

func JoinResolved(status string) {
	promJoinsResolved.WithLabelValues(status).Inc()
}
