package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newtdock",
			Subsystem: "link",
			Name:      "frames_total",
			Help:      "Link frames received, by checksum result.",
		},
		[]string{"result"},
	)
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newtdock",
			Subsystem: "dock",
			Name:      "commands_total",
			Help:      "Docking commands received or sent.",
		},
		[]string{"direction", "command"},
	)
	commandBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newtdock",
			Subsystem: "dock",
			Name:      "payload_bytes_total",
			Help:      "Docking command payload bytes received or sent.",
		},
		[]string{"direction"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newtdock",
			Subsystem: "nsof",
			Name:      "decode_errors_total",
			Help:      "NSOF decode failures by kind.",
		},
		[]string{"kind"},
	)
	sessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newtdock",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Handshake state transitions by target state.",
		},
		[]string{"state"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesReceived, commandsTotal, commandBytes, decodeErrors, sessionTransitions)
	})
}

func RecordFrame(ok bool) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "checksum_error"
	}
	framesReceived.WithLabelValues(result).Inc()
}

func RecordCommand(direction, name string, payloadLen uint32) {
	RegisterMetrics()
	commandsTotal.WithLabelValues(direction, name).Inc()
	commandBytes.WithLabelValues(direction).Add(float64(payloadLen))
}

func RecordDecodeError(kind string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(kind).Inc()
}

func RecordTransition(state string) {
	RegisterMetrics()
	sessionTransitions.WithLabelValues(state).Inc()
}
