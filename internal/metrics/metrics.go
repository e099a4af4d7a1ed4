package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_connections",
		Help: "Registered websocket connections",
	})

	SendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_send_failures_total",
		Help: "Frames that could not be queued for a connection",
	})

	FramesDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_frames_discarded_total",
		Help: "Inbound frames dropped without a reply",
	}, []string{"reason"})

	MessagesPosted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_posted_total",
		Help: "Chat messages persisted and broadcast",
	})

	AuthRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_auth_rejected_total",
		Help: "Websocket handshakes rejected by token validation",
	}, []string{"reason"})

	TokensSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_tokens_swept_total",
		Help: "Expired tokens removed by the sweeper",
	})
)

// NewRegistry returns a registry holding the relay collectors plus the Go and process collectors.
func NewRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ActiveConnections,
		SendFailures,
		FramesDiscarded,
		MessagesPosted,
		AuthRejected,
		TokensSwept,
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, err
		}
	}
	return reg, nil
}
