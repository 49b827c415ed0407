package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	payloadsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sparkplug_edge_node_payloads_published_total",
		Help: "Total Sparkplug payloads published by the edge node, by message type",
	}, []string{"type"})

	bytesPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sparkplug_edge_node_published_bytes_total",
		Help: "Total encoded payload bytes published by the edge node",
	})

	publishFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sparkplug_edge_node_publish_failures_total",
		Help: "Total failed publishes, by message type",
	}, []string{"type"})

	sessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sparkplug_edge_node_sessions_total",
		Help: "Total broker sessions started by the edge node",
	})

	rebirthsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sparkplug_edge_node_rebirths_total",
		Help: "Total rebirths requested through Node Control/Rebirth",
	})

	commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sparkplug_edge_node_commands_total",
		Help: "Total command metrics handled, by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(payloadsPublishedTotal)
	prometheus.MustRegister(bytesPublishedTotal)
	prometheus.MustRegister(publishFailuresTotal)
	prometheus.MustRegister(sessionsTotal)
	prometheus.MustRegister(rebirthsTotal)
	prometheus.MustRegister(commandsTotal)

	for _, t := range []string{"NBIRTH", "DBIRTH", "NDATA", "DDATA", "NDEATH"} {
		payloadsPublishedTotal.WithLabelValues(t).Add(0)
		publishFailuresTotal.WithLabelValues(t).Add(0)
	}
	for _, r := range []string{"written", "rejected", "decode_error", "rebirth"} {
		commandsTotal.WithLabelValues(r).Add(0)
	}
	bytesPublishedTotal.Add(0)
	sessionsTotal.Add(0)
	rebirthsTotal.Add(0)
}
