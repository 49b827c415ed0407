package host

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sparkplug_edge_host_messages_total",
		Help: "Total messages received by the host application, by message type",
	}, []string{"type"})

	decodeFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sparkplug_edge_host_decode_failures_total",
		Help: "Total payloads that failed to decode, by reason",
	}, []string{"reason"})

	observationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sparkplug_edge_host_observations_total",
		Help: "Total metric observations resolved by the host application",
	})

	seqGapsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sparkplug_edge_host_seq_gaps_total",
		Help: "Total sequence number gaps detected",
	})

	staleMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sparkplug_edge_host_stale_messages_total",
		Help: "Total messages from nodes or devices without a current birth",
	})

	rebirthRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sparkplug_edge_host_rebirth_requests_total",
		Help: "Total rebirth requests sent to edge nodes",
	})

	nodesOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sparkplug_edge_host_nodes_online",
		Help: "Number of edge nodes currently online",
	})
)

func init() {
	prometheus.MustRegister(messagesTotal)
	prometheus.MustRegister(decodeFailuresTotal)
	prometheus.MustRegister(observationsTotal)
	prometheus.MustRegister(seqGapsTotal)
	prometheus.MustRegister(staleMessagesTotal)
	prometheus.MustRegister(rebirthRequestsTotal)
	prometheus.MustRegister(nodesOnline)

	for _, t := range []string{"NBIRTH", "NDEATH", "DBIRTH", "DDEATH", "NDATA", "DDATA", "NCMD", "DCMD", "STATE", "invalid"} {
		messagesTotal.WithLabelValues(t).Add(0)
	}
	observationsTotal.Add(0)
	seqGapsTotal.Add(0)
	staleMessagesTotal.Add(0)
	rebirthRequestsTotal.Add(0)
	nodesOnline.Set(0)
}
