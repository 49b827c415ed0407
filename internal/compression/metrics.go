package compression

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

var compressedBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "sparkplug_edge_compression_output_bytes_total",
	Help: "Compressed bytes written by capture writers, by algorithm",
}, []string{"type"})

func init() {
	prometheus.MustRegister(compressedBytesTotal)
}

// countingWriter counts what the compressor emits.
type countingWriter struct {
	w   io.Writer
	typ Type
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	compressedBytesTotal.WithLabelValues(string(c.typ)).Add(float64(n))
	return n, err
}
