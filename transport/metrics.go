package transport

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// WriteMetrics dumps all registered counters in Prometheus text exposition
// format, for serving on a diagnostics endpoint.
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, true)
}

// Transport-level counters.
var (
	metricConnects      = metrics.NewCounter(`gombus_connects_total`)
	metricReconnects    = metrics.NewCounter(`gombus_reconnects_total`)
	metricTIDMismatches = metrics.NewCounter(`gombus_tid_mismatches_total`)
	metricOversized     = metrics.NewCounter(`gombus_oversized_messages_total`)
	metricRxBytes       = metrics.NewCounter(`gombus_rx_bytes_total`)
	metricTxBytes       = metrics.NewCounter(`gombus_tx_bytes_total`)
)
