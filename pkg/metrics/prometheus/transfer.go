package prometheus

import (
	"time"

	"github.com/marmos91/tftpfs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// transferMetrics is the Prometheus implementation of metrics.TransferMetrics.
type transferMetrics struct {
	transfersStarted *prometheus.CounterVec
	transfersTotal   *prometheus.CounterVec
	bytesTotal       *prometheus.CounterVec
	retransmits      prometheus.Counter
	duplicates       prometheus.Counter
	activeSessions   prometheus.Gauge
	duration         *prometheus.HistogramVec
}

// NewTransferMetrics creates a new Prometheus-backed TransferMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewTransferMetrics() metrics.TransferMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &transferMetrics{
		transfersStarted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tftpfs_transfers_started_total",
				Help: "Total number of transfers started by direction",
			},
			[]string{"direction"}, // "download", "upload"
		),
		transfersTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tftpfs_transfers_total",
				Help: "Total number of finished transfers by direction and status",
			},
			[]string{"direction", "status"}, // status: "completed", "failed"
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tftpfs_transfer_bytes_total",
				Help: "Total payload bytes moved by direction",
			},
			[]string{"direction"},
		),
		retransmits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tftpfs_retransmissions_total",
				Help: "Total timeout-driven packet retransmissions",
			},
		),
		duplicates: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tftpfs_duplicate_packets_total",
				Help: "Total duplicate packets received from peers",
			},
		),
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tftpfs_active_sessions",
				Help: "Current number of in-flight transfer sessions",
			},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tftpfs_transfer_duration_seconds",
				Help: "Transfer duration in seconds",
				Buckets: []float64{
					0.01, // tiny single-block transfers
					0.05,
					0.1,
					0.5,
					1,
					5,
					10,
					30,
					60, // large files or lossy links
					300,
				},
			},
			[]string{"direction"},
		),
	}
}

func (m *transferMetrics) RecordTransferStart(direction string) {
	m.transfersStarted.WithLabelValues(direction).Inc()
}

func (m *transferMetrics) RecordTransferComplete(direction string, duration time.Duration) {
	m.transfersTotal.WithLabelValues(direction, "completed").Inc()
	m.duration.WithLabelValues(direction).Observe(duration.Seconds())
}

func (m *transferMetrics) RecordTransferFailed(direction string) {
	m.transfersTotal.WithLabelValues(direction, "failed").Inc()
}

func (m *transferMetrics) RecordBytesTransferred(direction string, bytes uint64) {
	m.bytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

func (m *transferMetrics) RecordRetransmits(count int) {
	if count > 0 {
		m.retransmits.Add(float64(count))
	}
}

func (m *transferMetrics) RecordDuplicates(count int) {
	if count > 0 {
		m.duplicates.Add(float64(count))
	}
}

func (m *transferMetrics) SetActiveSessions(count int32) {
	m.activeSessions.Set(float64(count))
}
