package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sharechat"

// Transfer directions and results used as label values.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"

	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics provides Prometheus metrics for the chat server.
// All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// SessionsActive is the number of currently named sessions.
	SessionsActive prometheus.Gauge

	// SessionsTotal counts sessions that completed the naming step.
	SessionsTotal prometheus.Counter

	// ConnectionsRejected counts connections refused by the connection limit.
	ConnectionsRejected prometheus.Counter

	// Broadcasts counts fan-out operations, DeliveryFailures the individual
	// pushes that could not be queued.
	Broadcasts       prometheus.Counter
	DeliveryFailures prometheus.Counter

	// Commands counts dispatched commands by name.
	Commands *prometheus.CounterVec

	// Transfers counts finished transfers by direction and result.
	Transfers *prometheus.CounterVec

	// TransferBytes counts payload bytes moved by direction.
	TransferBytes *prometheus.CounterVec

	// TransferDuration observes transfer latency by direction.
	TransferDuration *prometheus.HistogramVec

	// CatalogFiles is the number of files available for download.
	CatalogFiles prometheus.Gauge
}

// New creates and registers metrics with the given registerer. If reg is nil,
// metrics are created but not registered.
//
// On re-registration existing collectors are reused.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Current number of named chat sessions",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "total",
			Help:      "Total number of chat sessions that joined",
		}),
		ConnectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "rejected_total",
			Help:      "Total number of connections refused by the connection limit",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcast operations",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "delivery_failures_total",
			Help:      "Total number of broadcast deliveries that could not be queued",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "commands_total",
			Help:      "Total number of dispatched commands",
		}, []string{"command"}),
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "total",
			Help:      "Total number of file transfers",
		}, []string{"direction", "result"}),
		TransferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Total number of payload bytes transferred",
		}, []string{"direction"}),
		TransferDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "duration_seconds",
			Help:      "Duration of file transfers",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"direction"}),
		CatalogFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "files",
			Help:      "Current number of files available for download",
		}),
	}

	if reg != nil {
		m.SessionsActive = registerOrReuse(reg, m.SessionsActive).(prometheus.Gauge)
		m.SessionsTotal = registerOrReuse(reg, m.SessionsTotal).(prometheus.Counter)
		m.ConnectionsRejected = registerOrReuse(reg, m.ConnectionsRejected).(prometheus.Counter)
		m.Broadcasts = registerOrReuse(reg, m.Broadcasts).(prometheus.Counter)
		m.DeliveryFailures = registerOrReuse(reg, m.DeliveryFailures).(prometheus.Counter)
		m.Commands = registerOrReuse(reg, m.Commands).(*prometheus.CounterVec)
		m.Transfers = registerOrReuse(reg, m.Transfers).(*prometheus.CounterVec)
		m.TransferBytes = registerOrReuse(reg, m.TransferBytes).(*prometheus.CounterVec)
		m.TransferDuration = registerOrReuse(reg, m.TransferDuration).(*prometheus.HistogramVec)
		m.CatalogFiles = registerOrReuse(reg, m.CatalogFiles).(prometheus.Gauge)
	}

	return m
}

// registerOrReuse registers a collector with the given registerer.
// If the collector is already registered, the existing one is returned.
// Panics on any other registration failure.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// SessionJoined records a session that completed naming.
func (m *Metrics) SessionJoined() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// SessionLeft records a named session that terminated.
func (m *Metrics) SessionLeft() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// ConnectionRejected records a connection refused by the limit.
func (m *Metrics) ConnectionRejected() {
	if m == nil {
		return
	}
	m.ConnectionsRejected.Inc()
}

// Broadcast records a fan-out with the number of failed deliveries.
func (m *Metrics) Broadcast(failures int) {
	if m == nil {
		return
	}
	m.Broadcasts.Inc()
	if failures > 0 {
		m.DeliveryFailures.Add(float64(failures))
	}
}

// Command records a dispatched command.
func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(name).Inc()
}

// Transfer records a finished transfer.
func (m *Metrics) Transfer(direction string, bytes int64, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.Transfers.WithLabelValues(direction, result).Inc()
	if bytes > 0 {
		m.TransferBytes.WithLabelValues(direction).Add(float64(bytes))
	}
	m.TransferDuration.WithLabelValues(direction).Observe(elapsed.Seconds())
}

// SetCatalogFiles sets the number of downloadable files.
func (m *Metrics) SetCatalogFiles(n int) {
	if m == nil {
		return
	}
	m.CatalogFiles.Set(float64(n))
}
