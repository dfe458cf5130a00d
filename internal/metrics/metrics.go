// Package metrics exposes Prometheus counters/gauges for the acquisition
// pipeline, following the teacher's promauto + local-atomic-mirror pattern
// (internal/metrics/metrics.go) so structured log lines can report the same
// numbers without round-tripping through a scrape.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rforge/acquisitiond/internal/logging"
)

var (
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frames_decoded_total",
		Help: "Total frames successfully decoded by the parser multiplexer.",
	})
	CRCErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crc_errors_total",
		Help: "Total CRC/resync errors observed by the binary parser.",
	})
	BytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_bytes_read_total",
		Help: "Total bytes read from the transport.",
	})
	CommandsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commands_sent_total",
		Help: "Total commands written to the transport via send_command.",
	})
	RecordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "record_chunks_written_total",
		Help: "Total record chunks appended to the record sink.",
	})
	RingEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decoder_ring_evictions_total",
		Help: "Total frames evicted from the data decoder's bounded ring.",
	})
	DroppedPayloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decoder_dropped_payloads_total",
		Help: "Total StreamData payloads dropped because no token parsed.",
	})
	RemoteClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "remote_active_clients",
		Help: "Current number of connected remote telemetry clients.",
	})
	RemoteDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remote_dropped_events_total",
		Help: "Total telemetry events dropped due to slow remote clients.",
	})
	RemoteKicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remote_kicked_clients_total",
		Help: "Total remote clients disconnected by the backpressure kick policy.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrTransportRead  = "transport_read"
	ErrTransportWrite = "transport_write"
	ErrTransportOpen  = "transport_open"
	ErrRecordWrite    = "record_write"
	ErrRemoteAccept   = "remote_accept"
	ErrRemoteHandshake = "remote_handshake"
)

// StartHTTP serves Prometheus metrics at /metrics, plus a /ready endpoint.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters so log lines can report the same numbers cheaply.
var (
	localFramesDecoded   uint64
	localCRCErrors       uint64
	localBytesRead       uint64
	localCommandsSent    uint64
	localRecordsWritten  uint64
	localRingEvictions   uint64
	localDroppedPayloads uint64
	localRemoteClients   uint64
	localRemoteDropped   uint64
	localRemoteKicked    uint64
	localErrors          uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	FramesDecoded   uint64
	CRCErrors       uint64
	BytesRead       uint64
	CommandsSent    uint64
	RecordsWritten  uint64
	RingEvictions   uint64
	DroppedPayloads uint64
	RemoteClients   uint64
	RemoteDropped   uint64
	RemoteKicked    uint64
	Errors          uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesDecoded:   atomic.LoadUint64(&localFramesDecoded),
		CRCErrors:       atomic.LoadUint64(&localCRCErrors),
		BytesRead:       atomic.LoadUint64(&localBytesRead),
		CommandsSent:    atomic.LoadUint64(&localCommandsSent),
		RecordsWritten:  atomic.LoadUint64(&localRecordsWritten),
		RingEvictions:   atomic.LoadUint64(&localRingEvictions),
		DroppedPayloads: atomic.LoadUint64(&localDroppedPayloads),
		RemoteClients:   atomic.LoadUint64(&localRemoteClients),
		RemoteDropped:   atomic.LoadUint64(&localRemoteDropped),
		RemoteKicked:    atomic.LoadUint64(&localRemoteKicked),
		Errors:          atomic.LoadUint64(&localErrors),
	}
}

func IncFramesDecoded() {
	FramesDecoded.Inc()
	atomic.AddUint64(&localFramesDecoded, 1)
}

func IncCRCErrors() {
	CRCErrors.Inc()
	atomic.AddUint64(&localCRCErrors, 1)
}

func AddBytesRead(n int) {
	BytesRead.Add(float64(n))
	atomic.AddUint64(&localBytesRead, uint64(n))
}

func IncCommandsSent() {
	CommandsSent.Inc()
	atomic.AddUint64(&localCommandsSent, 1)
}

func IncRecordsWritten() {
	RecordsWritten.Inc()
	atomic.AddUint64(&localRecordsWritten, 1)
}

func IncRingEvictions() {
	RingEvictions.Inc()
	atomic.AddUint64(&localRingEvictions, 1)
}

func IncDroppedPayloads() {
	DroppedPayloads.Inc()
	atomic.AddUint64(&localDroppedPayloads, 1)
}

func SetRemoteClients(n int) {
	RemoteClients.Set(float64(n))
	atomic.StoreUint64(&localRemoteClients, uint64(n))
}

func IncRemoteDropped() {
	RemoteDropped.Inc()
	atomic.AddUint64(&localRemoteDropped, 1)
}

func IncRemoteKicked() {
	RemoteKicked.Inc()
	atomic.AddUint64(&localRemoteKicked, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrTransportRead, ErrTransportWrite, ErrTransportOpen, ErrRecordWrite,
		ErrRemoteAccept, ErrRemoteHandshake,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
