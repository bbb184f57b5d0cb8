package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/dspace-group/veos-cosim-go/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	StepsExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cosim_steps_executed_total",
		Help: "Total simulation steps completed.",
	})
	SignalsChanged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cosim_signals_changed_total",
		Help: "Total I/O signal changes serialized across all steps.",
	})
	CanTxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cosim_can_tx_messages_total",
		Help: "Total CAN messages transmitted.",
	})
	CanRxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cosim_can_rx_messages_total",
		Help: "Total CAN messages received.",
	})
	EthTxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cosim_eth_tx_messages_total",
		Help: "Total Ethernet messages transmitted.",
	})
	EthRxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cosim_eth_rx_messages_total",
		Help: "Total Ethernet messages received.",
	})
	LinTxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cosim_lin_tx_messages_total",
		Help: "Total LIN messages transmitted.",
	})
	LinRxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cosim_lin_rx_messages_total",
		Help: "Total LIN messages received.",
	})
	FrTxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cosim_fr_tx_messages_total",
		Help: "Total FlexRay messages transmitted.",
	})
	FrRxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cosim_fr_rx_messages_total",
		Help: "Total FlexRay messages received.",
	})
	BusMessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cosim_bus_messages_dropped_total",
		Help: "Total bus messages dropped because a controller's queue was saturated.",
	}, []string{"bus"})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cosim_active_sessions",
		Help: "1 if a client is currently connected, 0 otherwise.",
	})
	PingRoundTripNanoseconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cosim_ping_round_trip_nanoseconds",
		Help: "Most recently observed background ping round-trip time.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (protocol violations, invalid length, truncated).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrAccept      = "accept"
	ErrHandshake   = "handshake"
	ErrStep        = "step"
	ErrPing        = "ping"
	ErrPortMapper  = "portmapper"
	ErrLocalRegion = "local_region"
)

// Bus label constants for BusMessagesDropped.
const (
	BusCan     = "can"
	BusEth     = "eth"
	BusLin     = "lin"
	BusFlexRay = "flexray"
)

// StartHTTP creates its own mux serving Prometheus metrics at /metrics and
// the readiness probe at /ready, and serves it on addr in a background
// goroutine. It returns the server so the caller can shut it down.
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

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localSteps     uint64
	localSignals   uint64
	localCanTx     uint64
	localCanRx     uint64
	localEthTx     uint64
	localEthRx     uint64
	localLinTx     uint64
	localLinRx     uint64
	localFrTx      uint64
	localFrRx      uint64
	localDropped   uint64
	localErrors    uint64
	localMalformed uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	Steps     uint64
	Signals   uint64
	CanTx     uint64
	CanRx     uint64
	EthTx     uint64
	EthRx     uint64
	LinTx     uint64
	LinRx     uint64
	FrTx      uint64
	FrRx      uint64
	Dropped   uint64
	Errors    uint64 // sum across error labels
	Malformed uint64
}

func Snap() Snapshot {
	return Snapshot{
		Steps:     atomic.LoadUint64(&localSteps),
		Signals:   atomic.LoadUint64(&localSignals),
		CanTx:     atomic.LoadUint64(&localCanTx),
		CanRx:     atomic.LoadUint64(&localCanRx),
		EthTx:     atomic.LoadUint64(&localEthTx),
		EthRx:     atomic.LoadUint64(&localEthRx),
		LinTx:     atomic.LoadUint64(&localLinTx),
		LinRx:     atomic.LoadUint64(&localLinRx),
		FrTx:      atomic.LoadUint64(&localFrTx),
		FrRx:      atomic.LoadUint64(&localFrRx),
		Dropped:   atomic.LoadUint64(&localDropped),
		Errors:    atomic.LoadUint64(&localErrors),
		Malformed: atomic.LoadUint64(&localMalformed),
	}
}

// Wrapper helpers to keep call sites simple.
func IncStep() {
	StepsExecuted.Inc()
	atomic.AddUint64(&localSteps, 1)
}

// AddSignalsChanged records how many signals changed in one step.
func AddSignalsChanged(n int) {
	SignalsChanged.Add(float64(n))
	atomic.AddUint64(&localSignals, uint64(n))
}

func IncCanTx() {
	CanTxMessages.Inc()
	atomic.AddUint64(&localCanTx, 1)
}

func IncCanRx() {
	CanRxMessages.Inc()
	atomic.AddUint64(&localCanRx, 1)
}

func IncEthTx() {
	EthTxMessages.Inc()
	atomic.AddUint64(&localEthTx, 1)
}

func IncEthRx() {
	EthRxMessages.Inc()
	atomic.AddUint64(&localEthRx, 1)
}

func IncLinTx() {
	LinTxMessages.Inc()
	atomic.AddUint64(&localLinTx, 1)
}

func IncLinRx() {
	LinRxMessages.Inc()
	atomic.AddUint64(&localLinRx, 1)
}

func IncFrTx() {
	FrTxMessages.Inc()
	atomic.AddUint64(&localFrTx, 1)
}

func IncFrRx() {
	FrRxMessages.Inc()
	atomic.AddUint64(&localFrRx, 1)
}

// IncBusDropped records a message dropped from a saturated controller
// queue, labeled by bus kind (one of the Bus* constants).
func IncBusDropped(bus string) {
	BusMessagesDropped.WithLabelValues(bus).Inc()
	atomic.AddUint64(&localDropped, 1)
}

// SetActiveSessions reports whether a client is currently connected.
func SetActiveSessions(connected bool) {
	if connected {
		ActiveSessions.Set(1)
		return
	}
	ActiveSessions.Set(0)
}

// SetPingRoundTrip records the most recent background ping round-trip time.
func SetPingRoundTrip(nanoseconds int64) {
	PingRoundTripNanoseconds.Set(float64(nanoseconds))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{ErrAccept, ErrHandshake, ErrStep, ErrPing, ErrPortMapper, ErrLocalRegion} {
		Errors.WithLabelValues(lbl).Add(0)
	}
	for _, bus := range []string{BusCan, BusEth, BusLin, BusFlexRay} {
		BusMessagesDropped.WithLabelValues(bus).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
