package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SkyZonDev/scrappex/internal/models"
	"github.com/SkyZonDev/scrappex/internal/race"
)

const namespace = "scrappex"

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	// Dispatch offsets are expected well under 5ms.
	offsetBuckets = []float64{0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.05}
)

// Recorder exports race events as Prometheus series. It implements
// race.Observer.
type Recorder struct {
	phases         *prometheus.CounterVec
	attempts       *prometheus.CounterVec
	attemptLatency *prometheus.HistogramVec
	syncOffset     prometheus.Histogram
	outcomes       *prometheus.CounterVec
	warmupFailures prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

var _ race.Observer = (*Recorder)(nil)

// NewRecorder registers collectors with reg, reusing ones already registered
// by an earlier Recorder.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "race",
			Name: "phase_transitions_total",
			Help: "Lot phase transitions by destination phase",
		}, []string{"phase"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "race",
			Name: "attempts_total",
			Help: "Purchase attempts by verdict",
		}, []string{"verdict"}),
		attemptLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "race",
			Name:    "attempt_duration_seconds",
			Help:    "Round trip of purchase attempts",
			Buckets: latencyBuckets,
		}, []string{"conn_reused"}),
		syncOffset: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "race",
			Name:    "dispatch_offset_seconds",
			Help:    "Delay between a lot target and its first dispatched attempt",
			Buckets: offsetBuckets,
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "race",
			Name: "lot_outcomes_total",
			Help: "Resolved lots by outcome",
		}, []string{"outcome"}),
		warmupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "race",
			Name: "warmup_failures_total",
			Help: "Warm-up requests that failed",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "api",
			Name: "http_requests_total",
			Help: "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "api",
			Name:    "http_request_duration_seconds",
			Help:    "Latency distribution of HTTP handlers",
			Buckets: latencyBuckets,
		}, []string{"method", "route"}),
	}

	r.phases = register(reg, r.phases)
	r.attempts = register(reg, r.attempts)
	r.attemptLatency = register(reg, r.attemptLatency)
	r.syncOffset = register(reg, r.syncOffset)
	r.outcomes = register(reg, r.outcomes)
	r.warmupFailures = register(reg, r.warmupFailures)
	r.httpRequests = register(reg, r.httpRequests)
	r.httpLatency = register(reg, r.httpLatency)
	return r
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (r *Recorder) PhaseChanged(_ int64, from, to race.Phase) {
	if from == to {
		return
	}
	r.phases.WithLabelValues(to.String()).Inc()
}

func (r *Recorder) WarmupFinished(_ int64, err error) {
	if err != nil {
		r.warmupFailures.Inc()
	}
}

func (r *Recorder) AttemptFinished(rec models.AttemptRecord) {
	r.attempts.WithLabelValues(string(rec.Verdict)).Inc()
	r.attemptLatency.WithLabelValues(strconv.FormatBool(rec.ConnReused)).Observe(rec.Elapsed.Seconds())
}

func (r *Recorder) LotResolved(res models.LotResult) {
	r.outcomes.WithLabelValues(string(res.Outcome)).Inc()
	if res.Outcome != models.OutcomeCancelled {
		r.syncOffset.Observe(res.SyncOffset.Seconds())
	}
}

// ObserveRequest records one handled API request.
func (r *Recorder) ObserveRequest(method, route string, status int, d time.Duration) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
