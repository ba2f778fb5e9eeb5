package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Reservations counts reservation decisions by outcome
	Reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reservations_total", Help: "Segment reservation decisions by result."},
		[]string{"result"},
	)
	// ReservedEdges is the size of the reservation table
	ReservedEdges = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "reserved_edges", Help: "Edges currently reserved."},
	)
	Dispatches = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dispatches_total", Help: "Tasks handed to executors."},
	)
	QueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "queue_length", Help: "Tasks waiting for dispatch."},
	)
	Optimizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizations_total", Help: "Queue optimization passes by result."},
		[]string{"result"},
	)
	OptimizationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "optimization_duration_seconds", Help: "Queue optimization pass duration.", Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5}},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Reservations)
		Registry.MustRegister(ReservedEdges)
		Registry.MustRegister(Dispatches)
		Registry.MustRegister(QueueLength)
		Registry.MustRegister(Optimizations)
		Registry.MustRegister(OptimizationDuration)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Observer feeds the collectors from the traffic controller, the optimizer
// and the scheduler.
type Observer struct{}

func (Observer) ObserveReservation(result string, reservedEdges int) {
	Reservations.WithLabelValues(result).Inc()
	ReservedEdges.Set(float64(reservedEdges))
}

func (Observer) ObserveOptimization(result string, took time.Duration, _ int) {
	Optimizations.WithLabelValues(result).Inc()
	OptimizationDuration.Observe(took.Seconds())
}

func (Observer) ObserveDispatch(n int) { Dispatches.Add(float64(n)) }

func (Observer) ObserveQueueLength(n int) { QueueLength.Set(float64(n)) }
