package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"fleetnav/internal/auth"
	"fleetnav/internal/config"
	"fleetnav/internal/events"
	"fleetnav/internal/fleet"
	"fleetnav/internal/graph"
	"fleetnav/internal/metrics"
	"fleetnav/internal/opt"
	"fleetnav/internal/queue"
	"fleetnav/internal/store"
	"fleetnav/internal/traffic"
	"fleetnav/internal/webhooks"
)

type Deps struct {
	Store      store.Store
	Broker     events.Broker
	Graph      *graph.Graph
	Controller *traffic.Controller
	Queue      *queue.Queue
	Optimizer  *opt.Optimizer
	Fleet      *fleet.Manager
	Auth       *auth.Verifier
	Webhooks   *webhooks.Worker
	Config     config.Config
	Logger     *slog.Logger
}

type Server struct {
	Deps
	log *slog.Logger
	// intake throttles task submission.
	intake *rate.Limiter
}

func NewServer(d Deps) *Server {
	s := &Server{Deps: d, log: d.Logger}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.Auth == nil {
		s.Auth = &auth.Verifier{Mode: auth.ModeOff}
	}
	limit := rate.Inf
	if d.Config.RateRPS > 0 {
		limit = rate.Limit(d.Config.RateRPS)
	}
	burst := d.Config.RateBurst
	if burst <= 0 {
		burst = 1
	}
	s.intake = rate.NewLimiter(limit, burst)
	return s
}

// Routes registers every endpoint and wraps them in the request log and
// metrics middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Tasks
	mux.HandleFunc("/v1/tasks", s.TasksHandler)
	mux.HandleFunc("/v1/tasks/", s.TaskByIDHandler)

	// Graph and traffic
	mux.HandleFunc("/v1/paths", s.PathsHandler)
	mux.HandleFunc("/v1/edges", s.EdgesHandler)
	mux.HandleFunc("/v1/reservations", s.ReservationsHandler)

	// Fleet
	mux.HandleFunc("/v1/vehicles", s.VehiclesHandler)
	mux.HandleFunc("/v1/vehicles/", s.VehicleByIDHandler)
	mux.HandleFunc("/v1/dispatches", s.DispatchesHandler)

	// Optimizer
	mux.HandleFunc("/v1/optimizer/runs", s.OptimizerRunsHandler)

	// Live events
	mux.HandleFunc("/v1/events/ws", s.EventsWSHandler)

	// Docs
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)

	// Health and ops
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/debug/info", s.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return s.logMiddleware(metricsMiddleware(mux))
}

func (s *Server) publish(evt events.Event) {
	if s.Broker != nil {
		s.Broker.Publish(events.Topic, evt)
	}
}
