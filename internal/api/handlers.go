package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"fleetnav/internal/events"
	"fleetnav/internal/fleet"
	"fleetnav/internal/graph"
	"fleetnav/internal/model"
	"fleetnav/internal/store"
)

// TasksHandler handles POST/GET /v1/tasks
func (s *Server) TasksHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !s.requireOperator(w, r) {
			return
		}
		var req struct {
			Tasks []model.TaskIn `json:"tasks"`
		}
		if !readJSON(w, r, &req) {
			return
		}
		if err := validateTasks(s.Graph, req.Tasks); err != nil {
			writeProblem(w, http.StatusUnprocessableEntity, "Invalid tasks", err.Error(), r.URL.Path)
			return
		}
		if !s.intake.AllowN(time.Now(), len(req.Tasks)) {
			w.Header().Set("Retry-After", "1")
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "task intake rate exceeded", r.URL.Path)
			return
		}
		tasks := make([]*model.Task, len(req.Tasks))
		ids := make([]string, len(req.Tasks))
		for i, in := range req.Tasks {
			tasks[i] = model.NewTask(in.Source, in.Destination)
			ids[i] = tasks[i].ID
		}
		if err := s.Store.CreateTasks(r.Context(), tasks); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create tasks failed", err.Error(), r.URL.Path)
			return
		}
		s.Queue.BatchEnqueue(tasks)
		for _, t := range tasks {
			s.publish(events.New(events.TaskQueued, map[string]any{
				"taskId": t.ID, "source": t.Source, "destination": t.Destination,
			}))
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"created": len(ids), "ids": ids})
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.Queue.QueueView())
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// TaskByIDHandler handles GET /v1/tasks/{id}
func (s *Server) TaskByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tasks/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	rec, err := s.Store.GetTask(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Task not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get task failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type pathOut struct {
	Path graph.Path `json:"path"`
	Cost float64    `json:"cost"`
}

// PathsHandler handles GET /v1/paths?from=&to=&k=
func (s *Server) PathsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	from, err1 := queryInt(r, "from", -1)
	to, err2 := queryInt(r, "to", -1)
	k, err3 := queryInt(r, "k", 3)
	if err := errors.Join(err1, err2, err3); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
		return
	}
	src, dst := graph.NodeID(from), graph.NodeID(to)
	if !s.Graph.HasNode(src) || !s.Graph.HasNode(dst) {
		writeProblem(w, http.StatusNotFound, "Unknown node", "from and to must be graph nodes", r.URL.Path)
		return
	}
	if k < 1 || k > maxK {
		writeProblem(w, http.StatusBadRequest, "Invalid query", "k must be between 1 and 10", r.URL.Path)
		return
	}
	paths := s.Graph.KShortestPaths(src, dst, k)
	out := make([]pathOut, 0, len(paths))
	for _, p := range paths {
		c, _ := s.Graph.PathCost(p)
		out = append(out, pathOut{Path: p, Cost: c})
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": src, "to": dst, "paths": out})
}

// EdgesHandler handles GET/POST /v1/edges. POST upserts weights and persists
// them so a restart keeps the changed graph.
func (s *Server) EdgesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"edges": s.Graph.EdgeList()})
	case http.MethodPost:
		if !s.requireOperator(w, r) {
			return
		}
		var req struct {
			Edges      []graph.Edge `json:"edges"`
			Undirected bool         `json:"undirected"`
		}
		if !readJSON(w, r, &req) {
			return
		}
		if err := validateEdges(req.Edges); err != nil {
			writeProblem(w, http.StatusUnprocessableEntity, "Invalid edges", err.Error(), r.URL.Path)
			return
		}
		edges := req.Edges
		if req.Undirected {
			for _, e := range req.Edges {
				edges = append(edges, graph.Edge{From: e.To, To: e.From, Weight: e.Weight})
			}
		}
		if err := s.Store.SaveEdges(r.Context(), edges); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save edges failed", err.Error(), r.URL.Path)
			return
		}
		if err := s.Graph.AddEdges(edges...); err != nil {
			writeProblem(w, http.StatusUnprocessableEntity, "Invalid edges", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"upserted": len(edges)})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// ReservationsHandler handles GET /v1/reservations
func (s *Server) ReservationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	res := s.Controller.Reservations()
	out := make([]model.Reservation, 0, len(res))
	for k, owner := range res {
		out = append(out, model.Reservation{From: k.From, To: k.To, Owner: string(owner)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	writeJSON(w, http.StatusOK, map[string]any{"lockRange": s.Controller.LockRange(), "items": out})
}

// VehiclesHandler handles GET/POST /v1/vehicles
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"items": s.Fleet.Vehicles()})
	case http.MethodPost:
		if !s.requireOperator(w, r) {
			return
		}
		var req struct {
			Position graph.NodeID `json:"position"`
		}
		if !readJSON(w, r, &req) {
			return
		}
		if !s.Graph.HasNode(req.Position) {
			writeProblem(w, http.StatusUnprocessableEntity, "Unknown node", "position must be a graph node", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": s.Fleet.Register(req.Position)})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// VehicleByIDHandler handles GET /v1/vehicles/{id} and
// POST /v1/vehicles/{id}/heartbeat|offline
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/vehicles/"), "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		for _, v := range s.Fleet.Vehicles() {
			if v.ID == id {
				writeJSON(w, http.StatusOK, v)
				return
			}
		}
		writeProblem(w, http.StatusNotFound, "Vehicle not found", id, r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var err error
	switch action {
	case "heartbeat":
		err = s.Fleet.Heartbeat(id)
	case "offline":
		if !s.requireOperator(w, r) {
			return
		}
		err = s.Fleet.SetOffline(id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "unknown action "+action, r.URL.Path)
		return
	}
	if errors.Is(err, fleet.ErrUnknownExecutor) {
		writeProblem(w, http.StatusNotFound, "Vehicle not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Vehicle update failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DispatchesHandler handles GET /v1/dispatches?cursor=&limit=
func (s *Server) DispatchesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
		return
	}
	items, next, err := s.Store.ListDispatches(r.Context(), r.URL.Query().Get("cursor"), limit)
	if errors.Is(err, store.ErrBadCursor) {
		writeProblem(w, http.StatusBadRequest, "Invalid cursor", err.Error(), r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List dispatches failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// OptimizerRunsHandler handles GET /v1/optimizer/runs
func (s *Server) OptimizerRunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Optimizer.History().Runs()})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler pings the store and the event broker when they can be pinged.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface{ Ping(ctx context.Context) error }
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	for name, dep := range map[string]any{"store": s.Store, "broker": s.Broker} {
		pg, ok := dep.(pinger)
		if !ok {
			continue
		}
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", name+": "+err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
