package api

import (
	"net/http"
	"time"

	"fleetnav/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build":  buildinfo.Info(),
		"time":   time.Now().UTC().Format(time.RFC3339),
		"config": s.Config.Redacted(),
	}
	if s.Queue != nil {
		info["queueLength"] = s.Queue.Len()
	}
	if s.Fleet != nil {
		info["vehiclesOnline"] = s.Fleet.OnlineExecutorsNumber()
		info["vehiclesFree"] = s.Fleet.FreeExecutorsNumber()
	}
	if s.Controller != nil {
		info["reservedEdges"] = len(s.Controller.Reservations())
		info["lockRange"] = s.Controller.LockRange()
	}
	if s.Webhooks != nil {
		info["webhooks"] = s.Webhooks.Stats()
	}
	writeJSON(w, http.StatusOK, info)
}
