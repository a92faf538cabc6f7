// Package api serves the daemon's HTTP status and command surface.
package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/bpriyal/s2sGeoAdapter/internal/geostore"
	"github.com/bpriyal/s2sGeoAdapter/internal/httputil"
	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
	"github.com/bpriyal/s2sGeoAdapter/internal/version"
)

// StateSource exposes the daemon's latest published state; the daemon
// service implements it.
type StateSource interface {
	Latest() (shm.WorldState, shm.ContextFrame)
	Iterations() uint64
}

// Commander accepts free-text activation commands; the provider dispatcher
// implements it.
type Commander interface {
	ProcessCommand(command string) bool
}

// ProviderInfo exposes the provider registry's observable state.
type ProviderInfo interface {
	ActiveName() string
	Providers() []string
}

// FixLister exposes recent stored fixes; the geostore implements it. May be
// absent when the store is disabled.
type FixLister interface {
	RecentFixes(limit int) ([]geostore.Fix, error)
}

// Server routes the daemon API.
type Server struct {
	state     StateSource
	commander Commander
	providers ProviderInfo
	fixes     FixLister
}

// NewServer wires a server; fixes may be nil.
func NewServer(state StateSource, commander Commander, providers ProviderInfo, fixes FixLister) *Server {
	return &Server{state: state, commander: commander, providers: providers, fixes: fixes}
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/command", s.commandHandler)
	mux.HandleFunc("/fixes", s.fixesHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	return mux
}

type statusResponse struct {
	Version        string  `json:"version"`
	Iterations     uint64  `json:"iterations"`
	ActivePlugin   string  `json:"active_plugin"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Alt            float64 `json:"alt"`
	CellID         string  `json:"cell_id"`
	CellLevel      int32   `json:"cell_level"`
	IsMoving       bool    `json:"is_moving"`
	StepCount      uint32  `json:"step_count"`
	DistanceM      float64 `json:"distance_m"`
	UpdateSequence uint32  `json:"update_sequence"`
	RoadName       string  `json:"road_name,omitempty"`
	Surface        string  `json:"surface,omitempty"`
	Traffic        string  `json:"traffic,omitempty"`
	Gradient       float64 `json:"gradient_percent"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ws, cf := s.state.Latest()
	httputil.WriteJSON(w, http.StatusOK, statusResponse{
		Version:        version.Version,
		Iterations:     s.state.Iterations(),
		ActivePlugin:   s.providers.ActiveName(),
		Lat:            ws.SmoothedLat,
		Lon:            ws.SmoothedLon,
		Alt:            ws.SmoothedAlt,
		CellID:         fmt.Sprintf("%#x", ws.CellID),
		CellLevel:      ws.CellLevel,
		IsMoving:       ws.IsMoving,
		StepCount:      ws.StepCount,
		DistanceM:      ws.EstimatedDistanceM,
		UpdateSequence: ws.UpdateSequence,
		RoadName:       shm.FixedString(cf.RoadName[:]),
		Surface:        shm.FixedString(cf.Surface[:]),
		Traffic:        shm.FixedString(cf.Traffic[:]),
		Gradient:       cf.GradientPercent,
	})
}

func (s *Server) commandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	command := r.FormValue("command")
	if command == "" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "command is required")
		return
	}
	if !s.commander.ProcessCommand(command) {
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, "unknown command")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"active_plugin": s.providers.ActiveName(),
		"providers":     s.providers.Providers(),
	})
}

func (s *Server) fixesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.fixes == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "fix store disabled")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	fixes, err := s.fixes.RecentFixes(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "failed to list fixes")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fixes)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
