// Package api provides the HTTP API for querying sweep results.
// Every endpoint is a read-only GET; the live websocket stream is mounted
// alongside when a hub is configured.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/talgya/rescue-sweep/internal/observe"
	"github.com/talgya/rescue-sweep/internal/persistence"
)

// Server serves stored sweep runs over HTTP.
type Server struct {
	DB  *persistence.DB
	Hub *observe.Hub // optional live stream at /ws
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/run/", s.handleRunRoutes)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	if s.Hub != nil {
		mux.HandleFunc("/ws", s.Hub.ServeWS)
	}

	return corsMiddleware(mux)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name": "rescue-sweep",
	}
	if last, err := s.DB.GetMeta("last_run"); err == nil {
		status["last_run"] = last
	}
	if s.Hub != nil {
		status["watchers"] = s.Hub.Clients()
		status["dropped"] = s.Hub.Dropped()
	}
	writeJSON(w, status)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.DB.Runs()
	if err != nil {
		s.fail(w, "list runs", err)
		return
	}
	type runEntry struct {
		ID         string  `json:"id"`
		Scenario   string  `json:"scenario"`
		Policy     string  `json:"policy"`
		StartedAt  string  `json:"started_at"`
		FinishedAt *string `json:"finished_at,omitempty"`
	}
	out := make([]runEntry, 0, len(runs))
	for _, run := range runs {
		out = append(out, runEntry{run.ID, run.Scenario, run.Policy, run.StartedAt, run.FinishedAt})
	}
	writeJSON(w, out)
}

// handleRunRoutes dispatches GET /api/v1/run/:id[/trials|/points|/events|/config].
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/run/"), "/")
	id, sub, _ := strings.Cut(path, "/")
	if id == "" {
		http.Error(w, "missing run id", http.StatusBadRequest)
		return
	}

	run, err := s.DB.GetRun(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, "get run", err)
		return
	}

	switch sub {
	case "":
		points, err := s.DB.PointSummary(id)
		if err != nil {
			s.fail(w, "point summary", err)
			return
		}
		writeJSON(w, map[string]any{
			"id":          run.ID,
			"scenario":    run.Scenario,
			"policy":      run.Policy,
			"started_at":  run.StartedAt,
			"finished_at": run.FinishedAt,
			"points":      points,
		})
	case "trials":
		trials, err := s.DB.TrialResults(id)
		if err != nil {
			s.fail(w, "trial results", err)
			return
		}
		writeJSON(w, trials)
	case "points":
		points, err := s.DB.PointSummary(id)
		if err != nil {
			s.fail(w, "point summary", err)
			return
		}
		writeJSON(w, points)
	case "events":
		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		events, err := s.DB.RecentEvents(id, limit)
		if err != nil {
			s.fail(w, "recent events", err)
			return
		}
		if category := r.URL.Query().Get("category"); category != "" {
			filtered := events[:0]
			for _, e := range events {
				if e.Category == category {
					filtered = append(filtered, e)
				}
			}
			events = filtered
		}
		writeJSON(w, events)
	case "config":
		w.Header().Set("Content-Type", "application/toml")
		w.Write([]byte(run.Config))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	slog.Error("api query failed", "query", what, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
