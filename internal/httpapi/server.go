package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// Service defines the engine surface required by the control API.
type Service interface {
	ListModels() []types.ModelEntry
	Status() types.StatusResponse
	Rescan(ctx context.Context) (types.ScanReport, error)
	SetModelEnabled(modelID string, enabled bool) error
	SetModelPort(modelID string, port int) (restartRequired bool, err error)
	ResolveProfile(name string) ([]string, error)
	ApplyProfile(ctx context.Context, modelIDs []string) (types.FleetReport, error)
	StartAll(ctx context.Context) (types.FleetReport, error)
	StopAll(ctx context.Context) types.StopReport
}

// maxBodyBytes caps request bodies on JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

// modelPayload adds the catalog key to the wire form of a model entry.
type modelPayload struct {
	ID string `json:"id"`
	types.ModelEntry
}

func modelPayloads(models []types.ModelEntry) []modelPayload {
	out := make([]modelPayload, 0, len(models))
	for _, m := range models {
		out = append(out, modelPayload{ID: m.ID, ModelEntry: m})
	}
	return out
}

func NewMux(svc Service, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(requestLogger(log))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"models": modelPayloads(svc.ListModels())})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		status := svc.Status()
		ObserveFleet(status)
		writeJSON(w, http.StatusOK, status)
	})

	r.Post("/rescan", func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.Rescan(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Post("/models/{id}/enable", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Enabled *bool `json:"enabled"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Enabled == nil {
			writeJSONError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		id := chi.URLParam(r, "id")
		if err := svc.SetModelEnabled(id, *req.Enabled); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": *req.Enabled})
	})

	r.Post("/models/{id}/port", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Port int `json:"port"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Port <= 0 {
			writeJSONError(w, http.StatusBadRequest, "port is required")
			return
		}
		id := chi.URLParam(r, "id")
		restart, err := svc.SetModelPort(id, req.Port)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id": id, "port": req.Port, "restartRequired": restart,
		})
	})

	r.Post("/profiles/apply", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Profile string   `json:"profile"`
			Models  []string `json:"models"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		ids := req.Models
		if req.Profile != "" {
			resolved, err := svc.ResolveProfile(req.Profile)
			if err != nil {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			ids = resolved
		}
		if len(ids) == 0 {
			writeJSONError(w, http.StatusBadRequest, "profile or models is required")
			return
		}
		report, err := svc.ApplyProfile(r.Context(), ids)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Post("/fleet/start", func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.StartAll(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Post("/fleet/stop", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.StopAll(r.Context()))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// decodeJSON enforces the content type and body cap, then decodes into v.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// headers are out; nothing useful left to send
		return
	}
}
