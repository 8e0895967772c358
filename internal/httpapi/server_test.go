package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub012/internal/catalog"
	"github.com/dlorp/synapse-engine-sub012/internal/ports"
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

type stubService struct {
	models   []types.ModelEntry
	enabled  map[string]bool
	applyIDs []string
	started  bool
	stopped  bool
}

func newStubService() *stubService {
	port := 9001
	return &stubService{
		models: []types.ModelEntry{
			{
				ID: "llama-3.1-8b-q4_k_m-balanced", Filename: "llama-3.1-8b.Q4_K_M.gguf",
				Family: "llama", SizeParams: 8, Quantization: "Q4_K_M",
				AssignedTier: types.TierBalanced, Port: &port, Enabled: true,
			},
			{
				ID: "qwen-14b-q4_k_m-powerful", Filename: "qwen-14b-q4_k_m.gguf",
				Family: "qwen", SizeParams: 14, Quantization: "Q4_K_M",
				AssignedTier: types.TierPowerful,
			},
		},
		enabled: map[string]bool{},
	}
}

func (s *stubService) has(id string) bool {
	for _, m := range s.models {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *stubService) ListModels() []types.ModelEntry { return s.models }

func (s *stubService) Status() types.StatusResponse {
	return types.StatusResponse{
		Models:  len(s.models),
		Enabled: 1,
		Processes: []types.ProcessStatus{
			{ModelID: s.models[0].ID, Port: 9001, State: "ready", StartTime: time.Now()},
		},
		ByTier:   map[types.Tier]int{types.TierBalanced: 1, types.TierPowerful: 1},
		BinFound: true,
	}
}

func (s *stubService) Rescan(ctx context.Context) (types.ScanReport, error) {
	return types.ScanReport{ScanPath: "/models", Found: 2, Added: 2}, nil
}

func (s *stubService) SetModelEnabled(id string, enabled bool) error {
	if !s.has(id) {
		return &catalog.NotFoundError{ID: id}
	}
	s.enabled[id] = enabled
	return nil
}

func (s *stubService) SetModelPort(id string, port int) (bool, error) {
	if !s.has(id) {
		return false, &catalog.NotFoundError{ID: id}
	}
	if port == 9001 {
		return false, &ports.ConflictError{Port: port, HolderID: s.models[0].ID}
	}
	return true, nil
}

func (s *stubService) ResolveProfile(name string) ([]string, error) {
	if name != "coding" {
		return nil, &catalog.NotFoundError{ID: name}
	}
	return []string{s.models[0].ID}, nil
}

func (s *stubService) ApplyProfile(ctx context.Context, ids []string) (types.FleetReport, error) {
	s.applyIDs = ids
	return types.FleetReport{Total: len(ids), Ready: len(ids)}, nil
}

func (s *stubService) StartAll(ctx context.Context) (types.FleetReport, error) {
	s.started = true
	return types.FleetReport{Total: 1, Ready: 1}, nil
}

func (s *stubService) StopAll(ctx context.Context) types.StopReport {
	s.stopped = true
	return types.StopReport{Total: 1, Stopped: 1}
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestModelsEndpoint(t *testing.T) {
	h := NewMux(newStubService(), zerolog.Nop())
	rec := doJSON(t, h, http.MethodGet, "/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp struct {
		Models []map[string]any `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Models) != 2 {
		t.Fatalf("models: %d", len(resp.Models))
	}
	if resp.Models[0]["id"] != "llama-3.1-8b-q4_k_m-balanced" {
		t.Fatalf("id field missing: %v", resp.Models[0])
	}
	if _, ok := resp.Models[0]["filePath"]; !ok {
		t.Fatalf("entry fields not inlined: %v", resp.Models[0])
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := NewMux(newStubService(), zerolog.Nop())
	rec := doJSON(t, h, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp types.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Models != 2 || !resp.BinFound || len(resp.Processes) != 1 {
		t.Fatalf("resp: %+v", resp)
	}
}

func TestEnableValidation(t *testing.T) {
	svc := newStubService()
	h := NewMux(svc, zerolog.Nop())

	rec := doJSON(t, h, http.MethodPost, "/models/qwen-14b-q4_k_m-powerful/enable", `{"enabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", rec.Code, rec.Body.String())
	}
	if !svc.enabled["qwen-14b-q4_k_m-powerful"] {
		t.Fatalf("enable not applied")
	}

	rec = doJSON(t, h, http.MethodPost, "/models/nope/enable", `{"enabled":true}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown model: %d", rec.Code)
	}
	var errResp types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil || errResp.Code != http.StatusNotFound {
		t.Fatalf("error payload: %s", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/models/nope/enable", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing field: %d", rec.Code)
	}

	// wrong content type
	req := httptest.NewRequest(http.MethodPost, "/models/nope/enable", strings.NewReader(`{"enabled":true}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("content type: %d", w.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/models/nope/enable", `{bad`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: %d", rec.Code)
	}
}

func TestPortEndpoint(t *testing.T) {
	h := NewMux(newStubService(), zerolog.Nop())

	rec := doJSON(t, h, http.MethodPost, "/models/llama-3.1-8b-q4_k_m-balanced/port", `{"port":9001}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("conflict: %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/models/llama-3.1-8b-q4_k_m-balanced/port", `{"port":9050}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["restartRequired"] != true {
		t.Fatalf("restart flag: %v", resp)
	}

	rec = doJSON(t, h, http.MethodPost, "/models/llama-3.1-8b-q4_k_m-balanced/port", `{"port":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero port: %d", rec.Code)
	}
}

func TestProfileApply(t *testing.T) {
	svc := newStubService()
	h := NewMux(svc, zerolog.Nop())

	rec := doJSON(t, h, http.MethodPost, "/profiles/apply", `{"profile":"coding"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", rec.Code, rec.Body.String())
	}
	if len(svc.applyIDs) != 1 || svc.applyIDs[0] != svc.models[0].ID {
		t.Fatalf("resolved ids: %v", svc.applyIDs)
	}

	rec = doJSON(t, h, http.MethodPost, "/profiles/apply", `{"models":["a","b"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("explicit models: %d", rec.Code)
	}
	if len(svc.applyIDs) != 2 {
		t.Fatalf("explicit ids: %v", svc.applyIDs)
	}

	rec = doJSON(t, h, http.MethodPost, "/profiles/apply", `{"profile":"nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown profile: %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/profiles/apply", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty request: %d", rec.Code)
	}
}

func TestFleetEndpoints(t *testing.T) {
	svc := newStubService()
	h := NewMux(svc, zerolog.Nop())

	rec := doJSON(t, h, http.MethodPost, "/fleet/start", "")
	if rec.Code != http.StatusOK || !svc.started {
		t.Fatalf("start: %d started=%v", rec.Code, svc.started)
	}
	rec = doJSON(t, h, http.MethodPost, "/fleet/stop", "")
	if rec.Code != http.StatusOK || !svc.stopped {
		t.Fatalf("stop: %d stopped=%v", rec.Code, svc.stopped)
	}

	rec = doJSON(t, h, http.MethodPost, "/rescan", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("rescan: %d", rec.Code)
	}
	var report types.ScanReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil || report.Found != 2 {
		t.Fatalf("report: %s", rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := NewMux(newStubService(), zerolog.Nop())

	rec := doJSON(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}

	// a couple of requests so counters have samples
	doJSON(t, h, http.MethodGet, "/models", "")
	rec = doJSON(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "synapsed_http_requests_total") {
		t.Fatalf("request counter missing from exposition")
	}
}
