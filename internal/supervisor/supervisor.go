// Package supervisor owns the mapping from model ID to running server
// process: spawn, readiness detection from the diagnostic stream, health
// polling and two-phase termination.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub012/internal/events"
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// Config carries the launch and shutdown tunables.
type Config struct {
	// BinPath is the llama-server binary.
	BinPath string
	// Host is the bind address handed to every server.
	Host string

	MaxStartupTime  time.Duration
	ShutdownTimeout time.Duration
	// ForceKillGrace bounds the wait after a kill escalation, independent of
	// the caller-supplied stop timeout.
	ForceKillGrace time.Duration
	HealthInterval time.Duration

	// Global runtime defaults; per-model overrides win.
	NGPULayers int
	CtxSize    int
	NThreads   int
	BatchSize  int
}

type Supervisor struct {
	cfg        Config
	log        zerolog.Logger
	pub        events.Publisher
	httpClient *http.Client

	mu    sync.Mutex
	procs map[string]*ManagedProcess
	locks map[string]*sync.Mutex
}

// New constructs a Supervisor. pub may be nil.
func New(cfg Config, log zerolog.Logger, pub events.Publisher) *Supervisor {
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	// Timeout stays 0: health checks carry their own context deadlines.
	return &Supervisor{
		cfg:        cfg,
		log:        log,
		pub:        pub,
		httpClient: &http.Client{Timeout: 0},
		procs:      make(map[string]*ManagedProcess),
		locks:      make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-model mutex, creating it on first use. Launch and
// Stop for the same model serialize on it; different models proceed
// independently.
func (s *Supervisor) lockFor(modelID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lk, ok := s.locks[modelID]
	if !ok {
		lk = &sync.Mutex{}
		s.locks[modelID] = lk
	}
	return lk
}

// Get returns the live process for a model, if tracked.
func (s *Supervisor) Get(modelID string) (*ManagedProcess, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[modelID]
	return p, ok
}

// Tracked lists the model IDs with a live process, sorted.
func (s *Supervisor) Tracked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.procs))
	for id := range s.procs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Statuses projects the fleet into API payloads.
func (s *Supervisor) Statuses() []types.ProcessStatus {
	s.mu.Lock()
	procs := make([]*ManagedProcess, 0, len(s.procs))
	for _, p := range s.procs {
		procs = append(procs, p)
	}
	s.mu.Unlock()
	out := make([]types.ProcessStatus, 0, len(procs))
	for _, p := range procs {
		out = append(out, types.ProcessStatus{
			ModelID:   p.ModelID,
			Port:      p.Port,
			State:     string(p.State()),
			StartTime: p.StartTime,
			Warned:    p.Warned(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// reap drops a terminal process from the map.
func (s *Supervisor) reap(p *ManagedProcess) {
	s.mu.Lock()
	if cur, ok := s.procs[p.ModelID]; ok && cur == p {
		delete(s.procs, p.ModelID)
	}
	s.mu.Unlock()
}

// HealthCheck asks one managed server for liveness.
func (s *Supervisor) HealthCheck(ctx context.Context, p *ManagedProcess) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	url := fmt.Sprintf("http://%s:%d/health", s.cfg.Host, p.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// MonitorHealth polls every READY process until ctx is done. Lost health is
// logged and published; the process is left to the operator (or a profile
// switch) rather than auto-restarted.
func (s *Supervisor) MonitorHealth(ctx context.Context) {
	if s.cfg.HealthInterval <= 0 {
		return
	}
	t := time.NewTicker(s.cfg.HealthInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		s.mu.Lock()
		procs := make([]*ManagedProcess, 0, len(s.procs))
		for _, p := range s.procs {
			procs = append(procs, p)
		}
		s.mu.Unlock()
		for _, p := range procs {
			if p.State() != StateReady {
				continue
			}
			if !s.HealthCheck(ctx, p) {
				s.log.Warn().Str("model", p.ModelID).Int("port", p.Port).Msg("health check failed")
				s.pub.Publish(events.New("health_lost", p.ModelID, map[string]any{"port": p.Port}))
			}
		}
	}
}
