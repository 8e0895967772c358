package supervisor

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/dlorp/synapse-engine-sub012/internal/events"
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// Stop terminates one model's process: graceful signal, bounded wait, then
// kill escalation with its own bounded grace period. It always leaves the
// process STOPPED and reaped, returns whether escalation was needed, and is
// a no-op for unknown or already-stopped models.
func (s *Supervisor) Stop(ctx context.Context, modelID string, timeout time.Duration) (forced bool) {
	lk := s.lockFor(modelID)
	lk.Lock()
	defer lk.Unlock()

	s.mu.Lock()
	p := s.procs[modelID]
	s.mu.Unlock()
	if p == nil {
		return false
	}
	if p.State().Terminal() {
		s.reap(p)
		return false
	}

	// Abort a launch still in progress rather than waiting out its deadline.
	p.cancelLaunch()
	p.advance(StateTerminating)

	if p.cmd == nil || p.cmd.Process == nil {
		p.advance(StateStopped)
		s.reap(p)
		return false
	}

	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.exited:
	case <-ctx.Done():
		forced = s.forceKill(p)
	case <-time.After(timeout):
		forced = s.forceKill(p)
	}

	p.advance(StateStopped)
	s.reap(p)
	s.log.Info().Str("model", modelID).Bool("forced", forced).Msg("model stopped")
	s.pub.Publish(events.New("model_stopped", modelID, map[string]any{"forced": forced}))
	return forced
}

// forceKill escalates and waits up to the fixed grace period for the exit
// confirmation. Never blocks beyond it.
func (s *Supervisor) forceKill(p *ManagedProcess) bool {
	p.advance(StateForceKilled)
	s.log.Warn().Str("model", p.ModelID).Msg("graceful stop timed out, killing")
	_ = p.cmd.Process.Kill()
	select {
	case <-p.exited:
	case <-time.After(s.cfg.ForceKillGrace):
	}
	return true
}

// StopAll terminates every tracked process concurrently. There is no
// ordering between models; the report counts kill escalations separately but
// everything ends STOPPED.
func (s *Supervisor) StopAll(ctx context.Context, timeout time.Duration) types.StopReport {
	ids := s.Tracked()
	report := types.StopReport{Total: len(ids)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			forced := s.Stop(ctx, id, timeout)
			mu.Lock()
			report.Stopped++
			if forced {
				report.Forced = append(report.Forced, id)
			}
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return report
}
