package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dlorp/synapse-engine-sub012/internal/catalog"
	"github.com/dlorp/synapse-engine-sub012/internal/ports"
	"github.com/dlorp/synapse-engine-sub012/internal/supervisor"
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// StartAll allocates ports for every enabled model, then launches them all
// concurrently and waits for each launch to resolve. One model's failure
// never cancels the others; failures are collected into the report.
func (e *Engine) StartAll(ctx context.Context) (types.FleetReport, error) {
	err := e.cat.Update(func(s *types.CatalogSnapshot) error {
		return ports.Allocate(s)
	})
	if err != nil && !catalog.IsPersist(err) {
		return types.FleetReport{}, err
	}

	targets := e.cat.Snapshot().EnabledWithPort()
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })

	report := types.FleetReport{Total: len(targets)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, m := range targets {
		wg.Add(1)
		go func(m types.ModelEntry) {
			defer wg.Done()
			proc, lerr := e.sup.Launch(ctx, m)
			mu.Lock()
			defer mu.Unlock()
			if lerr != nil {
				report.Failed = append(report.Failed, types.LaunchFailure{
					ModelID: m.ID,
					Reason:  launchReason(lerr),
				})
				return
			}
			report.Ready++
			if proc.Warned() {
				report.Warned++
			}
		}(m)
	}
	wg.Wait()
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].ModelID < report.Failed[j].ModelID })
	e.log.Info().Int("total", report.Total).Int("ready", report.Ready).
		Int("failed", len(report.Failed)).Msg("fleet start complete")
	return report, nil
}

// launchReason keeps reports compact: the failure reason without the
// captured output tail.
func launchReason(err error) string {
	var le *supervisor.LaunchError
	if errors.As(err, &le) {
		return le.Reason
	}
	return err.Error()
}

// StopAll stops every tracked process concurrently with the configured
// graceful timeout and kill escalation.
func (e *Engine) StopAll(ctx context.Context) types.StopReport {
	return e.sup.StopAll(ctx, e.cfg.ShutdownTimeout())
}
