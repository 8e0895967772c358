package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/dlorp/synapse-engine-sub012/internal/events"
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// readinessMarkers and fatalMarkers are matched case-insensitively against
// each diagnostic line. First match of either class resolves the launch.
var readinessMarkers = []string{
	"listening",
	"ready to receive requests",
	"waiting for new tasks",
}

var fatalMarkers = []string{
	"failed to load",
	"cannot open model file",
	"error loading model",
	"out of memory",
	"unknown argument",
}

func matchAny(line string, markers []string) bool {
	l := strings.ToLower(line)
	for _, m := range markers {
		if strings.Contains(l, m) {
			return true
		}
	}
	return false
}

// Launch spawns the server for one model and blocks until the launch
// resolves: READY (observed or assumed after MaxStartupTime), or FAILED.
// Calling Launch for a model that already has a live process returns that
// process without spawning a duplicate. Cancelling ctx terminates a
// partially-initializing process instead of waiting out the deadline.
func (s *Supervisor) Launch(ctx context.Context, m types.ModelEntry) (*ManagedProcess, error) {
	lk := s.lockFor(m.ID)
	lk.Lock()

	s.mu.Lock()
	existing := s.procs[m.ID]
	s.mu.Unlock()
	if existing != nil && !existing.State().Terminal() {
		lk.Unlock()
		return s.awaitLaunch(ctx, existing)
	}

	if m.Port == nil {
		lk.Unlock()
		return nil, &LaunchError{ModelID: m.ID, Reason: "no port assigned"}
	}

	p := newManagedProcess(m.ID, *m.Port)
	p.advance(StateLaunching)

	cmd := exec.Command(s.cfg.BinPath, s.buildArgs(m)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		lk.Unlock()
		return nil, &LaunchError{ModelID: m.ID, Reason: fmt.Sprintf("stderr pipe: %v", err)}
	}
	if err := cmd.Start(); err != nil {
		lk.Unlock()
		return nil, &LaunchError{ModelID: m.ID, Reason: fmt.Sprintf("spawn %s: %v", s.cfg.BinPath, err)}
	}
	p.cmd = cmd
	p.StartTime = time.Now()
	p.advance(StateInitializing)

	s.mu.Lock()
	s.procs[m.ID] = p
	s.mu.Unlock()
	lk.Unlock()

	s.log.Info().Str("model", m.ID).Int("pid", cmd.Process.Pid).Int("port", p.Port).Msg("launch started")
	s.pub.Publish(events.New("launch_start", m.ID, map[string]any{"pid": cmd.Process.Pid, "port": p.Port}))

	go p.readLines(stderr)
	go func() {
		// Wait must run after the pipe reader is finished.
		<-p.readerDone
		p.exitErr = cmd.Wait()
		close(p.exited)
	}()
	go s.driveLaunch(p)

	return s.awaitLaunch(ctx, p)
}

// buildArgs assembles the server command line, resolving per-model overrides
// against the global defaults.
func (s *Supervisor) buildArgs(m types.ModelEntry) []string {
	args := []string{
		"-m", m.FilePath,
		"--host", s.cfg.Host,
		"--port", fmt.Sprint(*m.Port),
	}
	if v := resolve(m.NGPULayers, s.cfg.NGPULayers); v > 0 {
		args = append(args, "-ngl", fmt.Sprint(v))
	}
	if v := resolve(m.CtxSize, s.cfg.CtxSize); v > 0 {
		args = append(args, "-c", fmt.Sprint(v))
	}
	if v := resolve(m.NThreads, s.cfg.NThreads); v > 0 {
		args = append(args, "-t", fmt.Sprint(v))
	}
	if v := resolve(m.BatchSize, s.cfg.BatchSize); v > 0 {
		args = append(args, "-b", fmt.Sprint(v))
	}
	return args
}

func resolve(override *int, global int) int {
	if override != nil {
		return *override
	}
	return global
}

// readLines feeds the diagnostic stream into the tail buffer and the driver
// channel. The send never blocks: if the driver has resolved the launch and
// stopped consuming, lines are dropped from the channel but kept in the tail.
func (p *ManagedProcess) readLines(r io.Reader) {
	defer close(p.readerDone)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		p.appendTail(line)
		select {
		case p.lines <- line:
		default:
		}
	}
}

// driveLaunch is the per-process state-machine driver: it consumes parsed
// lines until one of the four outcomes — readiness marker, fatal marker,
// early exit, or startup deadline.
func (s *Supervisor) driveLaunch(p *ManagedProcess) {
	timer := time.NewTimer(s.cfg.MaxStartupTime)
	defer timer.Stop()
	for {
		select {
		case line := <-p.lines:
			if matchAny(line, fatalMarkers) {
				_ = p.cmd.Process.Kill()
				<-p.exited
				s.failLaunch(p, fmt.Sprintf("fatal output: %s", line))
				return
			}
			if matchAny(line, readinessMarkers) {
				s.finishLaunch(p, false)
				return
			}
		case <-p.exited:
			reason := "exited before ready"
			if p.exitErr != nil {
				reason = fmt.Sprintf("exited before ready: %v", p.exitErr)
			}
			s.failLaunch(p, reason)
			return
		case <-timer.C:
			// Trust-but-verify fallback: no marker seen in time, assume the
			// server is up and let health polling catch liars.
			s.log.Warn().Str("model", p.ModelID).Dur("deadline", s.cfg.MaxStartupTime).
				Msg("no readiness marker before deadline, assuming ready")
			s.finishLaunch(p, true)
			return
		case <-p.cancelCh:
			// A stop request owns the process from here.
			p.resolveLaunch(&LaunchError{ModelID: p.ModelID, Reason: "launch canceled by stop"}, false)
			return
		}
	}
}

func (s *Supervisor) finishLaunch(p *ManagedProcess, warned bool) {
	p.advance(StateReady)
	p.resolveLaunch(nil, warned)
	go p.drainLines()
	s.log.Info().Str("model", p.ModelID).Int("port", p.Port).Bool("assumed", warned).Msg("model ready")
	s.pub.Publish(events.New("model_ready", p.ModelID, map[string]any{"port": p.Port, "assumed": warned}))
}

func (s *Supervisor) failLaunch(p *ManagedProcess, reason string) {
	p.advance(StateFailed)
	err := &LaunchError{ModelID: p.ModelID, Reason: reason, Tail: p.Tail()}
	p.resolveLaunch(err, false)
	s.reap(p)
	s.log.Error().Str("model", p.ModelID).Str("reason", reason).Msg("launch failed")
	s.pub.Publish(events.New("model_failed", p.ModelID, map[string]any{"reason": reason}))
}

// drainLines keeps the channel empty after resolution so nothing stalls.
func (p *ManagedProcess) drainLines() {
	for {
		select {
		case <-p.lines:
		case <-p.readerDone:
			return
		}
	}
}

func (s *Supervisor) awaitLaunch(ctx context.Context, p *ManagedProcess) (*ManagedProcess, error) {
	select {
	case <-p.launchDone:
		if p.launchErr != nil {
			return nil, p.launchErr
		}
		return p, nil
	case <-ctx.Done():
		go func() { s.Stop(context.Background(), p.ModelID, s.cfg.ShutdownTimeout) }()
		return nil, ctx.Err()
	}
}
