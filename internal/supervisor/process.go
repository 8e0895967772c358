package supervisor

import (
	"os/exec"
	"sync"
	"time"
)

// State is the lifecycle position of one managed process. Transitions are
// monotonic; no state is ever revisited.
type State string

const (
	StateNotStarted   State = "not_started"
	StateLaunching    State = "launching"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateTerminating  State = "terminating"
	StateForceKilled  State = "force_killed"
	StateStopped      State = "stopped"
	StateFailed       State = "failed"
)

var stateRank = map[State]int{
	StateNotStarted:   0,
	StateLaunching:    1,
	StateInitializing: 2,
	StateReady:        3,
	StateTerminating:  4,
	StateForceKilled:  5,
	StateStopped:      6,
	StateFailed:       7,
}

// Terminal reports whether the process is done and eligible for reaping.
func (s State) Terminal() bool { return s == StateStopped || s == StateFailed }

// tailSize bounds the captured diagnostic output per process.
const tailSize = 50

// ManagedProcess is the supervisor-owned handle for one running server.
// ModelID references the catalog entry; the process does not own it.
type ManagedProcess struct {
	ModelID   string
	Port      int
	StartTime time.Time

	cmd *exec.Cmd

	mu     sync.Mutex
	state  State
	warned bool
	tail   []string

	// lines carries parsed diagnostic lines from the reader goroutine to the
	// launch driver. The reader never blocks on it; the tail is authoritative.
	lines      chan string
	readerDone chan struct{}
	exited     chan struct{}
	exitErr    error

	launchOnce sync.Once
	launchDone chan struct{}
	launchErr  error

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

func newManagedProcess(modelID string, port int) *ManagedProcess {
	return &ManagedProcess{
		ModelID:    modelID,
		Port:       port,
		state:      StateNotStarted,
		lines:      make(chan string, 256),
		readerDone: make(chan struct{}),
		exited:     make(chan struct{}),
		launchDone: make(chan struct{}),
		cancelCh:   make(chan struct{}),
	}
}

// advance moves the state machine forward. Backward moves are ignored, which
// keeps racing resolutions (ready line vs. stop request) monotonic.
func (p *ManagedProcess) advance(next State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if stateRank[next] <= stateRank[p.state] {
		return false
	}
	p.state = next
	return true
}

func (p *ManagedProcess) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Warned reports whether readiness was assumed after the startup deadline
// rather than observed in the log stream.
func (p *ManagedProcess) Warned() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.warned
}

// Tail returns the captured diagnostic output, oldest first.
func (p *ManagedProcess) Tail() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.tail))
	copy(out, p.tail)
	return out
}

func (p *ManagedProcess) appendTail(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tail = append(p.tail, line)
	if len(p.tail) > tailSize {
		p.tail = p.tail[len(p.tail)-tailSize:]
	}
}

// resolveLaunch settles the launch exactly once.
func (p *ManagedProcess) resolveLaunch(err error, warned bool) {
	p.launchOnce.Do(func() {
		p.mu.Lock()
		p.warned = warned
		p.mu.Unlock()
		p.launchErr = err
		close(p.launchDone)
	})
}

// cancelLaunch aborts a launch in progress; the stop path owns the process
// from here.
func (p *ManagedProcess) cancelLaunch() {
	p.cancelOnce.Do(func() { close(p.cancelCh) })
}
