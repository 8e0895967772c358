package types

import "time"

// LaunchFailure identifies one model that failed during a batch start.
type LaunchFailure struct {
	ModelID string `json:"modelId"`
	Reason  string `json:"reason"`
}

// FleetReport aggregates the outcome of a concurrent fleet start. Warned
// counts models that hit the readiness timeout and were trusted READY.
type FleetReport struct {
	Total  int             `json:"total"`
	Ready  int             `json:"ready"`
	Warned int             `json:"warned"`
	Failed []LaunchFailure `json:"failed"`
}

// StopReport aggregates a fleet stop. Forced lists models that needed the
// kill escalation; they still count as stopped.
type StopReport struct {
	Total   int      `json:"total"`
	Stopped int      `json:"stopped"`
	Forced  []string `json:"forced,omitempty"`
}

// ScanReport summarizes one discovery pass.
type ScanReport struct {
	ScanPath string    `json:"scanPath"`
	Found    int       `json:"found"`
	Added    int       `json:"added"`
	Removed  int       `json:"removed"`
	Skipped  int       `json:"skipped"`
	ScanTime time.Time `json:"scanTime"`
}

// ProcessStatus is a read-only view of one managed process.
type ProcessStatus struct {
	ModelID   string    `json:"modelId"`
	Port      int       `json:"port"`
	State     string    `json:"state"`
	StartTime time.Time `json:"startTime"`
	Warned    bool      `json:"warned,omitempty"`
}

// ErrorResponse is the JSON error payload shape used by the control API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// StatusResponse is the fleet-wide status payload.
type StatusResponse struct {
	Models    int             `json:"models"`
	Enabled   int             `json:"enabled"`
	Processes []ProcessStatus `json:"processes"`
	ByTier    map[Tier]int    `json:"byTier"`
	LastScan  time.Time       `json:"lastScan"`
	BinFound  bool            `json:"binFound"`
	BinPath   string          `json:"binPath,omitempty"`
}
