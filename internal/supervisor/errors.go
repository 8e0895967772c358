package supervisor

import (
	"errors"
	"strings"
)

// LaunchError scopes a failed launch to one model: missing port, spawn
// failure, fatal log pattern or early exit. Tail carries the captured
// diagnostic output when the process got far enough to produce any.
type LaunchError struct {
	ModelID string
	Reason  string
	Tail    []string
}

func (e *LaunchError) Error() string {
	msg := "launch " + e.ModelID + ": " + e.Reason
	if len(e.Tail) > 0 {
		msg += "\n" + strings.Join(e.Tail, "\n")
	}
	return msg
}

// IsLaunchFailure reports whether err is a per-model launch failure.
func IsLaunchFailure(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}
