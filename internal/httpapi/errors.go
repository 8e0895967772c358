package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dlorp/synapse-engine-sub012/internal/catalog"
	"github.com/dlorp/synapse-engine-sub012/internal/discovery"
	"github.com/dlorp/synapse-engine-sub012/internal/ports"
	"github.com/dlorp/synapse-engine-sub012/internal/supervisor"
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps domain errors to HTTP status codes. Anything unrecognized
// is a 500.
func statusFor(err error) int {
	var (
		conflictErr *ports.ConflictError
		rangeErr    *ports.RangeError
		dupErr      *catalog.DuplicatePortError
		pathErr     *discovery.PathError
	)
	switch {
	case catalog.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &conflictErr), errors.As(err, &dupErr):
		return http.StatusConflict
	case errors.As(err, &rangeErr):
		return http.StatusBadRequest
	case errors.As(err, &pathErr):
		return http.StatusBadRequest
	case supervisor.IsLaunchFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error to its status and writes the payload.
func writeError(w http.ResponseWriter, err error) {
	if he, ok := err.(HTTPError); ok {
		writeJSONError(w, he.StatusCode(), he.Error())
		return
	}
	writeJSONError(w, statusFor(err), err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
