package catalog

import (
	"errors"
	"fmt"
)

// NotFoundError reports an unknown model ID.
type NotFoundError struct{ ID string }

func (e *NotFoundError) Error() string { return "model not found: " + e.ID }

// IsNotFound reports whether err indicates a missing model id.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// DuplicatePortError reports two enabled entries sharing a port; the
// offending mutation is rejected before commit.
type DuplicatePortError struct {
	Port int
	IDs  []string
}

func (e *DuplicatePortError) Error() string {
	return fmt.Sprintf("port %d held by multiple enabled models: %v", e.Port, e.IDs)
}

// PersistError reports an I/O failure writing the registry file. The
// in-memory catalog is already committed and stays authoritative.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist registry %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// IsPersist reports whether err is a registry persistence failure.
func IsPersist(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}
