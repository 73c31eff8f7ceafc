package resolver

import (
	"fmt"
	"strings"
)

// UnknownPackageError is returned by task assembly when a requested
// spec names a package with no candidates in the pool. The request is
// malformed; no search is attempted.
type UnknownPackageError struct {
	Name string
}

func (e *UnknownPackageError) Error() string {
	return fmt.Sprintf("no candidates for package %q", e.Name)
}

// ConflictingPinError is returned by task assembly when a locked
// record cannot satisfy a requested or pinned spec of the same name.
// Failing fast here avoids surfacing an opaque solver failure later.
type ConflictingPinError struct {
	Name   string
	Locked string
	Spec   string
}

func (e *ConflictingPinError) Error() string {
	return fmt.Sprintf("locked package %s does not satisfy %q", e.Locked, e.Spec)
}

// CyclicDependencyError is returned by the transaction builder when a
// record set contains a dependency cycle, making a valid operation
// order impossible. This indicates corrupt metadata upstream and is
// fatal for the attempt.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle among %s", strings.Join(e.Cycle, ", "))
}

// BackendFault wraps an internal failure of a solving backend. The
// underlying cause is retained for logging but never exposed in the
// message, so no backend-internal state reaches callers.
type BackendFault struct {
	backend string
	cause   error
}

func (e *BackendFault) Error() string {
	return fmt.Sprintf("internal fault in %s backend", e.backend)
}

// Unwrap is intentionally not implemented; the cause is backend
// internal state. Cause is available to in-package logging only.
func (e *BackendFault) fault() error {
	return e.cause
}

func newBackendFault(backend string, cause error) *BackendFault {
	return &BackendFault{backend: backend, cause: cause}
}
