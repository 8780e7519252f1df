// Package errs defines the error taxonomy from the design's error handling
// section. Each kind is its own type, the way golang-dep's errors.go and
// internal/gps/source_errors.go define one struct per failure mode instead
// of a single error code enum; callers type-assert (or errors.As) to branch
// on kind. Kinds that carry an optional underlying Cause expose it through
// Unwrap, and Wrap adds context with github.com/pkg/errors so the chain
// survives across package boundaries.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// NotFound is returned when a reference is absent from the cache and every
// configured remote, or a download 404s.
type NotFound struct {
	Subject string
	Cause   error
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("not found: %s", e.Subject)
}

func (e *NotFound) Unwrap() error { return e.Cause }

// AuthRequired is returned for a 401, or a 403 with no token presented.
type AuthRequired struct {
	Subject string
}

func (e *AuthRequired) Error() string { return fmt.Sprintf("authentication required: %s", e.Subject) }

// Forbidden is returned for a 403 where a token was presented but rejected.
type Forbidden struct {
	Subject string
}

func (e *Forbidden) Error() string { return fmt.Sprintf("forbidden: %s", e.Subject) }

// Transport covers network, DNS, TLS, and other retriable connection
// failures, plus any other non-2xx HTTP status not otherwise classified.
type Transport struct {
	Subject string
	Cause   error
}

func (e *Transport) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport error fetching %s: %s", e.Subject, e.Cause)
	}
	return fmt.Sprintf("transport error fetching %s", e.Subject)
}

func (e *Transport) Unwrap() error { return e.Cause }

// RequestError covers malformed requests that retrying cannot fix.
type RequestError struct {
	Subject string
	Cause   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request for %s: %s", e.Subject, e.Cause)
}

func (e *RequestError) Unwrap() error { return e.Cause }

// ChecksumMismatch is returned when downloaded bytes fail checksum
// verification. The offending file has already been deleted by the time
// this error surfaces.
type ChecksumMismatch struct {
	Path     string
	Algo     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatch) Error() string {
	return fmt.Sprintf("%s checksum mismatch for %s: expected %s, got %s", e.Algo, e.Path, e.Expected, e.Actual)
}

// Truncated is returned when a download ends short of Content-Length and the
// server does not advertise Accept-Ranges, so it cannot be resumed.
type Truncated struct {
	URL      string
	Got      int64
	Expected int64
}

func (e *Truncated) Error() string {
	return fmt.Sprintf("transfer interrupted before complete: %s < %s (%s)", fmtBytes(e.Got), fmtBytes(e.Expected), e.URL)
}

func fmtBytes(n int64) string { return fmt.Sprintf("%d", n) }

// VersionConflict is raised by the graph builder when two requirement
// endpoints cannot be reconciled to a single version.
type VersionConflict struct {
	Name     string
	EndpointA string
	EndpointB string
	Loop     bool
}

func (e *VersionConflict) Error() string {
	if e.Loop {
		return fmt.Sprintf("dependency loop detected involving %s (%s -> %s)", e.Name, e.EndpointA, e.EndpointB)
	}
	return fmt.Sprintf("version conflict for %s: %s is incompatible with %s", e.Name, e.EndpointA, e.EndpointB)
}

// OptionConflict is raised when two requirement edges disagree on an
// explicit option value for the same node.
type OptionConflict struct {
	Name   string
	Option string
	ValueA string
	ValueB string
}

func (e *OptionConflict) Error() string {
	return fmt.Sprintf("option conflict for %s: option %q requested as %q and %q", e.Name, e.Option, e.ValueA, e.ValueB)
}

// ProvidesConflict is raised when two resolved packages claim the same
// `provides` identifier.
type ProvidesConflict struct {
	Provides string
	PackageA string
	PackageB string
}

func (e *ProvidesConflict) Error() string {
	return fmt.Sprintf("both %s and %s provide %q", e.PackageA, e.PackageB, e.Provides)
}

// LockTimeout is returned when an advisory lock is not acquired before its
// deadline.
type LockTimeout struct {
	Resource string
}

func (e *LockTimeout) Error() string { return fmt.Sprintf("timed out locking %q", e.Resource) }

// CacheCorruption is returned when a dirty bit is observed on read, or a
// manifest mismatch is found between a cached tree and its row.
type CacheCorruption struct {
	Path   string
	Reason string
}

func (e *CacheCorruption) Error() string {
	return fmt.Sprintf("cache corruption at %s: %s", e.Path, e.Reason)
}

// RecipeError wraps a failure raised by a recipe capability (configure,
// requirements, build_requirements, ...).
type RecipeError struct {
	Reference string
	Capability string
	Cause      error
}

func (e *RecipeError) Error() string {
	return fmt.Sprintf("recipe %s: %s failed: %s", e.Reference, e.Capability, e.Cause)
}

func (e *RecipeError) Unwrap() error { return e.Cause }

// AlreadyExists is returned by Cache Store inserts that violate the unique
// key (reference, rrev, pkgid, prev) or the global uniqueness of path.
type AlreadyExists struct {
	Subject string
}

func (e *AlreadyExists) Error() string { return fmt.Sprintf("already exists: %s", e.Subject) }

// DoesNotExist is returned by exact-match Cache Store lookups that find no
// row.
type DoesNotExist struct {
	Subject string
}

func (e *DoesNotExist) Error() string { return fmt.Sprintf("does not exist: %s", e.Subject) }

// Wrap attaches additional context to err using github.com/pkg/errors,
// preserving the original kind for errors.As/errors.Is callers.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}
