// Package errs provides the tagged error kinds shared across tilecanvas's
// core packages, plus a context-wrapping helper in the style of
// synnergy-network's pkg/utils.Wrap.
package errs

import (
	"errors"
	"fmt"
)

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// InvalidEvent is returned by the event validator and the tile store's
// append path when an envelope or its payload fails a structural or
// invariant check. Aborts the enclosing append; no state change.
type InvalidEvent struct {
	Reason string
	Path   string
	Index  int
	HasIdx bool
}

func (e *InvalidEvent) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid event at %s: %s", e.Path, e.Reason)
	}
	if e.HasIdx {
		return fmt.Sprintf("invalid event at index %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid event: %s", e.Reason)
}

// NewInvalidEvent builds an InvalidEvent with a path (e.g. field name).
func NewInvalidEvent(path, reason string) *InvalidEvent {
	return &InvalidEvent{Path: path, Reason: reason}
}

// NewInvalidEventAt builds an InvalidEvent tagged with a batch index.
func NewInvalidEventAt(index int, reason string) *InvalidEvent {
	return &InvalidEvent{Index: index, HasIdx: true, Reason: reason}
}

// IntegrityError is raised when the object store observes bytes that do
// not hash to their claimed HashRef. The object is considered absent.
type IntegrityError struct {
	Ref string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s", e.Ref)
}

// NotFound indicates an object, tile, or event is not present.
type NotFound struct {
	What string
}

func (e *NotFound) Error() string { return fmt.Sprintf("not found: %s", e.What) }

// IsNotFound reports whether err is (or wraps) a NotFound.
func IsNotFound(err error) bool {
	var nf *NotFound
	return errors.As(err, &nf)
}

// TipConflict is reported if a write observes the tip index changed
// between read and commit. Should not happen under the per-tile mutex;
// surfaced defensively if detected.
type TipConflict struct {
	Space, Tile string
}

func (e *TipConflict) Error() string {
	return fmt.Sprintf("tip conflict for %s/%s", e.Space, e.Tile)
}

// IOFailure wraps an underlying filesystem error. Callers decide retry.
type IOFailure struct {
	Cause error
}

func (e *IOFailure) Error() string { return fmt.Sprintf("io failure: %v", e.Cause) }
func (e *IOFailure) Unwrap() error { return e.Cause }

// NewIOFailure wraps cause as an IOFailure, or returns nil if cause is nil.
func NewIOFailure(cause error) error {
	if cause == nil {
		return nil
	}
	return &IOFailure{Cause: cause}
}

// SchemaVersionMismatch indicates a persistence layer saw an unknown
// version. Discovery persistence handles a version mismatch silently;
// the tile store's on-disk files carry no version field, so no core
// package returns this error.
type SchemaVersionMismatch struct {
	Got, Want int
}

func (e *SchemaVersionMismatch) Error() string {
	return fmt.Sprintf("schema version mismatch: got %d want %d", e.Got, e.Want)
}

// Cancelled marks an operation that was aborted before it took effect,
// such as an append or snapshot on a closed tile store.
type Cancelled struct {
	Op string
}

func (e *Cancelled) Error() string { return fmt.Sprintf("cancelled: %s", e.Op) }
