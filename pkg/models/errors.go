package models

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a repository wraps exactly one of
// these, so callers branch with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrAlreadyInCluster = errors.New("already in a cluster")
	ErrConflict         = errors.New("conflict")
	ErrIOFailure        = errors.New("i/o failure")

	// ErrInvalid marks input rejected before any state is touched.
	ErrInvalid = errors.New("invalid")
)

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidScope       = errors.New("invalid scope")
)

// Resource names used in RecordError.
const (
	ResourceEntity  = "entity"
	ResourceCluster = "cluster"
	ResourceUser    = "user"
)

// RecordError describes a rejected operation on a single record.
type RecordError struct {
	Kind     error
	Resource string
	ID       string
	Reason   string
}

func (e *RecordError) Error() string {
	msg := fmt.Sprintf("%s %q: %v", e.Resource, e.ID, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *RecordError) Unwrap() error { return e.Kind }

// NotFound returns an ErrNotFound error for the given record.
func NotFound(resource, id string) error {
	return &RecordError{Kind: ErrNotFound, Resource: resource, ID: id}
}

// AlreadyExists returns an ErrAlreadyExists error for the given record.
func AlreadyExists(resource, id, reason string) error {
	return &RecordError{Kind: ErrAlreadyExists, Resource: resource, ID: id, Reason: reason}
}

// Conflict returns an ErrConflict error for the given record.
func Conflict(resource, id, reason string) error {
	return &RecordError{Kind: ErrConflict, Resource: resource, ID: id, Reason: reason}
}

// Invalid returns an ErrInvalid error for the given record.
func Invalid(resource, id, reason string) error {
	return &RecordError{Kind: ErrInvalid, Resource: resource, ID: id, Reason: reason}
}

// AlreadyInCluster reports that entityID is already attached to clusterID.
func AlreadyInCluster(entityID, clusterID string) error {
	return &RecordError{
		Kind:     ErrAlreadyInCluster,
		Resource: ResourceEntity,
		ID:       entityID,
		Reason:   fmt.Sprintf("member of cluster %q", clusterID),
	}
}

// IOError wraps a filesystem or lock failure. The result matches both
// ErrIOFailure and the underlying error.
func IOError(op, path string, err error) error {
	return &ioError{op: op, path: path, err: err}
}

type ioError struct {
	op   string
	path string
	err  error
}

func (e *ioError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.op, e.path, e.err)
}

func (e *ioError) Unwrap() []error { return []error{ErrIOFailure, e.err} }
