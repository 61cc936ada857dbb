package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrPersistence  = errors.New("persistence failure")
	ErrSync         = errors.New("sync failure")
)

// NotFoundError reports a mutation target that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// PersistenceError wraps a storage I/O failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// SyncError wraps a remote push or ingest failure.
type SyncError struct {
	Collection string
	ID         string
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s/%s: %v", e.Collection, e.ID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

func (e *SyncError) Is(target error) bool { return target == ErrSync }
