package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("link not found")
	ErrConflict        = errors.New("alias already exists")
	ErrInvalidAlias    = errors.New("invalid alias format")
	ErrAliasGeneration = errors.New("failed to generate a unique alias")
)

// StorageError reports a failure of the underlying store. It is not
// retried here; callers surface it as a generic failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
