package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyRolledBack   = errors.New("action already rolled back")
	ErrUnsupportedRollback = errors.New("action type does not support rollback")
	ErrStorage             = errors.New("storage failure")
)

// StorageError wraps a persistence error so callers can match ErrStorage
// while keeping the driver error in the chain.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
