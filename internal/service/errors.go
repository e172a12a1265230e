package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a reminder or obligation does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransientStore marks storage failures that a later call or sweep may
	// get past.
	ErrTransientStore = errors.New("transient store failure")
)

// ValidationError rejects a request outright. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RecipientError means the users for a reminder could not be resolved.
type RecipientError struct {
	ReminderID string
	Target     string
	Err        error
}

func (e *RecipientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve recipients %s for reminder %s", e.Target, e.ReminderID)
	}
	return fmt.Sprintf("resolve recipients %s for reminder %s: %v", e.Target, e.ReminderID, e.Err)
}

func (e *RecipientError) Unwrap() error { return e.Err }

// storeErr maps repository errors onto the service taxonomy.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransientStore, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound)
}
