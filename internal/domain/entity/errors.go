package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidURL        = errors.New("invalid url")
	ErrInvalidSelector   = errors.New("invalid selector")
	ErrContextClosed     = errors.New("browsing context closed")
	ErrSequenceConsumed  = errors.New("record sequence already consumed")
	ErrSearchUnsupported = errors.New("site profile has no search url")
)

// ProvisionError means the browsing environment could not be created. It is
// fatal for the attempt and never retried automatically.
type ProvisionError struct {
	Err error
}

func (e *ProvisionError) Error() string {
	return "provision: " + e.Err.Error()
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// FieldNotFoundError signals markup drift: no strategy of the locator produced
// a unique visible element within the selector wait.
type FieldNotFoundError struct {
	Field    FieldName
	Attempts []StrategyAttempt
}

func (e *FieldNotFoundError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Strategy, a.Outcome))
	}
	return fmt.Sprintf("field not found: %s [%s]", e.Field, strings.Join(parts, "; "))
}

type NavigationTimeoutError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *NavigationTimeoutError) Error() string {
	return fmt.Sprintf("navigation timeout after %s: %s", e.Timeout, e.URL)
}

func (e *NavigationTimeoutError) Unwrap() error {
	return e.Err
}

func IsFatal(err error) bool {
	var pe *ProvisionError
	return errors.As(err, &pe)
}

func IsFieldNotFound(err error) bool {
	var fe *FieldNotFoundError
	return errors.As(err, &fe)
}

func IsNavigationTimeout(err error) bool {
	var ne *NavigationTimeoutError
	return errors.As(err, &ne)
}

// IsStepLocal reports errors that abort the current attempt but may be retried.
func IsStepLocal(err error) bool {
	return IsFieldNotFound(err) || IsNavigationTimeout(err)
}
