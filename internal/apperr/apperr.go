package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes the HTTP layer needs to tell apart.
// Wrap with fmt.Errorf("...: %w", Err*) and check with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrStorage     = errors.New("object storage failure")
	ErrPersistence = errors.New("persistence failure")
	ErrDispatch    = errors.New("dispatch failure")
)

func Validation(format string, a ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, a...)...)
}

func NotFound(format string, a ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrNotFound}, a...)...)
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsStorage(err error) bool    { return errors.Is(err, ErrStorage) }
