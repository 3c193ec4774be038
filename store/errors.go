package store

import (
	"fmt"

	"github.com/pkg/errors"
)

// NotFoundError is returned when there are no definitions for the application
type NotFoundError struct {
	Name string
	Type string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no alarm definitions for %v/%v", e.Name, e.Type)
}

// LookupError is returned when definitions can not be read or are malformed
type LookupError struct {
	Name string
	Type string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup alarm definitions for %v/%v: %v", e.Name, e.Type, e.Err)
}

// WriteError is returned when definitions can not be written
type WriteError struct {
	Name string
	Type string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write alarm definitions for %v/%v: %v", e.Name, e.Type, e.Err)
}

// IsNotFound reports whether the cause of err is a NotFoundError
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// IsLookupError reports whether the cause of err is a LookupError
func IsLookupError(err error) bool {
	_, ok := errors.Cause(err).(*LookupError)
	return ok
}

// IsWriteError reports whether the cause of err is a WriteError
func IsWriteError(err error) bool {
	_, ok := errors.Cause(err).(*WriteError)
	return ok
}
