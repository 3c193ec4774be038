package alarm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ClientError is returned when a CloudWatch call for the named alarms fails.
type ClientError struct {
	// Op is the failed operation: put, list or delete
	Op string
	// Names are the alarm names or the prefix the operation was called with
	Names []string
	Err   error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%v alarms [%v]: %v", e.Op, strings.Join(e.Names, ", "), e.Err)
}

// IsClientError reports whether the cause of err is a ClientError.
func IsClientError(err error) bool {
	_, ok := errors.Cause(err).(*ClientError)
	return ok
}
