package alarm

import (
	"strings"

	"github.com/pkg/errors"
)

const separator = "-"

// Name returns the CloudWatch alarm name of a per-instance alarm:
// {application}-{applicationType}-{instanceID}-{suffix}.
//
// application, applicationType and suffix must not contain "-",
// otherwise ParseInstanceID can no longer recover instanceID.
func Name(application, applicationType, instanceID, suffix string) string {
	return strings.Join([]string{application, applicationType, instanceID, suffix}, separator)
}

// Prefix returns the alarm name prefix shared by all alarms below the given
// name parts. The prefix ends with the separator so that "web-prod" does not
// select alarms of "web-production" and "i-1" does not select "i-12".
func Prefix(parts ...string) string {
	return strings.Join(parts, separator) + separator
}

// ParseInstanceID recovers the instance ID encoded in an alarm name built
// by Name: everything between the second and the last segment.
func ParseInstanceID(name string) (string, error) {
	parts := strings.Split(name, separator)
	if len(parts) < 4 {
		return "", errors.Errorf("alarm name %q does not encode an instance id", name)
	}
	return strings.Join(parts[2:len(parts)-1], separator), nil
}

// CheckNamePart reports whether value can be used as the application name,
// application type or suffix part of an alarm name.
func CheckNamePart(kind, value string) error {
	if value == "" {
		return errors.Errorf("empty %v", kind)
	}
	if strings.Contains(value, separator) {
		return errors.Errorf("%v %q contains %q, alarm names will not round trip", kind, value, separator)
	}
	return nil
}
