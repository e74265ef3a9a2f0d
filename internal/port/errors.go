package port

import "fmt"

// ValidationError reports a malformed scan request. It is returned before
// any port is probed.
type ValidationError struct {
	// Field is the Request field that failed validation.
	Field string

	// Reason describes the violated constraint.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProbeFailure reports a probe that failed for a reason other than the port
// being in use. By default the scanner absorbs these and only logs them;
// strict scanners return the first one of an attempt.
type ProbeFailure struct {
	Port  int
	Cause error
}

func (e *ProbeFailure) Error() string {
	return fmt.Sprintf("probe of port %d failed: %v", e.Port, e.Cause)
}

// Unwrap returns the underlying bind error.
func (e *ProbeFailure) Unwrap() error {
	return e.Cause
}

// PortRangeExhausted is the terminal failure returned when every attempt in
// the retry budget found no available port.
type PortRangeExhausted struct {
	StartPort int
	EndPort   int
	Retries   int

	// ProbeFailures counts the probes of the last attempt that ended in
	// StatusFailed rather than StatusOccupied.
	ProbeFailures int
}

func (e *PortRangeExhausted) Error() string {
	msg := fmt.Sprintf("no available port in range %d-%d after %d attempts", e.StartPort, e.EndPort, e.Retries)
	if e.ProbeFailures > 0 {
		msg += fmt.Sprintf(" (%d probes failed)", e.ProbeFailures)
	}
	return msg
}
