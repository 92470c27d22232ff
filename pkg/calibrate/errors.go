package calibrate

import (
	"errors"
	"fmt"
)

// ErrCommunication matches every *CommunicationError via errors.Is.
var ErrCommunication = errors.New("communication error")

// CommunicationError reports a failed transport operation. It is fatal: the
// calibration run stops at the stage where it happened.
type CommunicationError struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

func (e *CommunicationError) Is(target error) bool { return target == ErrCommunication }

// ConfigurationError reports an invalid arm selection. It is raised before
// any transport I/O.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}
