package command

import (
	"errors"
	"fmt"
)

// ValidationError reports call arguments rejected by a payload builder.
// It is always returned before any network I/O happens.
type ValidationError struct {
	Command string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid argument %s for %s: %s", e.Field, e.Command, e.Message)
}

// ProtocolError reports a reply that violated the response grammar of a
// command. It means the wire contract is broken, not that the command failed
// on the device.
type ProtocolError struct {
	Command string
	Topic   string
	Body    []byte
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation for %s on %s: %s (body: %s)", e.Command, e.Topic, e.Reason, truncate(e.Body, 256))
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsProtocolError reports whether err is or wraps a *ProtocolError.
func IsProtocolError(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
