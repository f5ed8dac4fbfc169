package control

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResponse means no classifiable message arrived before the
	// deadline. The command may still have been executed by the logger.
	ErrNoResponse = errors.New("no response from logger")

	// ErrBusy is returned when a handler is asked to run a second command
	// while one is still in flight.
	ErrBusy = errors.New("command handler is busy")
)

// ConnectionError reports a transport failure before the command was
// confirmed as sent.
type ConnectionError struct {
	Op    string
	Topic string
	Err   error
}

func (e *ConnectionError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("connectivity failure during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("connectivity failure during %s on %s: %v", e.Op, e.Topic, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError checks if the error is a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
