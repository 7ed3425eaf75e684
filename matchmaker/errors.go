package matchmaker

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteError is a non-2xx response from the matchmaker.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("matchmaker %s: unexpected status code: %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("matchmaker %s: unexpected status code: %d, with error: %s", e.Op, e.StatusCode, e.Body)
}

// DecodeError is a response body that could not be parsed into a Ticket.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("matchmaker %s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InvalidAssignmentError is an assignment whose connection is not a usable host:port.
type InvalidAssignmentError struct {
	Connection string
	Reason     string
}

func (e *InvalidAssignmentError) Error() string {
	return fmt.Sprintf("invalid assignment %q: %s", e.Connection, e.Reason)
}

// TransportError is a connection attempt that failed at the transport layer.
type TransportError struct {
	Target string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport connect %s: %v", e.Target, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a RemoteError saying the ticket no longer exists.
func IsNotFound(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	return re.StatusCode == http.StatusNotFound || re.StatusCode == http.StatusGone
}
