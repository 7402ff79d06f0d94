package brp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ConnectionError means the BRP endpoint could not be reached, the HTTP
// exchange failed, or an open stream was cut. Retrying is up to the caller.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("brp: connection to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError is an error object reported by the remote app.
type ProtocolError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("brp: remote error %d: %s", e.Code, e.Message)
}

// DecodeError means the remote answered with something that is not a
// JSON-RPC response.
type DecodeError struct {
	Body string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("brp: malformed response: %v", e.Err)
	}
	return fmt.Sprintf("brp: malformed response %q: %v", e.Body, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// maxErrorBody caps how much of a bad body ends up in a DecodeError.
const maxErrorBody = 256

func newDecodeError(body []byte, err error) *DecodeError {
	s := string(body)
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return &DecodeError{Body: s, Err: err}
}

// AsProtocolError returns the remote error wrapped in err, if any.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsConnectionError reports whether err is a transport failure.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsEntityGone reports whether err is the remote saying the entity no longer exists.
func IsEntityGone(err error) bool {
	pe, ok := AsProtocolError(err)
	return ok && pe.Code == CodeEntityNotFound
}
