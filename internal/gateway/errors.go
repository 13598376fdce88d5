package gateway

import "fmt"

// TransportError means the channel to the backend failed: the request never
// completed, the server answered outside 2xx, or a stream ended before its
// completion record.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway: %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means a response arrived but could not be understood.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("gateway: %s: bad response: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthError means the backend rejected the bearer token (401/403). The only
// fix is re-authentication, so callers must not retry or fall back silently.
type AuthError struct {
	Op     string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gateway: %s: authentication rejected (status %d)", e.Op, e.Status)
}
