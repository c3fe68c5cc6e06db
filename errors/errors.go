// Package errors defines the sentinel errors shared by the agentstate
// packages. Callers match them with errors.Is.
package errors

import "errors"

var (
	// ErrTimeout reports that an operation exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrConnectionClosed reports that the backend connection is gone.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSubscribeUnsupported reports that the active event bus has no
	// subscriber mechanism (fallback mode retains a bounded history instead).
	ErrSubscribeUnsupported = errors.New("subscribe unsupported on this bus")
)
