package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInputPending is returned by AskUser while another question is unanswered.
	ErrInputPending = errors.New("an input request is already pending")
	// ErrEmptyPrompt is reported when the first message carries no task.
	ErrEmptyPrompt = errors.New("empty prompt provided")
	// ErrSessionClosed is returned to a pending AskUser when the connection goes away.
	ErrSessionClosed = errors.New("session closed")
)

// TransportError wraps a connection read or write failure. It is logged by the
// bridge and never returned from Serve.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
