package mcp

import "fmt"

// SessionUnavailableError reports that a pooled server connection could not
// be established or is currently down. Tool dispatch treats it as a
// recoverable per-call failure: the conversation continues while the
// provider stays degraded.
type SessionUnavailableError struct {
	ServerPath string
	Err        error
}

func (e *SessionUnavailableError) Error() string {
	return fmt.Sprintf("mcp server %q unavailable: %v", e.ServerPath, e.Err)
}

func (e *SessionUnavailableError) Unwrap() error { return e.Err }
