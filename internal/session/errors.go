package session

import (
	"fmt"
	"time"
)

// CredentialError indicates the token fetch or parse failed. Fatal to
// session start; not retried.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential fetch failed: %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// ConnectError indicates a transport-level connect failure.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("session connect failed: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// MicrophonePermissionError indicates the platform denied audio capture.
// Distinguished from transport errors so the UI can surface permissions
// guidance.
type MicrophonePermissionError struct {
	Err error
}

func (e *MicrophonePermissionError) Error() string {
	return fmt.Sprintf("microphone unavailable: %v", e.Err)
}

func (e *MicrophonePermissionError) Unwrap() error { return e.Err }

// ChannelTimeoutError indicates the reliable control channel never opened.
// Fatal: the stage protocol cannot function without it.
type ChannelTimeoutError struct {
	Timeout time.Duration
}

func (e *ChannelTimeoutError) Error() string {
	return fmt.Sprintf("control channel did not open within %s", e.Timeout)
}
