package api

import (
	"errors"
	"fmt"
	"net/http"
)

// DefaultMessage is shown when a failure carries no server message.
const DefaultMessage = "An error occurred"

// ErrNetwork marks transport failures where no response was received.
var ErrNetwork = errors.New("network error")

// Error is the uniform failure returned by the gateway.
// Status is 0 for transport failures.
type Error struct {
	Status        int
	ServerMessage string
	Cause         error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("request failed: %v", e.Cause)
	}
	if e.ServerMessage != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.ServerMessage)
	}
	return fmt.Sprintf("http %d", e.Status)
}

func (e *Error) Unwrap() error {
	if e.Status == 0 {
		return errors.Join(ErrNetwork, e.Cause)
	}
	return e.Cause
}

// IsNetwork reports whether no HTTP response was received.
func (e *Error) IsNetwork() bool {
	return e.Status == 0
}

// IsNotFound reports whether err is an HTTP 404 from the gateway.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Message returns the user-facing text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.ServerMessage != "" {
			return apiErr.ServerMessage
		}
		return DefaultMessage
	}
	var msg interface{ UserMessage() string }
	if errors.As(err, &msg) {
		return msg.UserMessage()
	}
	return DefaultMessage
}
