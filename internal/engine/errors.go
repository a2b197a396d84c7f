package engine

import (
	"fmt"

	"kmhook/internal/event"
)

// CallbackError reports a listener or hotkey callback that returned an
// error or panicked. Dispatch continues after it is reported.
type CallbackError struct {
	Session string
	Kind    string // "listener" or "hotkey"
	Handle  Handle
	Event   event.Event
	Err     error

	// Panic and Stack are set when the callback panicked.
	Panic any
	Stack []byte
}

func (e *CallbackError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s %d panicked on %v: %v", e.Kind, e.Handle, e.Event, e.Panic)
	}
	return fmt.Sprintf("%s %d failed on %v: %v", e.Kind, e.Handle, e.Event, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// Panicked reports whether the callback panicked rather than returning an
// error.
func (e *CallbackError) Panicked() bool { return e.Panic != nil }
