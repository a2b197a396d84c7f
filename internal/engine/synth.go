package engine

import (
	"errors"
	"fmt"

	"kmhook/internal/backend"
	"kmhook/internal/event"
)

// Send injects ev through the backend. It fails with
// backend.ErrEngineNotRunning unless the engine is Running, and with
// backend.ErrUnsupportedEvent for events no backend can produce.
func (e *Engine) Send(ev event.Event) error {
	if !e.Running() {
		return backend.NotRunning(ev)
	}
	if err := backend.CheckSynthesizable(ev); err != nil {
		return err
	}
	return e.backend.Synthesize(ev)
}

// SendKey presses or releases one key.
func (e *Engine) SendKey(code event.Code, pressed bool) error {
	if pressed {
		return e.Send(event.KeyDownEvent(code, false))
	}
	return e.Send(event.KeyUpEvent(code))
}

// SendMouseMove moves the pointer to screen position x, y.
func (e *Engine) SendMouseMove(x, y int) error {
	return e.Send(event.MouseMoveEvent(x, y))
}

// SendMouseButton presses or releases a mouse button.
func (e *Engine) SendMouseButton(b event.Button, pressed bool) error {
	return e.Send(event.MouseButtonEvent(b, pressed))
}

// SendScroll scrolls vertically by delta notches, positive is up.
func (e *Engine) SendScroll(delta int) error {
	return e.Send(event.MouseWheelEvent(delta))
}

// SendHorizontalScroll scrolls horizontally by delta notches, positive is
// right.
func (e *Engine) SendHorizontalScroll(delta int) error {
	return e.Send(event.HorizontalWheelEvent(delta))
}

// SendKeys types a chord: every key is pressed in order, then released in
// reverse order. If a press fails, the keys already down are released before
// the error is returned.
func (e *Engine) SendKeys(codes ...event.Code) error {
	if len(codes) == 0 {
		return nil
	}
	if !e.Running() {
		return backend.NotRunning(event.KeyDownEvent(codes[0], false))
	}
	for _, c := range codes {
		if err := backend.CheckSynthesizable(event.KeyDownEvent(c, false)); err != nil {
			return err
		}
	}

	for i, c := range codes {
		if err := e.SendKey(c, true); err != nil {
			return errors.Join(err, e.release(codes[:i]))
		}
	}
	if err := e.release(codes); err != nil {
		return fmt.Errorf("release chord: %w", err)
	}
	return nil
}

// release lets go of codes in reverse order, attempting every key.
func (e *Engine) release(codes []event.Code) error {
	var errs []error
	for i := len(codes) - 1; i >= 0; i-- {
		if err := e.SendKey(codes[i], false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
