// Package event provides the platform-neutral input event model shared by
// every backend, the hotkey matcher and the dispatch engine.
package event

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which variant an Event holds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KeyDown
	KeyUp
	MouseMove
	MouseButton
	MouseWheel
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KeyDown:     "key_down",
	KeyUp:       "key_up",
	MouseMove:   "mouse_move",
	MouseButton: "mouse_btn",
	MouseWheel:  "mouse_wheel",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// IsKey reports whether k is a keyboard kind.
func (k Kind) IsKey() bool { return k == KeyDown || k == KeyUp }

// IsMouse reports whether k is a mouse kind.
func (k Kind) IsMouse() bool { return k == MouseMove || k == MouseButton || k == MouseWheel }

// Mask is a set of kinds, used to filter listeners.
type Mask uint8

const (
	KeyboardEvents = Mask(1<<KeyDown | 1<<KeyUp)
	MouseEvents    = Mask(1<<MouseMove | 1<<MouseButton | 1<<MouseWheel)
	AllEvents      = KeyboardEvents | MouseEvents
)

// Mask returns the single-kind mask for k.
func (k Kind) Mask() Mask { return Mask(1 << k) }

// Has reports whether kind k is part of the mask.
func (m Mask) Has(k Kind) bool { return m&k.Mask() != 0 }

// Button identifies a mouse button. Numbering follows the usual
// 1=left, 2=right, 3=middle convention.
type Button uint8

const (
	ButtonUnknown Button = iota
	ButtonLeft
	ButtonRight
	ButtonMiddle
	ButtonX1
	ButtonX2
)

var buttonNames = [...]string{"unknown", "left", "right", "middle", "x1", "x2"}

func (b Button) String() string {
	if int(b) < len(buttonNames) {
		return buttonNames[b]
	}
	return fmt.Sprintf("button(%d)", b)
}

// Valid reports whether b names a real button.
func (b Button) Valid() bool { return b >= ButtonLeft && b <= ButtonX2 }

// Event is one keyboard or mouse input event. It is a comparable value type:
// backends build it, the engine passes it by value and nothing retains it
// after dispatch.
//
// Only the fields belonging to Kind are meaningful:
//
//	KeyDown      Code, Raw, Repeat
//	KeyUp        Code, Raw
//	MouseMove    X, Y (screen coordinates)
//	MouseButton  Button, Pressed, X, Y (pointer position, when the platform reports it)
//	MouseWheel   Delta, Horizontal
type Event struct {
	Kind Kind

	// Code is the platform-neutral key. CodeUnknown means the native key has
	// no mapping and Raw carries the native code instead.
	Code   Code
	Raw    uint32
	Repeat bool

	X, Y int

	Button  Button
	Pressed bool

	// Delta is in notches; positive scrolls up (or right when Horizontal).
	Delta      int
	Horizontal bool

	// Timestamp is the capture time in Unix milliseconds, zero for events
	// built by user code.
	Timestamp int64
}

// KeyDownEvent returns a key press. repeat marks auto-repeat while held.
func KeyDownEvent(code Code, repeat bool) Event {
	return Event{Kind: KeyDown, Code: code, Repeat: repeat}
}

// KeyUpEvent returns a key release.
func KeyUpEvent(code Code) Event {
	return Event{Kind: KeyUp, Code: code}
}

// UnknownKeyDown returns a key press for a native code with no Code mapping.
func UnknownKeyDown(raw uint32, repeat bool) Event {
	return Event{Kind: KeyDown, Code: CodeUnknown, Raw: raw, Repeat: repeat}
}

// UnknownKeyUp returns a key release for a native code with no Code mapping.
func UnknownKeyUp(raw uint32) Event {
	return Event{Kind: KeyUp, Code: CodeUnknown, Raw: raw}
}

// MouseMoveEvent returns a pointer move to absolute position x, y.
func MouseMoveEvent(x, y int) Event {
	return Event{Kind: MouseMove, X: x, Y: y}
}

// MouseButtonEvent returns a button press or release.
func MouseButtonEvent(b Button, pressed bool) Event {
	return Event{Kind: MouseButton, Button: b, Pressed: pressed}
}

// Located returns a copy of e at pointer position x, y. Backends use it for
// button events; synthesis ignores the position of a button event.
func (e Event) Located(x, y int) Event {
	e.X, e.Y = x, y
	return e
}

// MouseWheelEvent returns a vertical scroll of delta notches.
func MouseWheelEvent(delta int) Event {
	return Event{Kind: MouseWheel, Delta: delta}
}

// HorizontalWheelEvent returns a horizontal scroll of delta notches.
func HorizontalWheelEvent(delta int) Event {
	return Event{Kind: MouseWheel, Delta: delta, Horizontal: true}
}

// At returns a copy of e stamped with ts (Unix milliseconds).
func (e Event) At(ts int64) Event {
	e.Timestamp = ts
	return e
}

// Unknown reports whether e is a key event without a Code mapping.
func (e Event) Unknown() bool {
	return e.Kind.IsKey() && e.Code == CodeUnknown
}

func (e Event) String() string {
	switch e.Kind {
	case KeyDown:
		s := "KeyDown(" + e.keyName()
		if e.Repeat {
			s += ", repeat"
		}
		return s + ")"
	case KeyUp:
		return "KeyUp(" + e.keyName() + ")"
	case MouseMove:
		return fmt.Sprintf("MouseMove(%d, %d)", e.X, e.Y)
	case MouseButton:
		state := "up"
		if e.Pressed {
			state = "down"
		}
		if e.X != 0 || e.Y != 0 {
			return fmt.Sprintf("MouseButton(%s, %s, at %d, %d)", e.Button, state, e.X, e.Y)
		}
		return "MouseButton(" + e.Button.String() + ", " + state + ")"
	case MouseWheel:
		if e.Horizontal {
			return fmt.Sprintf("MouseWheel(h, %d)", e.Delta)
		}
		return fmt.Sprintf("MouseWheel(%d)", e.Delta)
	}
	return "Event(" + e.Kind.String() + ")"
}

func (e Event) keyName() string {
	if e.Code == CodeUnknown {
		return fmt.Sprintf("Unknown(0x%X)", e.Raw)
	}
	return e.Code.String()
}

type jsonEvent struct {
	Type       string `json:"type"`
	Key        string `json:"key,omitempty"`
	Raw        uint32 `json:"raw,omitempty"`
	Repeat     bool   `json:"repeat,omitempty"`
	X          *int   `json:"x,omitempty"`
	Y          *int   `json:"y,omitempty"`
	Button     string `json:"btn,omitempty"`
	Pressed    *bool  `json:"pressed,omitempty"`
	Delta      int    `json:"delta,omitempty"`
	Horizontal bool   `json:"horizontal,omitempty"`
	Timestamp  int64  `json:"ts,omitempty"`
}

// MarshalJSON encodes only the fields relevant to the event's kind.
func (e Event) MarshalJSON() ([]byte, error) {
	j := jsonEvent{Type: e.Kind.String(), Timestamp: e.Timestamp}
	switch e.Kind {
	case KeyDown, KeyUp:
		j.Key = e.keyName()
		if e.Code == CodeUnknown {
			j.Key = "unknown"
			j.Raw = e.Raw
		}
		j.Repeat = e.Repeat
	case MouseMove:
		x, y := e.X, e.Y
		j.X, j.Y = &x, &y
	case MouseButton:
		p := e.Pressed
		j.Button, j.Pressed = e.Button.String(), &p
		if e.X != 0 || e.Y != 0 {
			x, y := e.X, e.Y
			j.X, j.Y = &x, &y
		}
	case MouseWheel:
		j.Delta, j.Horizontal = e.Delta, e.Horizontal
	default:
		return nil, fmt.Errorf("cannot encode event of kind %s", e.Kind)
	}
	return json.Marshal(j)
}
