// Package hotkey matches key chords against the stream of key events.
//
// A chord is a set of codes that must be held at the same time, in any
// order. Generic modifiers (Ctrl, Shift, Alt, Meta) are satisfied by either
// side. The Matcher reports an Activated edge when a chord becomes fully
// held and a Deactivated edge when it stops being fully held; autorepeat
// never produces another edge.
package hotkey

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"kmhook/internal/event"
)

// Errors returned when building or registering a chord.
var (
	ErrEmpty       = errors.New("empty hotkey")
	ErrUnknownKey  = errors.New("unknown key")
	ErrRepeatedKey = errors.New("key repeated in hotkey")
	ErrBadTrigger  = errors.New("invalid press trigger")
	ErrDuplicate   = errors.New("hotkey already registered")
	ErrDuplicateID = errors.New("hotkey id already in use")
)

// DefaultPressWindow is the maximum gap between presses of a multi-press
// trigger when WithPresses is given no window.
const DefaultPressWindow = 500 * time.Millisecond

// Edge is the transition a chord went through.
type Edge int

const (
	Activated Edge = iota + 1
	Deactivated
)

func (e Edge) String() string {
	switch e {
	case Activated:
		return "activated"
	case Deactivated:
		return "deactivated"
	}
	return fmt.Sprintf("Edge(%d)", int(e))
}

// Trigger says how many activations in a row make one reported activation.
type Trigger struct {
	Presses int
	Within  time.Duration
}

// Option configures a Definition.
type Option func(*Trigger)

// WithPresses requires n activations, each within the given window of the
// previous one, before Activated is reported. A zero window means
// DefaultPressWindow.
func WithPresses(n int, within time.Duration) Option {
	return func(t *Trigger) {
		t.Presses = n
		t.Within = within
	}
}

// Definition is a validated chord plus its trigger.
type Definition struct {
	keys    []event.Code
	trigger Trigger
}

// NewDefinition validates keys and applies opts. The key order is kept for
// display only; matching ignores it.
func NewDefinition(keys []event.Code, opts ...Option) (Definition, error) {
	if len(keys) == 0 {
		return Definition{}, ErrEmpty
	}
	seen := make(map[event.Code]bool, len(keys))
	for _, k := range keys {
		if !k.Valid() {
			return Definition{}, fmt.Errorf("%w: %v", ErrUnknownKey, k)
		}
		if seen[k] {
			return Definition{}, fmt.Errorf("%w: %v", ErrRepeatedKey, k)
		}
		seen[k] = true
	}

	t := Trigger{Presses: 1}
	for _, opt := range opts {
		opt(&t)
	}
	if t.Presses < 1 {
		return Definition{}, fmt.Errorf("%w: %d presses", ErrBadTrigger, t.Presses)
	}
	if t.Within < 0 {
		return Definition{}, fmt.Errorf("%w: negative window %v", ErrBadTrigger, t.Within)
	}
	if t.Presses == 1 {
		t.Within = 0
	} else if t.Within == 0 {
		t.Within = DefaultPressWindow
	}
	return Definition{keys: slices.Clone(keys), trigger: t}, nil
}

// Keys returns a copy of the chord's codes.
func (d Definition) Keys() []event.Code { return slices.Clone(d.keys) }

// Trigger returns the press trigger.
func (d Definition) Trigger() Trigger { return d.trigger }

// Equal reports whether two definitions describe the same chord and trigger.
func (d Definition) Equal(o Definition) bool {
	if d.trigger != o.trigger || len(d.keys) != len(o.keys) {
		return false
	}
	a, b := slices.Clone(d.keys), slices.Clone(o.keys)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// String renders the chord the way Parse accepts it, e.g. "Ctrl+Shift+K",
// with "x2" appended for a double-press trigger.
func (d Definition) String() string {
	names := make([]string, len(d.keys))
	for i, k := range d.keys {
		names[i] = k.String()
	}
	s := strings.Join(names, "+")
	if d.trigger.Presses > 1 {
		s += fmt.Sprintf(" x%d", d.trigger.Presses)
	}
	return s
}

// needs reports whether code takes part in the chord, directly or through
// a generic modifier.
func (d Definition) needs(code event.Code) bool {
	generic := code.GenericOf()
	for _, k := range d.keys {
		if k == code || (generic != event.CodeUnknown && k == generic) {
			return true
		}
	}
	return false
}
