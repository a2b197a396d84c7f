package hotkey

import (
	"fmt"
	"slices"
	"time"

	"kmhook/internal/event"
)

// ID identifies a definition inside a Matcher.
type ID uint64

// Fire is one edge reported by Update.
type Fire struct {
	ID   ID
	Edge Edge
}

type entry struct {
	id  ID
	def Definition

	active   bool // every key held
	reported bool // an Activated edge went out for the current hold

	presses   int
	lastPress time.Time
}

// Matcher tracks which physical keys are down and which chords are held.
// It is not safe for concurrent use; the engine drives it from its single
// dispatch goroutine.
type Matcher struct {
	now     func() time.Time
	down    map[event.Code]bool
	entries []*entry
}

// NewMatcher returns an empty matcher. now supplies the time used for
// multi-press triggers; nil means time.Now.
func NewMatcher(now func() time.Time) *Matcher {
	if now == nil {
		now = time.Now
	}
	return &Matcher{now: now, down: make(map[event.Code]bool)}
}

// Add appends a definition. Definitions fire in the order they were added.
// A chord that is already held when it is added only activates after it
// has been released and pressed again.
func (m *Matcher) Add(id ID, def Definition) error {
	if len(def.keys) == 0 {
		return ErrEmpty
	}
	for _, e := range m.entries {
		if e.id == id {
			return fmt.Errorf("%w: %d", ErrDuplicateID, id)
		}
		if e.def.Equal(def) {
			return fmt.Errorf("%w: %v", ErrDuplicate, def)
		}
	}
	e := &entry{id: id, def: def}
	e.active = m.held(def)
	m.entries = append(m.entries, e)
	return nil
}

// Remove deletes a definition. It reports whether id was present.
func (m *Matcher) Remove(id ID) bool {
	i := slices.IndexFunc(m.entries, func(e *entry) bool { return e.id == id })
	if i < 0 {
		return false
	}
	m.entries = slices.Delete(m.entries, i, i+1)
	return true
}

// Has reports whether id is registered.
func (m *Matcher) Has(id ID) bool {
	return slices.ContainsFunc(m.entries, func(e *entry) bool { return e.id == id })
}

// IDs returns the registered ids in firing order.
func (m *Matcher) IDs() []ID {
	ids := make([]ID, len(m.entries))
	for i, e := range m.entries {
		ids[i] = e.id
	}
	return ids
}

// Len returns the number of definitions.
func (m *Matcher) Len() int { return len(m.entries) }

// Reset forgets every held key and chord state, keeping the definitions.
func (m *Matcher) Reset() {
	clear(m.down)
	for _, e := range m.entries {
		e.active, e.reported = false, false
		e.presses = 0
		e.lastPress = time.Time{}
	}
}

// Pressed returns the keys of definition id that are currently satisfied,
// in definition order.
func (m *Matcher) Pressed(id ID) []event.Code {
	for _, e := range m.entries {
		if e.id != id {
			continue
		}
		var out []event.Code
		for _, k := range e.def.keys {
			if m.isDown(k) {
				out = append(out, k)
			}
		}
		return out
	}
	return nil
}

// Update feeds one event and returns the edges it caused, in definition
// order. Events other than key presses and releases never cause edges.
func (m *Matcher) Update(ev event.Event) []Fire {
	if !ev.Kind.IsKey() || !ev.Code.Physical() {
		return nil
	}

	switch ev.Kind {
	case event.KeyDown:
		if m.down[ev.Code] {
			// autorepeat, or a press we already saw
			return nil
		}
		m.down[ev.Code] = true
	case event.KeyUp:
		if !m.down[ev.Code] {
			return nil
		}
		delete(m.down, ev.Code)
	}

	var fires []Fire
	var now time.Time
	for _, e := range m.entries {
		if !e.def.needs(ev.Code) {
			continue
		}
		full := m.held(e.def)
		switch {
		case full && !e.active:
			e.active = true
			if now.IsZero() {
				now = m.now()
			}
			if e.countPress(now) {
				e.reported = true
				fires = append(fires, Fire{ID: e.id, Edge: Activated})
			}
		case !full && e.active:
			e.active = false
			if e.reported {
				e.reported = false
				fires = append(fires, Fire{ID: e.id, Edge: Deactivated})
			}
		}
	}
	return fires
}

// countPress records one activation and reports whether it completes the
// trigger.
func (e *entry) countPress(now time.Time) bool {
	t := e.def.trigger
	if t.Presses <= 1 {
		return true
	}
	if e.presses > 0 && now.Sub(e.lastPress) > t.Within {
		e.presses = 0
	}
	e.presses++
	e.lastPress = now
	if e.presses >= t.Presses {
		e.presses = 0
		return true
	}
	return false
}

func (m *Matcher) held(def Definition) bool {
	for _, k := range def.keys {
		if !m.isDown(k) {
			return false
		}
	}
	return true
}

func (m *Matcher) isDown(k event.Code) bool {
	if k.Generic() {
		left, right := k.Sides()
		return m.down[left] || m.down[right]
	}
	return m.down[k]
}
