package engine

import (
	"fmt"
	"slices"
	"sync/atomic"

	"kmhook/internal/event"
	"kmhook/internal/hotkey"
)

// Handle identifies a registered listener or hotkey. Handles are never
// reused within one Engine.
type Handle uint64

// Listener receives every dispatched event its mask admits.
type Listener func(ev event.Event) error

// HotkeyFunc is called with each edge of a registered chord.
type HotkeyFunc func(edge hotkey.Edge) error

type listenerEntry struct {
	handle  Handle
	mask    event.Mask
	fn      Listener
	removed atomic.Bool
}

type hotkeyEntry struct {
	handle  Handle
	def     hotkey.Definition
	fn      HotkeyFunc
	removed atomic.Bool
}

// registry is an immutable snapshot. Writers build a new one under regMu and
// publish it; the dispatch goroutine loads it once per event.
type registry struct {
	version   uint64
	listeners []*listenerEntry
	hotkeys   []*hotkeyEntry
	byID      map[hotkey.ID]*hotkeyEntry
}

func (r *registry) clone() *registry {
	n := &registry{
		version:   r.version + 1,
		listeners: slices.Clone(r.listeners),
		hotkeys:   slices.Clone(r.hotkeys),
		byID:      make(map[hotkey.ID]*hotkeyEntry, len(r.byID)+1),
	}
	for id, h := range r.byID {
		n.byID[id] = h
	}
	return n
}

func (e *Engine) handle() Handle {
	return Handle(e.nextHandle.Add(1))
}

// RegisterListener adds fn for every event kind. Listeners run in
// registration order.
func (e *Engine) RegisterListener(fn Listener) Handle {
	return e.RegisterFilteredListener(event.AllEvents, fn)
}

// RegisterFilteredListener adds fn for the kinds in mask only.
func (e *Engine) RegisterFilteredListener(mask event.Mask, fn Listener) Handle {
	e.regMu.Lock()
	defer e.regMu.Unlock()

	l := &listenerEntry{handle: e.handle(), mask: mask, fn: fn}
	r := e.reg.Load().clone()
	r.listeners = append(r.listeners, l)
	e.reg.Store(r)
	return l.handle
}

// UnregisterListener removes the listener h and reports whether it was
// registered. An event already being dispatched skips it from now on.
func (e *Engine) UnregisterListener(h Handle) bool {
	e.regMu.Lock()
	defer e.regMu.Unlock()

	cur := e.reg.Load()
	i := slices.IndexFunc(cur.listeners, func(l *listenerEntry) bool { return l.handle == h })
	if i < 0 {
		return false
	}
	cur.listeners[i].removed.Store(true)
	r := cur.clone()
	r.listeners = slices.Delete(r.listeners, i, i+1)
	e.reg.Store(r)
	return true
}

// RegisterHotkey adds a chord over keys. fn receives Activated when the last
// key of the chord goes down and Deactivated when the first one is released.
// Registering the same chord and trigger twice fails with hotkey.ErrDuplicate.
func (e *Engine) RegisterHotkey(keys []event.Code, fn HotkeyFunc, opts ...hotkey.Option) (Handle, error) {
	def, err := hotkey.NewDefinition(keys, opts...)
	if err != nil {
		return 0, err
	}
	return e.addHotkey(def, fn)
}

// RegisterHotkeyString is RegisterHotkey with a chord such as "Ctrl+Shift+K".
func (e *Engine) RegisterHotkeyString(combo string, fn HotkeyFunc, opts ...hotkey.Option) (Handle, error) {
	def, err := hotkey.ParseDefinition(combo, opts...)
	if err != nil {
		return 0, err
	}
	return e.addHotkey(def, fn)
}

func (e *Engine) addHotkey(def hotkey.Definition, fn HotkeyFunc) (Handle, error) {
	e.regMu.Lock()
	defer e.regMu.Unlock()

	cur := e.reg.Load()
	for _, h := range cur.hotkeys {
		if h.def.Equal(def) {
			return 0, fmt.Errorf("%w: %v is hotkey %d", hotkey.ErrDuplicate, def, h.handle)
		}
	}
	h := &hotkeyEntry{handle: e.handle(), def: def, fn: fn}
	r := cur.clone()
	r.hotkeys = append(r.hotkeys, h)
	r.byID[hotkey.ID(h.handle)] = h
	e.reg.Store(r)
	return h.handle, nil
}

// UnregisterHotkey removes the hotkey h and reports whether it was
// registered.
func (e *Engine) UnregisterHotkey(h Handle) bool {
	e.regMu.Lock()
	defer e.regMu.Unlock()

	cur := e.reg.Load()
	i := slices.IndexFunc(cur.hotkeys, func(k *hotkeyEntry) bool { return k.handle == h })
	if i < 0 {
		return false
	}
	cur.hotkeys[i].removed.Store(true)
	r := cur.clone()
	r.hotkeys = slices.Delete(r.hotkeys, i, i+1)
	delete(r.byID, hotkey.ID(h))
	e.reg.Store(r)
	return true
}

// Clear removes every listener and hotkey.
func (e *Engine) Clear() {
	e.regMu.Lock()
	defer e.regMu.Unlock()

	cur := e.reg.Load()
	for _, l := range cur.listeners {
		l.removed.Store(true)
	}
	for _, h := range cur.hotkeys {
		h.removed.Store(true)
	}
	e.reg.Store(&registry{version: cur.version + 1, byID: map[hotkey.ID]*hotkeyEntry{}})
}

// Hotkeys returns the registered chords in firing order.
func (e *Engine) Hotkeys() []hotkey.Definition {
	cur := e.reg.Load()
	defs := make([]hotkey.Definition, len(cur.hotkeys))
	for i, h := range cur.hotkeys {
		defs[i] = h.def
	}
	return defs
}

// Listeners returns the number of registered listeners.
func (e *Engine) Listeners() int {
	return len(e.reg.Load().listeners)
}
