package main

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"

	"kmhook/internal/config"
	"kmhook/internal/engine"
	"kmhook/internal/event"
	"kmhook/internal/hotkey"
)

// binder keeps the engine's hotkeys in line with the configured bindings.
// Actions that touch the OS run on the sender goroutine, never on the
// dispatch goroutine.
type binder struct {
	eng  *engine.Engine
	goos string

	mu      sync.Mutex
	handles []engine.Handle

	sendCh chan []event.Code
}

func newBinder(eng *engine.Engine) *binder {
	return &binder{
		eng:    eng,
		goos:   runtime.GOOS,
		sendCh: make(chan []event.Code, 16),
	}
}

// apply replaces every binding-owned hotkey. Bindings that fail to register
// are skipped and reported.
func (b *binder) apply(bindings []config.Binding) []error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, h := range b.handles {
		b.eng.UnregisterHotkey(h)
	}
	b.handles = b.handles[:0]

	var errs []error
	for i, bd := range bindings {
		act, err := config.ParseAction(bd.Action)
		if err != nil {
			errs = append(errs, fmt.Errorf("binding %d: %w", i, err))
			continue
		}
		keys, err := hotkey.Parse(bd.Hotkey)
		if err != nil {
			errs = append(errs, fmt.Errorf("binding %d: %w", i, err))
			continue
		}

		variants := [][]event.Code{keys}
		// On macOS a Ctrl binding also answers to Cmd.
		if b.goos == "darwin" {
			if alt, ok := cmdVariant(keys); ok {
				variants = append(variants, alt)
			}
		}
		for _, v := range variants {
			h, err := b.eng.RegisterHotkey(v, b.callback(bd.Hotkey, act), bd.Options()...)
			if err != nil {
				errs = append(errs, fmt.Errorf("binding %d (%s): %w", i, bd.Hotkey, err))
				continue
			}
			b.handles = append(b.handles, h)
		}
	}
	log.Printf("Bindings: registered %d hotkeys from %d bindings", len(b.handles), len(bindings))
	return errs
}

func (b *binder) callback(name string, act config.Action) engine.HotkeyFunc {
	var chord []event.Code
	if act.Kind == config.ActionSend {
		chord = hotkey.MustParse(act.Chord)
	}
	return func(edge hotkey.Edge) error {
		if edge != hotkey.Activated {
			return nil
		}
		switch act.Kind {
		case config.ActionLog:
			log.Printf("Hotkey: %s", name)
		case config.ActionStop:
			log.Printf("Hotkey: %s, stopping", name)
			return b.eng.Stop()
		case config.ActionSend:
			select {
			case b.sendCh <- chord:
			default:
				return fmt.Errorf("send queue full, dropped %s", act.Chord)
			}
		}
		return nil
	}
}

// runSender performs queued send actions until ctx ends.
func (b *binder) runSender(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case chord := <-b.sendCh:
			if err := b.eng.SendKeys(chord...); err != nil {
				log.Printf("Send %v failed: %v", chord, err)
			}
		}
	}
}

// cmdVariant swaps every Ctrl key for the matching Meta key.
func cmdVariant(keys []event.Code) ([]event.Code, bool) {
	swap := map[event.Code]event.Code{
		event.CodeCtrl:      event.CodeMeta,
		event.CodeLeftCtrl:  event.CodeLeftMeta,
		event.CodeRightCtrl: event.CodeRightMeta,
	}
	out := make([]event.Code, len(keys))
	changed := false
	for i, k := range keys {
		if m, ok := swap[k]; ok {
			k = m
			changed = true
		}
		out[i] = k
	}
	return out, changed
}
