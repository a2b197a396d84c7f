package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"kmhook/internal/config"
	"kmhook/internal/engine"
	"kmhook/internal/event"
)

// printer echoes dispatched events. It is registered as a listener, so it
// only ever runs on the dispatch goroutine.
type printer struct {
	w    io.Writer
	json bool
}

func (p *printer) print(ev event.Event) error {
	if p.json {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(p.w, "%s\n", data)
		return err
	}
	ts := time.UnixMilli(ev.Timestamp).Format("15:04:05.000")
	_, err := fmt.Fprintf(p.w, "%s %s\n", ts, ev)
	return err
}

// printMask maps the print setting to the kinds echoed.
func printMask(mode string) event.Mask {
	switch mode {
	case config.PrintKeys:
		return event.KeyboardEvents
	case config.PrintMouse:
		return event.MouseEvents
	case config.PrintNone:
		return 0
	default:
		return event.AllEvents
	}
}

// printSwitch registers and unregisters the printer listener, for the tray
// "Print events" item.
type printSwitch struct {
	eng  *engine.Engine
	mask event.Mask
	fn   engine.Listener

	mu     sync.Mutex
	handle engine.Handle
	on     bool
}

func newPrintSwitch(eng *engine.Engine, mask event.Mask, fn engine.Listener) *printSwitch {
	return &printSwitch{eng: eng, mask: mask, fn: fn}
}

// set turns printing on or off. A zero mask never prints.
func (p *printSwitch) set(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	on = on && p.mask != 0
	if on == p.on {
		return
	}
	if on {
		p.handle = p.eng.RegisterFilteredListener(p.mask, p.fn)
	} else {
		p.eng.UnregisterListener(p.handle)
		p.handle = 0
	}
	p.on = on
}

// toggle flips printing and returns the new state.
func (p *printSwitch) toggle() bool {
	p.mu.Lock()
	on := !p.on
	p.mu.Unlock()
	p.set(on)
	return p.enabled()
}

func (p *printSwitch) enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}
