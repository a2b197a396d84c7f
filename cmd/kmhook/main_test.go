package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"kmhook/internal/backend/fake"
	"kmhook/internal/config"
	"kmhook/internal/engine"
	"kmhook/internal/event"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func startEngine(t *testing.T) (*engine.Engine, *fake.Backend) {
	t.Helper()
	b := fake.New()
	eng := engine.New(b, engine.WithLogger(slog.New(slog.DiscardHandler)))
	t.Cleanup(func() { _ = eng.Stop() })
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return eng, b
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSendBinding(t *testing.T) {
	eng, b := startEngine(t)
	bind := newBinder(eng)
	bind.goos = "linux"
	errs := bind.apply([]config.Binding{{Hotkey: "F8", Action: "send:Ctrl+C"}})
	if len(errs) != 0 {
		t.Fatalf("apply() errors: %v", errs)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bind.runSender(ctx)

	b.Emit(chordEvents([]event.Code{event.CodeF8})...)
	waitFor(t, "synthesized chord", func() bool { return len(b.Synthesized()) == 4 })

	want := []event.Event{
		event.KeyDownEvent(event.CodeCtrl, false),
		event.KeyDownEvent(event.CodeC, false),
		event.KeyUpEvent(event.CodeC),
		event.KeyUpEvent(event.CodeCtrl),
	}
	if got := b.Synthesized(); !slices.Equal(got, want) {
		t.Errorf("synthesized %v, want %v", got, want)
	}
}

func TestStopBinding(t *testing.T) {
	eng, b := startEngine(t)
	bind := newBinder(eng)
	if errs := bind.apply([]config.Binding{{Hotkey: "Ctrl+Alt+Shift+Esc", Action: "stop"}}); len(errs) != 0 {
		t.Fatalf("apply() errors: %v", errs)
	}

	b.Emit(chordEvents([]event.Code{event.CodeCtrl, event.CodeAlt, event.CodeShift, event.CodeEscape})...)
	select {
	case <-eng.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stop binding did not stop the engine")
	}
	if eng.Err() != nil {
		t.Errorf("Err() = %v after a stop binding", eng.Err())
	}
}

func TestApplyReplacesBindings(t *testing.T) {
	eng, _ := startEngine(t)
	bind := newBinder(eng)
	bind.goos = "linux"

	bind.apply([]config.Binding{{Hotkey: "F1", Action: "log"}, {Hotkey: "F2", Action: "log"}})
	if n := len(eng.Hotkeys()); n != 2 {
		t.Fatalf("hotkeys = %d, want 2", n)
	}
	errs := bind.apply([]config.Binding{
		{Hotkey: "F3", Action: "log"},
		{Hotkey: "F3", Action: "stop"},
		{Hotkey: "Nope", Action: "log"},
		{Hotkey: "F4", Action: "dance"},
	})
	if len(errs) != 3 {
		t.Errorf("apply() reported %d errors, want 3: %v", len(errs), errs)
	}
	defs := eng.Hotkeys()
	if len(defs) != 1 || defs[0].String() != "F3" {
		t.Errorf("hotkeys = %v, want [F3]", defs)
	}
}

func TestDarwinCmdVariant(t *testing.T) {
	eng, _ := startEngine(t)
	bind := newBinder(eng)
	bind.goos = "darwin"

	if errs := bind.apply([]config.Binding{{Hotkey: "Ctrl+Alt+1", Action: "log"}, {Hotkey: "Alt+2", Action: "log"}}); len(errs) != 0 {
		t.Fatalf("apply() errors: %v", errs)
	}
	var names []string
	for _, d := range eng.Hotkeys() {
		names = append(names, d.String())
	}
	want := []string{"Ctrl+Alt+1", "Meta+Alt+1", "Alt+2"}
	if !slices.Equal(names, want) {
		t.Errorf("hotkeys = %v, want %v", names, want)
	}
}

func TestCmdVariant(t *testing.T) {
	got, ok := cmdVariant([]event.Code{event.CodeLeftCtrl, event.CodeShift, event.CodeRightCtrl})
	want := []event.Code{event.CodeLeftMeta, event.CodeShift, event.CodeRightMeta}
	if !ok || !slices.Equal(got, want) {
		t.Errorf("cmdVariant() = %v, %v", got, ok)
	}
	if _, ok := cmdVariant([]event.Code{event.CodeA}); ok {
		t.Error("cmdVariant() reported a change for a chord without Ctrl")
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf}
	if err := p.print(event.KeyDownEvent(event.CodeA, true).At(1000)); err != nil {
		t.Fatalf("print() failed: %v", err)
	}
	if got := buf.String(); !strings.HasSuffix(got, " KeyDown(A, repeat)\n") {
		t.Errorf("text output = %q", got)
	}

	buf.Reset()
	p.json = true
	if err := p.print(event.MouseButtonEvent(event.ButtonRight, false)); err != nil {
		t.Fatalf("print() failed: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("json output %q: %v", buf.String(), err)
	}
	if m["type"] != "mouse_btn" || m["btn"] != "right" || m["pressed"] != false {
		t.Errorf("json output = %v", m)
	}
}

func TestPrintMask(t *testing.T) {
	tests := []struct {
		mode string
		want event.Mask
	}{
		{config.PrintAll, event.AllEvents},
		{config.PrintKeys, event.KeyboardEvents},
		{config.PrintMouse, event.MouseEvents},
		{config.PrintNone, 0},
	}
	for _, tt := range tests {
		if got := printMask(tt.mode); got != tt.want {
			t.Errorf("printMask(%q) = %b, want %b", tt.mode, got, tt.want)
		}
	}
}

func TestFeedChords(t *testing.T) {
	eng, b := startEngine(t)
	got := make(chan event.Event, 16)
	eng.RegisterListener(func(ev event.Event) error { got <- ev.At(0); return nil })

	feedChords(strings.NewReader("ctrl+k\n\nbogus+key\n"), b)

	want := []event.Event{
		event.KeyDownEvent(event.CodeLeftCtrl, false),
		event.KeyDownEvent(event.CodeK, false),
		event.KeyUpEvent(event.CodeK),
		event.KeyUpEvent(event.CodeLeftCtrl),
	}
	for i, w := range want {
		select {
		case ev := <-got:
			if ev != w {
				t.Errorf("event %d = %v, want %v", i, ev, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d never arrived", i)
		}
	}
}

func TestPrintSwitch(t *testing.T) {
	eng, b := startEngine(t)
	var buf bytes.Buffer
	var mu sync.Mutex
	printed := func(ev event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		buf.WriteString(ev.String() + "\n")
		return nil
	}
	sw := newPrintSwitch(eng, event.KeyboardEvents, printed)
	sw.set(true)
	if eng.Listeners() != 1 || !sw.enabled() {
		t.Fatalf("listeners = %d, enabled = %v after set(true)", eng.Listeners(), sw.enabled())
	}
	sw.set(true)
	if eng.Listeners() != 1 {
		t.Errorf("set(true) twice registered %d listeners", eng.Listeners())
	}

	if sw.toggle() {
		t.Error("toggle() from on returned true")
	}
	if eng.Listeners() != 0 {
		t.Errorf("listeners = %d after toggling off", eng.Listeners())
	}
	b.Emit(event.KeyDownEvent(event.CodeA, false))
	waitFor(t, "dispatch", func() bool { return eng.Stats().Dispatched == 1 })
	mu.Lock()
	if buf.Len() != 0 {
		t.Errorf("printed %q while switched off", buf.String())
	}
	mu.Unlock()

	if !sw.toggle() {
		t.Error("toggle() from off returned false")
	}
	b.Emit(event.KeyDownEvent(event.CodeB, false))
	waitFor(t, "printed event", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return buf.Len() > 0
	})
}

func TestPrintSwitchNoneStaysOff(t *testing.T) {
	eng, _ := startEngine(t)
	sw := newPrintSwitch(eng, printMask(config.PrintNone), func(event.Event) error { return nil })
	sw.set(true)
	if sw.enabled() || eng.Listeners() != 0 {
		t.Errorf("print mode none registered a listener")
	}
}

func TestEditBindings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}
	if err := m.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if err := editBindings(m, "F8 = send:Ctrl+C", ""); err != nil {
		t.Fatalf("editBindings(bind) failed: %v", err)
	}
	saved, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}
	if err := saved.Load(); err != nil {
		t.Fatalf("Load() of saved config failed: %v", err)
	}
	bs := saved.Get().Bindings
	if n := len(bs); n != 2 || bs[1] != (config.Binding{Hotkey: "F8", Action: "send:Ctrl+C"}) {
		t.Errorf("saved bindings = %+v", bs)
	}

	if err := editBindings(saved, "", "F8"); err != nil {
		t.Fatalf("editBindings(unbind) failed: %v", err)
	}
	if err := editBindings(saved, "", "F8"); err == nil {
		t.Error("unbinding a missing hotkey succeeded")
	}
	if err := editBindings(saved, "F9", ""); err == nil {
		t.Error("binding without an action succeeded")
	}
	if err := editBindings(saved, "F9=dance", ""); err == nil {
		t.Error("binding with an unknown action succeeded")
	}
}
