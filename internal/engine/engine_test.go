package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"kmhook/internal/backend"
	"kmhook/internal/backend/fake"
	"kmhook/internal/event"
	"kmhook/internal/hotkey"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// recorder collects values from callbacks running on the dispatch goroutine.
type recorder[T any] struct {
	mu  sync.Mutex
	got []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
}

func (r *recorder[T]) values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.got)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fake.Backend, *recorder[error]) {
	t.Helper()
	b := fake.New()
	errs := &recorder[error]{}
	base := []Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithErrorHandler(errs.add),
		WithClock(func() time.Time { return epoch }),
	}
	e := New(b, append(base, opts...)...)
	t.Cleanup(func() { _ = e.Stop() })
	return e, b, errs
}

func mustStart(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
}

func waitDispatched(t *testing.T, e *Engine, n uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.Stats().Dispatched < n {
		if time.Now().After(deadline) {
			t.Fatalf("dispatched %d events, want %d", e.Stats().Dispatched, n)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitDone(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("engine did not stop, state %v", e.State())
	}
}

func down(c event.Code) event.Event   { return event.KeyDownEvent(c, false) }
func repeat(c event.Code) event.Event { return event.KeyDownEvent(c, true) }
func up(c event.Code) event.Event     { return event.KeyUpEvent(c) }

func TestStartStop(t *testing.T) {
	e, b, _ := newTestEngine(t)

	if e.State() != Stopped {
		t.Fatalf("initial state = %v, want stopped", e.State())
	}
	select {
	case <-e.Done():
	default:
		t.Fatal("Done() should be closed before the first Start")
	}

	mustStart(t, e)
	if e.State() != Running {
		t.Errorf("state = %v, want running", e.State())
	}
	if e.Session() == "" {
		t.Error("Session() is empty while running")
	}
	if !b.Installed() {
		t.Error("backend not installed after Start")
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if e.State() != Stopped {
		t.Errorf("state after Stop = %v, want stopped", e.State())
	}
	if b.Installed() {
		t.Error("backend still installed after Stop")
	}
	select {
	case <-e.Done():
	default:
		t.Error("Done() not closed after Stop returned")
	}

	if err := e.Stop(); err != nil {
		t.Errorf("second Stop() = %v, want nil", err)
	}
	if b.Uninstalls() != 1 {
		t.Errorf("uninstalls = %d, want 1", b.Uninstalls())
	}
}

func TestStartTwice(t *testing.T) {
	e, b, _ := newTestEngine(t)
	mustStart(t, e)

	err := e.Start(context.Background())
	if !errors.Is(err, backend.ErrAlreadyInstalled) {
		t.Fatalf("second Start() = %v, want ErrAlreadyInstalled", err)
	}
	if b.Installs() != 1 {
		t.Errorf("installs = %d, want 1", b.Installs())
	}
	if e.State() != Running {
		t.Errorf("state = %v, want running", e.State())
	}
}

func TestStartInstallError(t *testing.T) {
	e, b, _ := newTestEngine(t)
	b.SetInstallError(backend.PermissionDenied(nil))

	err := e.Start(context.Background())
	if !errors.Is(err, backend.ErrPermissionDenied) {
		t.Fatalf("Start() = %v, want ErrPermissionDenied", err)
	}
	if e.State() != Stopped {
		t.Errorf("state = %v, want stopped", e.State())
	}

	b.SetInstallError(nil)
	mustStart(t, e)
}

func TestStartCanceledContext(t *testing.T) {
	e, b, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := e.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() = %v, want context.Canceled", err)
	}
	if b.Installs() != 0 {
		t.Errorf("installs = %d, want 0", b.Installs())
	}
}

func TestRestartNewSession(t *testing.T) {
	e, b, _ := newTestEngine(t)
	mustStart(t, e)
	first := e.Session()
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	mustStart(t, e)
	if e.Session() == first {
		t.Error("restart reused the session id")
	}
	if b.Installs() != 2 {
		t.Errorf("installs = %d, want 2", b.Installs())
	}
}

func TestListenerOrder(t *testing.T) {
	e, b, _ := newTestEngine(t)
	calls := &recorder[string]{}
	e.RegisterListener(func(event.Event) error { calls.add("A"); return nil })
	e.RegisterListener(func(event.Event) error { calls.add("B"); return nil })
	mustStart(t, e)

	b.Emit(down(event.CodeA))
	waitDispatched(t, e, 1)

	if got, want := calls.values(), []string{"A", "B"}; !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestListenerSeesEventsInOrder(t *testing.T) {
	e, b, _ := newTestEngine(t)
	seen := &recorder[event.Event]{}
	e.RegisterListener(func(ev event.Event) error { seen.add(ev); return nil })
	mustStart(t, e)

	in := []event.Event{
		down(event.CodeH),
		up(event.CodeH),
		event.MouseMoveEvent(10, 20),
		event.MouseButtonEvent(event.ButtonLeft, true),
		event.MouseWheelEvent(-1),
		event.UnknownKeyDown(0xE8, false),
	}
	b.Emit(in...)
	waitDispatched(t, e, uint64(len(in)))

	got := seen.values()
	if len(got) != len(in) {
		t.Fatalf("listener saw %d events, want %d", len(got), len(in))
	}
	for i := range in {
		want := in[i].At(epoch.UnixMilli())
		if got[i] != want {
			t.Errorf("event %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestCapturedTimestampKept(t *testing.T) {
	e, b, _ := newTestEngine(t)
	seen := &recorder[event.Event]{}
	e.RegisterListener(func(ev event.Event) error { seen.add(ev); return nil })
	mustStart(t, e)

	b.Emit(down(event.CodeA).At(42))
	waitDispatched(t, e, 1)

	if got := seen.values()[0].Timestamp; got != 42 {
		t.Errorf("timestamp = %d, want 42", got)
	}
}

func TestFilteredListener(t *testing.T) {
	e, b, _ := newTestEngine(t)
	keys := &recorder[event.Kind]{}
	mouse := &recorder[event.Kind]{}
	e.RegisterFilteredListener(event.KeyboardEvents, func(ev event.Event) error { keys.add(ev.Kind); return nil })
	e.RegisterFilteredListener(event.MouseEvents, func(ev event.Event) error { mouse.add(ev.Kind); return nil })
	mustStart(t, e)

	b.Emit(down(event.CodeA), event.MouseMoveEvent(1, 1), up(event.CodeA), event.MouseWheelEvent(1))
	waitDispatched(t, e, 4)

	if got, want := keys.values(), []event.Kind{event.KeyDown, event.KeyUp}; !slices.Equal(got, want) {
		t.Errorf("keyboard listener saw %v, want %v", got, want)
	}
	if got, want := mouse.values(), []event.Kind{event.MouseMove, event.MouseWheel}; !slices.Equal(got, want) {
		t.Errorf("mouse listener saw %v, want %v", got, want)
	}
}

func TestUnregisterBeforeEvent(t *testing.T) {
	e, b, _ := newTestEngine(t)
	calls := &recorder[event.Event]{}
	h := e.RegisterListener(func(ev event.Event) error { calls.add(ev); return nil })
	if !e.UnregisterListener(h) {
		t.Fatal("UnregisterListener() = false for a registered handle")
	}
	if e.UnregisterListener(h) {
		t.Error("second UnregisterListener() = true")
	}
	mustStart(t, e)

	b.Emit(down(event.CodeA))
	waitDispatched(t, e, 1)

	if n := len(calls.values()); n != 0 {
		t.Errorf("unregistered listener called %d times", n)
	}
}

func TestUnregisterDuringEvent(t *testing.T) {
	e, b, _ := newTestEngine(t)
	calls := &recorder[string]{}
	var second Handle
	e.RegisterListener(func(event.Event) error {
		calls.add("A")
		e.UnregisterListener(second)
		return nil
	})
	second = e.RegisterListener(func(event.Event) error { calls.add("B"); return nil })
	mustStart(t, e)

	b.Emit(down(event.CodeA), up(event.CodeA))
	waitDispatched(t, e, 2)

	if got, want := calls.values(), []string{"A", "A"}; !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestRegisterDuringEvent(t *testing.T) {
	e, b, _ := newTestEngine(t)
	calls := &recorder[string]{}
	var once sync.Once
	e.RegisterListener(func(event.Event) error {
		calls.add("A")
		once.Do(func() {
			e.RegisterListener(func(event.Event) error { calls.add("late"); return nil })
		})
		return nil
	})
	mustStart(t, e)

	b.Emit(down(event.CodeA), up(event.CodeA))
	waitDispatched(t, e, 2)

	if got, want := calls.values(), []string{"A", "A", "late"}; !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestStopInsideListener(t *testing.T) {
	e, b, _ := newTestEngine(t)
	calls := &recorder[string]{}
	stopErrs := &recorder[error]{}
	e.RegisterListener(func(event.Event) error {
		calls.add("A")
		stopErrs.add(e.Stop())
		return nil
	})
	e.RegisterListener(func(event.Event) error { calls.add("B"); return nil })
	mustStart(t, e)

	b.Emit(down(event.CodeA), down(event.CodeB))
	waitDone(t, e)

	if got, want := calls.values(), []string{"A", "B"}; !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if errs := stopErrs.values(); len(errs) != 1 || errs[0] != nil {
		t.Errorf("Stop() from listener returned %v, want [nil]", errs)
	}
	if e.State() != Stopped {
		t.Errorf("state = %v, want stopped", e.State())
	}
	if b.Installed() {
		t.Error("backend still installed")
	}
	st := e.Stats()
	if st.Dispatched != 1 {
		t.Errorf("dispatched = %d, want 1", st.Dispatched)
	}
	if st.DroppedStopping != 1 {
		t.Errorf("dropped while stopping = %d, want 1", st.DroppedStopping)
	}
	if e.Err() != nil {
		t.Errorf("Err() = %v after a regular stop", e.Err())
	}
}

func TestStartInsideListenerAfterStop(t *testing.T) {
	e, b, _ := newTestEngine(t)
	startErrs := &recorder[error]{}
	seen := &recorder[event.Code]{}
	e.RegisterListener(func(ev event.Event) error {
		seen.add(ev.Code)
		if ev.Code == event.CodeA {
			_ = e.Stop()
			startErrs.add(e.Start(context.Background()))
		}
		return nil
	})
	mustStart(t, e)
	first := e.Session()

	b.Emit(down(event.CodeA))
	waitDispatched(t, e, 1)

	if errs := startErrs.values(); len(errs) != 1 || errs[0] != nil {
		t.Fatalf("Start() from listener = %v, want [nil]", errs)
	}
	if e.State() != Running {
		t.Fatalf("state = %v, want running", e.State())
	}
	if e.Session() == first {
		t.Error("restart from a listener kept the old session id")
	}

	b.Emit(down(event.CodeB))
	waitDispatched(t, e, 2)
	if got, want := seen.values(), []event.Code{event.CodeA, event.CodeB}; !slices.Equal(got, want) {
		t.Errorf("listener saw %v, want %v", got, want)
	}
}

// blockingListener registers a listener that signals entered on its first
// call and then waits for unblock to be closed.
func blockingListener(e *Engine) (entered, unblock chan struct{}) {
	entered = make(chan struct{})
	unblock = make(chan struct{})
	var once sync.Once
	e.RegisterListener(func(event.Event) error {
		once.Do(func() { close(entered) })
		<-unblock
		return nil
	})
	return entered, unblock
}

func TestStopWaitsForRunningListener(t *testing.T) {
	e, b, _ := newTestEngine(t)
	entered, unblock := blockingListener(e)
	mustStart(t, e)

	b.Emit(down(event.CodeA))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never ran")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- e.Stop() }()
	select {
	case err := <-stopped:
		t.Fatalf("Stop() returned %v while a listener was still running", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(unblock)
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop() failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after the listener finished")
	}
	if e.State() != Stopped {
		t.Errorf("state after Stop() = %v, want stopped", e.State())
	}
}

func TestRestartAfterStopDuringListener(t *testing.T) {
	e, b, _ := newTestEngine(t)
	entered, unblock := blockingListener(e)
	mustStart(t, e)

	b.Emit(down(event.CodeA))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never ran")
	}

	time.AfterFunc(20*time.Millisecond, func() { close(unblock) })
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if e.State() != Stopped {
		t.Fatalf("state after Stop() = %v, want stopped", e.State())
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() after Stop() = %v", err)
	}
	if e.State() != Running {
		t.Errorf("state after restart = %v, want running", e.State())
	}

	b.Emit(down(event.CodeB))
	waitDispatched(t, e, 2)
}

func TestCallbackFailuresAreReported(t *testing.T) {
	e, b, errs := newTestEngine(t)
	boom := errors.New("boom")
	calls := &recorder[string]{}
	e.RegisterListener(func(event.Event) error { panic("listener exploded") })
	e.RegisterListener(func(event.Event) error { return boom })
	e.RegisterListener(func(event.Event) error { calls.add("last"); return nil })
	mustStart(t, e)

	b.Emit(down(event.CodeA))
	waitDispatched(t, e, 1)

	if got := calls.values(); len(got) != 1 {
		t.Fatalf("listener after failures called %d times, want 1", len(got))
	}
	got := errs.values()
	if len(got) != 2 {
		t.Fatalf("error handler got %d errors, want 2: %v", len(got), got)
	}

	var ce *CallbackError
	if !errors.As(got[0], &ce) || !ce.Panicked() {
		t.Fatalf("first error = %v, want a panicking CallbackError", got[0])
	}
	if ce.Panic != "listener exploded" || len(ce.Stack) == 0 {
		t.Errorf("panic = %v, stack %d bytes", ce.Panic, len(ce.Stack))
	}
	if ce.Session != e.Session() || ce.Kind != "listener" {
		t.Errorf("CallbackError session %q kind %q", ce.Session, ce.Kind)
	}
	if !errors.Is(got[1], boom) {
		t.Errorf("second error = %v, want boom", got[1])
	}
	if st := e.Stats(); st.CallbackFailures != 2 {
		t.Errorf("callback failures = %d, want 2", st.CallbackFailures)
	}
}

func TestPanickingErrorHandler(t *testing.T) {
	b := fake.New()
	e := New(b,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithErrorHandler(func(error) { panic("handler") }),
	)
	defer e.Stop()
	e.RegisterListener(func(event.Event) error { return errors.New("fail") })
	mustStart(t, e)

	b.Emit(down(event.CodeA), up(event.CodeA))
	waitDispatched(t, e, 2)

	if !e.Running() {
		t.Errorf("state = %v, want running", e.State())
	}
}

func TestHookLost(t *testing.T) {
	e, b, errs := newTestEngine(t)
	mustStart(t, e)

	if !b.FailHook(errors.New("tap disabled")) {
		t.Fatal("FailHook() found no installed sink")
	}
	waitDone(t, e)

	if e.State() != Stopped {
		t.Errorf("state = %v, want stopped", e.State())
	}
	if !errors.Is(e.Err(), backend.ErrHookLost) {
		t.Errorf("Err() = %v, want ErrHookLost", e.Err())
	}
	if err := e.Wait(context.Background()); !errors.Is(err, backend.ErrHookLost) {
		t.Errorf("Wait() = %v, want ErrHookLost", err)
	}
	got := errs.values()
	if len(got) != 1 || !errors.Is(got[0], backend.ErrHookLost) {
		t.Errorf("error handler got %v, want one ErrHookLost", got)
	}

	if err := e.SendKey(event.CodeA, true); !errors.Is(err, backend.ErrEngineNotRunning) {
		t.Errorf("SendKey() after hook loss = %v, want ErrEngineNotRunning", err)
	}

	mustStart(t, e)
	if e.Err() != nil {
		t.Errorf("Err() = %v after restart", e.Err())
	}
}

func TestWaitHonorsContext(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustStart(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := e.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}
}

func TestQueueFullDrops(t *testing.T) {
	e, b, _ := newTestEngine(t, WithQueueSize(2))
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	e.RegisterListener(func(event.Event) error {
		once.Do(func() {
			close(entered)
			<-release
		})
		return nil
	})
	mustStart(t, e)

	b.Emit(down(event.CodeA))
	<-entered
	b.Emit(down(event.CodeB), down(event.CodeC), down(event.CodeD))

	st := e.Stats()
	if st.Delivered != 3 || st.Dropped != 1 {
		t.Errorf("delivered %d dropped %d, want 3 and 1", st.Delivered, st.Dropped)
	}
	close(release)
	waitDispatched(t, e, 3)
}

func TestHotkeyThroughEngine(t *testing.T) {
	e, b, _ := newTestEngine(t)
	edges := &recorder[hotkey.Edge]{}
	if _, err := e.RegisterHotkeyString("Ctrl+Shift+K", func(edge hotkey.Edge) error {
		edges.add(edge)
		return nil
	}); err != nil {
		t.Fatalf("RegisterHotkeyString() failed: %v", err)
	}
	mustStart(t, e)

	in := []event.Event{
		down(event.CodeLeftCtrl),
		down(event.CodeLeftShift),
		down(event.CodeK),
		repeat(event.CodeK),
		repeat(event.CodeK),
		up(event.CodeK),
		up(event.CodeLeftShift),
		up(event.CodeLeftCtrl),
	}
	b.Emit(in...)
	waitDispatched(t, e, uint64(len(in)))

	if got, want := edges.values(), []hotkey.Edge{hotkey.Activated, hotkey.Deactivated}; !slices.Equal(got, want) {
		t.Errorf("edges = %v, want %v", got, want)
	}
}

func TestListenersRunBeforeHotkeys(t *testing.T) {
	e, b, _ := newTestEngine(t)
	calls := &recorder[string]{}
	if _, err := e.RegisterHotkey([]event.Code{event.CodeF5}, func(hotkey.Edge) error {
		calls.add("hotkey")
		return nil
	}); err != nil {
		t.Fatalf("RegisterHotkey() failed: %v", err)
	}
	e.RegisterListener(func(event.Event) error { calls.add("listener"); return nil })
	mustStart(t, e)

	b.Emit(down(event.CodeF5))
	waitDispatched(t, e, 1)

	if got, want := calls.values(), []string{"listener", "hotkey"}; !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestOverlappingHotkeysInRegistrationOrder(t *testing.T) {
	e, b, _ := newTestEngine(t)
	calls := &recorder[string]{}
	for _, combo := range []string{"Ctrl+K", "K", "LeftCtrl+K"} {
		if _, err := e.RegisterHotkeyString(combo, func(edge hotkey.Edge) error {
			if edge == hotkey.Activated {
				calls.add(combo)
			}
			return nil
		}); err != nil {
			t.Fatalf("RegisterHotkeyString(%q) failed: %v", combo, err)
		}
	}
	mustStart(t, e)

	b.Emit(down(event.CodeLeftCtrl), down(event.CodeK))
	waitDispatched(t, e, 2)

	if got, want := calls.values(), []string{"Ctrl+K", "K", "LeftCtrl+K"}; !slices.Equal(got, want) {
		t.Errorf("activations = %v, want %v", got, want)
	}
}

func TestDuplicateHotkey(t *testing.T) {
	e, _, _ := newTestEngine(t)
	nop := func(hotkey.Edge) error { return nil }

	h, err := e.RegisterHotkeyString("Ctrl+Shift+K", nop)
	if err != nil {
		t.Fatalf("RegisterHotkeyString() failed: %v", err)
	}
	if _, err := e.RegisterHotkeyString("shift + ctrl + k", nop); !errors.Is(err, hotkey.ErrDuplicate) {
		t.Errorf("duplicate registration = %v, want ErrDuplicate", err)
	}
	if _, err := e.RegisterHotkeyString("Ctrl+Shift+K", nop, hotkey.WithPresses(2, 0)); err != nil {
		t.Errorf("same keys with a double-press trigger: %v", err)
	}
	if !e.UnregisterHotkey(h) {
		t.Fatal("UnregisterHotkey() = false")
	}
	if _, err := e.RegisterHotkeyString("Ctrl+Shift+K", nop); err != nil {
		t.Errorf("re-registering after removal: %v", err)
	}
	if _, err := e.RegisterHotkeyString("Ctrl+Nope", nop); !errors.Is(err, hotkey.ErrUnknownKey) {
		t.Errorf("unknown key = %v, want ErrUnknownKey", err)
	}
	if _, err := e.RegisterHotkey(nil, nop); !errors.Is(err, hotkey.ErrEmpty) {
		t.Errorf("empty chord = %v, want ErrEmpty", err)
	}
}

func TestUnregisterHotkeyStopsFiring(t *testing.T) {
	e, b, _ := newTestEngine(t)
	edges := &recorder[hotkey.Edge]{}
	h, err := e.RegisterHotkeyString("F9", func(edge hotkey.Edge) error { edges.add(edge); return nil })
	if err != nil {
		t.Fatalf("RegisterHotkeyString() failed: %v", err)
	}
	mustStart(t, e)

	b.Emit(down(event.CodeF9), up(event.CodeF9))
	waitDispatched(t, e, 2)
	e.UnregisterHotkey(h)
	b.Emit(down(event.CodeF9), up(event.CodeF9))
	waitDispatched(t, e, 4)

	if got := edges.values(); len(got) != 2 {
		t.Errorf("edges = %v, want one activation and one deactivation", got)
	}
}

func TestRestartResetsPressedState(t *testing.T) {
	e, b, _ := newTestEngine(t)
	edges := &recorder[hotkey.Edge]{}
	if _, err := e.RegisterHotkeyString("Ctrl+K", func(edge hotkey.Edge) error { edges.add(edge); return nil }); err != nil {
		t.Fatalf("RegisterHotkeyString() failed: %v", err)
	}
	mustStart(t, e)
	b.Emit(down(event.CodeLeftCtrl))
	waitDispatched(t, e, 1)
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	mustStart(t, e)
	b.Emit(down(event.CodeK), up(event.CodeK))
	waitDispatched(t, e, 3)
	if got := edges.values(); len(got) != 0 {
		t.Fatalf("stale Ctrl state fired %v", got)
	}

	b.Emit(down(event.CodeRightCtrl), down(event.CodeK))
	waitDispatched(t, e, 5)
	if got := edges.values(); !slices.Equal(got, []hotkey.Edge{hotkey.Activated}) {
		t.Errorf("edges = %v, want [activated]", got)
	}
}

func TestClear(t *testing.T) {
	e, b, _ := newTestEngine(t)
	calls := &recorder[string]{}
	e.RegisterListener(func(event.Event) error { calls.add("listener"); return nil })
	if _, err := e.RegisterHotkeyString("A", func(hotkey.Edge) error { calls.add("hotkey"); return nil }); err != nil {
		t.Fatalf("RegisterHotkeyString() failed: %v", err)
	}
	e.Clear()
	if e.Listeners() != 0 || len(e.Hotkeys()) != 0 {
		t.Fatalf("after Clear: %d listeners, %d hotkeys", e.Listeners(), len(e.Hotkeys()))
	}
	mustStart(t, e)

	b.Emit(down(event.CodeA))
	waitDispatched(t, e, 1)
	if got := calls.values(); len(got) != 0 {
		t.Errorf("cleared callbacks ran: %v", got)
	}
}

func TestConcurrentRegistration(t *testing.T) {
	e, b, _ := newTestEngine(t)
	mustStart(t, e)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h := e.RegisterListener(func(event.Event) error { return nil })
				e.UnregisterListener(h)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		b.Emit(down(event.CodeA), up(event.CodeA))
	}
	wg.Wait()
	waitDispatched(t, e, 200)

	if e.Listeners() != 0 {
		t.Errorf("listeners = %d, want 0", e.Listeners())
	}
}
