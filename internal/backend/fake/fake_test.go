package fake

import (
	"errors"
	"sync"
	"testing"

	"kmhook/internal/backend"
	"kmhook/internal/event"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
	errs   []error
}

func (s *recordingSink) Deliver(ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

var _ backend.Backend = (*Backend)(nil)

func TestInstallTwice(t *testing.T) {
	b := New()
	h, err := b.Install(&recordingSink{})
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if _, err := b.Install(&recordingSink{}); !errors.Is(err, backend.ErrAlreadyInstalled) {
		t.Errorf("Expected ErrAlreadyInstalled, got %v", err)
	}
	if err := b.Uninstall(h); err != nil {
		t.Fatal(err)
	}
	if err := b.Uninstall(h); err != nil {
		t.Errorf("Expected second Uninstall to be a no-op, got %v", err)
	}
	if b.Uninstalls() != 1 {
		t.Errorf("Expected 1 uninstall, got %d", b.Uninstalls())
	}
	if _, err := b.Install(&recordingSink{}); err != nil {
		t.Errorf("Expected reinstall to succeed, got %v", err)
	}
}

func TestInstallError(t *testing.T) {
	b := New()
	b.SetInstallError(backend.PermissionDenied(nil))
	if _, err := b.Install(&recordingSink{}); !errors.Is(err, backend.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
	if b.Installed() {
		t.Error("Expected nothing installed after a failed install")
	}
}

func TestEmitAndFail(t *testing.T) {
	b := New()
	if b.Emit(event.KeyDownEvent(event.CodeA, false)) {
		t.Error("Expected Emit without a sink to report false")
	}

	sink := &recordingSink{}
	if _, err := b.Install(sink); err != nil {
		t.Fatal(err)
	}
	b.Emit(event.KeyDownEvent(event.CodeA, false), event.KeyUpEvent(event.CodeA))
	if len(sink.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(sink.events))
	}

	b.FailHook(errors.New("gone"))
	if len(sink.errs) != 1 || !errors.Is(sink.errs[0], backend.ErrHookLost) {
		t.Errorf("Expected one ErrHookLost, got %v", sink.errs)
	}
	if b.Installed() {
		t.Error("Expected the failed hook to be uninstalled")
	}
}

func TestSynthesize(t *testing.T) {
	b := New()
	sink := &recordingSink{}
	if _, err := b.Install(sink); err != nil {
		t.Fatal(err)
	}

	if err := b.Synthesize(event.MouseWheelEvent(0)); !errors.Is(err, backend.ErrUnsupportedEvent) {
		t.Errorf("Expected ErrUnsupportedEvent, got %v", err)
	}
	if err := b.Synthesize(event.KeyDownEvent(event.CodeB, false)); err != nil {
		t.Fatal(err)
	}
	if len(sink.events) != 0 {
		t.Error("Expected no feedback without loopback")
	}

	b.SetLoopback(true)
	if err := b.Synthesize(event.KeyUpEvent(event.CodeB)); err != nil {
		t.Fatal(err)
	}
	if len(sink.events) != 1 {
		t.Error("Expected loopback to deliver the synthesized event")
	}

	b.SetSynthesizeError(errors.New("blocked"))
	if err := b.Synthesize(event.KeyUpEvent(event.CodeB)); !errors.Is(err, backend.ErrInjectionFailed) {
		t.Errorf("Expected ErrInjectionFailed, got %v", err)
	}

	if got := len(b.Synthesized()); got != 2 {
		t.Errorf("Expected 2 recorded events, got %d", got)
	}
}
