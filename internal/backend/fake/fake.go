// Package fake provides an in-memory backend for tests and dry runs.
package fake

import (
	"sync"

	"kmhook/internal/backend"
	"kmhook/internal/event"
)

// Backend implements backend.Backend without touching the OS. Captured
// input is injected with Emit; synthesized events are recorded.
type Backend struct {
	mu         sync.Mutex
	sink       backend.Sink
	active     backend.Handle
	next       backend.Handle
	installErr error
	synthErr   error
	loopback   bool
	sent       []event.Event
	installs   int
	uninstalls int
}

// New returns a fake backend with nothing installed.
func New() *Backend {
	return &Backend{}
}

func (b *Backend) Name() string { return "fake" }

// SetInstallError makes subsequent Install calls fail with err.
func (b *Backend) SetInstallError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.installErr = err
}

// SetSynthesizeError makes subsequent Synthesize calls fail with err.
func (b *Backend) SetSynthesizeError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.synthErr = err
}

// SetLoopback controls whether synthesized events are fed back to the
// installed sink, like an OS hook that observes its own injections.
func (b *Backend) SetLoopback(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loopback = on
}

func (b *Backend) Install(sink backend.Sink) (backend.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active != 0 {
		return 0, backend.AlreadyInstalled()
	}
	if b.installErr != nil {
		return 0, b.installErr
	}
	b.next++
	b.active = b.next
	b.sink = sink
	b.installs++
	return b.active, nil
}

func (b *Backend) Uninstall(h backend.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h == 0 || h != b.active {
		return nil
	}
	b.active = 0
	b.sink = nil
	b.uninstalls++
	return nil
}

func (b *Backend) Synthesize(ev event.Event) error {
	if err := backend.CheckSynthesizable(ev); err != nil {
		return err
	}
	b.mu.Lock()
	if b.synthErr != nil {
		err := b.synthErr
		b.mu.Unlock()
		return backend.InjectionFailed(ev, err)
	}
	b.sent = append(b.sent, ev)
	sink := b.sink
	loop := b.loopback
	b.mu.Unlock()

	if loop && sink != nil {
		sink.Deliver(ev)
	}
	return nil
}

// Emit delivers events to the installed sink from the calling goroutine. It
// reports false when nothing is installed.
func (b *Backend) Emit(evs ...event.Event) bool {
	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()
	if sink == nil {
		return false
	}
	for _, ev := range evs {
		sink.Deliver(ev)
	}
	return true
}

// FailHook simulates the OS removing the hook. The installation is gone
// afterwards, as with a real backend.
func (b *Backend) FailHook(cause error) bool {
	b.mu.Lock()
	sink := b.sink
	b.active = 0
	b.sink = nil
	b.mu.Unlock()
	if sink == nil {
		return false
	}
	sink.Fail(backend.HookLost(cause))
	return true
}

// Installed reports whether a sink is currently installed.
func (b *Backend) Installed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active != 0
}

// Synthesized returns a copy of every event passed to Synthesize.
func (b *Backend) Synthesized() []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]event.Event(nil), b.sent...)
}

// Installs and Uninstalls count successful calls.
func (b *Backend) Installs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.installs
}

func (b *Backend) Uninstalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uninstalls
}
