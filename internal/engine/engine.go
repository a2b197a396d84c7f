// Package engine owns the lifecycle of the input hook. It takes events from a
// backend through a bounded handoff queue, runs them one at a time through the
// hotkey matcher, the registered listeners and the hotkey callbacks, and
// forwards synthesis requests to the backend.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kmhook/internal/backend"
	"kmhook/internal/event"
	"kmhook/internal/hotkey"
)

// State is the engine lifecycle state.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stats is a snapshot of the engine counters. Counters accumulate across
// sessions.
type Stats struct {
	Delivered        uint64 // accepted into the handoff queue
	Dispatched       uint64 // fully run through listeners and hotkeys
	Dropped          uint64 // rejected because the queue was full
	DroppedStopping  uint64 // received or still queued while stopping
	CallbackFailures uint64 // callbacks that returned an error or panicked
}

// Engine dispatches captured input to listeners and hotkeys.
type Engine struct {
	backend   backend.Backend
	log       *slog.Logger
	onError   func(error)
	now       func() time.Time
	queueSize int

	lifeMu sync.Mutex
	state  atomic.Int32
	run    *session
	err    error

	regMu      sync.Mutex
	reg        atomic.Pointer[registry]
	nextHandle atomic.Uint64

	// dispatchMu guards everything below it. A worker holds it for one event;
	// after a restart the new worker waits here for the old one.
	dispatchMu     sync.Mutex
	dispatcher     atomic.Uint64 // goroutine id of the dispatchMu holder
	matcher        *hotkey.Matcher
	matcherVersion uint64
	matcherSession *session

	delivered        atomic.Uint64
	dispatched       atomic.Uint64
	dropped          atomic.Uint64
	droppedStopping  atomic.Uint64
	callbackFailures atomic.Uint64
}

// New returns a stopped engine driving b.
func New(b backend.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:   b,
		log:       slog.Default(),
		now:       time.Now,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.onError == nil {
		e.onError = e.logError
	}
	e.matcher = hotkey.NewMatcher(e.now)
	e.reg.Store(&registry{byID: map[hotkey.ID]*hotkeyEntry{}})
	return e
}

// Backend returns the backend the engine drives.
func (e *Engine) Backend() backend.Backend { return e.backend }

// State returns the current lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Running reports whether the hook is installed and events are dispatched.
func (e *Engine) Running() bool { return e.State() == Running }

// Session returns the id of the current or last session, empty before the
// first Start.
func (e *Engine) Session() string {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.run == nil {
		return ""
	}
	return e.run.id
}

// Err returns why the last session ended on its own, nil after a regular
// Stop or while running.
func (e *Engine) Err() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	return e.err
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Done returns a channel closed when the current session has fully stopped.
// Before the first Start it is already closed.
func (e *Engine) Done() <-chan struct{} {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.run == nil {
		return closedChan
	}
	return e.run.done
}

// Wait blocks until the current session stops or ctx ends. It returns Err
// for the session, or the context error.
func (e *Engine) Wait(ctx context.Context) error {
	select {
	case <-e.Done():
		return e.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Delivered:        e.delivered.Load(),
		Dispatched:       e.dispatched.Load(),
		Dropped:          e.dropped.Load(),
		DroppedStopping:  e.droppedStopping.Load(),
		CallbackFailures: e.callbackFailures.Load(),
	}
}

// Start installs the hook and begins dispatching. It fails with a
// backend.ErrAlreadyInstalled HookError when already running, and with the
// backend's error when installation fails, leaving the engine Stopped.
//
// If a previous session is still stopping, Start waits until its hook is
// released. Events of the new session are dispatched only after the last
// callback of the old one has returned, so Start may be called from a
// callback right after Stop.
func (e *Engine) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.lifeMu.Lock()
	for e.State() == Stopping && !e.run.isReleased() {
		prev := e.run
		e.lifeMu.Unlock()
		select {
		case <-prev.released:
		case <-ctx.Done():
			return ctx.Err()
		}
		e.lifeMu.Lock()
	}
	defer e.lifeMu.Unlock()

	if st := e.State(); st != Stopped && st != Stopping {
		return backend.AlreadyInstalled()
	}

	s := &session{
		e:        e,
		id:       uuid.NewString(),
		queue:    make(chan event.Event, e.queueSize),
		quit:     make(chan struct{}),
		released: make(chan struct{}),
		done:     make(chan struct{}),
	}
	prevState := e.State()
	e.state.Store(int32(Starting))
	h, err := e.backend.Install(s)
	if err != nil {
		e.state.Store(int32(prevState))
		e.log.Debug("engine start failed", "backend", e.backend.Name(), "error", err)
		return err
	}
	s.handle = h
	e.run = s
	e.err = nil
	e.state.Store(int32(Running))
	e.log.Debug("engine started", "backend", e.backend.Name(), "session", s.id)

	go e.worker(s)
	return nil
}

// Stop uninstalls the hook and ends the session. It is idempotent.
//
// Called from a listener or hotkey callback, the remaining callbacks for the
// current event still run, no later event is dispatched and the session
// finishes once the callback chain returns. Called from any other goroutine,
// Stop also waits for the dispatch goroutine to exit.
//
// Calling Stop from a callback after it was stopped and started again stops
// the new session without waiting.
func (e *Engine) Stop() error {
	e.lifeMu.Lock()
	s := e.run
	switch e.State() {
	case Stopped:
		e.lifeMu.Unlock()
		return nil
	case Stopping:
		e.lifeMu.Unlock()
		e.await(s)
		return nil
	}
	e.state.Store(int32(Stopping))
	s.stopping.Store(true)
	e.lifeMu.Unlock()

	err := e.backend.Uninstall(s.handle)
	s.release()
	s.closeQuit()
	e.await(s)
	if err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// fail ends s after the backend lost its hook.
func (e *Engine) fail(s *session, err error) {
	e.lifeMu.Lock()
	if e.run != s || e.State() != Running {
		e.lifeMu.Unlock()
		return
	}
	e.state.Store(int32(Stopping))
	s.stopping.Store(true)
	s.lost = err
	e.err = err
	e.lifeMu.Unlock()

	_ = e.backend.Uninstall(s.handle)
	s.release()
	s.closeQuit()
}

// finish runs on the worker once it has exited its loop.
func (e *Engine) finish(s *session) {
drain:
	for {
		select {
		case <-s.queue:
			e.droppedStopping.Add(1)
		default:
			break drain
		}
	}

	e.lifeMu.Lock()
	if e.run == s {
		e.state.Store(int32(Stopped))
	}
	e.lifeMu.Unlock()
	e.log.Debug("engine stopped", "session", s.id)

	if s.lost != nil {
		e.report(s.lost)
	}
	close(s.done)
}

func (e *Engine) worker(s *session) {
	s.gid = goid()
	defer e.finish(s)
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.queue:
			if s.stopping.Load() {
				e.droppedStopping.Add(1)
				continue
			}
			e.dispatch(s, ev)
		}
	}
}

// dispatch runs one event through the matcher, the listeners and the hotkey
// callbacks, in that order.
func (e *Engine) dispatch(s *session, ev event.Event) {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	if s.stopping.Load() {
		// Waited behind the previous session and was stopped meanwhile.
		e.droppedStopping.Add(1)
		return
	}
	e.dispatcher.Store(s.gid)
	defer e.dispatcher.Store(0)

	if e.matcherSession != s {
		e.matcher.Reset()
		e.matcherSession = s
	}
	reg := e.reg.Load()
	e.syncMatcher(reg)
	fires := e.matcher.Update(ev)

	for _, l := range reg.listeners {
		if !l.mask.Has(ev.Kind) || l.removed.Load() {
			continue
		}
		e.invoke(s, "listener", l.handle, ev, func() error { return l.fn(ev) })
	}
	for _, f := range fires {
		h := reg.byID[f.ID]
		if h == nil || h.removed.Load() {
			continue
		}
		edge := f.Edge
		e.invoke(s, "hotkey", h.handle, ev, func() error { return h.fn(edge) })
	}
	e.dispatched.Add(1)
}

// syncMatcher brings the matcher in line with reg. Definitions keep their
// pressed state across unrelated registrations.
func (e *Engine) syncMatcher(reg *registry) {
	if reg.version == e.matcherVersion {
		return
	}
	for _, id := range e.matcher.IDs() {
		if reg.byID[id] == nil {
			e.matcher.Remove(id)
		}
	}
	for _, h := range reg.hotkeys {
		id := hotkey.ID(h.handle)
		if e.matcher.Has(id) {
			continue
		}
		if err := e.matcher.Add(id, h.def); err != nil {
			e.report(fmt.Errorf("hotkey %d: %w", h.handle, err))
		}
	}
	e.matcherVersion = reg.version
}

// invoke runs one callback, turning an error or panic into a CallbackError
// for the error handler.
func (e *Engine) invoke(s *session, kind string, h Handle, ev event.Event, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			e.callbackFailures.Add(1)
			e.report(&CallbackError{
				Session: s.id,
				Kind:    kind,
				Handle:  h,
				Event:   ev,
				Err:     fmt.Errorf("panic: %v", r),
				Panic:   r,
				Stack:   debug.Stack(),
			})
		}
	}()
	if err := fn(); err != nil {
		e.callbackFailures.Add(1)
		e.report(&CallbackError{Session: s.id, Kind: kind, Handle: h, Event: ev, Err: err})
	}
}

// report hands err to the error handler. A panicking handler is logged and
// otherwise ignored.
func (e *Engine) report(err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("error handler panicked", "panic", r, "error", err)
		}
	}()
	e.onError(err)
}

func (e *Engine) logError(err error) {
	if ce, ok := err.(*CallbackError); ok {
		attrs := []any{"session", ce.Session, "kind", ce.Kind, "handle", ce.Handle, "event", ce.Event.String(), "error", ce.Err}
		if ce.Panicked() {
			attrs = append(attrs, "stack", string(ce.Stack))
		}
		e.log.Error("callback failed", attrs...)
		return
	}
	e.log.Error("input hook error", "session", e.Session(), "error", err)
}

// session is one Start..Stop cycle. It is the Sink handed to the backend, so
// a backend that outlives its session cannot feed the next one.
type session struct {
	e      *Engine
	id     string
	handle backend.Handle

	queue chan event.Event
	quit     chan struct{}
	released chan struct{} // closed once the backend hook is uninstalled
	done     chan struct{}
	gid      uint64 // worker goroutine, set before the first dispatch

	quitOnce    sync.Once
	releaseOnce sync.Once
	stopping    atomic.Bool

	lost error // set before quit is closed
}

// Deliver implements backend.Sink. It never blocks.
func (s *session) Deliver(ev event.Event) {
	e := s.e
	if s.stopping.Load() {
		e.droppedStopping.Add(1)
		return
	}
	if ev.Timestamp == 0 {
		ev = ev.At(e.now().UnixMilli())
	}
	select {
	case s.queue <- ev:
		e.delivered.Add(1)
	default:
		e.dropped.Add(1)
	}
}

// Fail implements backend.Sink.
func (s *session) Fail(err error) {
	s.e.fail(s, err)
}

func (s *session) closeQuit() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *session) release() {
	s.releaseOnce.Do(func() { close(s.released) })
}

func (s *session) isReleased() bool {
	select {
	case <-s.released:
		return true
	default:
		return false
	}
}

// await waits for the worker of s to exit, unless the caller is the goroutine
// currently running callbacks: that worker cannot exit before the caller
// returns.
func (e *Engine) await(s *session) {
	if e.inDispatch() {
		return
	}
	<-s.done
}

// inDispatch reports whether the calling goroutine is running a callback.
func (e *Engine) inDispatch() bool {
	g := e.dispatcher.Load()
	return g != 0 && g == goid()
}

// goid returns the id of the calling goroutine, read from the header line of
// its stack trace ("goroutine 42 [running]:").
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
