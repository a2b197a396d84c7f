//go:build darwin && cgo

package backend

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices
#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <ApplicationServices/ApplicationServices.h>
#include <pthread.h>
#include <stdbool.h>
#include <stdint.h>

CGEventRef kmhookTapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon);

typedef struct {
    CFMachPortRef tap;
    CFRunLoopSourceRef source;
    CFRunLoopRef loop;
    pthread_t thread;
} kmhook_tap;

static inline bool kmhookTapCreate(uintptr_t refcon, kmhook_tap *t) {
    CGEventMask mask =
        CGEventMaskBit(kCGEventKeyDown) | CGEventMaskBit(kCGEventKeyUp) |
        CGEventMaskBit(kCGEventFlagsChanged) |
        CGEventMaskBit(kCGEventMouseMoved) |
        CGEventMaskBit(kCGEventLeftMouseDragged) | CGEventMaskBit(kCGEventRightMouseDragged) |
        CGEventMaskBit(kCGEventOtherMouseDragged) |
        CGEventMaskBit(kCGEventLeftMouseDown) | CGEventMaskBit(kCGEventLeftMouseUp) |
        CGEventMaskBit(kCGEventRightMouseDown) | CGEventMaskBit(kCGEventRightMouseUp) |
        CGEventMaskBit(kCGEventOtherMouseDown) | CGEventMaskBit(kCGEventOtherMouseUp) |
        CGEventMaskBit(kCGEventScrollWheel);
    t->tap = CGEventTapCreate(kCGSessionEventTap, kCGHeadInsertEventTap,
        kCGEventTapOptionListenOnly, mask, kmhookTapCallback, (void *)refcon);
    if (!t->tap) {
        return false;
    }
    t->source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, t->tap, 0);
    t->loop = CFRunLoopGetCurrent();
    t->thread = pthread_self();
    CFRunLoopAddSource(t->loop, t->source, kCFRunLoopCommonModes);
    CGEventTapEnable(t->tap, true);
    return true;
}

static inline void kmhookTapRunFor(double seconds) {
    CFRunLoopRunInMode(kCFRunLoopDefaultMode, seconds, false);
}

static inline void kmhookTapStop(kmhook_tap *t) {
    CFRunLoopStop(t->loop);
}

static inline bool kmhookOnTapThread(kmhook_tap *t) {
    return pthread_equal(pthread_self(), t->thread) != 0;
}

static inline void kmhookTapEnable(kmhook_tap *t) {
    CGEventTapEnable(t->tap, true);
}

static inline void kmhookTapRelease(kmhook_tap *t) {
    CGEventTapEnable(t->tap, false);
    CFRunLoopRemoveSource(t->loop, t->source, kCFRunLoopCommonModes);
    CFRelease(t->source);
    CFMachPortInvalidate(t->tap);
    CFRelease(t->tap);
}

static inline bool kmhookPost(CGEventRef ev, int64_t tag) {
    if (!ev) {
        return false;
    }
    CGEventSetIntegerValueField(ev, kCGEventSourceUserData, tag);
    CGEventPost(kCGHIDEventTap, ev);
    CFRelease(ev);
    return true;
}

static inline bool kmhookPostKey(CGKeyCode kc, bool down, bool repeat, int64_t tag) {
    CGEventRef ev = CGEventCreateKeyboardEvent(NULL, kc, down);
    if (ev && repeat) {
        CGEventSetIntegerValueField(ev, kCGKeyboardEventAutorepeat, 1);
    }
    return kmhookPost(ev, tag);
}

static inline CGPoint kmhookCursor(void) {
    CGEventRef ev = CGEventCreate(NULL);
    CGPoint p = CGEventGetLocation(ev);
    CFRelease(ev);
    return p;
}

static inline bool kmhookPostMouse(CGEventType type, CGMouseButton button, int64_t number,
        bool atCursor, double x, double y, int64_t tag) {
    CGPoint p = atCursor ? kmhookCursor() : CGPointMake(x, y);
    CGEventRef ev = CGEventCreateMouseEvent(NULL, type, p, button);
    if (ev) {
        CGEventSetIntegerValueField(ev, kCGMouseEventButtonNumber, number);
    }
    return kmhookPost(ev, tag);
}

// CGEventCreateScrollWheelEvent is variadic and cannot be called from Go.
static inline bool kmhookPostScroll(int32_t vertical, int32_t horizontal, int64_t tag) {
    CGEventRef ev = CGEventCreateScrollWheelEvent(NULL, kCGScrollEventUnitLine, 2, vertical, horizontal);
    return kmhookPost(ev, tag);
}
*/
import "C"

import (
	"errors"
	"log/slog"
	"runtime"
	"runtime/cgo"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"kmhook/internal/event"
)

// injectedTag is written to kCGEventSourceUserData on every event we post
// so the tap can skip it.
const injectedTag = 0x4B4D484B

type tapBackend struct {
	log  *slog.Logger
	slot hookSlot

	mu  sync.Mutex
	run *tapRun

	// held mouse buttons turn synthesized moves into drags.
	btnMu sync.Mutex
	held  map[event.Button]bool
}

func newPlatform(opts Options) Backend {
	return &tapBackend{
		log:  opts.Logger.With("backend", "cgeventtap"),
		held: make(map[event.Button]bool),
	}
}

func (b *tapBackend) Name() string { return "cgeventtap" }

// tapRun is one installation: the tap and the locked thread running its
// run loop.
type tapRun struct {
	handle Handle
	slot   *hookSlot
	sink   Sink
	log    *slog.Logger
	tap    C.kmhook_tap

	closed atomic.Bool
	failed sync.Once
	done   chan struct{}
}

func (b *tapBackend) Install(sink Sink) (Handle, error) {
	h, err := b.slot.claim()
	if err != nil {
		return 0, err
	}
	run := &tapRun{handle: h, slot: &b.slot, sink: sink, log: b.log, done: make(chan struct{})}

	ready := make(chan error, 1)
	go run.loop(ready)
	if err := <-ready; err != nil {
		b.slot.release(h)
		return 0, err
	}

	b.mu.Lock()
	b.run = run
	b.mu.Unlock()
	b.log.Debug("event tap installed")
	return h, nil
}

// Uninstall stops the run loop and waits until the tap thread has released
// the tap, which also frees the slot. Called from the tap thread itself it
// cannot wait; nothing is delivered once closed is set.
func (b *tapBackend) Uninstall(h Handle) error {
	b.mu.Lock()
	run := b.run
	if run == nil || run.handle != h {
		b.mu.Unlock()
		return nil
	}
	b.run = nil
	b.mu.Unlock()

	run.stop()
	if C.kmhookOnTapThread(&run.tap) {
		return nil
	}
	select {
	case <-run.done:
	case <-time.After(2 * time.Second):
		b.log.Warn("tap thread did not exit in time")
	}
	return nil
}

func (r *tapRun) loop(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer close(r.done)

	handle := cgo.NewHandle(r)
	defer handle.Delete()

	if !C.kmhookTapCreate(C.uintptr_t(handle), &r.tap) {
		ready <- PermissionDenied(errors.New("CGEventTapCreate returned NULL; grant Input Monitoring or Accessibility access"))
		return
	}
	ready <- nil

	for !r.closed.Load() {
		C.kmhookTapRunFor(C.double(0.25))
	}
	C.kmhookTapRelease(&r.tap)
	r.slot.release(r.handle)
}

func (r *tapRun) stop() {
	if r.closed.Swap(true) {
		return
	}
	C.kmhookTapStop(&r.tap)
}

func (r *tapRun) fail(err error) {
	r.failed.Do(func() {
		r.stop()
		r.sink.Fail(HookLost(err))
	})
}

//export kmhookTapCallback
func kmhookTapCallback(proxy C.CGEventTapProxy, eventType C.CGEventType, ev C.CGEventRef, refcon unsafe.Pointer) C.CGEventRef {
	r := cgo.Handle(uintptr(refcon)).Value().(*tapRun)
	if r.closed.Load() {
		return ev
	}

	switch eventType {
	case C.kCGEventTapDisabledByTimeout:
		r.log.Warn("event tap disabled by timeout, re-enabling")
		C.kmhookTapEnable(&r.tap)
		return ev
	case C.kCGEventTapDisabledByUserInput:
		r.fail(errors.New("event tap disabled by user input"))
		return ev
	}

	if synthesized(int64(C.CGEventGetIntegerValueField(ev, C.kCGEventSourceUserData))) {
		return ev
	}
	ts := time.Now().UnixMilli()
	for _, out := range translateTap(eventType, ev) {
		r.sink.Deliver(out.At(ts))
	}
	return ev
}

// synthesized reports whether an event's source user data carries our tag.
func synthesized(userData int64) bool { return userData == injectedTag }

func translateTap(eventType C.CGEventType, ev C.CGEventRef) []event.Event {
	switch eventType {
	case C.kCGEventKeyDown, C.kCGEventKeyUp:
		kc := uint16(C.CGEventGetIntegerValueField(ev, C.kCGKeyboardEventKeycode))
		repeat := C.CGEventGetIntegerValueField(ev, C.kCGKeyboardEventAutorepeat) != 0
		code := macCode(kc)
		down := eventType == C.kCGEventKeyDown
		switch {
		case code == event.CodeUnknown && down:
			return []event.Event{event.UnknownKeyDown(uint32(kc), repeat)}
		case code == event.CodeUnknown:
			return []event.Event{event.UnknownKeyUp(uint32(kc))}
		case down:
			return []event.Event{event.KeyDownEvent(code, repeat)}
		default:
			return []event.Event{event.KeyUpEvent(code)}
		}

	case C.kCGEventFlagsChanged:
		kc := uint16(C.CGEventGetIntegerValueField(ev, C.kCGKeyboardEventKeycode))
		code := macCode(kc)
		down, ok := macModifierDown(code, uint64(C.CGEventGetFlags(ev)))
		if !ok {
			return nil
		}
		if down {
			return []event.Event{event.KeyDownEvent(code, false)}
		}
		return []event.Event{event.KeyUpEvent(code)}

	case C.kCGEventMouseMoved, C.kCGEventLeftMouseDragged,
		C.kCGEventRightMouseDragged, C.kCGEventOtherMouseDragged:
		p := C.CGEventGetLocation(ev)
		return []event.Event{event.MouseMoveEvent(int(p.x), int(p.y))}

	case C.kCGEventLeftMouseDown, C.kCGEventLeftMouseUp,
		C.kCGEventRightMouseDown, C.kCGEventRightMouseUp,
		C.kCGEventOtherMouseDown, C.kCGEventOtherMouseUp:
		pressed := eventType == C.kCGEventLeftMouseDown ||
			eventType == C.kCGEventRightMouseDown ||
			eventType == C.kCGEventOtherMouseDown
		n := int64(C.CGEventGetIntegerValueField(ev, C.kCGMouseEventButtonNumber))
		b := macButton(n)
		if b == event.ButtonUnknown {
			return nil
		}
		p := C.CGEventGetLocation(ev)
		return []event.Event{event.MouseButtonEvent(b, pressed).Located(int(p.x), int(p.y))}

	case C.kCGEventScrollWheel:
		var out []event.Event
		if v := int(C.CGEventGetIntegerValueField(ev, C.kCGScrollWheelEventDeltaAxis1)); v != 0 {
			out = append(out, event.MouseWheelEvent(v))
		}
		if h := int(C.CGEventGetIntegerValueField(ev, C.kCGScrollWheelEventDeltaAxis2)); h != 0 {
			out = append(out, event.HorizontalWheelEvent(h))
		}
		return out
	}
	return nil
}

func (b *tapBackend) Synthesize(ev event.Event) error {
	if err := CheckSynthesizable(ev); err != nil {
		return err
	}

	var ok C.bool
	switch ev.Kind {
	case event.KeyDown, event.KeyUp:
		kc, found := macKeyFor(ev.Code)
		if !found {
			return Unsupported(ev, "no macOS key code for "+ev.Code.String())
		}
		ok = C.kmhookPostKey(C.CGKeyCode(kc), C.bool(ev.Kind == event.KeyDown), C.bool(ev.Repeat), injectedTag)

	case event.MouseMove:
		typ, button, n := b.moveType()
		ok = C.kmhookPostMouse(typ, button, C.int64_t(n), false, C.double(ev.X), C.double(ev.Y), injectedTag)

	case event.MouseButton:
		b.btnMu.Lock()
		if ev.Pressed {
			b.held[ev.Button] = true
		} else {
			delete(b.held, ev.Button)
		}
		b.btnMu.Unlock()
		typ, button := buttonEventType(ev.Button, ev.Pressed)
		ok = C.kmhookPostMouse(typ, button, C.int64_t(macButtonNumber(ev.Button)), true, 0, 0, injectedTag)

	case event.MouseWheel:
		v, h := ev.Delta, 0
		if ev.Horizontal {
			v, h = 0, ev.Delta
		}
		ok = C.kmhookPostScroll(C.int32_t(v), C.int32_t(h), injectedTag)
	}

	if !ok {
		return InjectionFailed(ev, errors.New("CoreGraphics could not create the event"))
	}
	return nil
}

// moveType picks the drag variant while a button is held, as the window
// server expects.
func (b *tapBackend) moveType() (C.CGEventType, C.CGMouseButton, int64) {
	b.btnMu.Lock()
	defer b.btnMu.Unlock()
	switch {
	case b.held[event.ButtonLeft]:
		return C.kCGEventLeftMouseDragged, C.kCGMouseButtonLeft, 0
	case b.held[event.ButtonRight]:
		return C.kCGEventRightMouseDragged, C.kCGMouseButtonRight, 1
	case len(b.held) > 0:
		return C.kCGEventOtherMouseDragged, C.kCGMouseButtonCenter, 2
	}
	return C.kCGEventMouseMoved, C.kCGMouseButtonLeft, 0
}

func buttonEventType(btn event.Button, pressed bool) (C.CGEventType, C.CGMouseButton) {
	switch btn {
	case event.ButtonLeft:
		if pressed {
			return C.kCGEventLeftMouseDown, C.kCGMouseButtonLeft
		}
		return C.kCGEventLeftMouseUp, C.kCGMouseButtonLeft
	case event.ButtonRight:
		if pressed {
			return C.kCGEventRightMouseDown, C.kCGMouseButtonRight
		}
		return C.kCGEventRightMouseUp, C.kCGMouseButtonRight
	}
	if pressed {
		return C.kCGEventOtherMouseDown, C.kCGMouseButtonCenter
	}
	return C.kCGEventOtherMouseUp, C.kCGMouseButtonCenter
}
