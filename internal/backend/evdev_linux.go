//go:build linux

package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	evdev "github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"

	"kmhook/internal/event"
)

const uinputPath = "/dev/uinput"

// hot-plugged nodes get their group permissions from udev shortly after
// creation, so opening them is retried for a while.
const (
	hotplugRetries = 5
	hotplugDelay   = 200 * time.Millisecond
)

type deviceKind int

const (
	kindKeyboard deviceKind = 1 << iota
	kindMouse
)

// evdevBackend reads every keyboard and mouse under /dev/input and injects
// through a uinput device. Events written by that device are never captured:
// it is skipped by name when the device directory is scanned.
type evdevBackend struct {
	opts Options
	log  *slog.Logger
	slot hookSlot

	mu  sync.Mutex
	run *evdevRun

	cursor cursor

	outMu sync.Mutex
	out   *evdev.InputDevice
}

func newPlatform(opts Options) Backend {
	return &evdevBackend{opts: opts, log: opts.Logger.With("backend", "evdev")}
}

func (b *evdevBackend) Name() string { return "evdev" }

func (b *evdevBackend) Install(sink Sink) (Handle, error) {
	h, err := b.slot.claim()
	if err != nil {
		return 0, err
	}

	run := &evdevRun{
		b:       b,
		handle:  h,
		sink:    sink,
		devices: make(map[string]*evdev.InputDevice),
		done:    make(chan struct{}),
	}
	if err := run.open(); err != nil {
		b.slot.release(h)
		return 0, err
	}

	b.mu.Lock()
	b.run = run
	b.mu.Unlock()
	return h, nil
}

func (b *evdevBackend) Uninstall(h Handle) error {
	if !b.slot.release(h) {
		return nil
	}
	b.mu.Lock()
	run := b.run
	b.run = nil
	b.mu.Unlock()
	if run != nil {
		run.close()
	}

	b.outMu.Lock()
	defer b.outMu.Unlock()
	if b.out != nil {
		err := b.out.Close()
		b.out = nil
		if err != nil {
			b.log.Warn("close uinput device", "error", err)
		}
	}
	return nil
}

// evdevRun is one installation: the open devices, their reader goroutines
// and the hot-plug watcher.
type evdevRun struct {
	b      *evdevBackend
	handle Handle
	sink   Sink

	mu      sync.Mutex
	devices map[string]*evdev.InputDevice
	watcher *fsnotify.Watcher

	closed atomic.Bool
	done   chan struct{}
	failed sync.Once
}

func (r *evdevRun) open() error {
	dir := r.b.opts.DeviceDir
	if err := unix.Access(dir, unix.R_OK|unix.X_OK); err != nil {
		if errors.Is(err, unix.EACCES) {
			return PermissionDenied(fmt.Errorf("%s: %w", dir, err))
		}
		return PlatformUnsupported(fmt.Errorf("%s: %w", dir, err))
	}

	paths, err := filepath.Glob(filepath.Join(dir, "event*"))
	if err != nil {
		return InstallFailed(err)
	}

	var denied error
	for _, path := range paths {
		if err := r.add(path); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				denied = err
			}
			r.b.log.Debug("skip device", "path", path, "error", err)
		}
	}

	r.mu.Lock()
	opened := len(r.devices)
	r.mu.Unlock()
	if opened == 0 {
		if denied != nil {
			return PermissionDenied(fmt.Errorf("%w (add the user to the input group)", denied))
		}
		return InstallFailed(fmt.Errorf("no keyboard or mouse devices in %s", dir))
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(dir)
		if err != nil {
			watcher.Close()
		}
	}
	if err != nil {
		r.b.log.Warn("device hot-plug disabled", "error", err)
		return nil
	}
	r.mu.Lock()
	r.watcher = watcher
	r.mu.Unlock()
	go r.watch(watcher)
	return nil
}

// add opens path and starts its reader if it is a keyboard or mouse. A
// device that is neither, or our own virtual device, is closed again and
// ignored without error.
func (r *evdevRun) add(path string) error {
	r.mu.Lock()
	_, seen := r.devices[path]
	r.mu.Unlock()
	if seen {
		return nil
	}

	dev, err := evdev.Open(path)
	if err != nil {
		return err
	}
	name, _ := dev.Name()
	kind := classifyDevice(dev)
	if !r.b.capture(name, kind) {
		dev.Close()
		return nil
	}

	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		dev.Close()
		return nil
	}
	r.devices[path] = dev
	r.mu.Unlock()

	r.b.log.Debug("opened input device", "path", path, "name", name,
		"keyboard", kind&kindKeyboard != 0, "mouse", kind&kindMouse != 0)
	go r.read(path, dev)
	return nil
}

func (r *evdevRun) read(path string, dev *evdev.InputDevice) {
	tr := translator{cursor: &r.b.cursor}
	for {
		ev, err := dev.ReadOne()
		if err != nil {
			r.removed(path, err)
			return
		}
		for _, out := range tr.translate(ev) {
			if r.closed.Load() {
				return
			}
			r.sink.Deliver(out)
		}
	}
}

// removed drops a device whose reader ended. The installation is lost when
// the last device goes away and there is no watcher to bring new ones in.
func (r *evdevRun) removed(path string, err error) {
	if r.closed.Load() {
		return
	}
	r.mu.Lock()
	dev := r.devices[path]
	delete(r.devices, path)
	left := len(r.devices)
	watching := r.watcher != nil
	r.mu.Unlock()
	if dev != nil {
		dev.Close()
	}

	r.b.log.Debug("input device removed", "path", path, "error", err)
	if left == 0 && !watching {
		r.fail(fmt.Errorf("all input devices removed: %w", err))
	}
}

func (r *evdevRun) watch(w *fsnotify.Watcher) {
	for {
		select {
		case <-r.done:
			return
		case fe, ok := <-w.Events:
			if !ok {
				return
			}
			if !fe.Has(fsnotify.Create) || !strings.HasPrefix(filepath.Base(fe.Name), "event") {
				continue
			}
			go r.addWithRetry(fe.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.b.log.Warn("device watcher error", "error", err)
		}
	}
}

func (r *evdevRun) addWithRetry(path string) {
	for range hotplugRetries {
		select {
		case <-r.done:
			return
		case <-time.After(hotplugDelay):
		}
		err := r.add(path)
		if err == nil {
			return
		}
		if !errors.Is(err, fs.ErrPermission) && !errors.Is(err, fs.ErrNotExist) {
			r.b.log.Debug("skip hot-plugged device", "path", path, "error", err)
			return
		}
	}
}

func (r *evdevRun) fail(err error) {
	r.failed.Do(func() { r.sink.Fail(HookLost(err)) })
}

// close stops the watcher and closes every device, which unblocks the
// readers. It does not wait for them, so it is safe from any goroutine.
func (r *evdevRun) close() {
	r.mu.Lock()
	if r.closed.Swap(true) {
		r.mu.Unlock()
		return
	}
	close(r.done)
	devices := r.devices
	r.devices = nil
	watcher := r.watcher
	r.watcher = nil
	r.mu.Unlock()

	if watcher != nil {
		watcher.Close()
	}
	for _, dev := range devices {
		dev.Close()
	}
}

// capture reports whether a device is read. Our own uinput device is
// skipped, so synthesized events never come back as captured ones.
func (b *evdevBackend) capture(name string, kind deviceKind) bool {
	return kind != 0 && name != b.opts.VirtualDeviceName
}

// classifyDevice reports whether dev looks like a keyboard, a mouse, both or
// neither.
func classifyDevice(dev *evdev.InputDevice) deviceKind {
	var kind deviceKind
	types := dev.CapableTypes()
	hasType := func(t evdev.EvType) bool {
		for _, ct := range types {
			if ct == t {
				return true
			}
		}
		return false
	}
	if !hasType(evdev.EV_KEY) {
		return 0
	}

	codes := make(map[evdev.EvCode]bool)
	for _, c := range dev.CapableEvents(evdev.EV_KEY) {
		codes[c] = true
	}
	if codes[evdev.KEY_A] || codes[evdev.KEY_ENTER] {
		kind |= kindKeyboard
	}
	if codes[evdev.BTN_LEFT] && hasType(evdev.EV_REL) {
		kind |= kindMouse
	}
	return kind
}

// cursor is the virtual pointer position. evdev only reports relative
// motion, so captured moves are accumulated here and synthesized absolute
// moves are turned back into deltas from it.
type cursor struct {
	mu   sync.Mutex
	x, y int
}

func (c *cursor) move(dx, dy int) (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.x += dx
	c.y += dy
	return c.x, c.y
}

func (c *cursor) position() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.x, c.y
}

func (c *cursor) moveTo(x, y int) (dx, dy int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dx, dy = x-c.x, y-c.y
	c.x, c.y = x, y
	return dx, dy
}

// translator turns the raw event stream of one device into normalized
// events. Relative motion is collected until SYN_REPORT so that one frame
// produces one move.
type translator struct {
	cursor *cursor
	dx, dy int
}

func (t *translator) translate(ev *evdev.InputEvent) []event.Event {
	ts := int64(ev.Time.Sec)*1000 + int64(ev.Time.Usec)/1000

	switch ev.Type {
	case evdev.EV_KEY:
		if b, ok := evdevButtons[ev.Code]; ok {
			if ev.Value == 2 {
				return nil
			}
			x, y := t.cursor.position()
			return []event.Event{event.MouseButtonEvent(b, ev.Value == 1).Located(x, y).At(ts)}
		}
		return []event.Event{keyEvent(ev.Code, ev.Value).At(ts)}

	case evdev.EV_REL:
		switch ev.Code {
		case evdev.REL_X:
			t.dx += int(ev.Value)
		case evdev.REL_Y:
			t.dy += int(ev.Value)
		case evdev.REL_WHEEL:
			return []event.Event{event.MouseWheelEvent(int(ev.Value)).At(ts)}
		case evdev.REL_HWHEEL:
			return []event.Event{event.HorizontalWheelEvent(int(ev.Value)).At(ts)}
		}

	case evdev.EV_SYN:
		if ev.Code == evdev.SYN_REPORT && (t.dx != 0 || t.dy != 0) {
			x, y := t.cursor.move(t.dx, t.dy)
			t.dx, t.dy = 0, 0
			return []event.Event{event.MouseMoveEvent(x, y).At(ts)}
		}
	}
	return nil
}

// keyEvent maps an EV_KEY value (0 release, 1 press, 2 autorepeat).
func keyEvent(code evdev.EvCode, value int32) event.Event {
	c, known := evdevToCode[code]
	switch {
	case value == 0 && known:
		return event.KeyUpEvent(c)
	case value == 0:
		return event.UnknownKeyUp(uint32(code))
	case known:
		return event.KeyDownEvent(c, value == 2)
	default:
		return event.UnknownKeyDown(uint32(code), value == 2)
	}
}

func (b *evdevBackend) Synthesize(ev event.Event) error {
	if err := CheckSynthesizable(ev); err != nil {
		return err
	}
	frame, err := b.frame(ev)
	if err != nil {
		return err
	}

	b.outMu.Lock()
	defer b.outMu.Unlock()
	out, err := b.output()
	if err != nil {
		return InjectionFailed(ev, err)
	}
	for i := range frame {
		if err := out.WriteOne(&frame[i]); err != nil {
			return InjectionFailed(ev, err)
		}
	}
	return nil
}

// frame builds the uinput writes for ev, terminated by SYN_REPORT.
func (b *evdevBackend) frame(ev event.Event) ([]evdev.InputEvent, error) {
	var frame []evdev.InputEvent
	switch ev.Kind {
	case event.KeyDown, event.KeyUp:
		code, ok := evdevKeyFor(ev.Code)
		if !ok {
			return nil, Unsupported(ev, "no evdev key for "+ev.Code.String())
		}
		var value int32
		if ev.Kind == event.KeyDown {
			value = 1
			if ev.Repeat {
				value = 2
			}
		}
		frame = append(frame, evdev.InputEvent{Type: evdev.EV_KEY, Code: code, Value: value})

	case event.MouseButton:
		code := buttonToEvdev[ev.Button]
		var value int32
		if ev.Pressed {
			value = 1
		}
		frame = append(frame, evdev.InputEvent{Type: evdev.EV_KEY, Code: code, Value: value})

	case event.MouseMove:
		dx, dy := b.cursor.moveTo(ev.X, ev.Y)
		if dx == 0 && dy == 0 {
			return nil, nil
		}
		frame = append(frame,
			evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_X, Value: int32(dx)},
			evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_Y, Value: int32(dy)})

	case event.MouseWheel:
		code := evdev.EvCode(evdev.REL_WHEEL)
		if ev.Horizontal {
			code = evdev.REL_HWHEEL
		}
		frame = append(frame, evdev.InputEvent{Type: evdev.EV_REL, Code: code, Value: int32(ev.Delta)})
	}
	return append(frame, evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT}), nil
}

// output returns the uinput device, creating it on first use.
func (b *evdevBackend) output() (*evdev.InputDevice, error) {
	if b.out != nil {
		return b.out, nil
	}
	if err := unix.Access(uinputPath, unix.W_OK); err != nil {
		return nil, fmt.Errorf("%s: %w", uinputPath, err)
	}

	keys := make([]evdev.EvCode, 0, len(evdevToCode)+len(evdevButtons))
	for code := range evdevToCode {
		keys = append(keys, code)
	}
	for code := range evdevButtons {
		keys = append(keys, code)
	}
	dev, err := evdev.CreateDevice(b.opts.VirtualDeviceName,
		evdev.InputID{BusType: 0x06, Vendor: 0x1209, Product: 0x4b4d, Version: 1},
		map[evdev.EvType][]evdev.EvCode{
			evdev.EV_KEY: keys,
			evdev.EV_REL: {evdev.REL_X, evdev.REL_Y, evdev.REL_WHEEL, evdev.REL_HWHEEL},
		})
	if err != nil {
		return nil, fmt.Errorf("create uinput device: %w", err)
	}
	b.log.Debug("created virtual input device", "name", b.opts.VirtualDeviceName)
	b.out = dev
	return dev, nil
}
