//go:build windows

package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"kmhook/internal/event"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	kernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessage          = user32.NewProc("GetMessageW")
	procPostThreadMessage   = user32.NewProc("PostThreadMessageW")
	procSendInput           = user32.NewProc("SendInput")
	procMapVirtualKey       = user32.NewProc("MapVirtualKeyW")
	procGetSystemMetrics    = user32.NewProc("GetSystemMetrics")
	procGetModuleHandle     = kernel32.NewProc("GetModuleHandleW")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmQuit        = 0x0012
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmMouseMove   = 0x0200
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmMouseWheel  = 0x020A
	wmXButtonDown = 0x020B
	wmXButtonUp   = 0x020C
	wmMouseHWheel = 0x020E

	wheelDelta = 120

	inputMouse    = 0
	inputKeyboard = 1

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002

	mouseeventfMove        = 0x0001
	mouseeventfLeftDown    = 0x0002
	mouseeventfLeftUp      = 0x0004
	mouseeventfRightDown   = 0x0008
	mouseeventfRightUp     = 0x0010
	mouseeventfMiddleDown  = 0x0020
	mouseeventfMiddleUp    = 0x0040
	mouseeventfXDown       = 0x0080
	mouseeventfXUp         = 0x0100
	mouseeventfWheel       = 0x0800
	mouseeventfHWheel      = 0x1000
	mouseeventfVirtualDesk = 0x4000
	mouseeventfAbsolute    = 0x8000

	smXVirtualScreen  = 76
	smYVirtualScreen  = 77
	smCXVirtualScreen = 78
	smCYVirtualScreen = 79

	// injectedTag marks events we send through SendInput so the hook can
	// skip them.
	injectedTag = 0x4B4D484B
)

type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msllHookStruct struct {
	Pt          struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// mouseInput and keybdInput are the two INPUT union members. keybdInput is
// padded to the size of mouseInput so either fits in one input value.
type mouseInput struct {
	Dx, Dy    int32
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

type keybdInput struct {
	Vk        uint16
	Scan      uint16
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
	_         [8]byte
}

type input struct {
	Type uint32
	Mi   mouseInput
}

func keyboardInput(k keybdInput) input {
	in := input{Type: inputKeyboard}
	*(*keybdInput)(unsafe.Pointer(&in.Mi)) = k
	return in
}

// The hook procedures are process-wide, so is the installation slot.
var (
	winSlot   hookSlot
	winActive atomic.Pointer[winRun]
)

var (
	keyboardProc = windows.NewCallback(lowLevelKeyboardProc)
	mouseProc    = windows.NewCallback(lowLevelMouseProc)
)

type winBackend struct {
	log *slog.Logger

	mu  sync.Mutex
	run *winRun
}

func newPlatform(opts Options) Backend {
	return &winBackend{log: opts.Logger.With("backend", "windows")}
}

func (b *winBackend) Name() string { return "windows" }

// winRun is one installation, owned by the locked OS thread that runs its
// message loop.
type winRun struct {
	handle Handle
	sink   Sink
	log    *slog.Logger

	tid       uint32
	keyHook   uintptr
	mouseHook uintptr

	// held tracks pressed virtual keys to detect autorepeat; touched only on
	// the hook thread.
	held map[uint32]bool

	done chan struct{}
}

type hookStarted struct {
	tid uint32
	err error
}

func (b *winBackend) Install(sink Sink) (Handle, error) {
	h, err := winSlot.claim()
	if err != nil {
		return 0, err
	}

	run := &winRun{
		handle: h,
		sink:   sink,
		log:    b.log,
		held:   make(map[uint32]bool),
		done:   make(chan struct{}),
	}
	ready := make(chan hookStarted, 1)
	go run.loop(ready)

	started := <-ready
	if started.err != nil {
		winSlot.release(h)
		return 0, started.err
	}

	b.mu.Lock()
	b.run = run
	b.mu.Unlock()
	b.log.Debug("low-level hooks installed", "thread", started.tid)
	return h, nil
}

func (b *winBackend) Uninstall(h Handle) error {
	b.mu.Lock()
	run := b.run
	if run == nil || run.handle != h {
		b.mu.Unlock()
		return nil
	}
	b.run = nil
	b.mu.Unlock()

	ret, _, err := procPostThreadMessage.Call(uintptr(run.tid), wmQuit, 0, 0)
	if ret == 0 {
		b.log.Warn("post WM_QUIT to hook thread", "error", err)
	}
	// The hook thread itself cannot wait for its own loop to end.
	if windows.GetCurrentThreadId() != run.tid {
		select {
		case <-run.done:
		case <-time.After(2 * time.Second):
			b.log.Warn("hook thread did not exit in time")
		}
	}
	return nil
}

func (r *winRun) loop(ready chan<- hookStarted) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.done)

	r.tid = windows.GetCurrentThreadId()
	hMod, _, _ := procGetModuleHandle.Call(0)

	var err error
	r.keyHook, _, err = procSetWindowsHookEx.Call(whKeyboardLL, keyboardProc, hMod, 0)
	if r.keyHook == 0 {
		ready <- hookStarted{err: hookInstallError("keyboard", err)}
		return
	}
	r.mouseHook, _, err = procSetWindowsHookEx.Call(whMouseLL, mouseProc, hMod, 0)
	if r.mouseHook == 0 {
		procUnhookWindowsHookEx.Call(r.keyHook)
		ready <- hookStarted{err: hookInstallError("mouse", err)}
		return
	}
	winActive.Store(r)
	ready <- hookStarted{tid: r.tid}

	var m msg
	for {
		ret, _, err := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(ret) == 0 {
			break
		}
		if int32(ret) < 0 {
			winActive.CompareAndSwap(r, nil)
			r.unhook()
			winSlot.release(r.handle)
			r.sink.Fail(HookLost(fmt.Errorf("GetMessageW: %w", err)))
			return
		}
	}

	winActive.CompareAndSwap(r, nil)
	r.unhook()
	winSlot.release(r.handle)
}

func (r *winRun) unhook() {
	procUnhookWindowsHookEx.Call(r.keyHook)
	procUnhookWindowsHookEx.Call(r.mouseHook)
}

func hookInstallError(which string, err error) error {
	err = fmt.Errorf("SetWindowsHookExW(%s): %w", which, err)
	if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
		return PermissionDenied(err)
	}
	return InstallFailed(err)
}

func lowLevelKeyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if r := winActive.Load(); r != nil && nCode == 0 {
		kbd := (*kbdllHookStruct)(unsafe.Pointer(lParam))
		if !synthesized(kbd.DwExtraInfo) {
			if ev, ok := r.keyEvent(kbd, wParam); ok {
				r.sink.Deliver(ev.At(time.Now().UnixMilli()))
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func (r *winRun) keyEvent(kbd *kbdllHookStruct, wParam uintptr) (event.Event, bool) {
	code := vkCode(kbd.VkCode, kbd.Flags)
	switch wParam {
	case wmKeyDown, wmSysKeyDown:
		repeat := r.held[kbd.VkCode]
		r.held[kbd.VkCode] = true
		if code == event.CodeUnknown {
			return event.UnknownKeyDown(kbd.VkCode, repeat), true
		}
		return event.KeyDownEvent(code, repeat), true
	case wmKeyUp, wmSysKeyUp:
		delete(r.held, kbd.VkCode)
		if code == event.CodeUnknown {
			return event.UnknownKeyUp(kbd.VkCode), true
		}
		return event.KeyUpEvent(code), true
	}
	return event.Event{}, false
}

func lowLevelMouseProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if r := winActive.Load(); r != nil && nCode == 0 {
		ms := (*msllHookStruct)(unsafe.Pointer(lParam))
		if !synthesized(ms.DwExtraInfo) {
			if ev, ok := mouseEvent(ms, wParam); ok {
				r.sink.Deliver(ev.At(time.Now().UnixMilli()))
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func mouseEvent(ms *msllHookStruct, wParam uintptr) (event.Event, bool) {
	button := func(b event.Button, pressed bool) (event.Event, bool) {
		return event.MouseButtonEvent(b, pressed).Located(int(ms.Pt.X), int(ms.Pt.Y)), true
	}
	xButton := func() event.Button {
		if ms.MouseData>>16 == 1 {
			return event.ButtonX1
		}
		return event.ButtonX2
	}
	switch wParam {
	case wmMouseMove:
		return event.MouseMoveEvent(int(ms.Pt.X), int(ms.Pt.Y)), true
	case wmLButtonDown:
		return button(event.ButtonLeft, true)
	case wmLButtonUp:
		return button(event.ButtonLeft, false)
	case wmRButtonDown:
		return button(event.ButtonRight, true)
	case wmRButtonUp:
		return button(event.ButtonRight, false)
	case wmMButtonDown:
		return button(event.ButtonMiddle, true)
	case wmMButtonUp:
		return button(event.ButtonMiddle, false)
	case wmXButtonDown:
		return button(xButton(), true)
	case wmXButtonUp:
		return button(xButton(), false)
	case wmMouseWheel:
		return event.MouseWheelEvent(wheelNotches(ms.MouseData)), true
	case wmMouseHWheel:
		return event.HorizontalWheelEvent(wheelNotches(ms.MouseData)), true
	}
	return event.Event{}, false
}

// wheelNotches converts the high word of mouseData into notches. High
// resolution wheels report fractions of a notch; those count as one.
func wheelNotches(mouseData uint32) int {
	d := int(int16(mouseData >> 16))
	n := d / wheelDelta
	switch {
	case n != 0:
		return n
	case d > 0:
		return 1
	case d < 0:
		return -1
	}
	return 0
}

// synthesized reports whether a hooked event carries our SendInput tag.
func synthesized(extra uintptr) bool { return extra == injectedTag }

func (b *winBackend) Synthesize(ev event.Event) error {
	if err := CheckSynthesizable(ev); err != nil {
		return err
	}
	in, err := buildInput(ev)
	if err != nil {
		return err
	}

	n, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	if n != 1 {
		// SendInput returns 0 without a reason when UIPI blocks injection
		// into a higher-integrity process.
		return InjectionFailed(ev, fmt.Errorf("SendInput: %w", err))
	}
	return nil
}

// buildInput translates ev into one tagged INPUT record.
func buildInput(ev event.Event) (input, error) {
	var in input
	switch ev.Kind {
	case event.KeyDown, event.KeyUp:
		vk, extended, ok := vkFor(ev.Code)
		if !ok {
			return in, Unsupported(ev, "no virtual key for "+ev.Code.String())
		}
		scan, _, _ := procMapVirtualKey.Call(uintptr(vk), 0)
		k := keybdInput{Vk: uint16(vk), Scan: uint16(scan), ExtraInfo: injectedTag}
		if extended {
			k.Flags |= keyeventfExtendedKey
		}
		if ev.Kind == event.KeyUp {
			k.Flags |= keyeventfKeyUp
		}
		in = keyboardInput(k)

	case event.MouseMove:
		x, y := normalizeToDesktop(ev.X, ev.Y)
		in = input{Type: inputMouse, Mi: mouseInput{
			Dx: x, Dy: y,
			Flags:     mouseeventfMove | mouseeventfAbsolute | mouseeventfVirtualDesk,
			ExtraInfo: injectedTag,
		}}

	case event.MouseButton:
		flags, data := buttonFlags(ev.Button, ev.Pressed)
		in = input{Type: inputMouse, Mi: mouseInput{MouseData: data, Flags: flags, ExtraInfo: injectedTag}}

	case event.MouseWheel:
		flags := uint32(mouseeventfWheel)
		if ev.Horizontal {
			flags = mouseeventfHWheel
		}
		in = input{Type: inputMouse, Mi: mouseInput{
			MouseData: uint32(int32(ev.Delta * wheelDelta)),
			Flags:     flags,
			ExtraInfo: injectedTag,
		}}
	}
	return in, nil
}

func buttonFlags(b event.Button, pressed bool) (flags, data uint32) {
	pick := func(down, up uint32) uint32 {
		if pressed {
			return down
		}
		return up
	}
	switch b {
	case event.ButtonLeft:
		return pick(mouseeventfLeftDown, mouseeventfLeftUp), 0
	case event.ButtonRight:
		return pick(mouseeventfRightDown, mouseeventfRightUp), 0
	case event.ButtonMiddle:
		return pick(mouseeventfMiddleDown, mouseeventfMiddleUp), 0
	case event.ButtonX1:
		return pick(mouseeventfXDown, mouseeventfXUp), 1
	default:
		return pick(mouseeventfXDown, mouseeventfXUp), 2
	}
}

// normalizeToDesktop maps screen pixels onto the 0..65535 range
// MOUSEEVENTF_ABSOLUTE expects, spanning all monitors.
func normalizeToDesktop(x, y int) (int32, int32) {
	left := metric(smXVirtualScreen)
	top := metric(smYVirtualScreen)
	width := max(metric(smCXVirtualScreen), 2)
	height := max(metric(smCYVirtualScreen), 2)
	nx := (x - left) * 65535 / (width - 1)
	ny := (y - top) * 65535 / (height - 1)
	return int32(nx), int32(ny)
}

func metric(index int) int {
	v, _, _ := procGetSystemMetrics.Call(uintptr(index))
	return int(int32(v))
}
