package backend

import (
	"errors"
	"fmt"

	"kmhook/internal/event"
)

// Sentinel errors. Match them with errors.Is; the typed wrappers below carry
// the operation and the underlying OS error.
var (
	ErrAlreadyInstalled    = errors.New("hook already installed")
	ErrPermissionDenied    = errors.New("permission denied for input hook")
	ErrPlatformUnsupported = errors.New("input hooks not supported on this platform")
	ErrHookLost            = errors.New("input hook removed by the system")

	ErrUnsupportedEvent = errors.New("event cannot be synthesized")
	ErrInjectionFailed  = errors.New("input injection rejected")
	ErrEngineNotRunning = errors.New("engine not running")
)

// HookError reports a failure to install or keep a native hook.
type HookError struct {
	Op   string // "install", "uninstall", "run"
	Kind error  // one of the hook sentinels
	Err  error  // OS detail, may be nil
}

func (e *HookError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the sentinel kind and the OS error.
func (e *HookError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SynthesisError reports a failure to inject an event.
type SynthesisError struct {
	Event event.Event
	Kind  error // one of the synthesis sentinels
	Err   error
}

func (e *SynthesisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("synthesize %v: %v", e.Event, e.Kind)
	}
	return fmt.Sprintf("synthesize %v: %v: %v", e.Event, e.Kind, e.Err)
}

// Unwrap exposes both the sentinel kind and the OS error.
func (e *SynthesisError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// AlreadyInstalled returns a HookError of kind ErrAlreadyInstalled.
func AlreadyInstalled() error {
	return &HookError{Op: "install", Kind: ErrAlreadyInstalled}
}

// PermissionDenied returns a HookError of kind ErrPermissionDenied.
func PermissionDenied(err error) error {
	return &HookError{Op: "install", Kind: ErrPermissionDenied, Err: err}
}

// PlatformUnsupported returns a HookError of kind ErrPlatformUnsupported.
func PlatformUnsupported(err error) error {
	return &HookError{Op: "install", Kind: ErrPlatformUnsupported, Err: err}
}

// InstallFailed wraps an OS failure that is neither a permission problem nor
// a missing platform capability.
func InstallFailed(err error) error {
	return fmt.Errorf("install hook: %w", err)
}

// HookLost returns a HookError of kind ErrHookLost wrapping cause.
func HookLost(cause error) error {
	return &HookError{Op: "run", Kind: ErrHookLost, Err: cause}
}

// Unsupported returns a SynthesisError of kind ErrUnsupportedEvent.
func Unsupported(ev event.Event, detail string) error {
	var err error
	if detail != "" {
		err = errors.New(detail)
	}
	return &SynthesisError{Event: ev, Kind: ErrUnsupportedEvent, Err: err}
}

// InjectionFailed returns a SynthesisError of kind ErrInjectionFailed.
func InjectionFailed(ev event.Event, err error) error {
	return &SynthesisError{Event: ev, Kind: ErrInjectionFailed, Err: err}
}

// NotRunning returns a SynthesisError of kind ErrEngineNotRunning.
func NotRunning(ev event.Event) error {
	return &SynthesisError{Event: ev, Kind: ErrEngineNotRunning}
}

// CheckSynthesizable validates the parts of ev every backend relies on.
func CheckSynthesizable(ev event.Event) error {
	switch ev.Kind {
	case event.KeyDown, event.KeyUp:
		if !ev.Code.Valid() {
			return Unsupported(ev, "unknown key code")
		}
	case event.MouseMove:
	case event.MouseButton:
		if !ev.Button.Valid() {
			return Unsupported(ev, "unknown mouse button")
		}
	case event.MouseWheel:
		if ev.Delta == 0 {
			return Unsupported(ev, "zero scroll delta")
		}
	default:
		return Unsupported(ev, "invalid event kind")
	}
	return nil
}
