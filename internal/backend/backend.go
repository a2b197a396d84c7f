// Package backend defines the contract between the dispatch engine and the
// per-OS input hooks, and provides the Windows, macOS and Linux variants.
//
// A backend installs exactly one native interception point, translates native
// events into event.Event values and hands them to a Sink without blocking.
// New selects the variant for the running OS at build time.
package backend

import (
	"log/slog"

	"kmhook/internal/event"
)

// Sink receives normalized events from a backend. Both methods may be called
// from an OS-owned thread and must return promptly.
type Sink interface {
	// Deliver hands off one captured event. It must not block.
	Deliver(ev event.Event)
	// Fail reports that the native hook was lost and no further events will
	// be delivered for this installation.
	Fail(err error)
}

// Handle identifies one successful Install.
type Handle uint64

// Backend is the capability every platform variant provides.
type Backend interface {
	// Name returns a short identifier such as "windows" or "evdev".
	Name() string
	// Install registers the OS-level interception point. A second Install
	// without an intervening Uninstall fails with ErrAlreadyInstalled.
	Install(sink Sink) (Handle, error)
	// Uninstall removes the interception point. It is idempotent and safe to
	// call from any goroutine, including from inside a Sink callback chain.
	Uninstall(h Handle) error
	// Synthesize injects one event into the OS input stream.
	Synthesize(ev event.Event) error
}

// Options configures the platform backends.
type Options struct {
	// Logger receives lifecycle diagnostics. Nil discards them.
	Logger *slog.Logger
	// DeviceDir overrides the evdev device directory (Linux only).
	DeviceDir string
	// VirtualDeviceName names the uinput device used for synthesis (Linux only).
	VirtualDeviceName string
}

// Option mutates Options.
type Option func(*Options)

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithDeviceDir sets the directory scanned for evdev devices.
func WithDeviceDir(dir string) Option {
	return func(o *Options) { o.DeviceDir = dir }
}

// WithVirtualDeviceName sets the uinput device name.
func WithVirtualDeviceName(name string) Option {
	return func(o *Options) { o.VirtualDeviceName = name }
}

const (
	defaultDeviceDir         = "/dev/input"
	defaultVirtualDeviceName = "kmhook virtual input"
)

func buildOptions(opts []Option) Options {
	o := Options{
		DeviceDir:         defaultDeviceDir,
		VirtualDeviceName: defaultVirtualDeviceName,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// New returns the backend for the running operating system.
func New(opts ...Option) Backend {
	return newPlatform(buildOptions(opts))
}
