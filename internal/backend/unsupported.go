//go:build !windows && !linux && !(darwin && cgo)

package backend

import (
	"fmt"
	"runtime"

	"kmhook/internal/event"
)

// unsupportedBackend is the backend for operating systems without a hook
// implementation.
type unsupportedBackend struct{}

func newPlatform(Options) Backend { return unsupportedBackend{} }

func (unsupportedBackend) Name() string { return "unsupported" }

func (unsupportedBackend) Install(Sink) (Handle, error) {
	return 0, PlatformUnsupported(fmt.Errorf("GOOS=%s", runtime.GOOS))
}

func (unsupportedBackend) Uninstall(Handle) error { return nil }

func (unsupportedBackend) Synthesize(ev event.Event) error {
	return Unsupported(ev, "no input injection on "+runtime.GOOS)
}
