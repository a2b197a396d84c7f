package backend

import "sync"

// hookSlot enforces at most one live installation per backend value and
// hands out the handles identifying each one.
type hookSlot struct {
	mu     sync.Mutex
	next   Handle
	active Handle
}

// claim reserves the slot. Callers release it again if the native install
// fails.
func (s *hookSlot) claim() (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != 0 {
		return 0, AlreadyInstalled()
	}
	s.next++
	s.active = s.next
	return s.active, nil
}

// release frees the slot if h is the live installation. It reports whether
// anything was released, which makes Uninstall idempotent.
func (s *hookSlot) release(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == 0 || h != s.active {
		return false
	}
	s.active = 0
	return true
}

func (s *hookSlot) current() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
