package hotkey

import (
	"fmt"
	"strings"

	"kmhook/internal/event"
)

// Parse turns a chord such as "Ctrl+Shift+K" or "lalt + f4" into codes.
// Names are case-insensitive and accept the aliases event.ParseCode knows.
func Parse(combo string) ([]event.Code, error) {
	combo = strings.TrimSpace(combo)
	if combo == "" {
		return nil, ErrEmpty
	}

	parts := strings.Split(combo, "+")
	codes := make([]event.Code, 0, len(parts))
	seen := make(map[event.Code]bool, len(parts))
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if name == "" {
			return nil, fmt.Errorf("%w: empty key name in %q", ErrUnknownKey, combo)
		}
		code, ok := event.ParseCode(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKey, name)
		}
		if seen[code] {
			return nil, fmt.Errorf("%w: %q", ErrRepeatedKey, name)
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes, nil
}

// MustParse is like Parse but panics on error. It is meant for constant
// chords in code and tests.
func MustParse(combo string) []event.Code {
	codes, err := Parse(combo)
	if err != nil {
		panic(err)
	}
	return codes
}

// ParseDefinition parses combo and builds a Definition from it.
func ParseDefinition(combo string, opts ...Option) (Definition, error) {
	codes, err := Parse(combo)
	if err != nil {
		return Definition{}, err
	}
	return NewDefinition(codes, opts...)
}
