package event

import (
	"fmt"
	"strings"
)

// Code is a platform-neutral key identifier. Values are stable across
// platforms and releases: new codes are only ever appended.
type Code uint16

const (
	CodeUnknown Code = iota

	CodeA
	CodeB
	CodeC
	CodeD
	CodeE
	CodeF
	CodeG
	CodeH
	CodeI
	CodeJ
	CodeK
	CodeL
	CodeM
	CodeN
	CodeO
	CodeP
	CodeQ
	CodeR
	CodeS
	CodeT
	CodeU
	CodeV
	CodeW
	CodeX
	CodeY
	CodeZ

	Code0
	Code1
	Code2
	Code3
	Code4
	Code5
	Code6
	Code7
	Code8
	Code9

	CodeF1
	CodeF2
	CodeF3
	CodeF4
	CodeF5
	CodeF6
	CodeF7
	CodeF8
	CodeF9
	CodeF10
	CodeF11
	CodeF12
	CodeF13
	CodeF14
	CodeF15
	CodeF16
	CodeF17
	CodeF18
	CodeF19
	CodeF20
	CodeF21
	CodeF22
	CodeF23
	CodeF24

	CodeLeftShift
	CodeRightShift
	CodeLeftCtrl
	CodeRightCtrl
	CodeLeftAlt
	CodeRightAlt
	CodeLeftMeta
	CodeRightMeta

	CodeEscape
	CodeEnter
	CodeTab
	CodeBackspace
	CodeSpace
	CodeCapsLock
	CodeNumLock
	CodeScrollLock
	CodePrintScreen
	CodePause
	CodeInsert
	CodeDelete
	CodeHome
	CodeEnd
	CodePageUp
	CodePageDown
	CodeArrowUp
	CodeArrowDown
	CodeArrowLeft
	CodeArrowRight
	CodeMenu

	CodeMinus
	CodeEqual
	CodeLeftBracket
	CodeRightBracket
	CodeBackslash
	CodeSemicolon
	CodeApostrophe
	CodeGrave
	CodeComma
	CodePeriod
	CodeSlash
	CodeIntlBackslash

	CodeKP0
	CodeKP1
	CodeKP2
	CodeKP3
	CodeKP4
	CodeKP5
	CodeKP6
	CodeKP7
	CodeKP8
	CodeKP9
	CodeKPDivide
	CodeKPMultiply
	CodeKPSubtract
	CodeKPAdd
	CodeKPDecimal
	CodeKPEnter
	CodeKPEqual

	CodeVolumeUp
	CodeVolumeDown
	CodeVolumeMute
	CodeMediaPlayPause
	CodeMediaNext
	CodeMediaPrev
	CodeMediaStop

	// Side-agnostic modifiers. Backends never emit these; they only appear in
	// hotkey definitions, where either physical side satisfies them.
	CodeShift
	CodeCtrl
	CodeAlt
	CodeMeta

	codeCount
)

var codeNames = [codeCount]string{
	CodeUnknown: "Unknown",
	CodeA:       "A", CodeB: "B", CodeC: "C", CodeD: "D", CodeE: "E", CodeF: "F",
	CodeG: "G", CodeH: "H", CodeI: "I", CodeJ: "J", CodeK: "K", CodeL: "L",
	CodeM: "M", CodeN: "N", CodeO: "O", CodeP: "P", CodeQ: "Q", CodeR: "R",
	CodeS: "S", CodeT: "T", CodeU: "U", CodeV: "V", CodeW: "W", CodeX: "X",
	CodeY: "Y", CodeZ: "Z",

	Code0: "0", Code1: "1", Code2: "2", Code3: "3", Code4: "4",
	Code5: "5", Code6: "6", Code7: "7", Code8: "8", Code9: "9",

	CodeF1: "F1", CodeF2: "F2", CodeF3: "F3", CodeF4: "F4", CodeF5: "F5",
	CodeF6: "F6", CodeF7: "F7", CodeF8: "F8", CodeF9: "F9", CodeF10: "F10",
	CodeF11: "F11", CodeF12: "F12", CodeF13: "F13", CodeF14: "F14", CodeF15: "F15",
	CodeF16: "F16", CodeF17: "F17", CodeF18: "F18", CodeF19: "F19", CodeF20: "F20",
	CodeF21: "F21", CodeF22: "F22", CodeF23: "F23", CodeF24: "F24",

	CodeLeftShift: "LeftShift", CodeRightShift: "RightShift",
	CodeLeftCtrl: "LeftCtrl", CodeRightCtrl: "RightCtrl",
	CodeLeftAlt: "LeftAlt", CodeRightAlt: "RightAlt",
	CodeLeftMeta: "LeftMeta", CodeRightMeta: "RightMeta",

	CodeEscape: "Escape", CodeEnter: "Enter", CodeTab: "Tab", CodeBackspace: "Backspace",
	CodeSpace: "Space", CodeCapsLock: "CapsLock", CodeNumLock: "NumLock",
	CodeScrollLock: "ScrollLock", CodePrintScreen: "PrintScreen", CodePause: "Pause",
	CodeInsert: "Insert", CodeDelete: "Delete", CodeHome: "Home", CodeEnd: "End",
	CodePageUp: "PageUp", CodePageDown: "PageDown",
	CodeArrowUp: "Up", CodeArrowDown: "Down", CodeArrowLeft: "Left", CodeArrowRight: "Right",
	CodeMenu: "Menu",

	CodeMinus: "Minus", CodeEqual: "Equal", CodeLeftBracket: "LeftBracket",
	CodeRightBracket: "RightBracket", CodeBackslash: "Backslash", CodeSemicolon: "Semicolon",
	CodeApostrophe: "Apostrophe", CodeGrave: "Grave", CodeComma: "Comma",
	CodePeriod: "Period", CodeSlash: "Slash", CodeIntlBackslash: "IntlBackslash",

	CodeKP0: "KP0", CodeKP1: "KP1", CodeKP2: "KP2", CodeKP3: "KP3", CodeKP4: "KP4",
	CodeKP5: "KP5", CodeKP6: "KP6", CodeKP7: "KP7", CodeKP8: "KP8", CodeKP9: "KP9",
	CodeKPDivide: "KPDivide", CodeKPMultiply: "KPMultiply", CodeKPSubtract: "KPSubtract",
	CodeKPAdd: "KPAdd", CodeKPDecimal: "KPDecimal", CodeKPEnter: "KPEnter", CodeKPEqual: "KPEqual",

	CodeVolumeUp: "VolumeUp", CodeVolumeDown: "VolumeDown", CodeVolumeMute: "VolumeMute",
	CodeMediaPlayPause: "MediaPlayPause", CodeMediaNext: "MediaNext",
	CodeMediaPrev: "MediaPrev", CodeMediaStop: "MediaStop",

	CodeShift: "Shift", CodeCtrl: "Ctrl", CodeAlt: "Alt", CodeMeta: "Meta",
}

// aliases maps lower-case alternative spellings onto codes.
var aliases = map[string]Code{
	"control": CodeCtrl, "ctl": CodeCtrl,
	"option": CodeAlt, "opt": CodeAlt,
	"cmd": CodeMeta, "command": CodeMeta, "win": CodeMeta, "super": CodeMeta,
	"lshift": CodeLeftShift, "rshift": CodeRightShift,
	"lctrl": CodeLeftCtrl, "rctrl": CodeRightCtrl,
	"lalt": CodeLeftAlt, "ralt": CodeRightAlt, "altgr": CodeRightAlt,
	"lmeta": CodeLeftMeta, "rmeta": CodeRightMeta,
	"lcmd": CodeLeftMeta, "rcmd": CodeRightMeta,
	"lwin": CodeLeftMeta, "rwin": CodeRightMeta,
	"esc": CodeEscape, "return": CodeEnter, "bs": CodeBackspace,
	"del": CodeDelete, "ins": CodeInsert,
	"pgup": CodePageUp, "pgdn": CodePageDown, "pagedn": CodePageDown,
	"arrowup": CodeArrowUp, "arrowdown": CodeArrowDown,
	"arrowleft": CodeArrowLeft, "arrowright": CodeArrowRight,
	"prtsc": CodePrintScreen, "printscr": CodePrintScreen,
	"capslk": CodeCapsLock, "numlk": CodeNumLock, "scrlk": CodeScrollLock,
	"-": CodeMinus, "=": CodeEqual, "[": CodeLeftBracket, "]": CodeRightBracket,
	"\\": CodeBackslash, ";": CodeSemicolon, "'": CodeApostrophe, "`": CodeGrave,
	",": CodeComma, ".": CodePeriod, "/": CodeSlash,
	"mute": CodeVolumeMute, "playpause": CodeMediaPlayPause,
}

var codesByName = func() map[string]Code {
	m := make(map[string]Code, int(codeCount)+len(aliases))
	for c := CodeA; c < codeCount; c++ {
		m[strings.ToLower(codeNames[c])] = c
	}
	for k, v := range aliases {
		m[k] = v
	}
	return m
}()

func (c Code) String() string {
	if c < codeCount && codeNames[c] != "" {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", uint16(c))
}

// Valid reports whether c is a known code other than CodeUnknown.
func (c Code) Valid() bool { return c > CodeUnknown && c < codeCount }

// Physical reports whether c can appear in a captured or synthesized event.
func (c Code) Physical() bool { return c.Valid() && !c.Generic() }

// Generic reports whether c is a side-agnostic modifier.
func (c Code) Generic() bool { return c >= CodeShift && c <= CodeMeta }

// IsModifier reports whether c is a modifier key of either side or generic.
func (c Code) IsModifier() bool {
	return (c >= CodeLeftShift && c <= CodeRightMeta) || c.Generic()
}

// GenericOf returns the side-agnostic modifier for a left or right modifier,
// or CodeUnknown when c is not a sided modifier.
func (c Code) GenericOf() Code {
	switch c {
	case CodeLeftShift, CodeRightShift:
		return CodeShift
	case CodeLeftCtrl, CodeRightCtrl:
		return CodeCtrl
	case CodeLeftAlt, CodeRightAlt:
		return CodeAlt
	case CodeLeftMeta, CodeRightMeta:
		return CodeMeta
	}
	return CodeUnknown
}

// Sides returns the left and right codes for a generic modifier.
func (c Code) Sides() (left, right Code) {
	switch c {
	case CodeShift:
		return CodeLeftShift, CodeRightShift
	case CodeCtrl:
		return CodeLeftCtrl, CodeRightCtrl
	case CodeAlt:
		return CodeLeftAlt, CodeRightAlt
	case CodeMeta:
		return CodeLeftMeta, CodeRightMeta
	}
	return CodeUnknown, CodeUnknown
}

// Physicalize maps a generic modifier onto its left-hand key and returns any
// other code unchanged. Synthesis uses it since only physical keys can be sent.
func (c Code) Physicalize() Code {
	if c.Generic() {
		left, _ := c.Sides()
		return left
	}
	return c
}

// ParseCode resolves a key name case-insensitively. It accepts the names
// returned by Code.String plus common aliases ("ctrl", "cmd", "esc", ...).
func ParseCode(name string) (Code, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return CodeUnknown, false
	}
	c, ok := codesByName[name]
	return c, ok
}

// Codes returns every valid code in enumeration order.
func Codes() []Code {
	out := make([]Code, 0, codeCount-1)
	for c := CodeA; c < codeCount; c++ {
		out = append(out, c)
	}
	return out
}
