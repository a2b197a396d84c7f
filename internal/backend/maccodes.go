package backend

import "kmhook/internal/event"

// macOS virtual key codes (kVK_* from HIToolbox/Events.h). They are layout
// independent positions, matching the ANSI layout names.
var macToCode = map[uint16]event.Code{
	0x00: event.CodeA, 0x0B: event.CodeB, 0x08: event.CodeC, 0x02: event.CodeD,
	0x0E: event.CodeE, 0x03: event.CodeF, 0x05: event.CodeG, 0x04: event.CodeH,
	0x22: event.CodeI, 0x26: event.CodeJ, 0x28: event.CodeK, 0x25: event.CodeL,
	0x2E: event.CodeM, 0x2D: event.CodeN, 0x1F: event.CodeO, 0x23: event.CodeP,
	0x0C: event.CodeQ, 0x0F: event.CodeR, 0x01: event.CodeS, 0x11: event.CodeT,
	0x20: event.CodeU, 0x09: event.CodeV, 0x0D: event.CodeW, 0x07: event.CodeX,
	0x10: event.CodeY, 0x06: event.CodeZ,

	0x1D: event.Code0, 0x12: event.Code1, 0x13: event.Code2, 0x14: event.Code3,
	0x15: event.Code4, 0x17: event.Code5, 0x16: event.Code6, 0x1A: event.Code7,
	0x1C: event.Code8, 0x19: event.Code9,

	0x7A: event.CodeF1, 0x78: event.CodeF2, 0x63: event.CodeF3, 0x76: event.CodeF4,
	0x60: event.CodeF5, 0x61: event.CodeF6, 0x62: event.CodeF7, 0x64: event.CodeF8,
	0x65: event.CodeF9, 0x6D: event.CodeF10, 0x67: event.CodeF11, 0x6F: event.CodeF12,
	0x69: event.CodeF13, 0x6B: event.CodeF14, 0x71: event.CodeF15, 0x6A: event.CodeF16,
	0x40: event.CodeF17, 0x4F: event.CodeF18, 0x50: event.CodeF19, 0x5A: event.CodeF20,

	0x38: event.CodeLeftShift, 0x3C: event.CodeRightShift,
	0x3B: event.CodeLeftCtrl, 0x3E: event.CodeRightCtrl,
	0x3A: event.CodeLeftAlt, 0x3D: event.CodeRightAlt,
	0x37: event.CodeLeftMeta, 0x36: event.CodeRightMeta,

	0x35: event.CodeEscape, 0x24: event.CodeEnter, 0x30: event.CodeTab,
	0x33: event.CodeBackspace, 0x31: event.CodeSpace, 0x39: event.CodeCapsLock,
	0x47: event.CodeNumLock, 0x72: event.CodeInsert, 0x75: event.CodeDelete,
	0x73: event.CodeHome, 0x77: event.CodeEnd, 0x74: event.CodePageUp,
	0x79: event.CodePageDown, 0x7E: event.CodeArrowUp, 0x7D: event.CodeArrowDown,
	0x7B: event.CodeArrowLeft, 0x7C: event.CodeArrowRight, 0x6E: event.CodeMenu,

	0x1B: event.CodeMinus, 0x18: event.CodeEqual, 0x21: event.CodeLeftBracket,
	0x1E: event.CodeRightBracket, 0x2A: event.CodeBackslash, 0x29: event.CodeSemicolon,
	0x27: event.CodeApostrophe, 0x32: event.CodeGrave, 0x2B: event.CodeComma,
	0x2F: event.CodePeriod, 0x2C: event.CodeSlash, 0x0A: event.CodeIntlBackslash,

	0x52: event.CodeKP0, 0x53: event.CodeKP1, 0x54: event.CodeKP2, 0x55: event.CodeKP3,
	0x56: event.CodeKP4, 0x57: event.CodeKP5, 0x58: event.CodeKP6, 0x59: event.CodeKP7,
	0x5B: event.CodeKP8, 0x5C: event.CodeKP9, 0x4B: event.CodeKPDivide,
	0x43: event.CodeKPMultiply, 0x4E: event.CodeKPSubtract, 0x45: event.CodeKPAdd,
	0x41: event.CodeKPDecimal, 0x4C: event.CodeKPEnter, 0x51: event.CodeKPEqual,

	0x48: event.CodeVolumeUp, 0x49: event.CodeVolumeDown, 0x4A: event.CodeVolumeMute,
}

var codeToMac = invert(macToCode, nil)

// macCode translates a kVK code into a Code.
func macCode(kc uint16) event.Code {
	return macToCode[kc]
}

// macKeyFor returns the kVK code for code.
func macKeyFor(code event.Code) (uint16, bool) {
	kc, ok := codeToMac[code.Physicalize()]
	return kc, ok
}

// Modifier flag bits from CGEventFlags, used to decide whether a
// kCGEventFlagsChanged event is a press or a release.
const (
	macFlagShift   = 0x00020000
	macFlagControl = 0x00040000
	macFlagOption  = 0x00080000
	macFlagCommand = 0x00100000
	macFlagCaps    = 0x00010000
)

// macModifierDown reports the pressed state of a modifier key from the event
// flags. ok is false when code is not a modifier the flags describe.
func macModifierDown(code event.Code, flags uint64) (down, ok bool) {
	var mask uint64
	switch code {
	case event.CodeLeftShift, event.CodeRightShift:
		mask = macFlagShift
	case event.CodeLeftCtrl, event.CodeRightCtrl:
		mask = macFlagControl
	case event.CodeLeftAlt, event.CodeRightAlt:
		mask = macFlagOption
	case event.CodeLeftMeta, event.CodeRightMeta:
		mask = macFlagCommand
	case event.CodeCapsLock:
		mask = macFlagCaps
	default:
		return false, false
	}
	return flags&mask != 0, true
}

// macButton maps kCGMouseEventButtonNumber onto a button.
func macButton(n int64) event.Button {
	switch n {
	case 0:
		return event.ButtonLeft
	case 1:
		return event.ButtonRight
	case 2:
		return event.ButtonMiddle
	case 3:
		return event.ButtonX1
	case 4:
		return event.ButtonX2
	}
	return event.ButtonUnknown
}

func macButtonNumber(b event.Button) int64 {
	for n := int64(0); n <= 4; n++ {
		if macButton(n) == b {
			return n
		}
	}
	return 2
}
