package backend

import "kmhook/internal/event"

// Windows virtual-key codes.
// Reference: https://learn.microsoft.com/windows/win32/inputdev/virtual-key-codes
var vkToCode = map[uint32]event.Code{
	0x41: event.CodeA, 0x42: event.CodeB, 0x43: event.CodeC, 0x44: event.CodeD,
	0x45: event.CodeE, 0x46: event.CodeF, 0x47: event.CodeG, 0x48: event.CodeH,
	0x49: event.CodeI, 0x4A: event.CodeJ, 0x4B: event.CodeK, 0x4C: event.CodeL,
	0x4D: event.CodeM, 0x4E: event.CodeN, 0x4F: event.CodeO, 0x50: event.CodeP,
	0x51: event.CodeQ, 0x52: event.CodeR, 0x53: event.CodeS, 0x54: event.CodeT,
	0x55: event.CodeU, 0x56: event.CodeV, 0x57: event.CodeW, 0x58: event.CodeX,
	0x59: event.CodeY, 0x5A: event.CodeZ,

	0x30: event.Code0, 0x31: event.Code1, 0x32: event.Code2, 0x33: event.Code3,
	0x34: event.Code4, 0x35: event.Code5, 0x36: event.Code6, 0x37: event.Code7,
	0x38: event.Code8, 0x39: event.Code9,

	0x70: event.CodeF1, 0x71: event.CodeF2, 0x72: event.CodeF3, 0x73: event.CodeF4,
	0x74: event.CodeF5, 0x75: event.CodeF6, 0x76: event.CodeF7, 0x77: event.CodeF8,
	0x78: event.CodeF9, 0x79: event.CodeF10, 0x7A: event.CodeF11, 0x7B: event.CodeF12,
	0x7C: event.CodeF13, 0x7D: event.CodeF14, 0x7E: event.CodeF15, 0x7F: event.CodeF16,
	0x80: event.CodeF17, 0x81: event.CodeF18, 0x82: event.CodeF19, 0x83: event.CodeF20,
	0x84: event.CodeF21, 0x85: event.CodeF22, 0x86: event.CodeF23, 0x87: event.CodeF24,

	// LL hooks report sided modifiers; 0x10-0x12 only show up from older
	// injectors and are folded onto the left key.
	0xA0: event.CodeLeftShift, 0xA1: event.CodeRightShift,
	0xA2: event.CodeLeftCtrl, 0xA3: event.CodeRightCtrl,
	0xA4: event.CodeLeftAlt, 0xA5: event.CodeRightAlt,
	0x5B: event.CodeLeftMeta, 0x5C: event.CodeRightMeta,
	0x10: event.CodeLeftShift, 0x11: event.CodeLeftCtrl, 0x12: event.CodeLeftAlt,

	0x1B: event.CodeEscape, 0x0D: event.CodeEnter, 0x09: event.CodeTab,
	0x08: event.CodeBackspace, 0x20: event.CodeSpace, 0x14: event.CodeCapsLock,
	0x90: event.CodeNumLock, 0x91: event.CodeScrollLock, 0x2C: event.CodePrintScreen,
	0x13: event.CodePause, 0x2D: event.CodeInsert, 0x2E: event.CodeDelete,
	0x24: event.CodeHome, 0x23: event.CodeEnd, 0x21: event.CodePageUp,
	0x22: event.CodePageDown, 0x26: event.CodeArrowUp, 0x28: event.CodeArrowDown,
	0x25: event.CodeArrowLeft, 0x27: event.CodeArrowRight, 0x5D: event.CodeMenu,

	0xBD: event.CodeMinus, 0xBB: event.CodeEqual, 0xDB: event.CodeLeftBracket,
	0xDD: event.CodeRightBracket, 0xDC: event.CodeBackslash, 0xBA: event.CodeSemicolon,
	0xDE: event.CodeApostrophe, 0xC0: event.CodeGrave, 0xBC: event.CodeComma,
	0xBE: event.CodePeriod, 0xBF: event.CodeSlash, 0xE2: event.CodeIntlBackslash,

	0x60: event.CodeKP0, 0x61: event.CodeKP1, 0x62: event.CodeKP2, 0x63: event.CodeKP3,
	0x64: event.CodeKP4, 0x65: event.CodeKP5, 0x66: event.CodeKP6, 0x67: event.CodeKP7,
	0x68: event.CodeKP8, 0x69: event.CodeKP9, 0x6F: event.CodeKPDivide,
	0x6A: event.CodeKPMultiply, 0x6D: event.CodeKPSubtract, 0x6B: event.CodeKPAdd,
	0x6E: event.CodeKPDecimal,

	0xAF: event.CodeVolumeUp, 0xAE: event.CodeVolumeDown, 0xAD: event.CodeVolumeMute,
	0xB3: event.CodeMediaPlayPause, 0xB0: event.CodeMediaNext,
	0xB1: event.CodeMediaPrev, 0xB2: event.CodeMediaStop,
}

// llkhfExtended is set in KBDLLHOOKSTRUCT.flags for keys on the extended
// block; Enter with the flag set is the keypad Enter.
const llkhfExtended = 0x01

var codeToVK = invert(vkToCode, map[event.Code]uint32{
	event.CodeLeftShift: 0xA0,
	event.CodeLeftCtrl:  0xA2,
	event.CodeLeftAlt:   0xA4,
	event.CodeKPEnter:   0x0D,
})

// vkCode translates a virtual key plus LL hook flags into a Code.
func vkCode(vk, flags uint32) event.Code {
	if vk == 0x0D && flags&llkhfExtended != 0 {
		return event.CodeKPEnter
	}
	return vkToCode[vk]
}

// vkFor returns the virtual key for code and whether it must be sent with
// KEYEVENTF_EXTENDEDKEY.
func vkFor(code event.Code) (vk uint32, extended, ok bool) {
	code = code.Physicalize()
	vk, ok = codeToVK[code]
	if !ok {
		return 0, false, false
	}
	switch code {
	case event.CodeKPEnter, event.CodeRightCtrl, event.CodeRightAlt,
		event.CodeInsert, event.CodeDelete, event.CodeHome, event.CodeEnd,
		event.CodePageUp, event.CodePageDown, event.CodeArrowUp, event.CodeArrowDown,
		event.CodeArrowLeft, event.CodeArrowRight, event.CodeKPDivide, event.CodeNumLock,
		event.CodeLeftMeta, event.CodeRightMeta, event.CodeMenu, event.CodePrintScreen:
		extended = true
	}
	return vk, extended, true
}

// invert builds the reverse of a native→code table. Where several native
// codes map to the same Code, prefer decides the winner.
func invert[N comparable](m map[N]event.Code, prefer map[event.Code]N) map[event.Code]N {
	out := make(map[event.Code]N, len(m))
	for native, code := range m {
		out[code] = native
	}
	for code, native := range prefer {
		out[code] = native
	}
	return out
}
