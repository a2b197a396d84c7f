package backend

import (
	evdev "github.com/holoplot/go-evdev"

	"kmhook/internal/event"
)

// evdevToCode maps Linux input-event-codes.h KEY_* values onto codes.
var evdevToCode = map[evdev.EvCode]event.Code{
	evdev.KEY_A: event.CodeA, evdev.KEY_B: event.CodeB, evdev.KEY_C: event.CodeC,
	evdev.KEY_D: event.CodeD, evdev.KEY_E: event.CodeE, evdev.KEY_F: event.CodeF,
	evdev.KEY_G: event.CodeG, evdev.KEY_H: event.CodeH, evdev.KEY_I: event.CodeI,
	evdev.KEY_J: event.CodeJ, evdev.KEY_K: event.CodeK, evdev.KEY_L: event.CodeL,
	evdev.KEY_M: event.CodeM, evdev.KEY_N: event.CodeN, evdev.KEY_O: event.CodeO,
	evdev.KEY_P: event.CodeP, evdev.KEY_Q: event.CodeQ, evdev.KEY_R: event.CodeR,
	evdev.KEY_S: event.CodeS, evdev.KEY_T: event.CodeT, evdev.KEY_U: event.CodeU,
	evdev.KEY_V: event.CodeV, evdev.KEY_W: event.CodeW, evdev.KEY_X: event.CodeX,
	evdev.KEY_Y: event.CodeY, evdev.KEY_Z: event.CodeZ,

	evdev.KEY_0: event.Code0, evdev.KEY_1: event.Code1, evdev.KEY_2: event.Code2,
	evdev.KEY_3: event.Code3, evdev.KEY_4: event.Code4, evdev.KEY_5: event.Code5,
	evdev.KEY_6: event.Code6, evdev.KEY_7: event.Code7, evdev.KEY_8: event.Code8,
	evdev.KEY_9: event.Code9,

	evdev.KEY_F1: event.CodeF1, evdev.KEY_F2: event.CodeF2, evdev.KEY_F3: event.CodeF3,
	evdev.KEY_F4: event.CodeF4, evdev.KEY_F5: event.CodeF5, evdev.KEY_F6: event.CodeF6,
	evdev.KEY_F7: event.CodeF7, evdev.KEY_F8: event.CodeF8, evdev.KEY_F9: event.CodeF9,
	evdev.KEY_F10: event.CodeF10, evdev.KEY_F11: event.CodeF11, evdev.KEY_F12: event.CodeF12,
	evdev.KEY_F13: event.CodeF13, evdev.KEY_F14: event.CodeF14, evdev.KEY_F15: event.CodeF15,
	evdev.KEY_F16: event.CodeF16, evdev.KEY_F17: event.CodeF17, evdev.KEY_F18: event.CodeF18,
	evdev.KEY_F19: event.CodeF19, evdev.KEY_F20: event.CodeF20, evdev.KEY_F21: event.CodeF21,
	evdev.KEY_F22: event.CodeF22, evdev.KEY_F23: event.CodeF23, evdev.KEY_F24: event.CodeF24,

	evdev.KEY_LEFTSHIFT: event.CodeLeftShift, evdev.KEY_RIGHTSHIFT: event.CodeRightShift,
	evdev.KEY_LEFTCTRL: event.CodeLeftCtrl, evdev.KEY_RIGHTCTRL: event.CodeRightCtrl,
	evdev.KEY_LEFTALT: event.CodeLeftAlt, evdev.KEY_RIGHTALT: event.CodeRightAlt,
	evdev.KEY_LEFTMETA: event.CodeLeftMeta, evdev.KEY_RIGHTMETA: event.CodeRightMeta,

	evdev.KEY_ESC: event.CodeEscape, evdev.KEY_ENTER: event.CodeEnter, evdev.KEY_TAB: event.CodeTab,
	evdev.KEY_BACKSPACE: event.CodeBackspace, evdev.KEY_SPACE: event.CodeSpace,
	evdev.KEY_CAPSLOCK: event.CodeCapsLock, evdev.KEY_NUMLOCK: event.CodeNumLock,
	evdev.KEY_SCROLLLOCK: event.CodeScrollLock, evdev.KEY_SYSRQ: event.CodePrintScreen,
	evdev.KEY_PAUSE: event.CodePause, evdev.KEY_INSERT: event.CodeInsert,
	evdev.KEY_DELETE: event.CodeDelete, evdev.KEY_HOME: event.CodeHome, evdev.KEY_END: event.CodeEnd,
	evdev.KEY_PAGEUP: event.CodePageUp, evdev.KEY_PAGEDOWN: event.CodePageDown,
	evdev.KEY_UP: event.CodeArrowUp, evdev.KEY_DOWN: event.CodeArrowDown,
	evdev.KEY_LEFT: event.CodeArrowLeft, evdev.KEY_RIGHT: event.CodeArrowRight,
	evdev.KEY_COMPOSE: event.CodeMenu,

	evdev.KEY_MINUS: event.CodeMinus, evdev.KEY_EQUAL: event.CodeEqual,
	evdev.KEY_LEFTBRACE: event.CodeLeftBracket, evdev.KEY_RIGHTBRACE: event.CodeRightBracket,
	evdev.KEY_BACKSLASH: event.CodeBackslash, evdev.KEY_SEMICOLON: event.CodeSemicolon,
	evdev.KEY_APOSTROPHE: event.CodeApostrophe, evdev.KEY_GRAVE: event.CodeGrave,
	evdev.KEY_COMMA: event.CodeComma, evdev.KEY_DOT: event.CodePeriod,
	evdev.KEY_SLASH: event.CodeSlash, evdev.KEY_102ND: event.CodeIntlBackslash,

	evdev.KEY_KP0: event.CodeKP0, evdev.KEY_KP1: event.CodeKP1, evdev.KEY_KP2: event.CodeKP2,
	evdev.KEY_KP3: event.CodeKP3, evdev.KEY_KP4: event.CodeKP4, evdev.KEY_KP5: event.CodeKP5,
	evdev.KEY_KP6: event.CodeKP6, evdev.KEY_KP7: event.CodeKP7, evdev.KEY_KP8: event.CodeKP8,
	evdev.KEY_KP9: event.CodeKP9, evdev.KEY_KPSLASH: event.CodeKPDivide,
	evdev.KEY_KPASTERISK: event.CodeKPMultiply, evdev.KEY_KPMINUS: event.CodeKPSubtract,
	evdev.KEY_KPPLUS: event.CodeKPAdd, evdev.KEY_KPDOT: event.CodeKPDecimal,
	evdev.KEY_KPENTER: event.CodeKPEnter, evdev.KEY_KPEQUAL: event.CodeKPEqual,

	evdev.KEY_VOLUMEUP: event.CodeVolumeUp, evdev.KEY_VOLUMEDOWN: event.CodeVolumeDown,
	evdev.KEY_MUTE: event.CodeVolumeMute, evdev.KEY_PLAYPAUSE: event.CodeMediaPlayPause,
	evdev.KEY_NEXTSONG: event.CodeMediaNext, evdev.KEY_PREVIOUSSONG: event.CodeMediaPrev,
	evdev.KEY_STOPCD: event.CodeMediaStop,
}

var codeToEvdev = invert(evdevToCode, nil)

var evdevButtons = map[evdev.EvCode]event.Button{
	evdev.BTN_LEFT:   event.ButtonLeft,
	evdev.BTN_RIGHT:  event.ButtonRight,
	evdev.BTN_MIDDLE: event.ButtonMiddle,
	evdev.BTN_SIDE:   event.ButtonX1,
	evdev.BTN_EXTRA:  event.ButtonX2,
}

var buttonToEvdev = func() map[event.Button]evdev.EvCode {
	m := make(map[event.Button]evdev.EvCode, len(evdevButtons))
	for code, b := range evdevButtons {
		m[b] = code
	}
	return m
}()

func evdevKeyFor(code event.Code) (evdev.EvCode, bool) {
	c, ok := codeToEvdev[code.Physicalize()]
	return c, ok
}
