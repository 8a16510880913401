package core

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// KeyCode follows the Windows virtual key layout, so letters and digits are
// their ASCII values.
type KeyCode uint16

const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_PAUSE     KeyCode = 0x13
	KEY_CAPITAL   KeyCode = 0x14
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
)

// navigation block
const (
	KEY_PRIOR KeyCode = 0x21 + iota
	KEY_NEXT
	KEY_END
	KEY_HOME
	KEY_LEFT
	KEY_UP
	KEY_RIGHT
	KEY_DOWN
)

const (
	KEY_SNAPSHOT KeyCode = 0x2C + iota
	KEY_INSERT
	KEY_DELETE
)

const (
	KEY_0 KeyCode = 0x30 + iota
	KEY_1
	KEY_2
	KEY_3
	KEY_4
	KEY_5
	KEY_6
	KEY_7
	KEY_8
	KEY_9
)

const (
	KEY_A KeyCode = 0x41 + iota
	KEY_B
	KEY_C
	KEY_D
	KEY_E
	KEY_F
	KEY_G
	KEY_H
	KEY_I
	KEY_J
	KEY_K
	KEY_L
	KEY_M
	KEY_N
	KEY_O
	KEY_P
	KEY_Q
	KEY_R
	KEY_S
	KEY_T
	KEY_U
	KEY_V
	KEY_W
	KEY_X
	KEY_Y
	KEY_Z
	KEY_LWIN
	KEY_RWIN
	KEY_APPS
)

// numeric keypad
const (
	KEY_NUMPAD0 KeyCode = 0x60 + iota
	KEY_NUMPAD1
	KEY_NUMPAD2
	KEY_NUMPAD3
	KEY_NUMPAD4
	KEY_NUMPAD5
	KEY_NUMPAD6
	KEY_NUMPAD7
	KEY_NUMPAD8
	KEY_NUMPAD9
	KEY_MULTIPLY
	KEY_ADD
	KEY_SEPARATOR
	KEY_SUBTRACT
	KEY_DECIMAL
	KEY_DIVIDE
)

// F1 to F24 are contiguous
const (
	KEY_F1  KeyCode = 0x70
	KEY_F12 KeyCode = KEY_F1 + 11
	KEY_F24 KeyCode = KEY_F1 + 23
)

const (
	KEY_NUMLOCK      KeyCode = 0x90
	KEY_SCROLL       KeyCode = 0x91
	KEY_NUMPAD_EQUAL KeyCode = 0x92
)

// left/right modifiers
const (
	KEY_LSHIFT KeyCode = 0xA0 + iota
	KEY_RSHIFT
	KEY_LCONTROL
	KEY_RCONTROL
	KEY_LMENU
	KEY_RMENU
)

// punctuation
const (
	KEY_SEMICOLON KeyCode = 0xBA + iota
	KEY_PLUS
	KEY_COMMA
	KEY_MINUS
	KEY_PERIOD
	KEY_SLASH
	KEY_GRAVE
)

const keyCount = 256

// framed keeps the state of this frame next to the one of the frame before.
type framed[S any] struct {
	current  S
	previous S
}

func (f *framed[S]) advance() {
	f.previous = f.current
}

type pointer struct {
	x, y    uint16
	buttons [BUTTON_MAX_BUTTONS]bool
}

type inputSystem struct {
	keys  framed[[keyCount]bool]
	mouse framed[pointer]
	// wheel ticks received since the last InputUpdate
	scroll int32
}

// nil until InputInitialize
var input *inputSystem

func InputInitialize() error {
	input = &inputSystem{}
	LogInfo("Input subsystem initialized.")
	return nil
}

func InputShutdown() error {
	input = nil
	return nil
}

// InputUpdate closes the frame: the current state becomes the previous one.
// Call it after everything that reads input.
func InputUpdate(deltaTime float64) error {
	if input == nil {
		return nil
	}
	input.keys.advance()
	input.mouse.advance()
	input.scroll = 0
	return nil
}

func keyState(key KeyCode, previous bool) bool {
	if input == nil || int(key) >= keyCount {
		return false
	}
	if previous {
		return input.keys.previous[key]
	}
	return input.keys.current[key]
}

func InputIsKeyDown(key KeyCode) bool {
	return keyState(key, false)
}

func InputIsKeyUp(key KeyCode) bool {
	return input != nil && !keyState(key, false)
}

func InputWasKeyDown(key KeyCode) bool {
	return keyState(key, true)
}

func InputWasKeyUp(key KeyCode) bool {
	return input != nil && !keyState(key, true)
}

// InputKeyPressed reports a key that went down during this frame.
func InputKeyPressed(key KeyCode) bool {
	return keyState(key, false) && !keyState(key, true)
}

// InputProcessKey records a key transition and fires KEY_PRESSED or
// KEY_RELEASED. Repeats of the same state are dropped.
func InputProcessKey(key KeyCode, pressed bool) error {
	if input == nil || int(key) >= keyCount {
		return nil
	}
	if input.keys.current[key] == pressed {
		return nil
	}
	input.keys.current[key] = pressed

	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	EventFire(EventContext{Type: code, Data: &KeyEvent{KeyCode: key}})
	return nil
}

func buttonState(button Button, previous bool) bool {
	if input == nil || button >= BUTTON_MAX_BUTTONS {
		return false
	}
	if previous {
		return input.mouse.previous.buttons[button]
	}
	return input.mouse.current.buttons[button]
}

func InputIsButtonDown(button Button) bool {
	return buttonState(button, false)
}

func InputIsButtonUp(button Button) bool {
	return input != nil && !buttonState(button, false)
}

func InputWasButtonDown(button Button) bool {
	return buttonState(button, true)
}

func InputWasButtonUp(button Button) bool {
	return input != nil && !buttonState(button, true)
}

func InputGetMousePosition() (int32, int32) {
	if input == nil {
		return 0, 0
	}
	return int32(input.mouse.current.x), int32(input.mouse.current.y)
}

func InputGetPreviousMousePosition() (int32, int32) {
	if input == nil {
		return 0, 0
	}
	return int32(input.mouse.previous.x), int32(input.mouse.previous.y)
}

// InputMouseDelta is how far the cursor moved during this frame.
func InputMouseDelta() (int32, int32) {
	x, y := InputGetMousePosition()
	px, py := InputGetPreviousMousePosition()
	return x - px, y - py
}

// InputScrollDelta sums the wheel ticks of this frame, positive away from
// the user.
func InputScrollDelta() int32 {
	if input == nil {
		return 0
	}
	return input.scroll
}

func InputProcessButton(button Button, pressed bool) error {
	if input == nil || button >= BUTTON_MAX_BUTTONS {
		return nil
	}
	if input.mouse.current.buttons[button] == pressed {
		return nil
	}
	input.mouse.current.buttons[button] = pressed

	code := EVENT_CODE_BUTTON_RELEASED
	if pressed {
		code = EVENT_CODE_BUTTON_PRESSED
	}
	EventFire(EventContext{Type: code, Data: &MouseEvent{Button: button}})
	return nil
}

func InputProcessMouseMove(x uint16, y uint16) error {
	if input == nil {
		return nil
	}
	m := &input.mouse.current
	if m.x == x && m.y == y {
		return nil
	}
	m.x, m.y = x, y
	EventFire(EventContext{Type: EVENT_CODE_MOUSE_MOVED, Data: &MouseEvent{PosX: x, PosY: y}})
	return nil
}

func InputProcessMouseWheel(zDelta int8) error {
	if input == nil {
		return nil
	}
	input.scroll += int32(zDelta)
	EventFire(EventContext{Type: EVENT_CODE_MOUSE_WHEEL, Data: &MouseEvent{Scroll: zDelta}})
	return nil
}
