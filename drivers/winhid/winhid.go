//go:build windows

// Package winhid implements a Windows-only driver over low-level
// keyboard/mouse hooks (WH_KEYBOARD_LL, WH_MOUSE_LL) and XInput for
// gamepads.
package winhid

import (
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/gonutz/w32/v3"

	"suinput/core/device"
	"suinput/core/driverapi"
	"suinput/core/internal/logger"
)

// Driver is a driverapi.Driver backed by Windows low-level input hooks
// plus XInput gamepad polling.
type Driver struct {
	Log logger.Logger

	rt driverapi.Runtime

	keyboard device.Handle
	mouse    device.Handle

	mu       sync.Mutex
	windows  []uintptr
	gamepads [4]*device.Handle

	kbHook w32.HHOOK
	msHook w32.HHOOK

	stop chan struct{}
	done chan struct{}
}

// New returns a Driver ready for Initialize.
func New(log logger.Logger) *Driver {
	return &Driver{Log: log, stop: make(chan struct{}), done: make(chan struct{})}
}

// Initialize installs the low-level keyboard and mouse hooks and
// registers the desktop keyboard/mouse devices.
func (d *Driver) Initialize(rt driverapi.Runtime) error {
	d.rt = rt

	kbPath, err := rt.GetPath("/devices/standard/hid_keyboard")
	if err != nil {
		return fmt.Errorf("winhid: keyboard path: %w", err)
	}
	mousePath, err := rt.GetPath("/devices/standard/generic_mouse")
	if err != nil {
		return fmt.Errorf("winhid: mouse path: %w", err)
	}
	if d.keyboard, err = rt.RegisterDevice(kbPath); err != nil {
		return fmt.Errorf("winhid: register keyboard: %w", err)
	}
	if d.mouse, err = rt.RegisterDevice(mousePath); err != nil {
		return fmt.Errorf("winhid: register mouse: %w", err)
	}

	hInst, err := w32.GetModuleHandle(nil)
	if err != nil {
		return fmt.Errorf("winhid: GetModuleHandle: %w", err)
	}

	kbProc := w32.NewHookProcedure(d.keyboardHookProc)
	d.kbHook, err = w32.SetWindowsHookEx(w32.WH_KEYBOARD_LL, kbProc, hInst, 0)
	if err != nil || d.kbHook == 0 {
		return fmt.Errorf("winhid: SetWindowsHookEx(WH_KEYBOARD_LL): %w", err)
	}

	msProc := w32.NewHookProcedure(d.mouseHookProc)
	d.msHook, err = w32.SetWindowsHookEx(w32.WH_MOUSE_LL, msProc, hInst, 0)
	if err != nil || d.msHook == 0 {
		w32.UnhookWindowsHookEx(d.kbHook)
		return fmt.Errorf("winhid: SetWindowsHookEx(WH_MOUSE_LL): %w", err)
	}

	go d.messageLoop()
	d.Log.Info("winhid driver: initialized, keyboard+mouse hooks installed")
	return nil
}

// messageLoop pumps the Win32 message queue the installed hooks are
// delivered through, until Destroy calls PostQuitMessage.
func (d *Driver) messageLoop() {
	defer close(d.done)
	var msg w32.MSG
	for {
		ret, err := w32.GetMessage(&msg, 0, 0, 0)
		if err != nil || !ret {
			return
		}
		w32.TranslateMessage(&msg)
		w32.DispatchMessage(&msg)
	}
}

func (d *Driver) keyboardHookProc(code int32, wParam, lParam uintptr) uintptr {
	if code >= 0 {
		k := (*w32.KBDLLHOOKSTRUCT)(unsafe.Pointer(lParam))
		switch wParam {
		case w32.WM_KEYDOWN, w32.WM_SYSKEYDOWN:
			d.sendKey(k.VkCode, true)
		case w32.WM_KEYUP, w32.WM_SYSKEYUP:
			d.sendKey(k.VkCode, false)
		}
	}
	return w32.CallNextHookEx(0, code, wParam, lParam)
}

func (d *Driver) sendKey(vk uint32, pressed bool) {
	seg, ok := vkSegment(vk)
	if !ok {
		return
	}
	p, err := d.rt.GetPath("/input/" + seg + "/click")
	if err != nil {
		return
	}
	d.rt.SendComponentEvent(device.InputEvent{
		Path: p, Time: time.Now(), Data: device.ButtonData(pressed),
	}, d.keyboard)
}

func (d *Driver) mouseHookProc(code int32, wParam, lParam uintptr) uintptr {
	if code >= 0 {
		m := (*w32.MSLLHOOKSTRUCT)(unsafe.Pointer(lParam))
		switch wParam {
		case w32.WM_LBUTTONDOWN:
			d.sendMouseButton("button_left", true)
		case w32.WM_LBUTTONUP:
			d.sendMouseButton("button_left", false)
		case w32.WM_RBUTTONDOWN:
			d.sendMouseButton("button_right", true)
		case w32.WM_RBUTTONUP:
			d.sendMouseButton("button_right", false)
		case w32.WM_MBUTTONDOWN:
			d.sendMouseButton("button_middle", true)
		case w32.WM_MBUTTONUP:
			d.sendMouseButton("button_middle", false)
		case w32.WM_MOUSEMOVE:
			d.sendCursor(m)
		}
	}
	return w32.CallNextHookEx(0, code, wParam, lParam)
}

func (d *Driver) sendMouseButton(seg string, pressed bool) {
	p, err := d.rt.GetPath("/input/" + seg + "/click")
	if err != nil {
		return
	}
	d.rt.SendComponentEvent(device.InputEvent{
		Path: p, Time: time.Now(), Data: device.ButtonData(pressed),
	}, d.mouse)
}

var (
	lastCursorX, lastCursorY int32
	haveCursor               bool
)

func (d *Driver) sendCursor(m *w32.MSLLHOOKSTRUCT) {
	now := time.Now()
	x, y := float64(m.Pt.X), float64(m.Pt.Y)
	if posePath, err := d.rt.GetPath("/input/cursor/pose"); err == nil {
		d.rt.SendComponentEvent(device.InputEvent{
			Path: posePath, Time: now,
			Data: device.CursorData{X: x, Y: y, Window: d.focusedWindow()},
		}, d.mouse)
	}
	if haveCursor {
		dx, dy := float64(m.Pt.X-lastCursorX), float64(m.Pt.Y-lastCursorY)
		if dx != 0 || dy != 0 {
			if movePath, err := d.rt.GetPath("/input/move/delta"); err == nil {
				d.rt.SendComponentEvent(device.InputEvent{
					Path: movePath, Time: now, Data: device.Move2DData{X: dx, Y: dy},
				}, d.mouse)
			}
		}
	}
	lastCursorX, lastCursorY, haveCursor = m.Pt.X, m.Pt.Y, true
}

func (d *Driver) focusedWindow() uintptr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.windows) == 0 {
		return 0
	}
	return d.windows[0]
}

// Poll drives XInput gamepad discovery and sampling; the keyboard and
// mouse are event-driven via the hooks installed in Initialize.
func (d *Driver) Poll() error {
	if d.rt == nil {
		return driverapi.ErrDriverUninitialized
	}
	time.Sleep(16 * time.Millisecond)
	for i := uint32(0); i < 4; i++ {
		d.pollXInput(i)
	}
	return nil
}

func (d *Driver) pollXInput(index uint32) {
	state, err := xInputGetState(index)
	if err != nil {
		if d.gamepads[index] != nil {
			d.rt.DisconnectDevice(*d.gamepads[index])
			d.gamepads[index] = nil
		}
		return
	}

	if d.gamepads[index] == nil {
		gpPath, err := d.rt.GetPath("/devices/gamepad/dualsense")
		if err != nil {
			return
		}
		h, err := d.rt.RegisterDevice(gpPath)
		if err != nil {
			d.Log.Warn(fmt.Sprintf("winhid driver: register gamepad %d: %v", index, err))
			return
		}
		d.gamepads[index] = &h
	}
	handle := *d.gamepads[index]
	now := time.Now()
	g := state.Gamepad

	buttons := []struct {
		seg  string
		mask uint16
	}{
		{"dpad_up", 0x0001}, {"dpad_down", 0x0002}, {"dpad_left", 0x0004}, {"dpad_right", 0x0008},
		{"shoulder_left", 0x0100}, {"shoulder_right", 0x0200},
		{"thumbstick_left", 0x0040}, {"thumbstick_right", 0x0080},
		{"a", 0x1000}, {"b", 0x2000}, {"x", 0x4000}, {"y", 0x8000},
	}
	for _, b := range buttons {
		if p, err := d.rt.GetPath("/input/" + b.seg + "/click"); err == nil {
			d.rt.SendComponentEvent(device.InputEvent{
				Path: p, Time: now, Data: device.ButtonData(g.Buttons&b.mask != 0),
			}, handle)
		}
	}

	send := func(seg string, data device.Data) {
		if p, err := d.rt.GetPath(seg); err == nil {
			d.rt.SendComponentEvent(device.InputEvent{Path: p, Time: now, Data: data}, handle)
		}
	}
	send("/input/thumbstick_left/move", device.Axis2DData{
		X: float32(g.ThumbLX) / 32767.0, Y: float32(g.ThumbLY) / 32767.0,
	})
	send("/input/thumbstick_right/move", device.Axis2DData{
		X: float32(g.ThumbRX) / 32767.0, Y: float32(g.ThumbRY) / 32767.0,
	})
	send("/input/trigger_left/value", device.ValueData(float32(g.LeftTrigger)/255.0))
	send("/input/trigger_right/value", device.ValueData(float32(g.RightTrigger)/255.0))
}

// SetWindows records the focused window handles cursor events are
// scoped to.
func (d *Driver) SetWindows(windows []uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windows = windows
}

// Destroy unhooks the keyboard/mouse hooks and ends the message loop.
func (d *Driver) Destroy() error {
	w32.UnhookWindowsHookEx(d.kbHook)
	w32.UnhookWindowsHookEx(d.msHook)
	w32.PostQuitMessage(0)
	<-d.done
	return nil
}

// --- XInput plumbing ---

var (
	xinputDLL          = syscall.NewLazyDLL("xinput1_4.dll")
	procXInputGetState = xinputDLL.NewProc("XInputGetState")
)

type xInputState struct {
	PacketNumber uint32
	Gamepad      xInputGamepad
}

type xInputGamepad struct {
	Buttons      uint16
	LeftTrigger  byte
	RightTrigger byte
	ThumbLX      int16
	ThumbLY      int16
	ThumbRX      int16
	ThumbRY      int16
}

func xInputGetState(index uint32) (*xInputState, error) {
	var state xInputState
	r, _, _ := procXInputGetState.Call(uintptr(index), uintptr(unsafe.Pointer(&state)))
	if r != 0 {
		return nil, syscall.Errno(r)
	}
	return &state, nil
}

// vkSegment maps the subset of virtual-key codes the desktop keyboard
// device type declares to their path leaf.
func vkSegment(vk uint32) (string, bool) {
	switch vk {
	case 0x09:
		return "tab", true
	case 0x0D:
		return "enter", true
	case 0x10:
		return "left-shift", true
	case 0x11:
		return "left-ctrl", true
	case 0x12:
		return "left-alt", true
	case 0x1B:
		return "escape", true
	case 0x20:
		return "space", true
	case 0x25:
		return "left", true
	case 0x26:
		return "up", true
	case 0x27:
		return "right", true
	case 0x28:
		return "down", true
	}
	if vk >= 0x41 && vk <= 0x5A {
		return string(rune('a' + (vk - 0x41))), true
	}
	return "", false
}
